// Package sim provides a simulated probe front end.
package sim

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Board dimensions.
const (
	DACChannels    = 2
	Potentiometers = 1
)

// DefaultMaxRate is the sample rate limit of the simulated ADC.
const DefaultMaxRate uint16 = 5000

// State is a snapshot of the simulated outputs.
type State struct {
	DAC           [DACChannels]uint16
	Buffer        [DACChannels]uint16
	BufferEnabled [DACChannels]bool
	Potentiometer [Potentiometers]uint16
	Sampling      bool
	Rate          uint16
	Beeps         int
	Initialized   bool
}

// Output returns what a DAC channel currently drives: the buffer
// when buffered playback is enabled, the static value otherwise.
func (s State) Output(channel uint8) uint16 {
	if s.BufferEnabled[channel] {
		return s.Buffer[channel]
	}
	return s.DAC[channel]
}

// Source produces an ADC reading from the board state.
type Source func(State) uint16

// Loopback wires a DAC channel back into the ADC.
func Loopback(channel uint8) Source {
	return func(s State) uint16 { return s.Output(channel) }
}

// Constant always reads v.
func Constant(v uint16) Source {
	return func(State) uint16 { return v }
}

// Ramp reads start, start+step, ... wrapping around.
func Ramp(start, step uint16) Source {
	var lock sync.Mutex
	next := start
	return func(State) uint16 {
		lock.Lock()
		defer lock.Unlock()
		v := next
		next += step
		return v
	}
}

// Board simulates DAC, ADC, potentiometer and beeper.
// It implements probe.Actuator and probe.Hardware.
type Board struct {
	MaxRate uint16
	Source  Source

	lock  sync.Mutex
	state State
}

// NewBoard creates a Board with the ADC looped back from DAC0.
func NewBoard() *Board {
	return &Board{MaxRate: DefaultMaxRate, Source: Loopback(0)}
}

// State returns a snapshot of the board.
func (b *Board) State() State {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.state
}

// Init implements probe.Hardware.
func (b *Board) Init() error {
	b.lock.Lock()
	beeps := b.state.Beeps
	b.state = State{Initialized: true, Beeps: beeps}
	b.lock.Unlock()
	glog.Info("simulated board initialized")
	return nil
}

// Beep implements probe.Hardware.
func (b *Board) Beep(times int) {
	if times <= 0 {
		return
	}
	b.lock.Lock()
	b.state.Beeps += times
	b.lock.Unlock()
	glog.Infof("beep x%d", times)
}

// SetDAC implements probe.Actuator.
func (b *Board) SetDAC(channel uint8, value uint16) error {
	if err := checkDAC(channel); err != nil {
		return err
	}
	b.lock.Lock()
	b.state.DAC[channel] = value
	b.lock.Unlock()
	return nil
}

// ReadADC implements probe.Actuator.
func (b *Board) ReadADC() (uint16, error) {
	return b.read(), nil
}

// SetDACBuffer implements probe.Actuator.
func (b *Board) SetDACBuffer(channel uint8, data uint16) error {
	if err := checkDAC(channel); err != nil {
		return err
	}
	b.lock.Lock()
	b.state.Buffer[channel], b.state.BufferEnabled[channel] = data, true
	b.lock.Unlock()
	return nil
}

// DisableDACBuffer implements probe.Actuator.
func (b *Board) DisableDACBuffer(channel uint8) error {
	if err := checkDAC(channel); err != nil {
		return err
	}
	b.lock.Lock()
	b.state.BufferEnabled[channel] = false
	b.lock.Unlock()
	return nil
}

// SetPotentiometer implements probe.Actuator.
func (b *Board) SetPotentiometer(index uint8, value uint16) error {
	if int(index) >= Potentiometers {
		return fmt.Errorf("potentiometer %d not available", index)
	}
	b.lock.Lock()
	b.state.Potentiometer[index] = value
	b.lock.Unlock()
	return nil
}

// BeginSampling implements probe.Actuator.
func (b *Board) BeginSampling(rate uint16) (bool, error) {
	if b.MaxRate > 0 && rate > b.MaxRate {
		return false, nil
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.state.Sampling {
		return false, fmt.Errorf("already sampling")
	}
	b.state.Sampling, b.state.Rate = true, rate
	return true, nil
}

// EndSampling implements probe.Actuator.
func (b *Board) EndSampling() error {
	b.lock.Lock()
	b.state.Sampling, b.state.Rate = false, 0
	b.lock.Unlock()
	return nil
}

// SampleOnce implements probe.Actuator.
func (b *Board) SampleOnce() (uint16, error) {
	return b.read(), nil
}

func (b *Board) read() uint16 {
	src := b.Source
	if src == nil {
		return 0
	}
	return src(b.State())
}

func checkDAC(channel uint8) error {
	if int(channel) >= DACChannels {
		return fmt.Errorf("DAC %d not available", channel)
	}
	return nil
}
