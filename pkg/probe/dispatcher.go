package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultMaxRate is the highest sample rate (samples per second) accepted
// by StartStream unless configured otherwise.
const DefaultMaxRate uint16 = 10000

// ResyncPolicy decides what is discarded after a malformed command.
type ResyncPolicy int

const (
	// ResyncDumpAll discards every queued inbound byte.
	ResyncDumpAll ResyncPolicy = iota
	// ResyncToCommand discards queued bytes until a known command code.
	ResyncToCommand
)

// ParseResyncPolicy parses the names "dump-all" and "to-command".
func ParseResyncPolicy(name string) (ResyncPolicy, error) {
	switch name {
	case "", "dump-all":
		return ResyncDumpAll, nil
	case "to-command":
		return ResyncToCommand, nil
	}
	return ResyncDumpAll, fmt.Errorf("unknown resync policy %q", name)
}

// String implements fmt.Stringer.
func (p ResyncPolicy) String() string {
	if p == ResyncToCommand {
		return "to-command"
	}
	return "dump-all"
}

// Dispatcher is the probe side state machine. It reads commands from
// the Link, drives the Actuator and writes responses back.
type Dispatcher struct {
	Link       Link
	Actuator   Actuator
	Vocabulary *Vocabulary
	MaxRate    uint16
	Resync     ResyncPolicy
	Tap        SampleTap

	lock    sync.RWMutex
	session Session
}

// NewDispatcher creates a Dispatcher with the default vocabulary.
func NewDispatcher(link Link, actuator Actuator) *Dispatcher {
	return &Dispatcher{
		Link:       link,
		Actuator:   actuator,
		Vocabulary: DefaultVocabulary(),
		MaxRate:    DefaultMaxRate,
	}
}

// Session returns a snapshot of the current session.
func (d *Dispatcher) Session() Session {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.session
}

func (d *Dispatcher) setSession(s Session) {
	d.lock.Lock()
	d.session = s
	d.lock.Unlock()
}

// Run implements Runnable. It services commands until the link
// closes or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
}

// Step reads and handles one command. A StartStream command is handled
// until the stream ends. Only link failures and cancellation are returned.
func (d *Dispatcher) Step(ctx context.Context) error {
	code, err := d.Link.ReceiveByte(ctx)
	if err != nil {
		if errors.Is(err, ErrLinkTimeout) {
			return nil
		}
		return err
	}
	cmd, ok := d.Vocabulary.Command(code)
	if !ok {
		return d.reject(&UnknownCommandError{Code: code})
	}

	var param uint32
	switch cmd.Param {
	case ParamWord:
		var w uint16
		w, err = d.Link.ReceiveWord(ctx)
		param = uint32(w)
	case ParamDWord:
		param, err = d.Link.ReceiveDWord(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrLinkTimeout) {
			return d.reject(fmt.Errorf("%s parameter: %w", cmd.Name, err))
		}
		return err
	}
	glog.V(2).Infof("CMD %s(0x%02x) param=0x%x", cmd.Name, cmd.Code, param)
	return d.execute(ctx, cmd, param)
}

func (d *Dispatcher) execute(ctx context.Context, cmd CommandSpec, param uint32) error {
	var err error
	switch cmd.Op {
	case OpStartStream:
		return d.stream(ctx, cmd, uint16(param))
	case OpStopStream:
		// nothing to stop, answered the same way every time.
		glog.Warningf("%s while idle", cmd.Name)
		return d.respond(ResponseError)
	case OpSetDAC:
		err = d.Actuator.SetDAC(cmd.Channel, uint16(param))
	case OpGetADC:
		var value uint16
		if value, err = d.Actuator.ReadADC(); err != nil {
			return d.actuatorFailed(cmd, err)
		}
		return d.respondWord(ResponseAck, value)
	case OpSetDACBuffer:
		err = d.Actuator.SetDACBuffer(cmd.Channel, uint16(param))
	case OpDisableDACBuffer:
		err = d.Actuator.DisableDACBuffer(cmd.Channel)
	case OpSetPotentiometer:
		err = d.Actuator.SetPotentiometer(cmd.Channel, uint16(param))
	default:
		return d.reject(fmt.Errorf("%s: unsupported operation %v", cmd.Name, cmd.Op))
	}
	if err != nil {
		return d.actuatorFailed(cmd, err)
	}
	return d.respond(ResponseAck)
}

func (d *Dispatcher) stream(ctx context.Context, cmd CommandSpec, rate uint16) error {
	if rate > d.MaxRate {
		glog.Warningf("%s: rate %d exceeds %d", cmd.Name, rate, d.MaxRate)
		return d.respond(ResponseErrorTooFast)
	}
	ok, err := d.Actuator.BeginSampling(rate)
	if err != nil {
		return d.actuatorFailed(cmd, err)
	}
	if !ok {
		glog.Warningf("%s: rate %d rejected by hardware", cmd.Name, rate)
		return d.respond(ResponseErrorTooFast)
	}
	if err = d.respond(ResponseStreaming); err != nil {
		d.endSampling()
		return err
	}

	glog.Infof("streaming started, rate=%d", rate)
	d.setSession(Session{State: SessionStreaming, Rate: rate})
	if d.Tap != nil {
		d.Tap.StreamStarted(rate)
	}

	var tick <-chan time.Time
	if rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		tick = ticker.C
	}
	var failures int
	for {
		due, err := d.waitSample(ctx, tick, sampleBackoff(tick, failures))
		if err != nil {
			return d.abortStream(err)
		}
		stop, err := d.pollStop(ctx)
		if err != nil {
			return d.abortStream(err)
		}
		if stop {
			return d.finishStream()
		}
		if !due {
			continue
		}

		value, err := d.Actuator.SampleOnce()
		if err != nil {
			// log the 1st, 2nd, 4th, 8th... consecutive failure.
			if failures++; failures&(failures-1) == 0 {
				glog.Warningf("sample error (%d in a row): %v", failures, err)
			}
			continue
		}
		failures = 0
		if err = d.Link.SendWord(value); err == nil {
			err = d.Link.Flush()
		}
		if err != nil {
			return d.abortStream(err)
		}
		d.lock.Lock()
		d.session.Samples++
		d.lock.Unlock()
		if d.Tap != nil {
			d.Tap.Sample(value)
		}
	}
}

// maxSampleBackoff caps the retry delay of a free running stream whose
// samples keep failing.
const maxSampleBackoff = 100 * time.Millisecond

func sampleBackoff(tick <-chan time.Time, failures int) time.Duration {
	if tick != nil || failures == 0 {
		return 0
	}
	if failures > 8 {
		return maxSampleBackoff
	}
	if delay := time.Millisecond << uint(failures-1); delay < maxSampleBackoff {
		return delay
	}
	return maxSampleBackoff
}

// waitSample waits until the next sample is due. It returns early with
// due false when inbound bytes arrive, so StopStream is seen between
// slow ticks.
func (d *Dispatcher) waitSample(ctx context.Context, tick <-chan time.Time, delay time.Duration) (bool, error) {
	if tick == nil && delay <= 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
			runtime.Gosched()
			return true, nil
		}
	}
	if tick == nil {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		tick = timer.C
	}
	select {
	case <-tick:
		return true, nil
	case <-d.Link.Readable():
		if !d.Link.CanReadByte() {
			// woken without bytes, the link has failed.
			_, err := d.Link.ReceiveByte(ctx)
			if err == nil {
				err = ErrLinkClosed
			}
			return false, err
		}
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// pollStop consumes pending inbound bytes looking for StopStream.
// Anything else received during streaming is discarded.
func (d *Dispatcher) pollStop(ctx context.Context) (bool, error) {
	for d.Link.CanReadByte() {
		code, err := d.Link.ReceiveByte(ctx)
		if err != nil {
			return false, err
		}
		if cmd, ok := d.Vocabulary.Command(code); ok && cmd.Op == OpStopStream {
			return true, nil
		}
		glog.V(2).Infof("streaming: discard 0x%02x", code)
	}
	return false, nil
}

func (d *Dispatcher) finishStream() error {
	samples := d.Session().Samples
	d.endSampling()
	glog.Infof("streaming finished, %d samples", samples)
	return d.respond(ResponseFinish)
}

func (d *Dispatcher) abortStream(err error) error {
	d.endSampling()
	glog.Warningf("streaming aborted: %v", err)
	return err
}

func (d *Dispatcher) endSampling() {
	if err := d.Actuator.EndSampling(); err != nil {
		glog.Warningf("end sampling error: %v", err)
	}
	if d.Session().IsStreaming() && d.Tap != nil {
		d.Tap.StreamStopped()
	}
	d.setSession(Session{State: SessionIdle})
}

func (d *Dispatcher) actuatorFailed(cmd CommandSpec, err error) error {
	glog.Warningf("%s: actuator error: %v", cmd.Name, err)
	return d.respond(ResponseError)
}

// reject answers Error and resynchronizes the inbound stream.
// Only bytes queued before Error goes out are discarded: anything later
// may be a host command answering the Error.
func (d *Dispatcher) reject(reason error) error {
	glog.Warningf("reject: %v", reason)
	queued := d.Link.Buffered()
	if err := d.respond(ResponseError); err != nil {
		return err
	}
	var dumped []byte
	switch d.Resync {
	case ResyncToCommand:
		dumped = d.Link.DumpN(queued, d.Vocabulary.IsCommand)
	default:
		dumped = d.Link.DumpN(queued, nil)
	}
	if len(dumped) > 0 {
		glog.V(2).Infof("resync: discarded %d bytes", len(dumped))
	}
	return nil
}

func (d *Dispatcher) respond(kind ResponseKind) error {
	if err := d.Link.SendByte(d.Vocabulary.Response(kind)); err != nil {
		return err
	}
	return d.Link.Flush()
}

func (d *Dispatcher) respondWord(kind ResponseKind, value uint16) error {
	if err := d.Link.SendByte(d.Vocabulary.Response(kind)); err != nil {
		return err
	}
	if err := d.Link.SendWord(value); err != nil {
		return err
	}
	return d.Link.Flush()
}
