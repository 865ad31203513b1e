package probe

// Actuator performs the hardware operations requested by commands.
// The Dispatcher is its only caller and never calls it concurrently.
type Actuator interface {
	SetDAC(channel uint8, value uint16) error
	ReadADC() (uint16, error)
	SetDACBuffer(channel uint8, data uint16) error
	DisableDACBuffer(channel uint8) error
	SetPotentiometer(index uint8, value uint16) error
	// BeginSampling prepares continuous sampling at rate samples per
	// second. ok is false if the hardware can't sample that fast.
	BeginSampling(rate uint16) (ok bool, err error)
	EndSampling() error
	SampleOnce() (uint16, error)
}

// Hardware is initialized at startup and signals the operator.
// It's not part of the protocol state machine.
type Hardware interface {
	Init() error
	Beep(times int)
}

// SampleTap observes a streaming session. Implementations must not block.
type SampleTap interface {
	StreamStarted(rate uint16)
	Sample(value uint16)
	StreamStopped()
}
