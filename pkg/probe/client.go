package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

var (
	// ErrRejected indicates the probe answered a command with Error.
	ErrRejected = errors.New("command rejected")
	// ErrStreamActive indicates a command was issued while streaming.
	ErrStreamActive = errors.New("stream in progress")
)

// DefaultQuietPeriod is how long the link must stay silent after
// StopStream before the stream tail is considered complete.
const DefaultQuietPeriod = 50 * time.Millisecond

// maxHandshakeBytes bounds the boot noise tolerated before the handshake.
const maxHandshakeBytes = 4096

// Client provides host side operations over a Link.
type Client struct {
	Link        Link
	Vocabulary  *Vocabulary
	QuietPeriod time.Duration

	lock   sync.Mutex
	stream *Stream
}

// NewClient creates a client with the default vocabulary.
func NewClient(link Link) *Client {
	return &Client{
		Link:        link,
		Vocabulary:  DefaultVocabulary(),
		QuietPeriod: DefaultQuietPeriod,
	}
}

// Handshake waits for the probe's announcement. Bytes preceding it
// (e.g. boot loader output) are skipped.
func (c *Client) Handshake(ctx context.Context) error {
	var received []byte
	for len(received) < maxHandshakeBytes {
		b, err := c.Link.ReceiveByte(ctx)
		if err != nil {
			return &ProtocolError{
				Step:    "PROBE-WELCOME",
				Message: fmt.Sprintf("expected %q: %v", Handshake, err),
				Dump:    received,
				Err:     err,
			}
		}
		received = append(received, b)
		if n := len(received) - len(Handshake); n >= 0 && string(received[n:]) == Handshake {
			glog.V(2).Infof("handshake received after %d bytes", n)
			return nil
		}
	}
	return &ProtocolError{
		Step:    "PROBE-WELCOME",
		Message: fmt.Sprintf("expected %q", Handshake),
		Dump:    received,
	}
}

// SetDAC sets a DAC channel.
func (c *Client) SetDAC(ctx context.Context, channel uint8, value uint16) error {
	return c.do(ctx, OpSetDAC, channel, uint32(value), "SET-DAC-ACK")
}

// GetADC samples the ADC once.
func (c *Client) GetADC(ctx context.Context) (uint16, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.sendLocked(OpGetADC, 0, 0); err != nil {
		return 0, err
	}
	if err := c.expect(ctx, ResponseAck, "GET-ADC-ACK"); err != nil {
		return 0, err
	}
	value, err := c.Link.ReceiveWord(ctx)
	if err != nil {
		return 0, &ProtocolError{Step: "GET-ADC-VALUE", Message: err.Error(), Err: err}
	}
	return value, nil
}

// SetDACBuffer loads the waveform buffer of a DAC channel.
func (c *Client) SetDACBuffer(ctx context.Context, channel uint8, data uint16) error {
	return c.do(ctx, OpSetDACBuffer, channel, uint32(data), "SET-BUFFER-ACK")
}

// DisableDACBuffer stops buffered playback on a DAC channel.
func (c *Client) DisableDACBuffer(ctx context.Context, channel uint8) error {
	return c.do(ctx, OpDisableDACBuffer, channel, 0, "DISABLE-BUFFER-ACK")
}

// SetPotentiometer sets a digital potentiometer.
func (c *Client) SetPotentiometer(ctx context.Context, index uint8, value uint16) error {
	return c.do(ctx, OpSetPotentiometer, index, uint32(value), "SET-POTI-ACK")
}

// StartStream starts continuous sampling at rate samples per second.
func (c *Client) StartStream(ctx context.Context, rate uint16) (*Stream, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.sendLocked(OpStartStream, 0, uint32(rate)); err != nil {
		return nil, err
	}
	code, err := c.Link.ReceiveByte(ctx)
	if err != nil {
		return nil, c.timeoutError("STREAM-START", ResponseStreaming, err)
	}
	switch kind, _ := c.Vocabulary.ResponseKindOf(code); kind {
	case ResponseStreaming:
	case ResponseErrorTooFast:
		return nil, ErrTooFast
	default:
		return nil, c.unexpected("STREAM-START", ResponseStreaming, code)
	}
	c.stream = &Stream{client: c, Rate: rate}
	return c.stream, nil
}

func (c *Client) do(ctx context.Context, op Operation, channel uint8, param uint32, step string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.sendLocked(op, channel, param); err != nil {
		return err
	}
	return c.expect(ctx, ResponseAck, step)
}

func (c *Client) sendLocked(op Operation, channel uint8, param uint32) error {
	if c.stream != nil {
		return ErrStreamActive
	}
	cmd, ok := c.Vocabulary.CommandFor(op, channel)
	if !ok {
		return fmt.Errorf("%v channel %d not supported", op, channel)
	}
	return c.send(cmd, param)
}

func (c *Client) send(cmd CommandSpec, param uint32) error {
	if err := c.Link.SendByte(cmd.Code); err != nil {
		return err
	}
	var err error
	switch cmd.Param {
	case ParamWord:
		err = c.Link.SendWord(uint16(param))
	case ParamDWord:
		err = c.Link.SendDWord(param)
	}
	if err != nil {
		return err
	}
	return c.Link.Flush()
}

func (c *Client) expect(ctx context.Context, kind ResponseKind, step string) error {
	code, err := c.Link.ReceiveByte(ctx)
	if err != nil {
		return c.timeoutError(step, kind, err)
	}
	if code != c.Vocabulary.Response(kind) {
		return c.unexpected(step, kind, code)
	}
	return nil
}

func (c *Client) timeoutError(step string, kind ResponseKind, err error) error {
	return &ProtocolError{
		Step:    step,
		Message: fmt.Sprintf("expected %v but got %v", kind, err),
		Err:     err,
	}
}

func (c *Client) unexpected(step string, expected ResponseKind, code byte) error {
	perr := &ProtocolError{
		Step:    step,
		Message: fmt.Sprintf("expected %v(0x%02x) but found 0x%02x", expected, c.Vocabulary.Response(expected), code),
		Dump:    c.Link.Dump(),
	}
	if kind, ok := c.Vocabulary.ResponseKindOf(code); ok {
		perr.Message = fmt.Sprintf("expected %v but found %v", expected, kind)
		if kind == ResponseError {
			perr.Err = ErrRejected
		}
	}
	return perr
}

// Stream is an active streaming session. It's not safe for concurrent use.
type Stream struct {
	Rate uint16

	client  *Client
	stopped bool
}

// Next reads the next sample.
func (s *Stream) Next(ctx context.Context) (uint16, error) {
	if s.stopped {
		return 0, ErrStreamClosed
	}
	return s.client.Link.ReceiveWord(ctx)
}

// Stop asks the probe to stop streaming and returns the samples
// received before Finish.
func (s *Stream) Stop(ctx context.Context) ([]uint16, error) {
	if s.stopped {
		return nil, ErrStreamClosed
	}
	c := s.client
	c.lock.Lock()
	defer c.lock.Unlock()
	s.stopped = true
	c.stream = nil

	cmd, ok := c.Vocabulary.CommandFor(OpStopStream, 0)
	if !ok {
		return nil, fmt.Errorf("%v not supported", OpStopStream)
	}
	if err := c.send(cmd, 0); err != nil {
		return nil, err
	}

	quiet := c.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	// a slow stream is silent between samples, wait for two periods.
	if s.Rate > 0 {
		if period := 2 * time.Second / time.Duration(s.Rate); period > quiet {
			quiet = period
		}
	}
	var tail []byte
	for {
		qctx, cancel := context.WithTimeout(ctx, quiet)
		b, err := c.Link.ReceiveByte(qctx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrLinkTimeout)) {
				break
			}
			return nil, err
		}
		tail = append(tail, b)
	}

	finish := c.Vocabulary.Response(ResponseFinish)
	if len(tail)%2 != 1 || tail[len(tail)-1] != finish {
		return nil, &ProtocolError{
			Step:    "STREAM-FINISH",
			Message: fmt.Sprintf("expected samples followed by %v(0x%02x)", ResponseFinish, finish),
			Dump:    tail,
		}
	}
	samples := make([]uint16, len(tail)/2)
	for n := range samples {
		samples[n] = uint16(tail[2*n]) | uint16(tail[2*n+1])<<8
	}
	return samples, nil
}
