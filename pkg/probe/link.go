package probe

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// Link is the byte-oriented duplex channel between host and probe.
// Multi-byte values are little-endian.
type Link interface {
	// ReceiveByte blocks until one byte is available.
	ReceiveByte(ctx context.Context) (byte, error)
	// ReceiveWord blocks until 2 bytes are available.
	ReceiveWord(ctx context.Context) (uint16, error)
	// ReceiveDWord blocks until 4 bytes are available.
	ReceiveDWord(ctx context.Context) (uint32, error)
	// CanReadByte tells if at least one byte is queued, without blocking.
	CanReadByte() bool
	// Buffered returns the number of queued inbound bytes.
	Buffered() int

	// SendByte queues one byte for transmission.
	SendByte(byte) error
	// SendWord queues a 16-bit value, low byte first.
	SendWord(uint16) error
	// SendDWord queues a 32-bit value, lowest byte first.
	SendDWord(uint32) error
	// Flush delivers all queued bytes to the transport.
	Flush() error

	// Dump discards all queued inbound bytes and returns them.
	Dump() []byte
	// DumpUntil discards queued inbound bytes until keep accepts the
	// head byte, which stays queued.
	DumpUntil(keep func(byte) bool) []byte
	// DumpN is DumpUntil looking at no more than the first n bytes.
	// A nil keep discards all of them.
	DumpN(n int, keep func(byte) bool) []byte
	// Readable returns a channel closed once a byte is queued or the
	// link fails.
	Readable() <-chan struct{}

	// Init announces the probe by sending the handshake.
	Init() error
	// End closes the link.
	End() error
}

// StreamLink implements Link over an io.ReadWriter (serial port, socket).
// A background goroutine keeps reading the transport into an inbound queue.
type StreamLink struct {
	// ReadTimeout bounds the time a Receive call waits for bytes.
	// Zero means waiting until bytes arrive or the link closes.
	ReadTimeout time.Duration

	rw io.ReadWriter

	writer    *bufio.Writer
	writeLock sync.Mutex

	lock    sync.Mutex
	inbound []byte
	arrived chan struct{}
	err     error
}

// NewStreamLink creates a StreamLink and starts reading from rw.
func NewStreamLink(rw io.ReadWriter) *StreamLink {
	l := &StreamLink{
		rw:      rw,
		writer:  bufio.NewWriter(rw),
		arrived: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *StreamLink) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := l.rw.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		l.lock.Lock()
		l.inbound = append(l.inbound, buf[:n]...)
		if err != nil && l.err == nil {
			l.err = fmt.Errorf("%w: %w", ErrLinkClosed, err)
		}
		l.notifyLocked()
		l.lock.Unlock()
		if err != nil {
			return
		}
	}
}

// notifyLocked wakes up all waiting receivers.
func (l *StreamLink) notifyLocked() {
	close(l.arrived)
	l.arrived = make(chan struct{})
}

// Receive blocks until n bytes are available and returns them.
// Partially arrived bytes stay queued on timeout or cancellation.
func (l *StreamLink) Receive(ctx context.Context, n int) ([]byte, error) {
	var timeout <-chan time.Time
	if l.ReadTimeout > 0 {
		timer := time.NewTimer(l.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		l.lock.Lock()
		if len(l.inbound) >= n {
			data := make([]byte, n)
			copy(data, l.inbound)
			if l.inbound = l.inbound[n:]; len(l.inbound) == 0 {
				l.inbound = nil
			}
			l.lock.Unlock()
			return data, nil
		}
		err, arrived := l.err, l.arrived
		l.lock.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-arrived:
		case <-timeout:
			return nil, ErrLinkTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReceiveByte implements Link.
func (l *StreamLink) ReceiveByte(ctx context.Context) (byte, error) {
	data, err := l.Receive(ctx, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReceiveWord implements Link.
func (l *StreamLink) ReceiveWord(ctx context.Context) (uint16, error) {
	data, err := l.Receive(ctx, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// ReceiveDWord implements Link.
func (l *StreamLink) ReceiveDWord(ctx context.Context) (uint32, error) {
	data, err := l.Receive(ctx, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// CanReadByte implements Link.
func (l *StreamLink) CanReadByte() bool {
	return l.Buffered() > 0
}

// Buffered implements Link.
func (l *StreamLink) Buffered() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.inbound)
}

// SendByte implements Link.
func (l *StreamLink) SendByte(b byte) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	return l.writeErr(l.writer.WriteByte(b))
}

// SendWord implements Link.
func (l *StreamLink) SendWord(v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return l.send(buf[:])
}

// SendDWord implements Link.
func (l *StreamLink) SendDWord(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return l.send(buf[:])
}

func (l *StreamLink) send(data []byte) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	_, err := l.writer.Write(data)
	return l.writeErr(err)
}

// Flush implements Link.
func (l *StreamLink) Flush() error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	return l.writeErr(l.writer.Flush())
}

func (l *StreamLink) writeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrLinkClosed, err)
}

// Dump implements Link.
func (l *StreamLink) Dump() []byte {
	return l.DumpUntil(nil)
}

// DumpUntil implements Link.
func (l *StreamLink) DumpUntil(keep func(byte) bool) []byte {
	return l.DumpN(-1, keep)
}

// DumpN implements Link. A negative n looks at all queued bytes.
func (l *StreamLink) DumpN(limit int, keep func(byte) bool) []byte {
	l.lock.Lock()
	defer l.lock.Unlock()
	if limit < 0 || limit > len(l.inbound) {
		limit = len(l.inbound)
	}
	n := 0
	for ; n < limit; n++ {
		if keep != nil && keep(l.inbound[n]) {
			break
		}
	}
	dumped := make([]byte, n)
	copy(dumped, l.inbound)
	if l.inbound = l.inbound[n:]; len(l.inbound) == 0 {
		l.inbound = nil
	}
	return dumped
}

// Readable implements Link.
func (l *StreamLink) Readable() <-chan struct{} {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.inbound) > 0 || l.err != nil {
		return closedChan
	}
	return l.arrived
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Init implements Link.
func (l *StreamLink) Init() error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	if _, err := l.writer.WriteString(Handshake); err != nil {
		return l.writeErr(err)
	}
	return l.writeErr(l.writer.Flush())
}

// End implements Link. The transport is closed if it's an io.Closer.
func (l *StreamLink) End() (err error) {
	if closer, ok := l.rw.(io.Closer); ok {
		err = closer.Close()
	}
	l.lock.Lock()
	if l.err == nil {
		l.err = ErrLinkClosed
	}
	l.notifyLocked()
	l.lock.Unlock()
	return
}
