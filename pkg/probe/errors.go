package probe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLinkClosed indicates the link is closed or the transport failed.
	ErrLinkClosed = errors.New("link closed")
	// ErrLinkTimeout indicates bytes didn't arrive within the read timeout.
	ErrLinkTimeout = errors.New("link timeout")
	// ErrTooFast indicates the requested sample rate exceeds the probe's capability.
	ErrTooFast = errors.New("sample rate too fast")
	// ErrUnknownCommand indicates a byte that is not in the vocabulary.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrStreamClosed indicates the stream has been stopped.
	ErrStreamClosed = errors.New("stream closed")
)

// UnknownCommandError carries the rejected command byte.
type UnknownCommandError struct {
	Code byte
}

// Error implements error.
func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command 0x%02x", e.Code)
}

// Is makes errors.Is(err, ErrUnknownCommand) true.
func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// ProtocolError is raised by the host client when the probe replies
// something unexpected.
type ProtocolError struct {
	Step    string
	Message string
	Dump    []byte
	Err     error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	msg := "[" + e.Step + "]: " + e.Message
	if len(e.Dump) > 0 {
		msg += "\n\n" + dumpBytes(e.Dump)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func dumpBytes(data []byte) string {
	var sb strings.Builder
	for n, b := range data {
		if n > 0 {
			if n%16 == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}
