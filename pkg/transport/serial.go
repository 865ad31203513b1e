package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// DefaultBaud is the baud rate used when the URL doesn't specify one.
const DefaultBaud = 115200

// SerialConfig builds the port configuration from a serial URL.
// Query parameters: baud, size (5-8), parity (N, O, E, M, S), stop (1, 1.5, 2).
func SerialConfig(u *url.URL) (*serial.Config, error) {
	name := u.Path
	if u.Host != "" {
		// serial://COM3
		name = u.Host + u.Path
	}
	if name == "" {
		return nil, fmt.Errorf("serial device not specified")
	}
	conf := &serial.Config{Name: name, Baud: DefaultBaud}
	query := u.Query()
	if val := query.Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("invalid baud %q", val)
		}
		conf.Baud = baud
	}
	if val := query.Get("size"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil || size < 5 || size > 8 {
			return nil, fmt.Errorf("invalid size %q", val)
		}
		conf.Size = byte(size)
	}
	if val := query.Get("parity"); val != "" {
		switch p := serial.Parity(strings.ToUpper(val)[0]); p {
		case serial.ParityNone, serial.ParityOdd, serial.ParityEven, serial.ParityMark, serial.ParitySpace:
			conf.Parity = p
		default:
			return nil, fmt.Errorf("invalid parity %q", val)
		}
	}
	switch val := query.Get("stop"); val {
	case "", "1":
		conf.StopBits = serial.Stop1
	case "1.5":
		conf.StopBits = serial.Stop1Half
	case "2":
		conf.StopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("invalid stop bits %q", val)
	}
	return conf, nil
}

// OpenSerial opens the serial port addressed by u. Reads block until
// data arrives; timeouts are handled by the probe link.
func OpenSerial(u *url.URL) (io.ReadWriteCloser, error) {
	conf, err := SerialConfig(u)
	if err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(conf)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Name, err)
	}
	glog.Infof("serial port %s opened at %d baud", conf.Name, conf.Baud)
	return &serialPort{Port: port}, nil
}

type serialPort struct {
	*serial.Port
	closeOnce sync.Once
	closeErr  error
}

func (p *serialPort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.Port.Close()
	})
	return p.closeErr
}

// serialListener hands over the serial port as the single host channel.
// The port is reopened for the next Accept once the previous one is closed.
type serialListener struct {
	url    *url.URL
	closed chan struct{}
	once   sync.Once
}

func listenSerial(u *url.URL) (*serialListener, error) {
	if _, err := SerialConfig(u); err != nil {
		return nil, err
	}
	return &serialListener{url: u, closed: make(chan struct{})}, nil
}

func (l *serialListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-l.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return OpenSerial(l.url)
}

func (l *serialListener) Addr() string {
	return l.url.String()
}

func (l *serialListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
