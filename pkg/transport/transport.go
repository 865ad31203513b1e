// Package transport opens byte channels to and from a probe.
//
// Channels are addressed by URL:
//
//	serial:///dev/ttyACM0?baud=115200
//	tcp://host:port
//	ws://host:port/path
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// Listener hands over channels opened by hosts.
type Listener interface {
	// Accept waits for the next host channel.
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	// Addr returns the URL the listener is reachable at.
	Addr() string
	io.Closer
}

// Dial opens a channel to a probe.
func Dial(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}
	switch u.Scheme {
	case "serial":
		return OpenSerial(u)
	case "tcp":
		return dialTCP(u)
	case "ws", "wss":
		return dialWebsocket(u)
	}
	return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}

// Listen waits for hosts on the probe side.
func Listen(rawURL string) (Listener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}
	switch u.Scheme {
	case "serial":
		return listenSerial(u)
	case "tcp":
		return listenTCP(u)
	case "ws":
		return listenWebsocket(u)
	}
	return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}
