package transport

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
)

func TestSerialConfig(t *testing.T) {
	testCases := []struct {
		url    string
		expect serial.Config
	}{
		{"serial:///dev/ttyACM0", serial.Config{Name: "/dev/ttyACM0", Baud: DefaultBaud, StopBits: serial.Stop1}},
		{"serial://COM3?baud=9600", serial.Config{Name: "COM3", Baud: 9600, StopBits: serial.Stop1}},
		{
			"serial:///dev/ttyUSB1?baud=57600&size=7&parity=e&stop=2",
			serial.Config{Name: "/dev/ttyUSB1", Baud: 57600, Size: 7, Parity: serial.ParityEven, StopBits: serial.Stop2},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)
			conf, err := SerialConfig(u)
			require.NoError(t, err)
			require.Equal(t, tc.expect, *conf)
		})
	}

	for _, bad := range []string{
		"serial://",
		"serial:///dev/ttyS0?baud=fast",
		"serial:///dev/ttyS0?size=9",
		"serial:///dev/ttyS0?parity=x",
		"serial:///dev/ttyS0?stop=3",
	} {
		u, err := url.Parse(bad)
		require.NoError(t, err)
		_, err = SerialConfig(u)
		require.Error(t, err, bad)
	}
}

func TestUnknownScheme(t *testing.T) {
	_, err := Dial("udp://localhost:1")
	require.Error(t, err)
	_, err = Listen("udp://localhost:1")
	require.Error(t, err)
}

func testRoundTrip(t *testing.T, listenURL string) {
	l, err := Listen(listenURL)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	acceptCh := make(chan io.ReadWriteCloser, 1)
	go func() {
		conn, err := l.Accept(ctx)
		if err == nil {
			acceptCh <- conn
		}
		close(acceptCh)
	}()

	host, err := Dial(l.Addr())
	require.NoError(t, err)
	defer host.Close()

	var probe io.ReadWriteCloser
	select {
	case probe = <-acceptCh:
		require.NotNil(t, probe)
	case <-ctx.Done():
		t.Fatal("accept timeout")
	}
	defer probe.Close()

	_, err = host.Write([]byte{0x32, 0x34, 0x12})
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(probe, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x32, 0x34, 0x12}, buf)

	_, err = probe.Write([]byte{0x40})
	require.NoError(t, err)
	_, err = io.ReadFull(host, buf[:1])
	require.NoError(t, err)
	require.Equal(t, byte(0x40), buf[0])
}

func TestTCPRoundTrip(t *testing.T) {
	testRoundTrip(t, "tcp://127.0.0.1:0")
}

func TestWebsocketRoundTrip(t *testing.T) {
	testRoundTrip(t, "ws://127.0.0.1:0/probe")
}

func TestAcceptCanceled(t *testing.T) {
	for _, rawURL := range []string{"tcp://127.0.0.1:0", "ws://127.0.0.1:0/"} {
		l, err := Listen(rawURL)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = l.Accept(ctx)
		require.ErrorIs(t, err, context.Canceled)
		l.Close()
	}
}
