package transport

import (
	"context"
	"io"
	"net"
	"net/url"

	"github.com/golang/glog"

	fx "github.com/robotalks/probe.go/pkg/framework"
)

func dialTCP(u *url.URL) (io.ReadWriteCloser, error) {
	return net.Dial("tcp", u.Host)
}

type tcpListener struct {
	ln net.Listener
}

func listenTCP(u *url.URL) (*tcpListener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	glog.Infof("listening on tcp://%s", ln.Addr())
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	var conn net.Conn
	err := fx.RunWithContextCancel(ctx, func() { l.ln.Close() }, func() (err error) {
		conn, err = l.ln.Accept()
		return
	})
	if err != nil {
		return nil, err
	}
	glog.Infof("host connected from %s", conn.RemoteAddr())
	return conn, nil
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}
