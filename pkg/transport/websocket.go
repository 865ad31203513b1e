package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

func dialWebsocket(u *url.URL) (io.ReadWriteCloser, error) {
	origin := "http://" + u.Host + "/"
	conn, err := websocket.Dial(u.String(), "", origin)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// wsConn keeps the websocket handler alive until the channel is closed.
type wsConn struct {
	*websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}

type wsListener struct {
	url    url.URL
	server *http.Server
	conns  chan *wsConn
	closed chan struct{}
	once   sync.Once
}

func listenWebsocket(u *url.URL) (*wsListener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		url:    *u,
		conns:  make(chan *wsConn),
		closed: make(chan struct{}),
	}
	l.url.Host = ln.Addr().String()
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(l.serve))
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket server error: %v", err)
		}
	}()
	glog.Infof("listening on %s", l.Addr())
	return l, nil
}

func (l *wsListener) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := &wsConn{Conn: ws, done: make(chan struct{})}
	select {
	case l.conns <- conn:
		glog.Infof("host connected from %s", ws.Request().RemoteAddr)
		<-conn.done
	case <-l.closed:
	}
}

func (l *wsListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() string {
	return l.url.String()
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.server.Close()
}
