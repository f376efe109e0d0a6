package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"warriorbot-go/internal/config"
)

// WebSocketPath is where the controller upgrades bridge sessions.
const WebSocketPath = "/bridge"

// frameConn moves whole frames over one transport connection.
type frameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	RemoteAddr() string
	Close() error
}

type streamConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func newStreamConn(conn net.Conn) *streamConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize+1)
	return &streamConn{conn: conn, scanner: scanner}
}

func (s *streamConn) ReadFrame() ([]byte, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrFrameTooLarge
		}
		return nil, err
	}
	return nil, net.ErrClosed
}

func (s *streamConn) WriteFrame(data []byte, deadline time.Time) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	_ = s.conn.SetWriteDeadline(deadline)
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := s.conn.Write(buf)
	return err
}

func (s *streamConn) RemoteAddr() string { return s.conn.RemoteAddr().String() }
func (s *streamConn) Close() error       { return s.conn.Close() }

type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(MaxFrameSize)
	return &wsConn{conn: conn}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	for {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteFrame(data []byte, deadline time.Time) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	_ = w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) RemoteAddr() string { return w.conn.RemoteAddr().String() }

func (w *wsConn) Close() error {
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}

func dial(ctx context.Context, transport, addr string, timeout time.Duration) (frameConn, error) {
	switch transport {
	case config.TransportTCP, config.TransportUnix:
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, transport, addr)
		if err != nil {
			return nil, err
		}
		return newStreamConn(conn), nil
	case config.TransportWebSocket:
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := dialer.DialContext(ctx, websocketURL(addr), nil)
		if err != nil {
			return nil, err
		}
		return newWSConn(conn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
	}
}

func websocketURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + strings.TrimSuffix(addr, "/") + WebSocketPath
}

// frameListener accepts frame connections for the server.
type frameListener interface {
	Accept() (frameConn, error)
	Addr() string
	Close() error
}

func listen(transport, addr string) (frameListener, error) {
	switch transport {
	case config.TransportTCP:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &streamListener{ln: ln}, nil
	case config.TransportUnix:
		removeStaleSocket(addr)
		ln, err := net.Listen("unix", addr)
		if err != nil {
			return nil, err
		}
		return &streamListener{ln: ln}, nil
	case config.TransportWebSocket:
		return listenWebSocket(addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
	}
}

func removeStaleSocket(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSocket == 0 {
		return
	}
	_ = os.Remove(path)
}

type streamListener struct {
	ln net.Listener
}

func (l *streamListener) Accept() (frameConn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newStreamConn(conn), nil
}

func (l *streamListener) Addr() string { return l.ln.Addr().String() }
func (l *streamListener) Close() error { return l.ln.Close() }

type wsListener struct {
	ln       net.Listener
	srv      *http.Server
	conns    chan frameConn
	done     chan struct{}
	closeMu  sync.Once
	upgrader websocket.Upgrader
}

func listenWebSocket(addr string) (*wsListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln:    ln,
		conns: make(chan frameConn),
		done:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, l.handleUpgrade)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = l.srv.Serve(ln) }()
	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.conns <- newWSConn(conn):
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *wsListener) Accept() (frameConn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

func (l *wsListener) Close() error {
	var err error
	l.closeMu.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}
