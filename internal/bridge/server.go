package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/config"
	"warriorbot-go/internal/metrics"
)

const (
	roleServer   = "server"
	helloTimeout = 10 * time.Second
)

// Handler answers each snapshot with zero or more instructions.
type Handler interface {
	HandleSnapshot(ctx context.Context, snap Snapshot) ([]Instruction, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, snap Snapshot) ([]Instruction, error)

// HandleSnapshot calls f.
func (f HandlerFunc) HandleSnapshot(ctx context.Context, snap Snapshot) ([]Instruction, error) {
	return f(ctx, snap)
}

type clientKey struct{}

// ClientFromContext returns the client name a session announced in its hello.
func ClientFromContext(ctx context.Context) string {
	name, _ := ctx.Value(clientKey{}).(string)
	return name
}

// Server is the controller-side end of the bridge.
type Server struct {
	cfg          config.Bridge
	handler      Handler
	log          zerolog.Logger
	writeTimeout time.Duration

	ready chan struct{}
	mu    sync.Mutex
	ln    frameListener
	conns map[frameConn]struct{}
	wg    sync.WaitGroup
}

// NewServer wires a handler to the configured transport.
func NewServer(cfg config.Bridge, handler Handler, log zerolog.Logger) *Server {
	wt := time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	if wt <= 0 {
		wt = time.Duration(config.DefaultWriteTimeoutMs) * time.Millisecond
	}
	return &Server{
		cfg:          cfg,
		handler:      handler,
		log:          log,
		writeTimeout: wt,
		ready:        make(chan struct{}),
		conns:        make(map[frameConn]struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr()
}

// Serve accepts sessions until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := listen(s.cfg.Transport, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.cfg.Transport, s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)
	s.log.Info().Str("transport", s.cfg.Transport).Str("addr", ln.Addr()).Msg("bridge server listening")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.closeSessions()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.closeSessions()
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveSession(ctx, conn)
		}()
	}
}

func (s *Server) track(conn frameConn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	metrics.SessionsActive.Inc()
}

func (s *Server) untrack(conn frameConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	metrics.SessionsActive.Dec()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) serveSession(ctx context.Context, conn frameConn) {
	log := s.log.With().Str("remote", conn.RemoteAddr()).Logger()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	hello, err := s.awaitHello(conn)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting bridge session")
		s.send(conn, FrameBye, 0, Bye{Reason: err.Error()})
		return
	}
	log = log.With().Str("client", hello.Client).Logger()
	sessCtx := context.WithValue(ctx, clientKey{}, hello.Client)
	log.Info().Int("version", hello.Version).Msg("bridge session opened")
	defer log.Info().Msg("bridge session closed")

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("bridge read ended")
			}
			return
		}
		env, err := decodeFrame(data)
		if err != nil {
			metrics.FramesRejected.WithLabelValues("decode").Inc()
			log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		switch env.Type {
		case FrameSnapshot:
			if err := s.handleSnapshot(sessCtx, conn, env, log); err != nil {
				log.Warn().Err(err).Msg("bridge write failed")
				return
			}
		case FrameBye:
			return
		default:
			metrics.FramesRejected.WithLabelValues("type").Inc()
			log.Debug().Str("type", string(env.Type)).Msg("ignoring frame")
		}
	}
}

func (s *Server) awaitHello(conn frameConn) (Hello, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := conn.ReadFrame()
		ch <- result{data, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-time.After(helloTimeout):
		_ = conn.Close()
		return Hello{}, errors.New("hello timeout")
	}
	if res.err != nil {
		return Hello{}, res.err
	}
	env, err := decodeFrame(res.data)
	if err != nil {
		return Hello{}, err
	}
	if env.Type != FrameHello {
		return Hello{}, fmt.Errorf("expected hello, got %s", env.Type)
	}
	hello, err := decodePayload[Hello](env)
	if err != nil {
		return Hello{}, err
	}
	if s.cfg.Token != "" && subtle.ConstantTimeCompare([]byte(s.cfg.Token), []byte(hello.Token)) != 1 {
		return Hello{}, ErrUnauthorized
	}
	return hello, nil
}

func (s *Server) handleSnapshot(ctx context.Context, conn frameConn, env Envelope, log zerolog.Logger) error {
	snap, err := decodePayload[Snapshot](env)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		metrics.FramesRejected.WithLabelValues("snapshot").Inc()
		return s.send(conn, FrameAck, env.Seq, Ack{Seq: env.Seq, Error: err.Error()})
	}
	metrics.SnapshotsTotal.WithLabelValues(roleServer, snap.Symbol).Inc()

	instructions, err := s.handler.HandleSnapshot(ctx, snap)
	ack := Ack{Seq: snap.Seq}
	if err != nil {
		log.Error().Err(err).Uint64("seq", snap.Seq).Str("symbol", snap.Symbol).Msg("snapshot handler failed")
		ack.Error = err.Error()
	}
	for _, inst := range instructions {
		if inst.InReplyTo == 0 {
			inst.InReplyTo = snap.Seq
		}
		if err := s.send(conn, FrameInstruction, snap.Seq, inst); err != nil {
			return err
		}
		ack.Instructions++
		metrics.InstructionsTotal.WithLabelValues(roleServer, string(inst.Action)).Inc()
	}
	return s.send(conn, FrameAck, snap.Seq, ack)
}

func (s *Server) send(conn frameConn, typ FrameType, seq uint64, payload any) error {
	data, err := encodeFrame(typ, seq, payload)
	if err != nil {
		return err
	}
	return conn.WriteFrame(data, time.Now().Add(s.writeTimeout))
}
