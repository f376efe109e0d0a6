package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warriorbot-go/internal/config"
	"warriorbot-go/internal/metrics"
)

const (
	roleConnector = "connector"

	defaultQueueSize = 256
	seenCapacity     = 4096
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
)

// Connector is the host-side end of the bridge.
type Connector struct {
	cfg          config.Bridge
	log          zerolog.Logger
	client       string
	queueSize    int
	dialTimeout  time.Duration
	writeTimeout time.Duration
	backoff      time.Duration

	writeMu sync.Mutex

	mu           sync.Mutex
	conn         frameConn
	gen          int
	started      bool
	closed       bool
	reconnecting bool
	seq          uint64
	acked        uint64
	ackSignal    chan struct{}
	queue        []Instruction
	seen         map[uuid.UUID]struct{}
	seenOrder    []uuid.UUID

	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConnectorOption customizes a Connector.
type ConnectorOption func(*Connector)

// WithClientName sets the name announced in the hello frame.
func WithClientName(name string) ConnectorOption {
	return func(c *Connector) {
		if name != "" {
			c.client = name
		}
	}
}

// WithInitialBackoff overrides the first redial delay.
func WithInitialBackoff(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// NewConnector builds a connector; nothing is dialed until Start.
func NewConnector(cfg config.Bridge, log zerolog.Logger, opts ...ConnectorOption) *Connector {
	life, cancel := context.WithCancel(context.Background())
	c := &Connector{
		cfg:          cfg,
		log:          log,
		client:       "host",
		queueSize:    cfg.QueueSize,
		dialTimeout:  time.Duration(cfg.DialTimeoutMs) * time.Millisecond,
		writeTimeout: time.Duration(cfg.WriteTimeoutMs) * time.Millisecond,
		backoff:      initialBackoff,
		ackSignal:    make(chan struct{}),
		seen:         make(map[uuid.UUID]struct{}),
		life:         life,
		cancel:       cancel,
	}
	if c.queueSize <= 0 {
		c.queueSize = defaultQueueSize
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = time.Duration(config.DefaultDialTimeoutMs) * time.Millisecond
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = time.Duration(config.DefaultWriteTimeoutMs) * time.Millisecond
	}
	if c.cfg.DialAttempts <= 0 {
		c.cfg.DialAttempts = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start dials the controller and begins reading instructions.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return ErrClosed
	}
	c.attachLocked(conn)
	return nil
}

// Connected reports whether a transport is currently attached.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Publish sends one snapshot and returns the sequence number assigned to it.
func (c *Connector) Publish(ctx context.Context, snap Snapshot) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	conn, gen := c.conn, c.gen
	if conn == nil {
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return 0, ErrNotConnected
	}
	c.seq++
	snap.Seq = c.seq
	c.mu.Unlock()

	data, err := encodeFrame(FrameSnapshot, snap.Seq, snap)
	if err != nil {
		return 0, err
	}
	if err := c.write(ctx, conn, data); err != nil {
		c.detach(gen, err)
		c.mu.Lock()
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return 0, fmt.Errorf("publish snapshot %d: %w", snap.Seq, err)
	}
	metrics.SnapshotsTotal.WithLabelValues(roleConnector, snap.Symbol).Inc()
	return snap.Seq, nil
}

// Poll drains every queued instruction in arrival order without blocking.
func (c *Connector) Poll() []Instruction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

// WaitAck blocks until the controller has answered snapshot seq.
func (c *Connector) WaitAck(ctx context.Context, seq uint64) error {
	for {
		c.mu.Lock()
		if c.acked >= seq {
			c.mu.Unlock()
			return nil
		}
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		signal := c.ackSignal
		c.mu.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.life.Done():
			return ErrClosed
		}
	}
}

// Close says goodbye to the controller and releases the transport. Safe to call twice.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.cancel()
	c.mu.Unlock()

	var err error
	if conn != nil {
		if data, encErr := encodeFrame(FrameBye, 0, Bye{Reason: "termination"}); encErr == nil {
			_ = c.write(context.Background(), conn, data)
		}
		err = conn.Close()
	}
	c.wg.Wait()
	c.log.Info().Msg("bridge connector closed")
	return err
}

func (c *Connector) connect(ctx context.Context) (frameConn, error) {
	delay := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.DialAttempts; attempt++ {
		conn, err := dial(ctx, c.cfg.Transport, c.cfg.Addr, c.dialTimeout)
		if err == nil {
			if err = c.hello(ctx, conn); err == nil {
				c.log.Info().Str("transport", c.cfg.Transport).Str("addr", c.cfg.Addr).Int("attempt", attempt).Msg("bridge connected")
				return conn, nil
			}
			_ = conn.Close()
		}
		if errors.Is(err, ErrUnknownTransport) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.cfg.DialAttempts {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("bridge dial failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = time.Duration(math.Min(float64(maxBackoff), float64(delay)*1.8))
	}
	return nil, fmt.Errorf("dial %s %s: %w", c.cfg.Transport, c.cfg.Addr, lastErr)
}

func (c *Connector) hello(ctx context.Context, conn frameConn) error {
	data, err := encodeFrame(FrameHello, 0, Hello{Client: c.client, Token: c.cfg.Token, Version: ProtocolVersion})
	if err != nil {
		return err
	}
	return c.write(ctx, conn, data)
}

func (c *Connector) write(ctx context.Context, conn frameConn, data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteFrame(data, deadline)
}

func (c *Connector) attachLocked(conn frameConn) {
	c.conn = conn
	c.gen++
	gen := c.gen
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop(conn, gen)
	}()
}

func (c *Connector) detach(gen int, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.gen != gen {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	if !c.closed {
		c.log.Warn().Err(cause).Msg("bridge connection lost")
	}
}

func (c *Connector) scheduleReconnectLocked() {
	if c.reconnecting || c.closed || !c.started {
		return
	}
	c.reconnecting = true
	metrics.Reconnects.Inc()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		conn, err := c.connect(c.life)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.reconnecting = false
		if err != nil {
			if !c.closed {
				c.log.Error().Err(err).Msg("bridge reconnect failed")
			}
			return
		}
		if c.closed {
			_ = conn.Close()
			return
		}
		c.attachLocked(conn)
	}()
}

func (c *Connector) readLoop(conn frameConn, gen int) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			c.detach(gen, err)
			return
		}
		env, err := decodeFrame(data)
		if err != nil {
			metrics.FramesRejected.WithLabelValues("decode").Inc()
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		switch env.Type {
		case FrameInstruction:
			inst, err := decodePayload[Instruction](env)
			if err == nil {
				err = inst.Validate()
			}
			if err != nil {
				metrics.FramesRejected.WithLabelValues("instruction").Inc()
				c.log.Warn().Err(err).Msg("dropping invalid instruction")
				continue
			}
			c.enqueue(inst)
		case FrameAck:
			ack, err := decodePayload[Ack](env)
			if err != nil {
				metrics.FramesRejected.WithLabelValues("ack").Inc()
				continue
			}
			if ack.Error != "" {
				c.log.Warn().Uint64("seq", ack.Seq).Str("error", ack.Error).Msg("controller rejected snapshot")
			}
			c.markAcked(ack.Seq)
		case FrameBye:
			bye, _ := decodePayload[Bye](env)
			err := errors.New("controller said bye")
			if bye.Reason != "" {
				err = fmt.Errorf("controller said bye: %s", bye.Reason)
			}
			c.detach(gen, err)
			return
		default:
			metrics.FramesRejected.WithLabelValues("type").Inc()
			c.log.Debug().Str("type", string(env.Type)).Msg("ignoring frame")
		}
	}
}

func (c *Connector) enqueue(inst Instruction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[inst.ID]; dup {
		metrics.InstructionsDropped.Inc()
		c.log.Warn().Str("id", inst.ID.String()).Msg("duplicate instruction dropped")
		return
	}
	c.seen[inst.ID] = struct{}{}
	c.seenOrder = append(c.seenOrder, inst.ID)
	if len(c.seenOrder) > seenCapacity {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}
	if len(c.queue) >= c.queueSize {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		metrics.InstructionsDropped.Inc()
		c.log.Warn().Str("id", dropped.ID.String()).Msg("instruction queue full, dropped oldest")
	}
	c.queue = append(c.queue, inst)
	metrics.InstructionsTotal.WithLabelValues(roleConnector, string(inst.Action)).Inc()
}

func (c *Connector) markAcked(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.acked {
		return
	}
	c.acked = seq
	close(c.ackSignal)
	c.ackSignal = make(chan struct{})
}
