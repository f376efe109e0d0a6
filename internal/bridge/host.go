package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/signal"
)

// Executor applies an instruction inside the host platform.
type Executor interface {
	Execute(ctx context.Context, inst Instruction) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inst Instruction) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inst Instruction) error { return f(ctx, inst) }

// HostAdapter maps the host plugin's three lifecycle hooks onto a Connector.
type HostAdapter struct {
	conn        *Connector
	exec        Executor
	log         zerolog.Logger
	syncTimeout time.Duration
}

// HostOption customizes a HostAdapter.
type HostOption func(*HostAdapter)

// WithSyncTimeout makes OnBarUpdate wait up to d for the controller's answer
// to the bar it just published before polling. Zero keeps the hook non-blocking,
// in which case instructions for bar N are executed on bar N+1.
func WithSyncTimeout(d time.Duration) HostOption {
	return func(h *HostAdapter) { h.syncTimeout = d }
}

// NewHostAdapter binds a connector to the host's executor.
func NewHostAdapter(conn *Connector, exec Executor, log zerolog.Logger, opts ...HostOption) *HostAdapter {
	h := &HostAdapter{conn: conn, exec: exec, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnStartup opens the channel to the controller.
func (h *HostAdapter) OnStartup(ctx context.Context) error {
	return h.conn.Start(ctx)
}

// OnBarUpdate publishes the bar, then executes every instruction that has arrived.
// A missing connection is logged, not returned, so the host keeps running while
// the connector redials in the background.
func (h *HostAdapter) OnBarUpdate(ctx context.Context, bar signal.Bar, pos *PositionView) (int, error) {
	snap := SnapshotFromBar(bar)
	snap.Position = pos

	seq, pubErr := h.conn.Publish(ctx, snap)
	switch {
	case pubErr == nil && h.syncTimeout > 0:
		waitCtx, cancel := context.WithTimeout(ctx, h.syncTimeout)
		if err := h.conn.WaitAck(waitCtx, seq); err != nil {
			h.log.Warn().Err(err).Uint64("seq", seq).Msg("controller did not answer in time")
		}
		cancel()
	case errors.Is(pubErr, ErrNotConnected):
		h.log.Warn().Str("symbol", bar.Symbol).Msg("bridge down, snapshot skipped")
		pubErr = nil
	}

	executed := 0
	for _, inst := range h.conn.Poll() {
		if err := h.exec.Execute(ctx, inst); err != nil {
			h.log.Error().Err(err).Str("id", inst.ID.String()).Str("action", string(inst.Action)).Msg("instruction failed")
			continue
		}
		executed++
	}
	return executed, pubErr
}

// OnTermination closes the channel and releases resources.
func (h *HostAdapter) OnTermination() error {
	return h.conn.Close()
}
