package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"warriorbot-go/internal/config"
	"warriorbot-go/internal/signal"
)

func startServer(t *testing.T, transport, addr, token string, handler Handler) config.Bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Bridge{Transport: transport, Addr: addr, Token: token, WriteTimeoutMs: 1000}
	srv := NewServer(cfg, handler, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatalf("server did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("server returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("server did not stop")
		}
	})

	client := cfg
	client.Addr = srv.Addr()
	client.DialAttempts = 3
	client.DialTimeoutMs = 1000
	client.QueueSize = 16
	return client
}

func startConnector(t *testing.T, cfg config.Bridge, opts ...ConnectorOption) *Connector {
	t.Helper()
	conn := NewConnector(cfg, zerolog.Nop(), opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testBar(close float64) signal.Bar {
	return signal.Bar{Symbol: "ABCD", Open: close - 0.05, High: close + 0.02, Low: close - 0.1, Close: close, Volume: 50000, Ts: time.Now()}
}

func publishAndWait(t *testing.T, conn *Connector, bar signal.Bar) uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	seq, err := conn.Publish(ctx, SnapshotFromBar(bar))
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if err := conn.WaitAck(ctx, seq); err != nil {
		t.Fatalf("WaitAck returned error: %v", err)
	}
	return seq
}

func echoBuyHandler() Handler {
	return HandlerFunc(func(ctx context.Context, snap Snapshot) ([]Instruction, error) {
		inst := NewInstruction(snap.Symbol, ActionBuy, decimal.NewFromInt(100), "test").WithLimit(snap.Close)
		return []Instruction{inst}, nil
	})
}

func TestRoundTripPerTransport(t *testing.T) {
	cases := map[string]string{
		config.TransportTCP:       "127.0.0.1:0",
		config.TransportUnix:      "",
		config.TransportWebSocket: "127.0.0.1:0",
	}
	for transport, addr := range cases {
		t.Run(transport, func(t *testing.T) {
			if transport == config.TransportUnix {
				addr = filepath.Join(t.TempDir(), "bridge.sock")
			}
			cfg := startServer(t, transport, addr, "", echoBuyHandler())
			conn := startConnector(t, cfg)

			first := publishAndWait(t, conn, testBar(4.2))
			second := publishAndWait(t, conn, testBar(4.3))
			if second <= first {
				t.Fatalf("sequence not increasing: %d then %d", first, second)
			}

			got := conn.Poll()
			if len(got) != 2 {
				t.Fatalf("expected 2 instructions, got %d", len(got))
			}
			if got[0].InReplyTo != first || got[1].InReplyTo != second {
				t.Fatalf("instructions out of order: %d,%d", got[0].InReplyTo, got[1].InReplyTo)
			}
			if !got[1].LimitPrice.Decimal.Equal(decimal.NewFromFloat(4.3)) {
				t.Fatalf("unexpected limit price %s", got[1].LimitPrice.Decimal)
			}
			if again := conn.Poll(); len(again) != 0 {
				t.Fatalf("poll should drain the queue, got %d", len(again))
			}
		})
	}
}

func TestDuplicateInstructionDropped(t *testing.T) {
	dup := NewInstruction("ABCD", ActionSell, decimal.NewFromInt(10), "dup")
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "", HandlerFunc(func(context.Context, Snapshot) ([]Instruction, error) {
		return []Instruction{dup, dup}, nil
	}))
	conn := startConnector(t, cfg)

	publishAndWait(t, conn, testBar(5))
	if got := conn.Poll(); len(got) != 1 {
		t.Fatalf("expected duplicate dropped, got %d", len(got))
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	var batch []Instruction
	for i := 0; i < 3; i++ {
		batch = append(batch, NewInstruction("ABCD", ActionBuy, decimal.NewFromInt(int64(i+1)), ""))
	}
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "", HandlerFunc(func(context.Context, Snapshot) ([]Instruction, error) {
		return batch, nil
	}))
	cfg.QueueSize = 2
	conn := startConnector(t, cfg)

	publishAndWait(t, conn, testBar(5))
	got := conn.Poll()
	if len(got) != 2 {
		t.Fatalf("expected 2 queued instructions, got %d", len(got))
	}
	if got[0].ID != batch[1].ID || got[1].ID != batch[2].ID {
		t.Fatalf("expected the oldest instruction to be dropped")
	}
}

func TestHandlerErrorStillAcks(t *testing.T) {
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "", HandlerFunc(func(context.Context, Snapshot) ([]Instruction, error) {
		return nil, errors.New("strategy exploded")
	}))
	conn := startConnector(t, cfg)

	publishAndWait(t, conn, testBar(5))
	if got := conn.Poll(); len(got) != 0 {
		t.Fatalf("expected no instructions, got %d", len(got))
	}
}

func TestInvalidSnapshotNotHandled(t *testing.T) {
	var calls atomic.Int32
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "", HandlerFunc(func(context.Context, Snapshot) ([]Instruction, error) {
		calls.Add(1)
		return nil, nil
	}))
	conn := startConnector(t, cfg)

	bad := testBar(5)
	bad.Close = 0
	publishAndWait(t, conn, bad)
	if calls.Load() != 0 {
		t.Fatalf("handler should not see invalid snapshots")
	}
}

func TestTokenMismatchClosesSession(t *testing.T) {
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "secret", echoBuyHandler())
	cfg.Token = "wrong"
	conn := startConnector(t, cfg)

	deadline := time.Now().Add(3 * time.Second)
	for conn.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("expected rejected session to disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTokenMatchAccepted(t *testing.T) {
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "secret", echoBuyHandler())
	conn := startConnector(t, cfg)
	publishAndWait(t, conn, testBar(3))
	if got := conn.Poll(); len(got) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(got))
	}
}

func TestPublishBeforeStart(t *testing.T) {
	conn := NewConnector(config.Bridge{Transport: config.TransportTCP, Addr: "127.0.0.1:1"}, zerolog.Nop())
	defer conn.Close()
	if _, err := conn.Publish(context.Background(), SnapshotFromBar(testBar(1))); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestStartFailsWithoutController(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "nobody.sock")
	conn := NewConnector(config.Bridge{Transport: config.TransportUnix, Addr: addr, DialAttempts: 2}, zerolog.Nop(), WithInitialBackoff(5*time.Millisecond))
	defer conn.Close()
	if err := conn.Start(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestStartUnknownTransport(t *testing.T) {
	conn := NewConnector(config.Bridge{Transport: "pigeon", Addr: "x", DialAttempts: 5}, zerolog.Nop())
	defer conn.Close()
	if err := conn.Start(context.Background()); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := startServer(t, config.TransportTCP, "127.0.0.1:0", "", echoBuyHandler())
	conn := startConnector(t, cfg)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close returned error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	if _, err := conn.Publish(context.Background(), SnapshotFromBar(testBar(1))); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := conn.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on restart, got %v", err)
	}
	if err := conn.WaitAck(context.Background(), 99); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from WaitAck, got %v", err)
	}
}

func TestReconnectAfterControllerRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restart.sock")
	bcfg := config.Bridge{Transport: config.TransportUnix, Addr: path, WriteTimeoutMs: 1000}

	ctx1, cancel1 := context.WithCancel(context.Background())
	srv1 := NewServer(bcfg, echoBuyHandler(), zerolog.Nop())
	done1 := make(chan error, 1)
	go func() { done1 <- srv1.Serve(ctx1) }()
	<-srv1.Ready()

	client := bcfg
	client.DialAttempts = 20
	conn := startConnector(t, client, WithInitialBackoff(10*time.Millisecond))
	publishAndWait(t, conn, testBar(2))

	cancel1()
	<-done1
	deadline := time.Now().Add(3 * time.Second)
	for conn.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("connector did not notice controller shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}

	startServerAt := func() {
		ctx2, cancel2 := context.WithCancel(context.Background())
		srv2 := NewServer(bcfg, echoBuyHandler(), zerolog.Nop())
		done2 := make(chan error, 1)
		go func() { done2 <- srv2.Serve(ctx2) }()
		<-srv2.Ready()
		t.Cleanup(func() { cancel2(); <-done2 })
	}
	startServerAt()

	if _, err := conn.Publish(context.Background(), SnapshotFromBar(testBar(2))); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected while redialing, got %v", err)
	}
	deadline = time.Now().Add(5 * time.Second)
	for !conn.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("connector did not reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	publishAndWait(t, conn, testBar(2.1))
}
