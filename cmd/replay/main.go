// Binary replay plays recorded bars through the bridge as if it were the host platform.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/config"
	"warriorbot-go/internal/controller"
	"warriorbot-go/internal/dataload"
	"warriorbot-go/internal/evaluator"
	"warriorbot-go/internal/feed"
	"warriorbot-go/internal/paper"
	"warriorbot-go/internal/signal"
	"warriorbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	csvPath := flag.String("csv", "", "OHLCV CSV to replay")
	symbol := flag.String("symbol", "", "symbol for rows without one; filters rows when set")
	local := flag.Bool("local", false, "run the controller in-process on a private unix socket")
	pace := flag.Duration("pace", 0, "delay between bars, 0 replays as fast as the controller answers")
	syncWait := flag.Duration("sync", 2*time.Second, "wait this long for each bar's answer, 0 to act one bar late")
	flag.Parse()

	log := util.NewConsoleLogger("info")
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewConsoleLogger(cfg.App.LogLevel)

	if *csvPath == "" {
		log.Fatal().Msg("-csv is required")
	}
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("session timezone")
	}
	bars, err := dataload.LoadCSV(*csvPath, dataload.WithLocation(loc))
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}
	bars = selectSymbol(bars, strings.ToUpper(*symbol))
	if len(bars) == 0 {
		log.Fatal().Str("symbol", *symbol).Msg("no bars to replay")
	}
	for _, b := range bars {
		if b.Symbol == "" {
			log.Fatal().Msg("csv has rows without a symbol column, pass -symbol")
		}
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *local {
		socket, cleanup, err := privateSocket()
		if err != nil {
			log.Fatal().Err(err).Msg("socket dir")
		}
		defer cleanup()
		addr, err := startLocalController(ctx, cfg, socket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("start local controller")
		}
		cfg.Bridge.Transport, cfg.Bridge.Addr = config.TransportUnix, addr
	}

	session := "replay:" + filepath.Base(*csvPath)
	eval := evaluator.New()
	ledger := paper.NewLedger(len(bars))
	hostOpts := []paper.HostOption{paper.WithFillRecorder(ledger), paper.WithTradeRecorder(eval)}
	if cfg.Paper.FillsPath != "" {
		recorder, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath, session)
		if err != nil {
			log.Fatal().Err(err).Msg("open fills recorder")
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Warn().Err(err).Str("path", cfg.Paper.FillsPath).Msg("fills recorder")
			}
		}()
		hostOpts = append(hostOpts, paper.WithFillRecorder(recorder))
	}
	account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol,
		paper.WithCommission(cfg.Paper.CommissionPerShare, cfg.Paper.MinCommission))
	host := paper.NewHost(account, util.Component(log, "host"), hostOpts...)

	conn := bridge.NewConnector(cfg.Bridge, util.Component(log, "connector"), bridge.WithClientName(session))
	adapter := bridge.NewHostAdapter(conn, host, log, bridge.WithSyncTimeout(*syncWait))
	if err := adapter.OnStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge startup")
	}

	source := feed.NewFeed(feed.ProviderRecorded, nil, util.Component(log, "feed"), feed.WithBars(bars), feed.WithInterval(*pace))
	stream := make(chan signal.Bar, 64)
	go func() {
		if err := source.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	replayed := 0
	for bar := range stream {
		host.Mark(bar)
		if _, err := adapter.OnBarUpdate(ctx, bar, host.PositionView(bar.Symbol)); err != nil {
			log.Warn().Err(err).Time("bar", bar.Ts).Msg("bar update failed")
		}
		replayed++
	}

	if err := host.FlattenAll("end of replay"); err != nil {
		log.Warn().Err(err).Msg("flatten at end")
	}
	if err := adapter.OnTermination(); err != nil {
		log.Warn().Err(err).Msg("bridge close")
	}

	for _, sum := range ledger.Summaries() {
		log.Info().
			Str("sym", sum.Symbol).
			Int("buys", sum.Buys).
			Int("sells", sum.Sells).
			Bool("open", sum.Open()).
			Float64("realized", sum.RealizedPnL).
			Msg("symbol summary")
	}
	snap := account.Snapshot(nil)
	log.Info().
		Int("bars", replayed).
		Int("fills", ledger.Len()).
		Bool("halted", host.Halted()).
		Float64("cash", snap.Cash).
		Float64("realized", snap.RealizedPnL).
		Float64("commissions", snap.Commissions).
		Object("report", eval.Report()).
		Msg("replay complete")
}

// loadConfig applies env overrides and validates, as cmd/controller does.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// privateSocket returns a socket path in a fresh temp dir, one per run.
func privateSocket() (string, func(), error) {
	dir, err := os.MkdirTemp("", "warriorbot-replay-")
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(dir, "bridge.sock"), func() { _ = os.RemoveAll(dir) }, nil
}

func selectSymbol(bars []signal.Bar, symbol string) []signal.Bar {
	if symbol == "" {
		return bars
	}
	out := bars[:0]
	for _, b := range bars {
		switch b.Symbol {
		case "":
			b.Symbol = symbol
		case symbol:
		default:
			continue
		}
		out = append(out, b)
	}
	return out
}

// startLocalController serves an in-process engine on a unix socket at path socket.
func startLocalController(ctx context.Context, cfg *config.Config, socket string, log zerolog.Logger) (string, error) {
	engine, err := controller.NewEngine(cfg, util.Component(log, "engine"))
	if err != nil {
		return "", err
	}
	if cfg.Scanner.QuotesPath != "" {
		if quotes, err := dataload.LoadQuotes(cfg.Scanner.QuotesPath); err == nil {
			engine.LoadPremarket(quotes)
		}
	}
	bcfg := cfg.Bridge
	bcfg.Transport = config.TransportUnix
	bcfg.Addr = socket
	srv := bridge.NewServer(bcfg, engine, util.Component(log, "bridge"))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
		return srv.Addr(), nil
	case err := <-errCh:
		return "", err
	}
}
