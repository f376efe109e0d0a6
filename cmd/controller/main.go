// Binary controller listens on the bridge and answers host snapshots with trade instructions.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/config"
	"warriorbot-go/internal/controller"
	"warriorbot-go/internal/dataload"
	"warriorbot-go/internal/metrics"
	"warriorbot-go/internal/store"
	"warriorbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file with WARRIOR_* overrides")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	config.ApplyEnv(cfg, *envFile)

	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.App.Env == "dev" {
		log = util.NewConsoleLogger(cfg.App.LogLevel)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	srvMetrics := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []controller.Option
	if cfg.Journal.Path != "" {
		journal, err := store.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("open journal")
		}
		defer journal.Close()
		opts = append(opts, controller.WithJournal(journal))
		log.Info().Str("path", cfg.Journal.Path).Msg("journal open")
	}

	engine, err := controller.NewEngine(cfg, util.Component(log, "engine"), opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	if cfg.Scanner.QuotesPath != "" {
		quotes, err := dataload.LoadQuotes(cfg.Scanner.QuotesPath)
		switch {
		case errors.Is(err, dataload.ErrNotFound):
			log.Warn().Str("path", cfg.Scanner.QuotesPath).Msg("no premarket quotes, gap strategies stay idle")
		case err != nil:
			log.Fatal().Err(err).Msg("load premarket quotes")
		default:
			engine.LoadPremarket(quotes)
		}
	}

	srv := bridge.NewServer(cfg.Bridge, engine, util.Component(log, "bridge"))
	log.Info().
		Str("transport", cfg.Bridge.Transport).
		Str("addr", cfg.Bridge.Addr).
		Strs("modes", cfg.Strategy.Modes).
		Strs("watchlist", engine.Watchlist()).
		Msg("controller started")
	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("bridge server stopped")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_ = srvMetrics.Shutdown(shutdownCtx)
	log.Info().Bool("halted", engine.Halted()).Msg("shutting down")
}
