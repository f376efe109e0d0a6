package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/config"
)

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv(config.EnvBridgeTransport, "")
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	if err := config.Save(good, config.Default()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := loadConfig(good); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("bridge:\n  transport: carrier-pigeon\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := loadConfig(bad)
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("expected transport validation error, got %v", err)
	}
}

func TestLocalControllersUseSeparateSockets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	addrs := make(map[string]bool)
	for i := 0; i < 2; i++ {
		socket, cleanup, err := privateSocket()
		if err != nil {
			t.Fatalf("socket: %v", err)
		}
		defer cleanup()
		addr, err := startLocalController(ctx, cfg, socket, zerolog.Nop())
		if err != nil {
			t.Fatalf("controller %d: %v", i, err)
		}
		addrs[addr] = true
	}
	if len(addrs) != 2 {
		t.Fatalf("expected two distinct sockets, got %v", addrs)
	}
	for addr := range addrs {
		if _, err := os.Stat(addr); err != nil {
			t.Fatalf("socket %s missing while both run: %v", addr, err)
		}
	}
}
