package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override YAML settings.
const (
	EnvBridgeAddr      = "WARRIOR_BRIDGE_ADDR"
	EnvBridgeTransport = "WARRIOR_BRIDGE_TRANSPORT"
	EnvBridgeToken     = "WARRIOR_BRIDGE_TOKEN"
	EnvLogLevel        = "WARRIOR_LOG_LEVEL"
)

// ApplyEnv loads the optional .env files and lets process environment win over YAML.
func ApplyEnv(cfg *Config, files ...string) {
	_ = godotenv.Load(files...) // best-effort

	if v := strings.TrimSpace(os.Getenv(EnvBridgeAddr)); v != "" {
		cfg.Bridge.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBridgeTransport)); v != "" {
		cfg.Bridge.Transport = strings.ToLower(v)
	}
	if v := os.Getenv(EnvBridgeToken); v != "" {
		cfg.Bridge.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.App.LogLevel = v
	}
}
