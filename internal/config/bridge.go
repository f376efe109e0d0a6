package config

// Supported bridge transports.
const (
	TransportTCP       = "tcp"
	TransportUnix      = "unix" // named-pipe equivalent on the local host
	TransportWebSocket = "ws"
)

// Bridge defines how the host-side connector reaches the controller.
type Bridge struct {
	Transport      string `yaml:"transport"`
	Addr           string `yaml:"addr"`
	Token          string `yaml:"token"`
	DialTimeoutMs  int    `yaml:"dial_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	DialAttempts   int    `yaml:"dial_attempts"`
	QueueSize      int    `yaml:"queue_size"`
}
