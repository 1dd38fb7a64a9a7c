package realtime

import (
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	wsSubprotocolV1 = "qrauth.login.v1"

	defaultSendQueue = 16

	// Watch sockets are server-push only; clients never need to send more
	// than a close frame.
	maxFrameBytes = 4 << 10

	wsMaxPingFailures = 3
	wsCloseGrace      = time.Second
)

// Config controls the status-watch socket.
type Config struct {
	WriteTimeout      time.Duration `env:"QRAUTH_WS_WRITE_TIMEOUT"      envDefault:"5s"`
	HeartbeatInterval time.Duration `env:"QRAUTH_WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"QRAUTH_WS_HEARTBEAT_TIMEOUT"  envDefault:"5s"`

	// PollInterval bounds how late a lazily-expired session is reported.
	PollInterval time.Duration `env:"QRAUTH_WS_POLL_INTERVAL" envDefault:"1s"`

	// Origin is required by default and only localhost is allowed.
	OriginRequired bool     `env:"QRAUTH_WS_ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins []string `env:"QRAUTH_WS_ALLOWED_ORIGINS" envDefault:"http://localhost,http://127.0.0.1" envSeparator:","`

	// DevInsecure skips websocket.Accept's own origin verification.
	DevInsecure bool `env:"QRAUTH_WS_DEV_INSECURE" envDefault:"false"`

	SendQueue int `env:"QRAUTH_WS_SEND_QUEUE" envDefault:"16"`
}

// DefaultConfig returns the watch defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		PollInterval:      time.Second,
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		SendQueue:         defaultSendQueue,
	}
}

// LoadConfigFromEnv loads watch config from the environment. Unparseable or
// non-positive values fall back to the defaults.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return DefaultConfig()
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.SendQueue <= 0 {
		c.SendQueue = def.SendQueue
	}
	return c
}
