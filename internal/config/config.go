// Package config loads the demonstrator agent's configuration from
// environment variables: a struct of env-tagged fields, optional .env
// loading for local development, and an explicit Validate pass before
// anything else runs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// NotifyBackend selects which traits/notify implementation the agent wires
// up.
type NotifyBackend string

const (
	NotifyUDP  NotifyBackend = "udp"
	NotifyNATS NotifyBackend = "nats"
)

// Config holds every environment-tunable knob for cmd/toroniagent.
type Config struct {
	RingName       string        `env:"TORONI_RING_NAME" envDefault:"toroni-demo-ring"`
	RingSizeBytes  uint64        `env:"TORONI_RING_SIZE_BYTES" envDefault:"1048576"`
	MaxReaders     uint32        `env:"TORONI_MAX_READERS" envDefault:"64"`
	WriterCount    int           `env:"TORONI_WRITER_COUNT" envDefault:"1"`
	ReaderCount    int           `env:"TORONI_READER_COUNT" envDefault:"1"`
	MessageSize    int           `env:"TORONI_MESSAGE_SIZE" envDefault:"256"`
	WriteRatePerS  float64       `env:"TORONI_WRITE_RATE_PER_SEC" envDefault:"1000"`
	BackpressureMaxRetries int   `env:"TORONI_BACKPRESSURE_MAX_RETRIES" envDefault:"5"`

	NotifyBackend NotifyBackend `env:"TORONI_NOTIFY_BACKEND" envDefault:"udp"`
	MulticastAddr string        `env:"TORONI_MULTICAST_ADDR" envDefault:"239.10.10.10"`
	MulticastPort int           `env:"TORONI_MULTICAST_PORT" envDefault:"9999"`
	NATSUrl       string        `env:"TORONI_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSSubject   string        `env:"TORONI_NATS_SUBJECT" envDefault:"toroni.notify"`

	LogLevel  string `env:"TORONI_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TORONI_LOG_FORMAT" envDefault:"json"`

	MetricsAddr string `env:"TORONI_METRICS_ADDR" envDefault:":9090"`
	LockDir     string `env:"TORONI_LOCK_DIR" envDefault:"/tmp/toroni-locks"`
}

// LoadConfig reads a .env file if present (ignored if absent — this is a
// convenience for local development, not a hard requirement) and then
// parses environment variables into a Config, validating the result.
func LoadConfig(log *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("config: no .env file loaded")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields, ranges, and cross-field constraints.
func (c *Config) Validate() error {
	if c.RingSizeBytes == 0 || c.RingSizeBytes&(c.RingSizeBytes-1) != 0 {
		return fmt.Errorf("config: TORONI_RING_SIZE_BYTES must be a power of two, got %d", c.RingSizeBytes)
	}
	if c.MaxReaders == 0 {
		return fmt.Errorf("config: TORONI_MAX_READERS must be > 0")
	}
	if c.WriterCount < 0 || c.ReaderCount < 0 {
		return fmt.Errorf("config: writer/reader counts must be >= 0")
	}
	if c.MessageSize <= 0 {
		return fmt.Errorf("config: TORONI_MESSAGE_SIZE must be > 0")
	}
	if c.WriteRatePerS <= 0 {
		return fmt.Errorf("config: TORONI_WRITE_RATE_PER_SEC must be > 0")
	}
	switch c.NotifyBackend {
	case NotifyUDP, NotifyNATS:
	default:
		return fmt.Errorf("config: unknown TORONI_NOTIFY_BACKEND %q", c.NotifyBackend)
	}
	return nil
}

// Print returns a human-readable summary suitable for a startup log line.
func (c *Config) Print() string {
	return fmt.Sprintf("ring=%s size=%d maxReaders=%d writers=%d readers=%d notify=%s",
		c.RingName, c.RingSizeBytes, c.MaxReaders, c.WriterCount, c.ReaderCount, c.NotifyBackend)
}

// LogConfig emits the configuration as a structured log event.
func (c *Config) LogConfig(log zerolog.Logger) {
	log.Info().
		Str("ringName", c.RingName).
		Uint64("ringSizeBytes", c.RingSizeBytes).
		Uint32("maxReaders", c.MaxReaders).
		Int("writerCount", c.WriterCount).
		Int("readerCount", c.ReaderCount).
		Int("messageSize", c.MessageSize).
		Float64("writeRatePerSec", c.WriteRatePerS).
		Str("notifyBackend", string(c.NotifyBackend)).
		Msg("config: loaded")
}
