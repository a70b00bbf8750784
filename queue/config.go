// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/gviegas/qsync/driver"
)

// MaxQueues is the maximum number of queues that a
// Device can have.
const MaxQueues = 2

// Config configures a Device.
type Config struct {
	// Queues is the number of queues to create.
	Queues int `toml:"queues"`
	// Priority is the scheduling priority of every
	// hardware context that the queues create.
	Priority driver.Priority `toml:"priority"`
	// LogLevel is the minimum level of messages logged
	// by the default logger.
	LogLevel slog.Level `toml:"log_level"`
	// Logger, if not nil, replaces the default logger.
	Logger *slog.Logger `toml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Queues:   1,
		Priority: driver.PriorityMedium,
		LogLevel: slog.LevelInfo,
	}
}

// Validate checks whether c is a valid configuration.
func (c *Config) Validate() error {
	if c.Queues < 1 || c.Queues > MaxQueues {
		return errors.Errorf("queue: invalid queue count %d (must be in [1, %d])", c.Queues, MaxQueues)
	}
	if c.Priority < driver.PriorityLow || c.Priority > driver.PriorityHigh {
		return errors.Errorf("queue: invalid priority %d", int(c.Priority))
	}
	return nil
}

// logger returns the logger that c selects.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}

// ParseConfig decodes a TOML configuration.
// Keys missing from b keep their default values.
// Unknown keys are ignored, so b may contain settings
// meant for other components.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	if err := toml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "queue: decoding config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and decodes the TOML configuration
// file at path.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "queue: reading config")
	}
	return ParseConfig(b)
}
