// Package infra holds process-level plumbing: configuration and logging.
package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/warp/ticket-ledger/factory"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/ticketsale"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup.
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Ledger struct {
		TotalTickets uint64          `yaml:"total_tickets"`
		TicketPrice  generic.Amount  `yaml:"ticket_price"`
		Fee          factory.FeeJSON `yaml:"fee"`
	} `yaml:"ledger"`

	Audit struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"audit"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // empty: stdout only
	} `yaml:"logging"`
}

// DefaultConfig mirrors the reference deployment: 100000 tickets at 0.01.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	cfg.Database.Path = "tickets.db"
	cfg.Ledger.TotalTickets = 100000
	cfg.Ledger.TicketPrice = generic.MustAmount("0.01")
	cfg.Audit.Enabled = true
	cfg.Audit.Interval = time.Hour
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads a YAML file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Ledger.TotalTickets == 0 {
		return errors.New("ledger total_tickets must be positive")
	}
	if c.Ledger.TicketPrice.IsNegative() {
		return errors.New("ledger ticket_price must not be negative")
	}
	if _, err := factory.NewFeePolicyFactory().FromJSON(c.Ledger.Fee); err != nil {
		return err
	}
	if c.Audit.Enabled && c.Audit.Interval <= 0 {
		return errors.New("audit interval must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// LedgerConfig builds the ticketsale configuration.
func (c *Config) LedgerConfig() (ticketsale.Config, error) {
	fees, err := factory.NewFeePolicyFactory().FromJSON(c.Ledger.Fee)
	if err != nil {
		return ticketsale.Config{}, err
	}
	return ticketsale.Config{
		TotalTickets: c.Ledger.TotalTickets,
		TicketPrice:  c.Ledger.TicketPrice,
		FeePolicy:    fees,
	}, nil
}

// overrideWithEnv lets deployments change the essentials without a file.
func overrideWithEnv(cfg *Config) error {
	if db := os.Getenv("TICKET_LEDGER_DB"); db != "" {
		cfg.Database.Path = db
	}
	if port := os.Getenv("TICKET_LEDGER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid TICKET_LEDGER_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if level := os.Getenv("TICKET_LEDGER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	return nil
}
