// Package config loads and validates the application configuration from
// Viper. All values are resolved once at startup and immutable for the
// process lifetime.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Corrector CorrectorConfig `mapstructure:"corrector"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Log       LogConfig       `mapstructure:"log"`
}

// WorkerConfig holds consumer worker configuration.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// QueueConfig holds the correction queue configuration: delivery attempts,
// visibility, long-poll pacing, and the backoff policy bounds.
type QueueConfig struct {
	Stream      string `mapstructure:"stream"`
	Subject     string `mapstructure:"subject"`
	DLQSubject  string `mapstructure:"dlq_subject"`
	DurableName string `mapstructure:"durable_name"`
	MaxDeliver  int    `mapstructure:"max_deliver"`
	BatchSize   int    `mapstructure:"batch_size"`

	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	LongPollWait      time.Duration `mapstructure:"long_poll_wait"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCeiling    time.Duration `mapstructure:"backoff_ceiling"`
}

// CorrectorConfig holds the generative corrector configuration. TokenBudgets
// is the escalation ladder: ascending budgets tried in order when the model
// output is truncated.
type CorrectorConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	TokenBudgets []int         `mapstructure:"token_budgets"`
}

// SchemaConfig points at the document schema definition.
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if err := c.Queue.Validate(); err != nil {
		return err
	}

	return c.Corrector.Validate()
}

// Validate checks the queue configuration.
func (q QueueConfig) Validate() error {
	if q.Subject == "" {
		return errors.New("queue.subject is required")
	}
	if q.MaxDeliver < 1 {
		return errors.New("queue.max_deliver must be at least 1")
	}
	if q.BatchSize < 1 {
		return errors.New("queue.batch_size must be at least 1")
	}
	if q.VisibilityTimeout <= 0 {
		return errors.New("queue.visibility_timeout must be positive")
	}
	if q.LongPollWait <= 0 {
		return errors.New("queue.long_poll_wait must be positive")
	}
	if q.BackoffBase <= 0 {
		return errors.New("queue.backoff_base must be positive")
	}
	if q.BackoffCeiling < q.BackoffBase {
		return errors.New("queue.backoff_ceiling must be at least queue.backoff_base")
	}
	return nil
}

// Validate checks the corrector configuration, in particular that the token
// budget ladder is non-empty and strictly ascending.
func (c CorrectorConfig) Validate() error {
	if len(c.TokenBudgets) == 0 {
		return errors.New("corrector.token_budgets requires at least one budget")
	}
	previous := 0
	for i, budget := range c.TokenBudgets {
		if budget <= previous {
			return fmt.Errorf("corrector.token_budgets must be strictly ascending, got %d at position %d", budget, i)
		}
		previous = budget
	}
	if c.Timeout < 0 {
		return errors.New("corrector.timeout cannot be negative")
	}
	return nil
}
