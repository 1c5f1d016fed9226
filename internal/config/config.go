// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the master and worker binaries.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints" validate:"required,min=1"`
	EtcdTimeout     time.Duration `mapstructure:"etcd_timeout" validate:"gt=0"`
	RegistrationTTL time.Duration `mapstructure:"registration_ttl" validate:"gte=1s"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Worker process.
	WorkerListenAddr    string        `mapstructure:"worker_listen_addr" validate:"required"`
	WorkerAdvertiseAddr string        `mapstructure:"worker_advertise_addr"`
	WorkerMetricsAddr   string        `mapstructure:"worker_metrics_addr"`
	LoopRestartBackoff  time.Duration `mapstructure:"loop_restart_backoff" validate:"gt=0"`

	// Master process.
	DispatcherListenAddr    string        `mapstructure:"dispatcher_listen_addr" validate:"required"`
	DispatcherAdvertiseAddr string        `mapstructure:"dispatcher_advertise_addr"`
	HttpListenAddr          string        `mapstructure:"http_listen_addr" validate:"required"`
	LeaderElectionTTL       time.Duration `mapstructure:"leader_election_ttl" validate:"gte=1s"`
	HarvestSchedule         string        `mapstructure:"harvest_schedule" validate:"required,cron"`
	WorkerSyncSchedule      string        `mapstructure:"worker_sync_schedule" validate:"required,cron"`
	HarvestTimeout          time.Duration `mapstructure:"harvest_timeout" validate:"gt=0"`
	QueueSize               int           `mapstructure:"queue_size" validate:"gt=0"`

	Model ModelConfig `mapstructure:"model"`
}

// ModelConfig is forwarded verbatim to workers at initialize time.
type ModelConfig struct {
	Kind      string  `mapstructure:"kind" validate:"required"`
	NumTerms  int     `mapstructure:"num_terms" validate:"gt=0"`
	NumTopics int     `mapstructure:"num_topics" validate:"gte=0"`
	Decay     float64 `mapstructure:"decay" validate:"gt=0,lte=1"`
}

// Params returns the model config as the opaque params map sent to workers.
func (m ModelConfig) Params() map[string]any {
	return map[string]any{
		"kind":       m.Kind,
		"num_terms":  m.NumTerms,
		"num_topics": m.NumTopics,
		"decay":      m.Decay,
	}
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewValidator returns a validator that also understands the "cron" tag.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return validate
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// Set default values
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("registration_ttl", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("worker_listen_addr", ":50052")
	v.SetDefault("worker_metrics_addr", ":9102")
	v.SetDefault("loop_restart_backoff", "5s")
	v.SetDefault("dispatcher_listen_addr", ":50051")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("harvest_schedule", "@every 30s")
	v.SetDefault("worker_sync_schedule", "@every 5s")
	v.SetDefault("harvest_timeout", "10s")
	v.SetDefault("queue_size", 128)
	v.SetDefault("model.kind", "lsi")
	v.SetDefault("model.num_terms", 1000)
	v.SetDefault("model.num_topics", 100)
	v.SetDefault("model.decay", 1.0)

	// Set config file details
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Read environment variables, e.g. LSI_MODEL_NUM_TERMS for model.num_terms
	v.SetEnvPrefix("lsi")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; rely on defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := NewValidator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
