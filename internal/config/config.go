package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mtr002/Job-Runner/internal/worker"
)

const (
	EnvPrefix = "JOBRUNNER"

	DefaultRedisAddr   = "localhost:6379"
	DefaultQueueKey    = "jobs"
	DefaultPollTimeout = 5 * time.Second
	DefaultExecTimeout = time.Minute
	DefaultHTTPAddr    = ":8080"
	DefaultGRPCAddr    = ":9090"
)

type Config struct {
	ServiceName string         `mapstructure:"service_name"`
	LogLevel    string         `mapstructure:"log_level"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Queue       QueueConfig    `mapstructure:"queue"`
	Runner      RunnerConfig   `mapstructure:"runner"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	GRPC        GRPCConfig     `mapstructure:"grpc"`
	Database    DatabaseConfig `mapstructure:"database"`
	NATS        NATSConfig     `mapstructure:"nats"`
}

type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	PoolSize   int    `mapstructure:"pool_size"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type QueueConfig struct {
	Key         string        `mapstructure:"key"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

type RunnerConfig struct {
	OnMalformed string            `mapstructure:"on_malformed"`
	ExecTimeout time.Duration     `mapstructure:"exec_timeout"`
	ExecAllow   map[string]string `mapstructure:"exec_allow"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type NATSConfig struct {
	URL               string `mapstructure:"url"`
	PublishOutcomes   bool   `mapstructure:"publish_outcomes"`
	BridgeSubmissions bool   `mapstructure:"bridge_submissions"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "job-runner")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("queue.key", DefaultQueueKey)
	v.SetDefault("queue.poll_timeout", DefaultPollTimeout)
	v.SetDefault("runner.on_malformed", string(worker.Halt))
	v.SetDefault("runner.exec_timeout", DefaultExecTimeout)
	v.SetDefault("runner.exec_allow", map[string]string{})
	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("grpc.addr", DefaultGRPCAddr)
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.publish_outcomes", true)
	v.SetDefault("nats.bridge_submissions", true)
}

// Load reads defaults, then the YAML file, then JOBRUNNER_* environment
// variables. With an empty path a missing runner.yaml is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/jobrunner")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := worker.ParseMalformedPolicy(c.Runner.OnMalformed); err != nil {
		return fmt.Errorf("runner.on_malformed: %w", err)
	}
	if c.Queue.Key == "" {
		return errors.New("queue.key cannot be empty")
	}
	if c.Queue.PollTimeout <= 0 {
		return fmt.Errorf("queue.poll_timeout must be positive, got %s", c.Queue.PollTimeout)
	}
	if c.Runner.ExecTimeout < 0 {
		return fmt.Errorf("runner.exec_timeout cannot be negative, got %s", c.Runner.ExecTimeout)
	}
	for name, path := range c.Runner.ExecAllow {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("runner.exec_allow.%s: %q is not an absolute path", name, path)
		}
	}
	return nil
}

// WorkerConfig converts the loaded settings into the runner's own config
func (c *Config) WorkerConfig() worker.Config {
	policy, _ := worker.ParseMalformedPolicy(c.Runner.OnMalformed)
	return worker.Config{
		PollTimeout: c.Queue.PollTimeout,
		ExecTimeout: c.Runner.ExecTimeout,
		OnMalformed: policy,
	}
}
