package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Execution transports supported by the API process.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
	TransportRedis = "redis"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	ExecutionTransport   string
	RedisQueuePrefix     string
	NATSSubjectPrefix    string
	FeedChannel          string
	ExecutionConcurrency int

	DockerHost       string
	SandboxWorkDir   string
	CompileTimeout   time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int
	CodeRunPidsLimit int

	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
	StreamPingInterval time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Exam API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("execution.transport", TransportLocal)
	v.SetDefault("execution.redis_prefix", "gema:exam:execution")
	v.SetDefault("execution.nats_prefix", "gema.exam.execution")
	v.SetDefault("execution.concurrency", 4)
	v.SetDefault("feed.channel", "gema:exam")
	v.SetDefault("sandbox.workdir", "")
	v.SetDefault("sandbox.compile_timeout", "30s")
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("code_run_pids_limit", 64)
	v.SetDefault("submit.rate_limit", 10)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("stream.ping_interval", "30s")

	compileTimeout, err := parseDuration(v, "sandbox.compile_timeout")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "submit.rate_window")
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := parseDuration(v, "stream.ping_interval")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		ExecutionTransport:   strings.ToLower(strings.TrimSpace(v.GetString("execution.transport"))),
		RedisQueuePrefix:     v.GetString("execution.redis_prefix"),
		NATSSubjectPrefix:    v.GetString("execution.nats_prefix"),
		FeedChannel:          v.GetString("feed.channel"),
		ExecutionConcurrency: v.GetInt("execution.concurrency"),
		DockerHost:           v.GetString("docker_host"),
		SandboxWorkDir:       v.GetString("sandbox.workdir"),
		CompileTimeout:       compileTimeout,
		CodeRunMemoryMB:      v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:     v.GetInt("code_run_cpu_shares"),
		CodeRunPidsLimit:     v.GetInt("code_run_pids_limit"),
		SubmitRateLimit:      v.GetInt("submit.rate_limit"),
		SubmitRateWindow:     rateWindow,
		StreamPingInterval:   pingInterval,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.ExecutionTransport {
	case TransportLocal:
	case TransportNATS:
		if cfg.NATSURL == "" {
			return Config{}, fmt.Errorf("nats url must be provided for the nats execution transport")
		}
	case TransportRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis url must be provided for the redis execution transport")
		}
	default:
		return Config{}, fmt.Errorf("unknown execution transport %q", cfg.ExecutionTransport)
	}

	if cfg.ExecutionConcurrency <= 0 {
		cfg.ExecutionConcurrency = 4
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, fmt.Errorf("%s must not be empty", key)
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return value, nil
}
