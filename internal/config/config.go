package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// MaxPositionTick keeps transcript highlighting sub-second.
const MaxPositionTick = 150 * time.Millisecond

type Config struct {
	Port           int
	APIBaseURL     string
	PollInterval   time.Duration
	PositionTick   time.Duration
	AckDuration    time.Duration
	HTTPTimeout    time.Duration
	UseMockBackend bool
	Environment    string
	LogLevel       string
}

// Load reads .env (if present), the environment, then command-line flags.
// Flags win over the environment.
func Load(args []string) (Config, error) {
	_ = godotenv.Load() // optional .env

	cfg := Config{
		Port:           envInt("PORT", 8080),
		APIBaseURL:     envStr("API_BASE_URL", "http://localhost:8000/api"),
		PollInterval:   envDuration("POLL_INTERVAL", 60*time.Second),
		PositionTick:   envDuration("POSITION_TICK", 100*time.Millisecond),
		AckDuration:    envDuration("ACK_DURATION", 3*time.Second),
		HTTPTimeout:    envDuration("HTTP_TIMEOUT", 12*time.Second),
		UseMockBackend: envStr("USE_MOCK_BACKEND", "") == "true",
		Environment:    envStr("ENVIRONMENT", "local"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
	}

	fs := pflag.NewFlagSet("call-review", pflag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.APIBaseURL, "api-base", cfg.APIBaseURL, "base URL of the escalations backend")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "escalation feed refresh period")
	fs.DurationVar(&cfg.PositionTick, "position-tick", cfg.PositionTick, "playback position update interval")
	fs.DurationVar(&cfg.AckDuration, "ack-duration", cfg.AckDuration, "how long a feedback acknowledgement stays visible")
	fs.BoolVar(&cfg.UseMockBackend, "mock", cfg.UseMockBackend, "serve a deterministic in-process backend")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PositionTick <= 0 || c.PositionTick > MaxPositionTick {
		return fmt.Errorf("position tick must be in (0, %s], got %s", MaxPositionTick, c.PositionTick)
	}
	if c.AckDuration <= 0 {
		return fmt.Errorf("ack duration must be positive, got %s", c.AckDuration)
	}
	if !c.UseMockBackend && c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL not set")
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
