package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wykoj/livewatch/go/clients/judge_client"
	"github.com/wykoj/livewatch/go/internal/dbconfig"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/watch"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Judge struct {
		BaseURL      string        `yaml:"base_url"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"judge"`

	Gateway struct {
		Port string `yaml:"port"`
	} `yaml:"gateway"`

	Intervals struct {
		Render         time.Duration `yaml:"render"`
		ContestPoll    time.Duration `yaml:"contest_poll"`
		SubmissionPoll time.Duration `yaml:"submission_poll"`
		Leaderboard    time.Duration `yaml:"leaderboard"`
		DriftTolerance time.Duration `yaml:"drift_tolerance"`
		PendingWindow  time.Duration `yaml:"pending_window"`
	} `yaml:"intervals"`

	Watches []watch.Key `yaml:"watches"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`

	Journal struct {
		Enabled  bool            `yaml:"enabled"`
		Database dbconfig.Config `yaml:"database"`
	} `yaml:"journal"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.Judge.BaseURL = judge_client.DefaultBaseURL
	cfg.Judge.FetchTimeout = 10 * time.Second
	cfg.Gateway.Port = "8081"
	cfg.Intervals.Render = 100 * time.Millisecond
	cfg.Intervals.ContestPoll = 5 * time.Second
	cfg.Intervals.SubmissionPoll = 3 * time.Second
	cfg.Intervals.Leaderboard = watch.DefaultLeaderboardInterval
	cfg.Intervals.DriftTolerance = time.Second
	cfg.Intervals.PendingWindow = time.Minute
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Journal.Database = dbconfig.Default()
	return &cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, then applies environment
// overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Judge.BaseURL = getEnv("JUDGE_BASE_URL", c.Judge.BaseURL)
	c.Judge.FetchTimeout = getEnvAsDuration("JUDGE_FETCH_TIMEOUT", c.Judge.FetchTimeout)
	c.Gateway.Port = getEnv("GATEWAY_PORT", c.Gateway.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.Journal.Enabled = getEnvAsBool("JOURNAL_ENABLED", c.Journal.Enabled)
	c.Journal.Database = c.Journal.Database.WithEnv()

	if raw := os.Getenv("WATCHES"); raw != "" {
		keys, err := parseWatches(raw)
		if err != nil {
			return err
		}
		c.Watches = keys
	}
	return nil
}

func (c *Config) validate() error {
	positive := map[string]time.Duration{
		"intervals.render":          c.Intervals.Render,
		"intervals.contest_poll":    c.Intervals.ContestPoll,
		"intervals.submission_poll": c.Intervals.SubmissionPoll,
		"intervals.leaderboard":     c.Intervals.Leaderboard,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Intervals.DriftTolerance < 0 {
		return fmt.Errorf("intervals.drift_tolerance must not be negative, got %s", c.Intervals.DriftTolerance)
	}
	return nil
}

// parseWatches parses a comma separated list such as "contest/5,submission/12".
func parseWatches(raw string) ([]watch.Key, error) {
	var keys []watch.Key
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := watch.ParseKey(part)
		if err != nil {
			return nil, fmt.Errorf("WATCHES: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *Config) reconcileConfig(poll time.Duration) reconcile.Config {
	return reconcile.Config{
		RenderInterval: c.Intervals.Render,
		PollInterval:   poll,
		FetchTimeout:   c.Judge.FetchTimeout,
		DriftTolerance: c.Intervals.DriftTolerance,
	}
}

func (c *Config) contestConfig() watch.Config {
	return watch.Config{Reconcile: c.reconcileConfig(c.Intervals.ContestPoll)}
}

func (c *Config) submissionConfig() watch.Config {
	return watch.Config{
		Reconcile:     c.reconcileConfig(c.Intervals.SubmissionPoll),
		PendingWindow: c.Intervals.PendingWindow,
	}
}
