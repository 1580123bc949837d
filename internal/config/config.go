// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/echolabs/echosim/internal/domain"
)

// Config holds all application configuration. Invalid values fail fast
// at load time, before any session is created.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	Oracle     OracleConfig
	Simulation SimulationConfig
}

// OracleConfig points at the OpenAI-compatible decision service.
type OracleConfig struct {
	APIURL            string
	APIKey            string
	Model             string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// SimulationConfig carries the per-session defaults. Individual
// sessions may override parts of it through scenario files.
type SimulationConfig struct {
	MaxConcurrentUsers    int
	UserMemoryLength      int
	MaxRounds             int
	ActionTypes           []domain.ActionType
	DistributionTopK      int
	ScoreFloor            float64
	RedistributeEvery     int
	StopMetricThreshold   float64
	StopConsecutiveRounds int
	RoundInterval         time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/echosim.db"),
		Oracle: OracleConfig{
			APIURL:            getEnv("ORACLE_API_URL", "https://api.openai.com/v1"),
			APIKey:            getEnv("ORACLE_API_KEY", ""),
			Model:             getEnv("ORACLE_MODEL", "gpt-4o-mini"),
			RequestTimeout:    getEnvDuration("ORACLE_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("ORACLE_REQUESTS_PER_SECOND", 10),
			Burst:             getEnvInt("ORACLE_BURST", 20),
		},
		Simulation: SimulationConfig{
			MaxConcurrentUsers:    getEnvInt("MAX_CONCURRENT_USERS", 8),
			UserMemoryLength:      getEnvInt("USER_MEMORY_LENGTH", 10),
			MaxRounds:             getEnvInt("MAX_ROUNDS", 10),
			DistributionTopK:      getEnvInt("DISTRIBUTION_TOP_K", 0),
			ScoreFloor:            getEnvFloat("SCORE_FLOOR", 0),
			RedistributeEvery:     getEnvInt("REDISTRIBUTE_EVERY", 1),
			StopMetricThreshold:   getEnvFloat("STOP_METRIC_THRESHOLD", 0),
			StopConsecutiveRounds: getEnvInt("STOP_CONSECUTIVE_ROUNDS", 3),
			RoundInterval:         getEnvDuration("ROUND_INTERVAL", 0),
		},
	}

	types, err := parseActionTypes(getEnv("ACTION_TYPES", "like,comment,share,forward,reply"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Simulation.ActionTypes = types

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all configuration fields are usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Oracle.APIURL == "" {
		return fmt.Errorf("ORACLE_API_URL cannot be empty")
	}
	if c.Oracle.RequestTimeout <= 0 {
		return fmt.Errorf("ORACLE_REQUEST_TIMEOUT must be > 0")
	}
	if c.Oracle.RequestsPerSecond <= 0 {
		return fmt.Errorf("ORACLE_REQUESTS_PER_SECOND must be > 0")
	}
	if c.Oracle.Burst < 1 {
		return fmt.Errorf("ORACLE_BURST must be >= 1")
	}
	s := c.Simulation
	if s.MaxConcurrentUsers < 1 {
		return fmt.Errorf("MAX_CONCURRENT_USERS must be >= 1")
	}
	if s.UserMemoryLength < 1 {
		return fmt.Errorf("USER_MEMORY_LENGTH must be >= 1")
	}
	if s.MaxRounds < 1 {
		return fmt.Errorf("MAX_ROUNDS must be >= 1")
	}
	if len(s.ActionTypes) == 0 {
		return fmt.Errorf("ACTION_TYPES cannot be empty")
	}
	if s.DistributionTopK < 0 {
		return fmt.Errorf("DISTRIBUTION_TOP_K cannot be negative")
	}
	if s.ScoreFloor < 0 {
		return fmt.Errorf("SCORE_FLOOR cannot be negative")
	}
	if s.RedistributeEvery < 1 {
		return fmt.Errorf("REDISTRIBUTE_EVERY must be >= 1")
	}
	if s.StopMetricThreshold < 0 || s.StopMetricThreshold > 1 {
		return fmt.Errorf("STOP_METRIC_THRESHOLD must be in [0,1]")
	}
	if s.StopConsecutiveRounds < 1 {
		return fmt.Errorf("STOP_CONSECUTIVE_ROUNDS must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseActionTypes(raw string) ([]domain.ActionType, error) {
	parts := strings.Split(raw, ",")
	out := make([]domain.ActionType, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, err := domain.ParseActionType(p)
		if err != nil {
			return nil, fmt.Errorf("ACTION_TYPES: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
