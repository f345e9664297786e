// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chunk-quiz/quiz"
)

type Config struct {
	// Quiz settings
	Mode        quiz.Mode
	ContentPath string

	// Web settings
	Addr       string
	SessionTTL time.Duration
	Fade       time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (when present) and then the environment. Variables already
// set in the environment win over .env entries.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	mode, err := quiz.ParseMode(getEnv("CHUNKQUIZ_MODE", string(quiz.ModeAuthoring)))
	if err != nil {
		return nil, fmt.Errorf("CHUNKQUIZ_MODE: %w", err)
	}

	ttl, err := getEnvDuration("CHUNKQUIZ_SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	fade, err := getEnvDuration("CHUNKQUIZ_FADE", 400*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:        mode,
		ContentPath: os.Getenv("CHUNKQUIZ_CONTENT"),
		Addr:        getEnv("CHUNKQUIZ_ADDR", ":8080"),
		SessionTTL:  ttl,
		Fade:        fade,
		LogLevel:    strings.ToLower(getEnv("CHUNKQUIZ_LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("CHUNKQUIZ_LOG_FORMAT", "text")),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("CHUNKQUIZ_ADDR must not be empty")
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("CHUNKQUIZ_SESSION_TTL must be at least 1m, got %s", c.SessionTTL)
	}
	if c.Fade < 0 || c.Fade > 5*time.Second {
		return fmt.Errorf("CHUNKQUIZ_FADE must be 0-5s, got %s", c.Fade)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("CHUNKQUIZ_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// LoadContent returns the quiz content named by ContentPath, or the built-in
// passage when it is empty.
func (c *Config) LoadContent() (*quiz.Content, error) {
	if c.ContentPath == "" {
		return quiz.DefaultContent()
	}
	return quiz.LoadContent(c.ContentPath)
}

// Logger builds the process logger. It writes to w, normally stderr.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("CHUNKQUIZ_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use a value like 30m or 400ms)", key, v)
	}
	return d, nil
}
