package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("required setting is not set")

type Config struct {
	Addr     string
	Env      string
	LogLevel string

	Judge0URL          string
	Judge0Host         string
	Judge0APIKey       string
	Judge0LanguageID   int
	Judge0PollInterval time.Duration
	GradeTimeout       time.Duration

	BattleDurationSec int
	TickInterval      time.Duration

	DatabaseURL    string
	AllowedOrigins []string

	WSMessageRate  float64
	WSMessageBurst int
}

// Load reads .env when present, then the environment. Real environment
// variables win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	p := parser{}
	cfg := Config{
		Addr:     p.str("ADDR", ":8080"),
		Env:      p.str("APP_ENV", "production"),
		LogLevel: p.str("LOG_LEVEL", "info"),

		Judge0URL:          strings.TrimRight(p.str("JUDGE0_URL", "https://judge0-ce.p.rapidapi.com"), "/"),
		Judge0Host:         p.str("JUDGE0_HOST", "judge0-ce.p.rapidapi.com"),
		Judge0APIKey:       p.str("JUDGE0_API_KEY", ""),
		Judge0LanguageID:   p.int("JUDGE0_LANGUAGE_ID", 63),
		Judge0PollInterval: p.duration("JUDGE0_POLL_INTERVAL", 500*time.Millisecond),
		GradeTimeout:       p.duration("GRADE_TIMEOUT", 30*time.Second),

		BattleDurationSec: p.int("BATTLE_DURATION_SEC", 300),
		TickInterval:      p.duration("TICK_INTERVAL", time.Second),

		DatabaseURL:    p.str("DATABASE_URL", ""),
		AllowedOrigins: splitList(p.str("ALLOWED_ORIGINS", "*")),

		WSMessageRate:  p.float("WS_MESSAGE_RATE", 20),
		WSMessageBurst: p.int("WS_MESSAGE_BURST", 40),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.Judge0APIKey == "" {
		return Config{}, fmt.Errorf("JUDGE0_API_KEY: %w", ErrMissing)
	}
	if cfg.BattleDurationSec <= 0 {
		return Config{}, fmt.Errorf("BATTLE_DURATION_SEC must be positive, got %d", cfg.BattleDurationSec)
	}
	return cfg, nil
}

// parser keeps the first error so FromEnv reads like a flat list of settings.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
