// config/config.go
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

type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins string
	Location       *time.Location

	LogFile  string
	LogLevel string

	RedisURL            string
	LeaderboardCacheTTL time.Duration

	// Profile service mirror; empty disables the sync worker.
	ProfileSyncURL   string
	ProfileSyncToken string

	// Auth service used by the SSE stream; empty disables the stream route.
	AuthServiceURL   string
	AuthServiceToken string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string

	ExpirySweepInterval time.Duration
	RateLimitPerMinute  int
	SeedDefaultPlans    bool
}

// ArchiveEnabled reports whether all R2 settings are present.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	envFileLoaded := godotenv.Load() == nil

	cfg := &Config{
		Port:              getenv("PORT", "5300"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ServiceToken:      os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins:    normalizeOrigins(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogFile:           os.Getenv("LOG_FILE"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ProfileSyncURL:    os.Getenv("PROFILE_SYNC_URL"),
		ProfileSyncToken:  os.Getenv("PROFILE_SYNC_TOKEN"),
		AuthServiceURL:    os.Getenv("AUTH_SERVICE_URL"),
		AuthServiceToken:  os.Getenv("AUTH_SERVICE_TOKEN"),
		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if cfg.ServiceToken == "" {
		errs = append(errs, errors.New("SERVICE_TOKEN environment variable not set"))
	}

	for _, origin := range strings.Split(cfg.AllowedOrigins, ",") {
		if origin == "*" {
			errs = append(errs, errors.New(`ALLOWED_ORIGINS must list origins explicitly, "*" is not allowed with credentialed CORS`))
			break
		}
	}

	loc, err := time.LoadLocation(getenv("APP_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
		loc = time.UTC
	}
	cfg.Location = loc

	if cfg.LeaderboardCacheTTL, err = durationEnv("LEADERBOARD_CACHE_TTL", time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.ExpirySweepInterval, err = durationEnv("EXPIRY_SWEEP_INTERVAL", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		errs = append(errs, err)
	}
	cfg.SeedDefaultPlans = strings.EqualFold(os.Getenv("SEED_DEFAULT_PLANS"), "true")

	if len(errs) > 0 {
		if !envFileLoaded {
			errs = append(errs, errors.New("no .env file found, only the process environment was read"))
		}
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// normalizeOrigins trims the comma-separated origin list for fiber's cors config.
func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
