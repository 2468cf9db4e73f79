package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables and .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, reading from environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment alone.
func FromEnv() (Config, error) {
	var errs []string
	getEnv := func(key, fallback string) string {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
		return fallback
	}
	getBool := func(key string, fallback bool) bool {
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			return fallback
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return v
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			return fallback
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, raw))
		}
		return v
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "bracket.db?_journal_mode=WAL"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 30s"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
		BracketReset:  getBool("BRACKET_RESET", true),
		Match: MatchConfig{
			StrictScore:   getBool("STRICT_SCORE_AGREEMENT", true),
			CheckInOffset: getDuration("CHECK_IN_OFFSET", 15*time.Minute),
			CheckInWindow: getDuration("CHECK_IN_WINDOW", 10*time.Minute),
			ResultWindow:  getDuration("RESULT_WINDOW", time.Hour),
		},
		Evidence: EvidenceConfig{
			Endpoint:        getEnv("EVIDENCE_ENDPOINT", ""),
			Region:          getEnv("EVIDENCE_REGION", "auto"),
			AccessKeyID:     getEnv("EVIDENCE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("EVIDENCE_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("EVIDENCE_BUCKET", ""),
			Prefix:          getEnv("EVIDENCE_PREFIX", "evidence"),
		},
		PubSub: PubSubConfig{
			ProjectID: getEnv("PUBSUB_PROJECT", ""),
			Topic:     getEnv("PUBSUB_TOPIC", ""),
		},
	}

	win, loss, err := parseForfeitScore(getEnv("FORFEIT_SCORE", "1-0"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("FORFEIT_SCORE: %v", err))
	}
	cfg.Match.ForfeitWin, cfg.Match.ForfeitLoss = win, loss

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: %v", err))
	}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic == "" {
		errs = append(errs, "PUBSUB_TOPIC is required when PUBSUB_PROJECT is set")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseForfeitScore reads "W-L". A score that would not produce a winner
// falls back to 1-0.
func parseForfeitScore(raw string) (int, int, error) {
	w, l, ok := strings.Cut(raw, "-")
	if !ok {
		return 0, 0, fmt.Errorf("expected W-L, got %q", raw)
	}
	win, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, err
	}
	loss, err := strconv.Atoi(strings.TrimSpace(l))
	if err != nil {
		return 0, 0, err
	}
	if win < 0 || loss < 0 {
		return 0, 0, fmt.Errorf("negative forfeit score %q", raw)
	}
	if win <= loss {
		log.Warn("Forfeit score has no winner, using 1-0", "value", raw)
		return 1, 0, nil
	}
	return win, loss, nil
}

// SetupLogging applies the configured level and formatter to the global logger.
func SetupLogging(cfg Config) {
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(log.JSONFormatter)
	}
}
