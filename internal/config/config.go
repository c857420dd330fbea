// Package config loads pipeline configuration from the environment,
// mirroring the teacher's parseBoolEnv helper pattern generalized to
// every scalar type the spec's Configuration block (§6) needs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the pipeline reads at startup.
type Config struct {
	ResolverMinThreshold   float64
	ResolverRunnerUpMargin float64

	StabilityTimeout           time.Duration
	StabilityThreshold         float64
	StabilityInterval          time.Duration
	StabilityConsecutiveStable int

	OCRMinConfidence float64
	CaptionEnabled   bool

	ScreenshotDir      string
	ScreenshotMaxAge   time.Duration
	ScreenshotMaxCount int

	HistoryPath     string
	HistoryMaxAge   time.Duration
	HistoryMaxCount int

	LLMProvider string
}

// FromEnv builds a Config from the process environment, falling back
// to the spec's defaults for anything unset or unparsable.
func FromEnv() Config {
	return Config{
		ResolverMinThreshold:   getEnvFloat("RESOLVER_MIN_THRESHOLD", 25.0),
		ResolverRunnerUpMargin: getEnvFloat("RESOLVER_RUNNER_UP_MARGIN", 10.0),

		StabilityTimeout:           getEnvDuration("STABILITY_TIMEOUT", 10*time.Second),
		StabilityThreshold:         getEnvFloat("STABILITY_THRESHOLD", 0.98),
		StabilityInterval:          getEnvDuration("STABILITY_INTERVAL", 300*time.Millisecond),
		StabilityConsecutiveStable: getEnvInt("STABILITY_CONSECUTIVE_STABLE", 3),

		OCRMinConfidence: getEnvFloat("OCR_MIN_CONFIDENCE", 0.4),
		CaptionEnabled:   getEnvBool("CAPTION_ENABLED", false),

		ScreenshotDir:      getEnvString("SCREENSHOT_DIR", "screenshots"),
		ScreenshotMaxAge:   getEnvDuration("SCREENSHOT_MAX_AGE", 24*time.Hour),
		ScreenshotMaxCount: getEnvInt("SCREENSHOT_MAX_COUNT", 10),

		HistoryPath:     getEnvString("HISTORY_PATH", "command_history.csv"),
		HistoryMaxAge:   getEnvDuration("HISTORY_MAX_AGE", 30*24*time.Hour),
		HistoryMaxCount: getEnvInt("HISTORY_MAX_COUNT", 1000),

		LLMProvider: getEnvString("LLM_PROVIDER", "stub"),
	}
}

func getEnvString(name, def string) string {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	return val
}

func getEnvBool(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getEnvFloat(name string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(name string, def int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return i
}

func getEnvDuration(name string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
