package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvUsesDefaultsWhenUnset(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, 25.0, cfg.ResolverMinThreshold)
	assert.Equal(t, 10.0, cfg.ResolverRunnerUpMargin)
	assert.Equal(t, 10*time.Second, cfg.StabilityTimeout)
	assert.Equal(t, 0.98, cfg.StabilityThreshold)
	assert.Equal(t, 300*time.Millisecond, cfg.StabilityInterval)
	assert.Equal(t, 3, cfg.StabilityConsecutiveStable)
	assert.Equal(t, 0.4, cfg.OCRMinConfidence)
	assert.False(t, cfg.CaptionEnabled)
	assert.Equal(t, "screenshots", cfg.ScreenshotDir)
	assert.Equal(t, 24*time.Hour, cfg.ScreenshotMaxAge)
	assert.Equal(t, 10, cfg.ScreenshotMaxCount)
	assert.Equal(t, "command_history.csv", cfg.HistoryPath)
	assert.Equal(t, 30*24*time.Hour, cfg.HistoryMaxAge)
	assert.Equal(t, 1000, cfg.HistoryMaxCount)
	assert.Equal(t, "stub", cfg.LLMProvider)
}

func TestFromEnvReadsOverrides(t *testing.T) {
	t.Setenv("RESOLVER_MIN_THRESHOLD", "40")
	t.Setenv("STABILITY_CONSECUTIVE_STABLE", "5")
	t.Setenv("CAPTION_ENABLED", "yes")
	t.Setenv("SCREENSHOT_DIR", "/tmp/shots")
	t.Setenv("LLM_PROVIDER", "openai")

	cfg := FromEnv()

	assert.Equal(t, 40.0, cfg.ResolverMinThreshold)
	assert.Equal(t, 5, cfg.StabilityConsecutiveStable)
	assert.True(t, cfg.CaptionEnabled)
	assert.Equal(t, "/tmp/shots", cfg.ScreenshotDir)
	assert.Equal(t, "openai", cfg.LLMProvider)
}

func TestFromEnvFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("RESOLVER_MIN_THRESHOLD", "not-a-number")
	t.Setenv("STABILITY_TIMEOUT", "not-a-duration")
	t.Setenv("STABILITY_CONSECUTIVE_STABLE", "not-an-int")
	t.Setenv("CAPTION_ENABLED", "maybe")

	cfg := FromEnv()

	assert.Equal(t, 25.0, cfg.ResolverMinThreshold)
	assert.Equal(t, 10*time.Second, cfg.StabilityTimeout)
	assert.Equal(t, 3, cfg.StabilityConsecutiveStable)
	assert.False(t, cfg.CaptionEnabled)
}

func TestFromEnvBoolAcceptsCommonSynonyms(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "NO": false, "off": false,
	}
	for raw, want := range cases {
		t.Setenv("CAPTION_ENABLED", raw)
		assert.Equal(t, want, FromEnv().CaptionEnabled, raw)
	}
}
