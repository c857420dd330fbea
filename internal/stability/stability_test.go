package stability

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestFallbackSleepTable(t *testing.T) {
	assert.Equal(t, 3*time.Second, FallbackSleep(ActionAppOpen))
	assert.Equal(t, 1500*time.Millisecond, FallbackSleep(ActionMajorClick))
	assert.Equal(t, 1*time.Second, FallbackSleep(ActionNavKey))
	assert.Equal(t, 500*time.Millisecond, FallbackSleep(ActionOther))
	assert.Equal(t, 500*time.Millisecond, FallbackSleep("unknown"))
}

func TestSimilarityIdenticalImagesScoreOne(t *testing.T) {
	a := uniformGray(4, 4, 128)
	b := uniformGray(4, 4, 128)
	assert.InDelta(t, 1.0, similarity(a, b), 1e-9)
}

func TestSimilarityMaximallyDifferentImagesScoreZero(t *testing.T) {
	a := uniformGray(4, 4, 0)
	b := uniformGray(4, 4, 255)
	assert.InDelta(t, 0.0, similarity(a, b), 1e-9)
}

func TestSimilarityResizesMismatchedDimensions(t *testing.T) {
	a := uniformGray(4, 4, 200)
	b := uniformGray(8, 8, 200)
	assert.InDelta(t, 1.0, similarity(a, b), 1e-9)
}

func TestWaitReturnsTrueOnConsecutiveStableChecks(t *testing.T) {
	capture := func(ctx context.Context) (image.Image, error) {
		return uniformGray(2, 2, 100), nil
	}
	cfg := Config{Timeout: 200 * time.Millisecond, Threshold: 0.98, Interval: 2 * time.Millisecond, ConsecutiveStable: 2}
	ok := Wait(context.Background(), zerolog.Nop(), capture, cfg, ActionOther)
	assert.True(t, ok)
}

func TestWaitReturnsFalseWhenNeverStableBeforeTimeout(t *testing.T) {
	toggle := uint8(0)
	capture := func(ctx context.Context) (image.Image, error) {
		toggle ^= 255
		return uniformGray(2, 2, toggle), nil
	}
	cfg := Config{Timeout: 20 * time.Millisecond, Threshold: 0.98, Interval: 2 * time.Millisecond, ConsecutiveStable: 3}
	ok := Wait(context.Background(), zerolog.Nop(), capture, cfg, ActionOther)
	assert.False(t, ok)
}

func TestWaitFallsBackOnInitialCaptureError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	capture := func(ctx context.Context) (image.Image, error) {
		return nil, errors.New("capture failed")
	}
	cfg := DefaultConfig()
	ok := Wait(ctx, zerolog.Nop(), capture, cfg, ActionOther)
	assert.False(t, ok)
}

func TestWaitFallsBackAfterRepeatedCaptureErrorsInLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	calls := 0
	capture := func(ctx context.Context) (image.Image, error) {
		calls++
		if calls == 1 {
			return uniformGray(2, 2, 50), nil
		}
		return nil, errors.New("capture failed")
	}
	cfg := Config{Timeout: time.Second, Threshold: 0.98, Interval: time.Millisecond, ConsecutiveStable: 3}
	ok := Wait(ctx, zerolog.Nop(), capture, cfg, ActionOther)
	assert.False(t, ok)
	require.GreaterOrEqual(t, calls, 1+maxCaptureErrors)
}

func TestWaitReturnsFalseImmediatelyOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	capture := func(ctx context.Context) (image.Image, error) {
		return uniformGray(2, 2, 50), nil
	}
	cfg := Config{Timeout: time.Second, Threshold: 0.98, Interval: time.Millisecond, ConsecutiveStable: 2}
	ok := Wait(ctx, zerolog.Nop(), capture, cfg, ActionOther)
	assert.False(t, ok)
}
