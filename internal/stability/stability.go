// Package stability implements the Stability Waiter (C7): polling the
// screen after a step until it stops changing, or falling back to a
// fixed sleep table on repeated capture failure. Grounded on
// llm_control/utils/wait.py's wait_for_visual_stability.
package stability

import (
	"context"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// Config mirrors the StabilityWaiter.* options in §6.
type Config struct {
	Timeout           time.Duration
	Threshold         float64
	Interval          time.Duration
	ConsecutiveStable int
}

// DefaultConfig matches §6's defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		Threshold:         0.98,
		Interval:          300 * time.Millisecond,
		ConsecutiveStable: 3,
	}
}

// Capture grabs one frame to compare against the next. Errors are
// tolerated up to a point (see Wait).
type Capture func(ctx context.Context) (image.Image, error)

// ActionClass buckets the step that just ran, for the hard-failure
// fallback sleep table.
type ActionClass string

const (
	ActionAppOpen    ActionClass = "app_open"
	ActionMajorClick ActionClass = "major_click"
	ActionNavKey     ActionClass = "nav_key"
	ActionOther      ActionClass = "other"
)

// FallbackSleep is the fixed sleep table keyed by action class, used
// when repeated capture errors abort the similarity wait.
func FallbackSleep(class ActionClass) time.Duration {
	switch class {
	case ActionAppOpen:
		return 3 * time.Second
	case ActionMajorClick:
		return 1500 * time.Millisecond
	case ActionNavKey:
		return 1 * time.Second
	default:
		return 500 * time.Millisecond
	}
}

const maxCaptureErrors = 3

// Wait blocks until the screen is visually stable (consecutiveStable
// consecutive checks at or above threshold) or timeout elapses. On
// repeated capture failure it aborts early and sleeps the fallback
// duration for class instead.
func Wait(ctx context.Context, logger zerolog.Logger, capture Capture, cfg Config, class ActionClass) bool {
	prev, err := capture(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("stability: initial capture failed, falling back to fixed sleep")
		sleep(ctx, FallbackSleep(class))
		return false
	}

	deadline := time.Now().Add(cfg.Timeout)
	stableCount := 0
	errorCount := 0

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(cfg.Interval):
		}

		cur, err := capture(ctx)
		if err != nil {
			errorCount++
			logger.Warn().Err(err).Int("error_count", errorCount).Msg("stability: capture failed")
			if errorCount >= maxCaptureErrors {
				sleep(ctx, FallbackSleep(class))
				return false
			}
			continue
		}

		score := similarity(prev, cur)
		prev = cur
		if score >= cfg.Threshold {
			stableCount++
			if stableCount >= cfg.ConsecutiveStable {
				return true
			}
		} else {
			stableCount = 0
		}
	}

	return false
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// similarity computes a structural-similarity-style score in [0,1]
// between two images, converting to grayscale and resizing the second
// frame to match the first if dimensions differ, as the original
// source does before calling skimage's structural_similarity. This is
// a lightweight normalized mean-squared-error metric in the same
// [0,1] "1.0 is identical" direction as the source's SSIM score; no
// dedicated Go SSIM implementation was found anywhere in the example
// pack (see DESIGN.md).
func similarity(a, b image.Image) float64 {
	ga := toGray(a)
	gb := toGray(b)
	boundsA := ga.Bounds()
	if gb.Bounds() != boundsA {
		gb = resizeGray(gb, boundsA.Dx(), boundsA.Dy())
	}

	w, h := boundsA.Dx(), boundsA.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			va := float64(ga.GrayAt(boundsA.Min.X+x, boundsA.Min.Y+y).Y)
			vb := float64(gb.GrayAt(x, y).Y)
			d := va - vb
			sumSq += d * d
		}
	}
	mse := sumSq / float64(w*h)
	// Normalize by the maximum possible squared error (255^2) and
	// invert, so identical frames score 1.0 and maximally different
	// frames score 0.0.
	return math.Max(0, 1-mse/(255*255))
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// resizeGray scales src to w x h using golang.org/x/image/draw's
// bilinear interpolation, matching the source's "resize the later
// frame if screen resolution changed" step.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}
