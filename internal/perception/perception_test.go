package perception

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
)

type fakeOCR struct {
	regions []OCRRegion
	err     error
}

func (f fakeOCR) Recognize(ctx context.Context, path string) ([]OCRRegion, error) {
	return f.regions, f.err
}

type fakeDetector struct {
	detections []Detection
	err        error
}

func (f fakeDetector) Detect(ctx context.Context, path string) ([]Detection, error) {
	return f.detections, f.err
}

type fakeCaptioner struct {
	caption string
	err     error
	calls   int
}

func (f *fakeCaptioner) Caption(ctx context.Context, path string, region model.BBox) (string, error) {
	f.calls++
	return f.caption, f.err
}

func TestNeedsPerceptionTrueWhenAnyStepGrounded(t *testing.T) {
	assert.True(t, NeedsPerception([]model.Step{{NeedsVisualGrounding: false}, {NeedsVisualGrounding: true}}))
	assert.False(t, NeedsPerception([]model.Step{{NeedsVisualGrounding: false}}))
	assert.False(t, NeedsPerception(nil))
}

func TestBuildMergesOCRAndDetector(t *testing.T) {
	gate := &Gate{
		OCR: fakeOCR{regions: []OCRRegion{
			{Text: "Compose", BBox: model.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.9},
		}},
		Detector: fakeDetector{detections: []Detection{
			{Kind: "button", BBox: model.BBox{X1: 20, Y1: 20, X2: 40, Y2: 40}, Confidence: 0.8},
		}},
		OCRMinConfidence: 0.4,
	}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, nil)
	require.Len(t, desc.Elements, 2)

	var sawOCR, sawDetector bool
	for _, e := range desc.Elements {
		switch e.Source {
		case model.SourceOCR:
			sawOCR = true
			assert.Equal(t, "Compose", e.Text)
		case model.SourceDetector:
			sawDetector = true
			assert.Equal(t, model.KindButton, e.Kind)
		}
	}
	assert.True(t, sawOCR)
	assert.True(t, sawDetector)
}

func TestBuildDropsLowConfidenceOCR(t *testing.T) {
	gate := &Gate{
		OCR: fakeOCR{regions: []OCRRegion{
			{Text: "faint text", Confidence: 0.1},
			{Text: "clear text", Confidence: 0.9},
		}},
		OCRMinConfidence: 0.4,
	}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, nil)
	require.Len(t, desc.Elements, 1)
	assert.Equal(t, "clear text", desc.Elements[0].Text)
}

func TestBuildTreatsOCRErrorAsEmpty(t *testing.T) {
	gate := &Gate{OCR: fakeOCR{err: errors.New("tesseract exploded")}, Logger: zerolog.Nop()}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, nil)
	assert.Empty(t, desc.Elements)
}

func TestBuildTreatsDetectorErrorAsEmpty(t *testing.T) {
	gate := &Gate{Detector: fakeDetector{err: errors.New("model unavailable")}, Logger: zerolog.Nop()}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, nil)
	assert.Empty(t, desc.Elements)
}

func TestBuildCaptionsOnlyWhenFragmentsUncovered(t *testing.T) {
	captioner := &fakeCaptioner{caption: "a gear icon"}
	gate := &Gate{
		Detector: fakeDetector{detections: []Detection{
			{Kind: "icon", BBox: model.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.8},
		}},
		Captioner:      captioner,
		CaptionEnabled: true,
	}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, []string{"settings"})
	require.Len(t, desc.Elements, 1)
	assert.Equal(t, "a gear icon", desc.Elements[0].Description)
	assert.Equal(t, model.SourceCaption, desc.Elements[0].Source)
	assert.Equal(t, 1, captioner.calls)
}

func TestBuildSkipsCaptioningWhenFragmentsAlreadyCovered(t *testing.T) {
	captioner := &fakeCaptioner{caption: "a gear icon"}
	gate := &Gate{
		OCR: fakeOCR{regions: []OCRRegion{
			{Text: "Settings", Confidence: 0.9},
		}},
		Detector: fakeDetector{detections: []Detection{
			{Kind: "icon", BBox: model.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.8},
		}},
		Captioner:        captioner,
		CaptionEnabled:   true,
		OCRMinConfidence: 0.4,
	}
	desc := gate.Build(context.Background(), "shot.png", 900, 900, []string{"settings"})
	require.Len(t, desc.Elements, 2)
	assert.Equal(t, 0, captioner.calls)
}

func TestEmptyReturnsSkippedDescription(t *testing.T) {
	desc := Empty()
	assert.True(t, desc.Skipped)
	assert.Empty(t, desc.Elements)
}
