// Package perception implements the Perception Gate (C3): deciding
// whether to capture a screenshot and invoke OCR / detector / captioner
// for a run, and aggregating their output into a UIDescription.
package perception

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/textutil"
)

// OCRRegion is one region the OCR contract yields.
type OCRRegion struct {
	Text       string
	BBox       model.BBox
	Confidence float64
}

// Detection is one region the visual detector contract yields.
type Detection struct {
	Kind       string
	BBox       model.BBox
	Confidence float64
}

// OCR is the narrow contract for the external OCR engine. Any error is
// treated as an empty result.
type OCR interface {
	Recognize(ctx context.Context, screenshotPath string) ([]OCRRegion, error)
}

// Detector is the narrow contract for the external vision detector.
type Detector interface {
	Detect(ctx context.Context, screenshotPath string) ([]Detection, error)
}

// Captioner is the narrow contract for the external image-captioning
// model. It returns "" when it has nothing to say; this is always
// best-effort and never fails the run.
type Captioner interface {
	Caption(ctx context.Context, screenshotPath string, region model.BBox) (string, error)
}

// detectorKindTable maps detector class labels to the closed ElementKind
// enum, per §4.3 step 2.
var detectorKindTable = map[string]model.ElementKind{
	"button":     model.KindButton,
	"btn":        model.KindButton,
	"input":      model.KindInputField,
	"textbox":    model.KindInputField,
	"text_field": model.KindInputField,
	"menu":       model.KindMenuItem,
	"dropdown":   model.KindMenuItem,
	"checkbox":   model.KindCheckbox,
	"icon":       model.KindIcon,
}

func mapDetectorKind(label string) model.ElementKind {
	if k, ok := detectorKindTable[label]; ok {
		return k
	}
	if label == "" {
		return model.KindUnknown
	}
	return model.ElementKind(label)
}

// Gate decides, per run, whether perception runs at all, and builds the
// shared UIDescription when it does.
type Gate struct {
	OCR              OCR
	Detector         Detector
	Captioner        Captioner
	CaptionEnabled   bool
	OCRMinConfidence float64
	Logger           zerolog.Logger
}

// NeedsPerception reports whether any step in steps needs visual
// grounding (the set V of §4.3's decision rule).
func NeedsPerception(steps []model.Step) bool {
	for _, s := range steps {
		if s.NeedsVisualGrounding {
			return true
		}
	}
	return false
}

// Build runs OCR and the detector (conceptually in parallel; both are
// pure w.r.t. the screenshot) and merges their output into one
// UIDescription, per §4.3. screenshotPath is the single screenshot
// captured for this run.
func (g *Gate) Build(ctx context.Context, screenshotPath string, width, height int, targetFragments []string) model.UIDescription {
	desc := model.UIDescription{
		ScreenWidth:  width,
		ScreenHeight: height,
		CapturedAt:   time.Now(),
	}

	var ocrRegions []OCRRegion
	if g.OCR != nil {
		regions, err := g.OCR.Recognize(ctx, screenshotPath)
		if err != nil {
			g.Logger.Warn().Err(err).Msg("ocr failed, treating as empty")
		} else {
			ocrRegions = regions
		}
	}

	var detections []Detection
	if g.Detector != nil {
		dets, err := g.Detector.Detect(ctx, screenshotPath)
		if err != nil {
			g.Logger.Warn().Err(err).Msg("detector failed, treating as empty")
		} else {
			detections = dets
		}
	}

	var elements []model.UIElement
	detectorTexts := map[string]bool{}

	for _, d := range detections {
		elem := model.UIElement{
			BBox:       d.BBox,
			HasBBox:    d.BBox.Valid(),
			Kind:       mapDetectorKind(d.Kind),
			Confidence: d.Confidence,
			Source:     model.SourceDetector,
		}
		elements = append(elements, elem)
	}

	// Step 3's merge rule ("add any OCR region whose normalized text is
	// not already the text of some detector element") needs detector
	// texts known before OCR regions are filtered, not after.
	for i := range elements {
		if elements[i].Source == model.SourceDetector && elements[i].Text != "" {
			detectorTexts[textutil.NormalizeForMatching(elements[i].Text)] = true
		}
	}

	for _, r := range ocrRegions {
		if r.Confidence < g.OCRMinConfidence {
			continue
		}
		norm := textutil.NormalizeForMatching(r.Text)
		if norm == "" {
			continue
		}
		if detectorTexts[norm] {
			continue
		}
		elements = append(elements, model.UIElement{
			BBox:       r.BBox,
			HasBBox:    r.BBox.Valid(),
			Text:       r.Text,
			Kind:       model.KindText,
			Confidence: r.Confidence,
			Source:     model.SourceOCR,
		})
	}

	if g.CaptionEnabled && g.Captioner != nil {
		allCovered := allFragmentsCovered(elements, targetFragments)
		if !allCovered {
			for i := range elements {
				if elements[i].Text == "" && elements[i].Description == "" && elements[i].HasBBox {
					caption, err := g.Captioner.Caption(ctx, screenshotPath, elements[i].BBox)
					if err == nil && caption != "" {
						elements[i].Description = caption
						elements[i].Source = model.SourceCaption
					}
				}
			}
		}
	}

	desc.Elements = elements
	return desc
}

// Empty returns the empty UIDescription recorded when perception is
// skipped for the run.
func Empty() model.UIDescription {
	return model.UIDescription{Skipped: true}
}

func allFragmentsCovered(elements []model.UIElement, fragments []string) bool {
	if len(fragments) == 0 {
		return true
	}
	texts := map[string]bool{}
	for _, e := range elements {
		if e.Text != "" {
			texts[textutil.NormalizeForMatching(e.Text)] = true
		}
	}
	for _, f := range fragments {
		if !texts[textutil.NormalizeForMatching(f)] {
			return false
		}
	}
	return true
}
