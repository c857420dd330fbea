// Package ocr provides the concrete OCR(image) backing behind
// perception.OCR, wrapping otiai10/gosseract (a Tesseract binding).
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/perception"
)

// Tesseract is the default OCR backing.
type Tesseract struct {
	Languages []string
}

// NewTesseract constructs an OCR backing for the given Tesseract
// language codes (e.g. "eng", "spa"); defaults to both when empty.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng", "spa"}
	}
	return &Tesseract{Languages: languages}
}

// Recognize runs Tesseract over the bounding boxes it reports for
// screenshotPath and converts each into an OCRRegion.
func (t *Tesseract) Recognize(ctx context.Context, screenshotPath string) ([]perception.OCRRegion, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return nil, fmt.Errorf("ocr: set language: %w", err)
	}
	if err := client.SetImage(screenshotPath); err != nil {
		return nil, fmt.Errorf("ocr: set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("ocr: bounding boxes: %w", err)
	}

	regions := make([]perception.OCRRegion, 0, len(boxes))
	for _, b := range boxes {
		text := b.Word
		if text == "" {
			continue
		}
		regions = append(regions, perception.OCRRegion{
			Text: text,
			BBox: model.BBox{
				X1: float64(b.Box.Min.X),
				Y1: float64(b.Box.Min.Y),
				X2: float64(b.Box.Max.X),
				Y2: float64(b.Box.Max.Y),
			},
			Confidence: b.Confidence / 100.0,
		})
	}
	return regions, nil
}
