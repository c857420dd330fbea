// Package annotator implements the Target Annotator (C2): deciding
// whether a step needs on-screen visual grounding and extracting its
// target fragment and spatial qualifier.
package annotator

import (
	"context"
	"regexp"
	"strings"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/classify"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/spatial"
)

// TargetExtractor is the narrow LLM contract C2's primary extraction
// path depends on: ExtractTarget(text). Any error is treated as an
// empty result.
type TargetExtractor interface {
	ExtractTarget(ctx context.Context, text string) (string, error)
}

var quotedRe = regexp.MustCompile(`["']([^"']*)["']`)

var leadingVerbAndConnectivesRe = regexp.MustCompile(`(?i)^(click( on)?|move( to)?|drag|select|haz clic( en)?|mueve( a)?|arrastra|selecciona|the|a|an|el|la|los|las|on|in|at|to|en)\s+`)

// Annotate fills in NeedsVisualGrounding, TargetFragment, and
// SpatialQualifier on step, given its normalized text.
func Annotate(ctx context.Context, extractor TargetExtractor, step model.Step) model.Step {
	text := step.Normalized

	step.NeedsVisualGrounding = needsVisualGrounding(text)

	specs := spatial.ExtractSpecs(text)
	qualifier := spatial.Normalize(specs)
	step.SpatialQualifier = toCanonicalTag(qualifier)

	if !step.NeedsVisualGrounding {
		return step
	}

	stripped := spatial.RemoveSpecsFromCommand(text)

	fragment := ""
	if extractor != nil {
		if result, err := extractor.ExtractTarget(ctx, stripped); err == nil {
			fragment = strings.TrimSpace(result)
		}
	}
	step.FragmentFromLLM = fragment != ""
	if fragment == "" {
		fragment = fallbackExtract(stripped)
	}
	step.TargetFragment = fragment

	return step
}

// needsVisualGrounding mirrors C6's classification: reference and
// UI-action steps need grounding (a reference step's target was
// already grounded by the step it refers back to, but it still drives
// the desktop off a prior resolution, so the run as a whole needed
// perception); pure keyboard and pure typing steps never do.
func needsVisualGrounding(text string) bool {
	switch classify.Classify(text) {
	case classify.ClassKeyboard, classify.ClassTyping:
		return false
	default:
		return true
	}
}

// fallbackExtract implements C2's fallback target-extraction rule:
// first a quoted span, else the leading verb/connectives stripped and
// the first remaining content word of length >= 2.
func fallbackExtract(text string) string {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	remainder := strings.TrimSpace(text)
	for {
		next := leadingVerbAndConnectivesRe.ReplaceAllString(remainder, "")
		if next == remainder {
			break
		}
		remainder = next
	}
	for _, w := range strings.Fields(remainder) {
		if len([]rune(w)) >= 2 {
			return w
		}
	}
	return ""
}

// canonicalTags maps the spatial package's Spanish canonical spec to
// the English zone tag the rest of the data model uses.
var canonicalTags = map[string]string{
	"arriba":           "top",
	"abajo":            "bottom",
	"izquierda":        "left",
	"derecha":          "right",
	"centro":           "center",
	"arriba-izquierda": "top-left",
	"arriba-centro":    "top-center",
	"arriba-derecha":   "top-right",
	"centro-izquierda": "center-left",
	"centro-centro":    "center",
	"centro-derecha":   "center-right",
	"abajo-izquierda":  "bottom-left",
	"abajo-centro":     "bottom-center",
	"abajo-derecha":    "bottom-right",
}

func toCanonicalTag(spec string) string {
	if spec == "" {
		return ""
	}
	if tag, ok := canonicalTags[spec]; ok {
		return tag
	}
	return spec
}

// ToSpanishSpec converts an English canonical zone tag back to the
// Spanish spec string the spatial package's grid functions expect.
func ToSpanishSpec(tag string) string {
	for es, en := range canonicalTags {
		if en == tag {
			return es
		}
	}
	return tag
}
