// Package resolver implements the Target Resolver (C4): scoring UI
// elements against a natural-language fragment with multilingual,
// spatial, and confidence-aware rules. Grounded on
// llm_control/command_processing/finder.py.
package resolver

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/spatial"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/textutil"
)

// MinThreshold and RunnerUpMargin are the selection-rule constants from
// §6's Configuration block (Resolver.min_threshold, .runner_up_margin).
const (
	MinThreshold   = 25.0
	RunnerUpMargin = 10.0
)

// elementTypeKeywords is the small fixed synonym table used for the
// kind-match bonus.
var elementTypeKeywords = map[model.ElementKind][]string{
	model.KindButton:     {"button", "boton", "botón"},
	model.KindInputField: {"input", "field", "box", "campo", "casilla"},
	model.KindMenuItem:   {"menu", "dropdown", "menu"},
	model.KindCheckbox:   {"checkbox", "check"},
	model.KindLink:       {"link", "enlace"},
	model.KindIcon:       {"icon", "icono"},
	model.KindTab:        {"tab", "pestana", "pestaña"},
}

// Match is the outcome of a successful resolution.
type Match struct {
	Element model.UIElement
	X, Y    float64
	Score   float64
	Reasons []string
}

type scored struct {
	index   int
	elem    model.UIElement
	score   float64
	reasons []string
}

// Resolve chooses one UIElement matching fragment within desc, honoring
// an optional spatial qualifier and the words the step mentions (used
// for the kind-match bonus). fromLLM records whether fragment came from
// the LLM extraction path, which earns the higher match-tier weights.
// It never panics or returns an error: on any internal problem it logs
// ui_element_search_error itself and returns (nil, false) as "no match".
func Resolve(logger zerolog.Logger, stepText, fragment string, desc model.UIDescription, qualifier string, fromLLM bool) (*Match, bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("ui_element_search_error")
		}
	}()

	logger.Info().
		Str("event", "ui_element_search_start").
		Bool("has_ui_description", !desc.Skipped).
		Int("elements_count", len(desc.Elements)).
		Msg("resolving target")

	if desc.Skipped {
		logger.Info().Str("event", "ui_element_search_no_match").Str("reason", "no_ui_description").Msg("no ui description")
		return nil, false
	}
	if len(desc.Elements) == 0 {
		logger.Info().Str("event", "ui_element_search_no_match").Str("reason", "empty_elements_list").Msg("no elements")
		return nil, false
	}

	normFragment := textutil.NormalizeForMatching(fragment)
	subFragments := subFragments(normFragment)

	candidates := desc.Elements
	width, height := desc.ScreenSize()
	var zones []spatial.Zone
	if qualifier != "" {
		zones = spatial.ZonesForSpec(qualifier, width, height)
		pruned := spatial.FilterElements(candidates, qualifier, width, height)
		if len(pruned) > 0 {
			candidates = pruned
		} else {
			zones = nil // pruning degraded to unfiltered: scoring must not penalize anyone either
		}
	}

	stepLower := strings.ToLower(stepText)

	var matches []scored
	for i, elem := range candidates {
		s, reasons := scoreElement(elem, subFragments, stepLower, qualifier, zones, fromLLM)
		if s > 0 {
			matches = append(matches, scored{index: i, elem: elem, score: s, reasons: reasons})
		}
	}

	if len(matches) == 0 {
		logger.Info().
			Str("event", "ui_element_search_no_match").
			Int("elements_analyzed", len(candidates)).
			Int("matches_found", 0).
			Float64("threshold", MinThreshold).
			Msg("no candidate scored")
		return nil, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	best := matches[0]
	if best.score <= MinThreshold {
		logger.Info().
			Str("event", "ui_element_search_no_match").
			Int("elements_analyzed", len(candidates)).
			Int("matches_found", len(matches)).
			Float64("top_match_score", best.score).
			Float64("threshold", MinThreshold).
			Msg("best score at or below threshold")
		return nil, false
	}

	chosen := best
	if len(matches) > 1 {
		second := matches[1]
		if best.score-second.score < RunnerUpMargin &&
			hasReason(best.reasons, "within_word") &&
			hasReason(second.reasons, "exact_word") {
			chosen = second
		} else if best.score-second.score < RunnerUpMargin {
			chosen = breakTie(best, second, candidates)
		}
	}

	cx, cy := centerOf(chosen.elem)
	logger.Info().
		Str("event", "ui_element_search_success").
		Str("query_original", stepText).
		Float64("x", cx).Float64("y", cy).
		Float64("score", chosen.score).
		Msg("resolved target")

	return &Match{Element: chosen.elem, X: cx, Y: cy, Score: chosen.score, Reasons: chosen.reasons}, true
}

// breakTie applies the confidence / bbox-area / reading-order tie
// breaker when neither candidate was already swapped by the
// within-word/exact-word rule.
func breakTie(best, second scored, _ []model.UIElement) scored {
	if second.elem.Confidence > best.elem.Confidence {
		return second
	}
	if second.elem.Confidence < best.elem.Confidence {
		return best
	}
	if best.elem.HasBBox && second.elem.HasBBox {
		if second.elem.BBox.Area() > best.elem.BBox.Area() {
			return second
		}
		if second.elem.BBox.Area() < best.elem.BBox.Area() {
			return best
		}
		by, bx := best.elem.BBox.Y1, best.elem.BBox.X1
		sy, sx := second.elem.BBox.Y1, second.elem.BBox.X1
		if sy < by || (sy == by && sx < bx) {
			return second
		}
	}
	return best
}

func hasReason(reasons []string, tag string) bool {
	for _, r := range reasons {
		if r == tag {
			return true
		}
	}
	return false
}

func centerOf(e model.UIElement) (float64, float64) {
	if e.HasBBox {
		return e.BBox.Center()
	}
	return 0, 0
}

// subFragments returns the whole normalized fragment plus each
// whitespace-separated word longer than 2 runes.
func subFragments(normFragment string) []string {
	if normFragment == "" {
		return nil
	}
	out := []string{normFragment}
	for _, w := range textutil.Words(normFragment) {
		if len([]rune(w)) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// scoreElement computes one candidate's score and the tags that
// contributed to it, following §4.4 steps 1-6 in order.
func scoreElement(elem model.UIElement, subFragments []string, stepLower, qualifier string, zones []spatial.Zone, isLLMExtraction bool) (float64, []string) {
	var score float64
	var reasons []string

	elemText := textutil.NormalizeForMatching(elem.Text)
	elemDesc := textutil.NormalizeForMatching(elem.Description)

	// 1. Text match tier.
	if elemText != "" {
		if len(subFragments) > 0 && elemText == subFragments[0] {
			score += 100
			reasons = append(reasons, "exact_text_match")
		} else {
			s, tag := matchAgainst(elemText, subFragments, isLLMExtraction, 1.0)
			score += s
			if tag != "" {
				reasons = append(reasons, tag)
			}
		}
	} else if elemDesc != "" {
		// 2. Description match tier (only when text is empty), scaled by 2/3.
		s, tag := matchAgainst(elemDesc, subFragments, isLLMExtraction, 2.0/3.0)
		score += s
		if tag != "" {
			reasons = append(reasons, tag)
		}
	}

	// 3. Kind match.
	if synonyms, ok := elementTypeKeywords[elem.Kind]; ok {
		for _, syn := range synonyms {
			if strings.Contains(stepLower, syn) {
				score += 30
				reasons = append(reasons, "kind_match")
				break
			}
		}
	}

	// 4. Spatial score.
	if qualifier != "" && len(zones) > 0 {
		inZone := true
		if elem.HasBBox && elem.BBox.Valid() {
			cx, cy := elem.BBox.Center()
			inZone = spatial.PointInZones(cx, cy, zones)
		}
		if inZone {
			score += 30
			reasons = append(reasons, "spatial_match")
		} else {
			score *= 0.3
		}
	}

	// 5. Button bonus.
	if elem.Kind == model.KindButton {
		score += 5
		reasons = append(reasons, "button_bonus")
	}

	// 6. Confidence scaling - applied last, to the whole accumulated score.
	score *= 0.7 + 0.3*elem.Confidence

	return score, reasons
}

// matchAgainst runs the tiered sub-fragment match against target,
// returning the contributed score and the tag of the tier that fired.
// scale is 1.0 for the text tier, 2/3 for the description tier.
func matchAgainst(target string, subFragments []string, isLLMExtraction bool, scale float64) (float64, string) {
	llmBase := map[string]float64{"exact_word": 90, "starts_with": 75, "ends_with": 65}
	fallbackBase := map[string]float64{"exact_word": 70, "starts_with": 60, "ends_with": 50}

	fragmentsToTry := make([]string, 0, len(subFragments)*2)
	for _, f := range subFragments {
		fragmentsToTry = append(fragmentsToTry, f)
		if strings.Contains(f, " ") {
			for _, w := range textutil.Words(f) {
				if len([]rune(w)) > 2 {
					fragmentsToTry = append(fragmentsToTry, w)
				}
			}
		}
	}

	for _, frag := range fragmentsToTry {
		tier := textutil.WordBoundaryMatch(target, frag)
		if tier == "" {
			continue
		}

		var base float64
		tag := tier
		switch tier {
		case "within_word":
			// WordBoundaryMatch only ever returns "within_word" for frag
			// >= 5 runes, so relLen < 0.4 is the sole gate here; a
			// separate "frag < 5" check would never fire.
			relLen := float64(len([]rune(frag))) / float64(maxInt(1, len([]rune(target))))
			if relLen < 0.4 {
				base = pick(isLLMExtraction, 20, 15)
			} else {
				base = pick(isLLMExtraction, 40, 30)
			}
		default:
			m := llmBase
			if !isLLMExtraction {
				m = fallbackBase
			}
			base = m[tier]
		}

		bonus := 0.0
		for _, w := range textutil.Words(target) {
			if textutil.IsPluralVariant(frag, w) {
				bonus = 5
				break
			}
		}

		return (base + bonus) * scale, tag
	}
	return 0, ""
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
