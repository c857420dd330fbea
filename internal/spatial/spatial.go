// Package spatial implements the 3x3 grid spatial qualifier extraction
// and filtering used by the target resolver (C5), grounded on
// llm_control/command_processing/spatial_filter.py.
package spatial

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/textutil"
)

// keywords maps Spanish and English spatial words to their canonical
// Spanish form, matching the source's SPATIAL_KEYWORDS table.
var keywords = map[string]string{
	"arriba":    "arriba",
	"abajo":     "abajo",
	"izquierda": "izquierda",
	"derecha":   "derecha",
	"centro":    "centro",
	"superior":  "arriba",
	"inferior":  "abajo",
	"top":       "arriba",
	"bottom":    "abajo",
	"left":      "izquierda",
	"right":     "derecha",
	"center":    "centro",
	"middle":    "centro",
}

// orderedKeywords is keywords' keys in a stable order, so extraction is
// deterministic regardless of map iteration order.
var orderedKeywords = func() []string {
	ks := make([]string, 0, len(keywords))
	for k := range keywords {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}()

// gridZones maps a combined "row-col" canonical spec to its (row, col)
// cell, matching GRID_ZONES.
var gridZones = map[string][2]int{
	"arriba-izquierda": {0, 0},
	"arriba-centro":    {0, 1},
	"arriba-derecha":   {0, 2},
	"centro-izquierda": {1, 0},
	"centro-centro":    {1, 1},
	"centro-derecha":   {1, 2},
	"abajo-izquierda":  {2, 0},
	"abajo-centro":     {2, 1},
	"abajo-derecha":    {2, 2},
}

func keywordPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
}

// ExtractSpecs returns the canonical spatial keywords found in command,
// ordered by the sorted keyword table (not by position in command), with
// duplicates collapsed.
func ExtractSpecs(command string) []string {
	if command == "" {
		return nil
	}
	lower := strings.ToLower(command)
	var found []string
	seen := map[string]bool{}
	for _, kw := range orderedKeywords {
		if keywordPattern(kw).MatchString(lower) {
			canonical := keywords[kw]
			if !seen[canonical] {
				seen[canonical] = true
				found = append(found, canonical)
			}
		}
	}
	return found
}

// rowSpecs and colSpecs classify a canonical spec along whichever grid
// axis it belongs to.
var rowSpecs = map[string]bool{"arriba": true, "centro": true, "abajo": true}
var colSpecs = map[string]bool{"izquierda": true, "centro": true, "derecha": true}

// Normalize combines a list of canonical specs into a single qualifier
// string ("arriba", "derecha", "arriba-izquierda", ...), or "" if specs
// is empty or names three or more mutually exclusive axes.
func Normalize(specs []string) string {
	if len(specs) == 0 {
		return ""
	}
	unique := make([]string, 0, len(specs))
	seen := map[string]bool{}
	for _, s := range specs {
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	if len(unique) == 1 {
		return unique[0]
	}

	if len(unique) == 2 {
		var rowSpec, colSpec string
		hasCentro := seen["centro"]
		for _, s := range unique {
			if s == "centro" {
				continue
			}
			if rowSpecs[s] {
				rowSpec = s
			} else if colSpecs[s] {
				colSpec = s
			}
		}
		if hasCentro {
			switch {
			case rowSpec == "" && colSpec != "":
				rowSpec = "centro"
			case colSpec == "" && rowSpec != "":
				colSpec = "centro"
			case rowSpec == "" && colSpec == "":
				rowSpec = "centro"
			}
		}
		switch {
		case rowSpec != "" && colSpec != "":
			return rowSpec + "-" + colSpec
		case rowSpec != "":
			return rowSpec
		case colSpec != "":
			return colSpec
		}
	}

	return ""
}

// Zone is a pixel-space bounding box (left, top, right, bottom).
type Zone struct {
	Left, Top, Right, Bottom int
}

// ZonesForSpec returns the pixel-space grid cells implied by spec for a
// screen of the given size.
func ZonesForSpec(spec string, width, height int) []Zone {
	if spec == "" || width <= 0 || height <= 0 {
		return nil
	}
	thirdW := float64(width) / 3
	thirdH := float64(height) / 3

	cellBounds := func(row, col int) Zone {
		left := int(float64(col) * thirdW)
		top := int(float64(row) * thirdH)
		right := width
		if col < 2 {
			right = int(float64(col+1) * thirdW)
		}
		bottom := height
		if row < 2 {
			bottom = int(float64(row+1) * thirdH)
		}
		return Zone{Left: left, Top: top, Right: right, Bottom: bottom}
	}

	if strings.Contains(spec, "-") {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) == 2 {
			if rc, ok := gridZones[parts[0]+"-"+parts[1]]; ok {
				return []Zone{cellBounds(rc[0], rc[1])}
			}
		}
		return nil
	}

	switch spec {
	case "arriba":
		return []Zone{cellBounds(0, 0), cellBounds(0, 1), cellBounds(0, 2)}
	case "abajo":
		return []Zone{cellBounds(2, 0), cellBounds(2, 1), cellBounds(2, 2)}
	case "izquierda":
		return []Zone{cellBounds(0, 0), cellBounds(1, 0), cellBounds(2, 0)}
	case "derecha":
		return []Zone{cellBounds(0, 2), cellBounds(1, 2), cellBounds(2, 2)}
	case "centro":
		return []Zone{cellBounds(1, 1)}
	}
	return nil
}

// PointInZones reports whether (x, y) falls inside any zone. Zones use
// half-open intervals: [left,right) x [top,bottom).
func PointInZones(x, y float64, zones []Zone) bool {
	for _, z := range zones {
		if x >= float64(z.Left) && x < float64(z.Right) && y >= float64(z.Top) && y < float64(z.Bottom) {
			return true
		}
	}
	return false
}

// FilterElements restricts elements to those whose bbox center lies in
// one of spec's implied zones. It degrades gracefully: missing spec,
// empty elements, missing screen size, no matching zones, or an
// element without a valid bbox all fall through unfiltered.
func FilterElements(elements []model.UIElement, spec string, width, height int) []model.UIElement {
	if spec == "" || len(elements) == 0 || width <= 0 || height <= 0 {
		return elements
	}
	zones := ZonesForSpec(spec, width, height)
	if len(zones) == 0 {
		return elements
	}
	filtered := make([]model.UIElement, 0, len(elements))
	for _, e := range elements {
		if !e.HasBBox || !e.BBox.Valid() {
			filtered = append(filtered, e)
			continue
		}
		cx, cy := e.BBox.Center()
		if PointInZones(cx, cy, zones) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

var quotePattern = regexp.MustCompile(`(["'])([^"']*)["']`)
var enOnPattern = regexp.MustCompile(`\b(en|on)(\s+|$)`)

// RemoveSpecsFromCommand strips spatial keywords from command so they
// do not leak into target-fragment extraction, except when a keyword
// follows "en"/"on" with no other spatial spec before it — in that
// case the keyword is itself the target name and is preserved. Quoted
// spans are always preserved verbatim. Implemented exactly as the
// reference command strips it, including the en/on preservation branch
// flagged as an open question in the design notes.
func RemoveSpecsFromCommand(command string) string {
	if command == "" {
		return command
	}

	type placeholder struct {
		tag      string
		original string
	}
	var protected []placeholder
	result := quotePattern.ReplaceAllStringFunc(command, func(m string) string {
		tag := "__QUOTED_" + strconv.Itoa(len(protected)) + "__"
		protected = append(protected, placeholder{tag: tag, original: m})
		return tag
	})

	lower := strings.ToLower(result)

	type occurrence struct {
		start, end int
		keyword    string
	}
	var occurrences []occurrence
	for _, kw := range orderedKeywords {
		for _, loc := range keywordPattern(kw).FindAllStringIndex(lower, -1) {
			occurrences = append(occurrences, occurrence{start: loc[0], end: loc[1], keyword: kw})
		}
	}
	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].start < occurrences[j].start })

	preserved := make(map[[2]int]bool)
	for _, occ := range occurrences {
		before := lower[:occ.start]
		enOnMatches := enOnPattern.FindAllStringIndex(before, -1)
		if len(enOnMatches) == 0 {
			continue
		}
		lastEnOn := enOnMatches[len(enOnMatches)-1]
		textBeforeEnOn := strings.TrimSpace(before[:lastEnOn[0]])
		textAfterEnOn := strings.TrimSpace(lower[lastEnOn[1]:occ.start])

		hasSpatialBefore := false
		for _, kw := range orderedKeywords {
			if keywordPattern(kw).MatchString(textBeforeEnOn) {
				hasSpatialBefore = true
				break
			}
		}

		if !hasSpatialBefore && textAfterEnOn == "" {
			preserved[[2]int{occ.start, occ.end}] = true
		}
	}

	keep := make([]bool, len(result))
	for i := range keep {
		keep[i] = true
	}
	for _, occ := range occurrences {
		if !preserved[[2]int{occ.start, occ.end}] {
			for i := occ.start; i < occ.end; i++ {
				keep[i] = false
			}
		}
	}

	var b strings.Builder
	for i, r := range result {
		if keep[i] {
			b.WriteRune(r)
		}
	}
	result = b.String()

	for _, p := range protected {
		result = strings.Replace(result, p.tag, p.original, 1)
	}

	return textutil.CollapseWhitespace(result)
}
