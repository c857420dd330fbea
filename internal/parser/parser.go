// Package parser implements the Step Parser (C1): segmenting a raw
// instruction into ordered atomic steps. Grounded on
// llm_control/command_processing/parser.py.
package parser

import (
	"regexp"
	"strings"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
)

// connectors are the leading words NormalizeStep strips, Spanish and
// English.
var connectors = []string{"then ", "and ", "luego ", "y "}

// NormalizeStep strips leading connector words. It is idempotent:
// calling it twice equals calling it once, since it keeps stripping
// until no connector is left.
func NormalizeStep(step string) string {
	trimmed := strings.TrimSpace(step)
	for {
		lower := strings.ToLower(trimmed)
		stripped := false
		for _, c := range connectors {
			if strings.HasPrefix(lower, c) {
				trimmed = strings.TrimSpace(trimmed[len(c):])
				stripped = true
				break
			}
		}
		if !stripped {
			return trimmed
		}
	}
}

// singleOperationPatterns recognizes instructions simple enough that
// they should never be split into multiple steps, mirroring the
// source's single_operation_patterns list.
var singleOperationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^click( on)? ["'][^"']*["']\s*$`),
	regexp.MustCompile(`(?i)^(move|mueve)( to| a| hacia)? .+$`),
	regexp.MustCompile(`(?i)^(press|pulsa|presiona) \w+\s*$`),
	regexp.MustCompile(`(?i)^(type|write|escribe|teclea) ["'][^"']*["']\s*$`),
}

// stepSeparators are explicit multi-word separators. segment tries them
// only after the comma split found nothing to split, so a step that
// followed ", then" keeps its connector until NormalizeStep strips it.
var stepSeparators = []string{", then ", "; then ", ", and ", "; and ", ", luego ", ", y "}

var thenAndWordRe = regexp.MustCompile(`(?i)\b(then|and|luego|y)\b`)

var actionVerbs = []string{"click", "move", "press", "type"}

var bareVerbSteps = map[string]bool{
	"click":    true,
	"click on": true,
	"move to":  true,
	"press":    true,
}

var typingVerbRe = regexp.MustCompile(`(?i)\b(type|write|escribe|teclea|enter)\b`)
var keyVerbRe = regexp.MustCompile(`(?i)\b(press|hit|pulsa|presiona)\b`)

var punctuationOnlyRe = regexp.MustCompile(`^[.,;]+$`)

// Parse segments a raw instruction into ordered Steps. It never fails:
// in the worst case it returns the instruction as a single step.
func Parse(instruction string) []model.Step {
	text := strings.TrimSpace(instruction)
	text = strings.TrimSuffix(text, ".")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil
	}

	var raw []string
	if matchesSingleOperation(text) {
		raw = []string{text}
	} else {
		raw = segment(text)
	}

	raw = postMergeBareVerbs(raw)
	raw = refineKeyboardVerbs(raw)

	steps := make([]model.Step, 0, len(raw))
	for _, s := range raw {
		body := strings.TrimSpace(s)
		if body == "" || punctuationOnlyRe.MatchString(body) {
			continue
		}
		steps = append(steps, model.Step{
			Original:   body,
			Normalized: NormalizeStep(body),
		})
	}
	if len(steps) == 0 {
		steps = append(steps, model.Step{Original: text, Normalized: NormalizeStep(text)})
	}
	return steps
}

func matchesSingleOperation(text string) bool {
	for _, p := range singleOperationPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// segment applies the priority-ordered splitting rules: commas outside
// quotes, then explicit multi-word separators, then bare then/and word
// boundaries.
func segment(text string) []string {
	parts := splitOutsideQuotes(text, ',')
	if len(parts) > 1 {
		return trimAll(parts)
	}

	for _, sep := range stepSeparators {
		if idx := findOutsideQuotes(text, sep); idx >= 0 {
			return trimAll(splitOnSeparators(text, stepSeparators))
		}
	}

	if parts := splitWordOutsideQuotes(text, thenAndWordRe); len(parts) > 1 {
		return trimAll(parts)
	}

	return []string{text}
}

// quoteMask reports, for each byte offset in text, whether that offset
// falls inside a matched quote span.
func quoteMask(text string) []bool {
	mask := make([]bool, len(text))
	var quote byte
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		mask[i] = inQuote
		switch {
		case inQuote:
			if c == quote {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quote = c
		}
	}
	return mask
}

// splitWordOutsideQuotes splits text at every match of re that falls
// outside a quoted span, dropping the matched word itself.
func splitWordOutsideQuotes(text string, re *regexp.Regexp) []string {
	mask := quoteMask(text)
	matches := re.FindAllStringIndex(text, -1)
	var parts []string
	last := 0
	for _, m := range matches {
		if mask[m[0]] {
			continue
		}
		parts = append(parts, text[last:m[0]])
		last = m[1]
	}
	if len(parts) == 0 {
		return []string{text}
	}
	parts = append(parts, text[last:])
	return parts
}

// splitOutsideQuotes splits text on sep, ignoring occurrences of sep
// that fall between matched quote characters.
func splitOutsideQuotes(text string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	var quote byte
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inQuote:
			cur.WriteByte(c)
			if c == quote {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quote = c
			cur.WriteByte(c)
		case c == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

// findOutsideQuotes finds the first occurrence of sep that isn't
// inside a quoted span, or -1.
func findOutsideQuotes(text, sep string) int {
	var quote byte
	inQuote := false
	for i := 0; i+len(sep) <= len(text); i++ {
		c := text[i]
		if inQuote {
			if c == quote {
				inQuote = false
			}
			continue
		}
		if c == '"' || c == '\'' {
			inQuote = true
			quote = c
			continue
		}
		if text[i:i+len(sep)] == sep {
			return i
		}
	}
	return -1
}

// splitOnSeparators splits text on whichever separators from seps
// appear, scanning left to right and respecting quotes.
func splitOnSeparators(text string, seps []string) []string {
	var parts []string
	var cur strings.Builder
	var quote byte
	inQuote := false
	i := 0
	for i < len(text) {
		c := text[i]
		if inQuote {
			cur.WriteByte(c)
			if c == quote {
				inQuote = false
			}
			i++
			continue
		}
		if c == '"' || c == '\'' {
			inQuote = true
			quote = c
			cur.WriteByte(c)
			i++
			continue
		}
		matched := false
		for _, sep := range seps {
			if i+len(sep) <= len(text) && text[i:i+len(sep)] == sep {
				parts = append(parts, cur.String())
				cur.Reset()
				i += len(sep)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		cur.WriteByte(c)
		i++
	}
	parts = append(parts, cur.String())
	return parts
}

func trimAll(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// postMergeBareVerbs merges a step that is only a bare action verb with
// the following step, when that step doesn't itself start with an
// action verb.
func postMergeBareVerbs(steps []string) []string {
	if len(steps) < 2 {
		return steps
	}
	var out []string
	i := 0
	for i < len(steps) {
		cur := strings.ToLower(strings.TrimSpace(steps[i]))
		if bareVerbSteps[cur] && i+1 < len(steps) && !startsWithActionVerb(steps[i+1]) {
			out = append(out, strings.TrimSpace(steps[i])+" "+strings.TrimSpace(steps[i+1]))
			i += 2
			continue
		}
		out = append(out, steps[i])
		i++
	}
	return out
}

func startsWithActionVerb(step string) bool {
	lower := strings.ToLower(strings.TrimSpace(step))
	for _, v := range actionVerbs {
		if strings.HasPrefix(lower, v) {
			return true
		}
	}
	return false
}

// refineKeyboardVerbs splits a step at an inline typing or key-press
// verb boundary when that verb begins after earlier content, so each
// resulting step starts with exactly one action verb.
func refineKeyboardVerbs(steps []string) []string {
	var out []string
	for _, s := range steps {
		out = append(out, splitAtVerbBoundary(s)...)
	}
	return out
}

func splitAtVerbBoundary(step string) []string {
	candidates := []*regexp.Regexp{typingVerbRe, keyVerbRe}
	for _, re := range candidates {
		loc := re.FindStringIndex(step)
		if loc == nil || loc[0] == 0 {
			continue
		}
		before := strings.TrimSpace(step[:loc[0]])
		after := step[loc[0]:]
		if before == "" || isBareVerbWord(before) {
			continue
		}
		before = stripLeadingConnectorSuffix(before)
		return []string{before, strings.TrimSpace(after)}
	}
	return []string{step}
}

// isBareVerbWord reports whether before is itself nothing but a single
// recognized verb word (e.g. "press", "type"). In that case the later
// match is the verb's own argument (a key name, a typed word), not a
// second action beginning after real earlier content, so no split
// should happen — this is what keeps "press enter" a single step even
// though "enter" also appears in the typing-verb table.
func isBareVerbWord(s string) bool {
	fields := strings.Fields(s)
	if len(fields) != 1 {
		return false
	}
	return typingVerbRe.MatchString(fields[0]) || keyVerbRe.MatchString(fields[0])
}

// stripLeadingConnectorSuffix removes a trailing Spanish/English
// connector word from before, since the split already put the verb at
// the start of after.
func stripLeadingConnectorSuffix(before string) string {
	lower := strings.ToLower(before)
	for _, suf := range []string{" y", " luego", " then", " and"} {
		if strings.HasSuffix(lower, suf) {
			return strings.TrimSpace(before[:len(before)-len(suf)])
		}
	}
	return before
}
