// Package classify holds the step-classification recognizers shared by
// the Target Annotator (C2) and the Step Planner/Executor (C6), so both
// components agree on what counts as a reference, keyboard, typing, or
// UI-action step. Grounded on llm_control/command_processing/executor.py's
// is_reference_command / is_keyboard_command / is_typing_command.
package classify

import "regexp"

// Class is the priority-ordered step classification.
type Class int

const (
	ClassUIAction Class = iota
	ClassReference
	ClassKeyboard
	ClassTyping
)

var referenceWords = []string{"it", "that", "this", "lo", "eso", "esto"}
var clickVerbRe = regexp.MustCompile(`(?i)\bclick\b`)
var bareReferenceRe = regexp.MustCompile(`(?i)^(click|click on)\s*$`)

var keyVerbRe = regexp.MustCompile(`(?i)\b(press|hit|pulsa|presiona)\b`)
var typingVerbRe = regexp.MustCompile(`(?i)\b(type|typing|write|escribe|teclea)\b`)
var typingEnterRe = regexp.MustCompile(`(?i)^enter\s+\S`)

// IsReference reports whether step is a bare "click"/"click on", or
// contains a reference word alongside a click verb.
func IsReference(step string) bool {
	if bareReferenceRe.MatchString(step) {
		return true
	}
	if !clickVerbRe.MatchString(step) {
		return false
	}
	for _, w := range referenceWords {
		if containsWord(step, w) {
			return true
		}
	}
	return false
}

// IsKeyboard reports whether step is an explicit key-press command. A
// press verb that comes after a typing verb ("type hello then press
// enter") is that typing step's trailing key, not a keyboard step.
func IsKeyboard(step string) bool {
	loc := keyVerbRe.FindStringIndex(step)
	if loc == nil {
		return false
	}
	if t := typingVerbRe.FindStringIndex(step); t != nil && t[0] < loc[0] {
		return false
	}
	return true
}

// IsTyping reports whether step is a typing command: an explicit typing
// verb, or the English word "enter" followed by content (to
// distinguish "enter" the key name from "enter" the verb).
func IsTyping(step string) bool {
	return typingVerbRe.MatchString(step) || typingEnterRe.MatchString(step)
}

// Classify runs the full priority cascade: reference > keyboard >
// typing > UI-action (default).
func Classify(step string) Class {
	switch {
	case IsReference(step):
		return ClassReference
	case IsKeyboard(step):
		return ClassKeyboard
	case IsTyping(step):
		return ClassTyping
	default:
		return ClassUIAction
	}
}

func containsWord(text, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(text)
}
