// Package executor implements the Step Planner/Executor (C6): turning
// one classified step plus its resolved target (if any) into desktop
// primitives, and producing the parallel code/explanation lines that
// make up the action program. Grounded on
// llm_control/command_processing/executor.py.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/annotator"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/automation"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/classify"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/resolver"
)

// Program is the parallel code/explanation output for one run, built up
// one step at a time.
type Program struct {
	CodeLines        []string
	ExplanationLines []string
}

func (p *Program) add(code, explanation string) {
	p.CodeLines = append(p.CodeLines, code)
	p.ExplanationLines = append(p.ExplanationLines, explanation)
}

// Code joins CodeLines with newlines, the action-program's wire shape.
func (p *Program) Code() string {
	return strings.Join(p.CodeLines, "\n")
}

var doubleClickWords = []string{"double click", "double-click", "doble clic", "doble-clic"}
var rightClickWords = []string{"right click", "right-click", "clic derecho", "clic-derecho"}

// Plan executes one step against desc, mutating state and appending to
// program. It never panics: any internal failure is recorded as a
// StepResult with OutcomeFailed and the run continues (§4.6, §7 class
// 5's per-step isolation rule).
func Plan(ctx context.Context, logger zerolog.Logger, auto automation.Automator, desc model.UIDescription, state *model.RunState, program *Program, step model.Step) model.StepResult {
	class := classify.Classify(step.Normalized)

	switch class {
	case classify.ClassReference:
		return execReference(ctx, logger, auto, state, program, step)
	case classify.ClassKeyboard:
		return execKeyboard(ctx, logger, auto, state, program, step)
	case classify.ClassTyping:
		return execTyping(ctx, logger, auto, desc, state, program, step)
	default:
		return execUIAction(ctx, logger, auto, desc, state, program, step)
	}
}

func execReference(ctx context.Context, logger zerolog.Logger, auto automation.Automator, state *model.RunState, program *Program, step model.Step) model.StepResult {
	last := state.GetLastUIElement()
	coords := state.GetLastCoordinates()
	if last == nil || coords == nil {
		logger.Info().Str("event", "step_skipped").Str("reason", "no_prior_target").Msg("reference step has nothing to refer to")
		return model.StepResult{Step: step, Outcome: model.OutcomeSkipped, Reason: "no_prior_target"}
	}

	if err := moveAndClick(ctx, auto, coords.X, coords.Y); err != nil {
		return failure(step, err)
	}
	program.add(
		fmt.Sprintf("pyautogui.click(%d, %d)", int(coords.X), int(coords.Y)),
		fmt.Sprintf("Click the previously targeted element at (%d, %d)", int(coords.X), int(coords.Y)),
	)
	state.RecordUIElement(*last, *coords)
	state.LastActionKind = model.ActionReference
	return model.StepResult{Step: step, Outcome: model.OutcomeExecuted}
}

func execKeyboard(ctx context.Context, logger zerolog.Logger, auto automation.Automator, state *model.RunState, program *Program, step model.Step) model.StepResult {
	keys := extractKeyNames(step.Normalized)
	if len(keys) == 0 {
		logger.Warn().Str("step", step.Normalized).Msg("no recognized key name, dropping step")
		return model.StepResult{Step: step, Outcome: model.OutcomeSkipped, Reason: "unrecognized_key"}
	}
	for _, key := range keys {
		if err := auto.Press(ctx, key); err != nil {
			return failure(step, err)
		}
		program.add(fmt.Sprintf("pyautogui.press(%q)", key), fmt.Sprintf("Press the %s key", key))
	}
	state.LastActionKind = model.ActionKeyboard
	return model.StepResult{Step: step, Outcome: model.OutcomeExecuted}
}

// execTyping implements §4.6 row 3: optionally resolve and click a
// target first, then type the extracted text. The target is optional
// both in the sense that a typing step need not name one, and in the
// sense that when desc carries no elements (perception never ran for
// this run) the click is simply skipped and typing proceeds at the
// current focus. Grounded on extract_typing_target/handle_typing_command
// in executor.py.
func execTyping(ctx context.Context, logger zerolog.Logger, auto automation.Automator, desc model.UIDescription, state *model.RunState, program *Program, step model.Step) model.StepResult {
	if targetQuery := extractTypingTargetQuery(step.Normalized); targetQuery != "" && !desc.Skipped {
		qualifier := annotator.ToSpanishSpec(step.SpatialQualifier)
		if match, ok := resolver.Resolve(logger, step.Normalized, targetQuery, desc, qualifier, false); ok {
			if err := moveAndClick(ctx, auto, match.X, match.Y); err != nil {
				return failure(step, err)
			}
			program.add(
				clickCode(model.ActionClick, match.X, match.Y),
				fmt.Sprintf("Click on %q at (%d, %d) to focus it before typing", targetQuery, int(match.X), int(match.Y)),
			)
			state.RecordUIElement(match.Element, model.Point{X: match.X, Y: match.Y})
		}
	}

	text := extractTypedText(step.Normalized)
	if strings.TrimSpace(text) == "" {
		logger.Warn().Str("event", "step_skipped").Str("reason", "empty_typing_text").Msg("typing step had no text, no-op")
		return model.StepResult{Step: step, Outcome: model.OutcomeSkipped, Reason: "empty_typing_text"}
	}
	safe := automation.SafeText(text)
	if err := auto.Type(ctx, safe); err != nil {
		return failure(step, err)
	}
	program.add(fmt.Sprintf("pyautogui.write(%q)", safe), fmt.Sprintf("Type %q", text))

	for _, key := range extractTrailingKeys(step.Normalized) {
		if err := auto.Press(ctx, key); err != nil {
			return failure(step, err)
		}
		program.add(fmt.Sprintf("pyautogui.press(%q)", key), fmt.Sprintf("Press the %s key", key))
	}

	state.LastActionKind = model.ActionType
	return model.StepResult{Step: step, Outcome: model.OutcomeExecuted}
}

func execUIAction(ctx context.Context, logger zerolog.Logger, auto automation.Automator, desc model.UIDescription, state *model.RunState, program *Program, step model.Step) model.StepResult {
	qualifier := annotator.ToSpanishSpec(step.SpatialQualifier)
	match, ok := resolver.Resolve(logger, step.Normalized, step.TargetFragment, desc, qualifier, step.FragmentFromLLM)
	if !ok {
		reason := fmt.Sprintf("found %d elements, none matched", len(desc.Elements))
		logger.Info().Str("event", "step_skipped").Str("reason", reason).Msg("no match for ui action")
		program.add(
			fmt.Sprintf("# skipped: %s %q", reason, step.TargetFragment),
			fmt.Sprintf("Skipped: %s %q", reason, step.TargetFragment),
		)
		return model.StepResult{Step: step, Outcome: model.OutcomeSkipped, Reason: reason}
	}

	kind := classifyClickKind(step.Normalized)
	var err error
	switch kind {
	case model.ActionDoubleClick:
		err = moveAndDoubleClick(ctx, auto, match.X, match.Y)
	case model.ActionRightClick:
		err = moveAndRightClick(ctx, auto, match.X, match.Y)
	default:
		err = moveAndClick(ctx, auto, match.X, match.Y)
		kind = model.ActionClick
	}
	if err != nil {
		return failure(step, err)
	}

	program.add(
		clickCode(kind, match.X, match.Y),
		fmt.Sprintf("%s on %q at (%d, %d)", clickVerb(kind), step.TargetFragment, int(match.X), int(match.Y)),
	)
	state.RecordUIElement(match.Element, model.Point{X: match.X, Y: match.Y})
	state.LastActionKind = kind
	return model.StepResult{Step: step, Outcome: model.OutcomeExecuted}
}

func classifyClickKind(step string) model.ActionKind {
	lower := strings.ToLower(step)
	for _, w := range doubleClickWords {
		if strings.Contains(lower, w) {
			return model.ActionDoubleClick
		}
	}
	for _, w := range rightClickWords {
		if strings.Contains(lower, w) {
			return model.ActionRightClick
		}
	}
	return model.ActionClick
}

func clickVerb(kind model.ActionKind) string {
	switch kind {
	case model.ActionDoubleClick:
		return "Double-click"
	case model.ActionRightClick:
		return "Right-click"
	default:
		return "Click"
	}
}

func clickCode(kind model.ActionKind, x, y float64) string {
	switch kind {
	case model.ActionDoubleClick:
		return fmt.Sprintf("pyautogui.doubleClick(%d, %d)", int(x), int(y))
	case model.ActionRightClick:
		return fmt.Sprintf("pyautogui.rightClick(%d, %d)", int(x), int(y))
	default:
		return fmt.Sprintf("pyautogui.click(%d, %d)", int(x), int(y))
	}
}

func moveAndClick(ctx context.Context, auto automation.Automator, x, y float64) error {
	if err := auto.Move(ctx, x, y); err != nil {
		return err
	}
	return auto.Click(ctx)
}

func moveAndDoubleClick(ctx context.Context, auto automation.Automator, x, y float64) error {
	if err := auto.Move(ctx, x, y); err != nil {
		return err
	}
	return auto.DoubleClick(ctx)
}

func moveAndRightClick(ctx context.Context, auto automation.Automator, x, y float64) error {
	if err := auto.Move(ctx, x, y); err != nil {
		return err
	}
	return auto.RightClick(ctx)
}

func failure(step model.Step, err error) model.StepResult {
	return model.StepResult{Step: step, Outcome: model.OutcomeFailed, Error: err.Error()}
}

// typingVerbRe finds the verb that opens a typing step (§4.6 row 3).
var typingVerbRe = regexp.MustCompile(`(?i)\b(type|typing|write|escribe|teclea|enter)\b`)

// typingConnectorRe finds the in/on/en connector that introduces a
// click target named after the typed payload ("type hello in the
// search box").
var typingConnectorRe = regexp.MustCompile(`(?i)\b(in|on|en)\b`)

// trailingKeyPressRe finds a trailing "then press"/"y presiona" marker
// (§4.6 row 3's "then press any trailing key") plus its connector, and
// everything after it; the connector is folded into the match so the
// payload text before it doesn't keep a dangling "then"/"y".
var trailingKeyPressRe = regexp.MustCompile(`(?i)\b(?:(?:then|y|and|luego)\s+)?(?:press|hit|pulsa|presiona)\s+(.+)$`)

// extractKeyNames scans every word of step and returns the canonical
// key name for each one CanonicalKey recognizes, in the order they
// appear, deduplicated. Unrecognized words (including the verb itself)
// are dropped silently; the caller skips the whole step only when
// nothing at all was recognized.
func extractKeyNames(step string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, w := range strings.Fields(step) {
		key, ok := automation.CanonicalKey(w)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// extractTrailingKeys returns the keys named after a trailing
// press/hit/pulsa/presiona marker within a typing step, e.g. "type
// hello then press enter" -> ["enter"]. Returns nil when the step
// names no trailing key.
func extractTrailingKeys(step string) []string {
	m := trailingKeyPressRe.FindStringSubmatch(step)
	if m == nil {
		return nil
	}
	return extractKeyNames(m[1])
}

// extractTypingTargetQuery looks for a click target named either
// before the typing verb ("en el cuadro de busqueda escribe hola") or
// after it via an in/on/en connector ("type hello in the search box").
// Returns "" when the step names no target, in which case execTyping
// types at the current focus. Grounded on extract_typing_target in
// executor.py, generalized to look on both sides of the verb.
func extractTypingTargetQuery(step string) string {
	loc := typingVerbRe.FindStringIndex(step)
	if loc == nil {
		return ""
	}

	before := strings.TrimSpace(step[:loc[0]])
	if len([]rune(before)) > 5 {
		return before
	}

	tail := step[loc[1]:]
	if trail := trailingKeyPressRe.FindStringIndex(tail); trail != nil {
		tail = tail[:trail[0]]
	}
	if m := typingConnectorRe.FindStringIndex(tail); m != nil {
		candidate := strings.TrimSpace(tail[m[1]:])
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// extractTypedText pulls the quoted span out of a typing step if
// present, else the text between the typing verb and any trailing
// target connector or key-press marker (§4.6 row 3's extraction
// cascade).
func extractTypedText(step string) string {
	if start := strings.IndexAny(step, `"'`); start >= 0 {
		quote := step[start]
		if end := strings.IndexByte(step[start+1:], quote); end >= 0 {
			return step[start+1 : start+1+end]
		}
	}

	loc := typingVerbRe.FindStringIndex(step)
	if loc == nil {
		return step
	}
	tail := strings.TrimSpace(step[loc[1]:])

	if trail := trailingKeyPressRe.FindStringIndex(tail); trail != nil {
		tail = strings.TrimSpace(tail[:trail[0]])
	}
	if m := typingConnectorRe.FindStringIndex(tail); m != nil {
		if candidate := strings.TrimSpace(tail[:m[0]]); candidate != "" {
			return candidate
		}
	}
	return tail
}
