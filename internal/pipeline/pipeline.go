// Package pipeline implements the Pipeline Orchestrator (C8): the
// single entry point that drives Parse → Annotate → Gate → {Plan →
// Execute → Wait} per step → before/after summarization → history
// append, emitting every structured log event named in the external
// interface. Grounded on llm_control/command_processing/processor.py
// and the teacher's orchestrator.go run-loop shape.
package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/annotator"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/automation"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/config"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/executor"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/history"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/parser"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/perception"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/screenshot"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/stability"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/textutil"
)

// FallbackPlanner is the one-shot collaborator C8 falls back to when no
// step produced an executable action (§4.8's fallback path).
type FallbackPlanner interface {
	PlanOneShot(ctx context.Context, instruction string) (codeLine, explanation string, ok bool)
}

// Options controls one run, mirroring §6's run(instruction, opts).
type Options struct {
	CaptureScreenshots  bool
	EnableStabilityWait bool
}

// DefaultOptions matches §6's documented defaults.
func DefaultOptions() Options {
	return Options{CaptureScreenshots: true, EnableStabilityWait: true}
}

// Orchestrator owns the whole run lifecycle. Exactly one run may hold
// the desktop at a time (§5); concurrent calls to Run either wait or
// are rejected depending on Reject.
type Orchestrator struct {
	Logger        zerolog.Logger
	Automator     automation.Automator
	Screenshot    screenshot.Capturer
	Perception    *perception.Gate
	Extractor     annotator.TargetExtractor
	Fallback      FallbackPlanner
	History       *history.Store
	Config        config.Config
	ScreenshotDir string

	// Reject makes Run return ErrBusy immediately instead of queuing
	// when another run already holds mu. A transport that prefers a
	// mutex-guarded queue over a busy error should leave this false.
	Reject bool

	// AfterRun is an optional fire-and-forget hook invoked in its own
	// goroutine once a run's history entry has been appended (§9:
	// cleanup stays fire-and-forget, just moved behind an explicit
	// hook instead of being inlined in the command loop). Typically
	// wired to screenshot/history retention enforcement.
	AfterRun func()

	mu sync.Mutex
}

// Run executes one instruction end to end, per §4.8's eight steps.
func (o *Orchestrator) Run(ctx context.Context, instructionText string, opts Options) (model.RunOutcome, error) {
	text := strings.TrimSpace(instructionText)
	if text == "" {
		return model.RunOutcome{}, ErrEmptyInstruction
	}

	if o.Reject {
		if !o.mu.TryLock() {
			return model.RunOutcome{}, ErrBusy
		}
	} else {
		o.mu.Lock()
	}
	defer o.mu.Unlock()

	runID := uuid.NewString()
	logger := o.Logger.With().Str("run_id", runID).Logger()

	outcome, err := o.run(ctx, logger, runID, text, opts)
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, logger zerolog.Logger, runID, text string, opts Options) (outcome model.RunOutcome, runErr error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("internal invariant violation")
			outcome.Success = false
			runErr = &InvariantError{Detail: fmt.Sprintf("%v", r)}
		}
	}()

	state := model.NewRunState(runID)

	// Step 1.
	logger.Info().Str("event", "command.received").Str("instruction", text).Msg("command received")

	// Step 2.
	steps := parser.Parse(text)
	logger.Info().
		Str("event", "command.steps_split").
		Int("step_count", len(steps)).
		Msg("instruction segmented")

	// Step 3.
	for i, s := range steps {
		steps[i] = annotator.Annotate(ctx, o.Extractor, s)
		logger.Info().
			Str("event", "command.step.annotated").
			Int("index", i).
			Bool("needs_visual_grounding", steps[i].NeedsVisualGrounding).
			Str("target_fragment", steps[i].TargetFragment).
			Str("spatial_qualifier", steps[i].SpatialQualifier).
			Msg("step annotated")
		if err := ctx.Err(); err != nil {
			return o.cancelledOutcome(logger, text, steps, state), ErrCancelled
		}
	}

	// Step 4.
	needsPerception := perception.NeedsPerception(steps)
	var desc model.UIDescription
	if needsPerception && opts.CaptureScreenshots {
		info, buildErr := o.capture(ctx, "before")
		if buildErr == nil {
			desc = o.Perception.Build(ctx, info.Path, info.Width, info.Height, fragmentsOf(steps))
			state.BeforeScreenshot = info.Path
		} else {
			logger.Warn().Err(buildErr).Msg("before screenshot capture failed, treating perception as skipped")
			desc = perception.Empty()
		}
	} else if needsPerception {
		desc = o.Perception.Build(ctx, "", 0, 0, fragmentsOf(steps))
	} else {
		desc = perception.Empty()
	}
	logger.Info().
		Str("event", "command.perception").
		Bool("screenshot_skipped", desc.Skipped).
		Int("elements_count", len(desc.Elements)).
		Msg("perception complete")

	// Step 6.
	program := &executor.Program{}
	executedAny := false
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return o.cancelledOutcome(logger, text, steps, state), ErrCancelled
		}

		logger.Info().Str("event", "command.step.start").Int("index", i).Str("step", step.Normalized).Msg("step start")
		if i > 0 {
			program.CodeLines = append(program.CodeLines, "time.sleep(1)")
			program.ExplanationLines = append(program.ExplanationLines, "waiting between steps")
		}

		result := executor.Plan(ctx, logger, o.Automator, desc, state, program, step)
		state.StepsExecuted = append(state.StepsExecuted, result)

		switch result.Outcome {
		case model.OutcomeExecuted:
			executedAny = true
			logger.Info().Str("event", "command.step.result").Int("index", i).Str("outcome", string(result.Outcome)).Msg("step result")
			if opts.EnableStabilityWait && o.Screenshot != nil {
				class := stabilityClass(step)
				stability.Wait(ctx, logger, o.stabilityCapture, stability.Config{
					Timeout:           o.Config.StabilityTimeout,
					Threshold:         o.Config.StabilityThreshold,
					Interval:          o.Config.StabilityInterval,
					ConsecutiveStable: o.Config.StabilityConsecutiveStable,
				}, class)
			}
		case model.OutcomeSkipped:
			logger.Info().Str("event", "command.step.skipped").Int("index", i).Str("reason", result.Reason).Msg("step skipped")
		case model.OutcomeFailed:
			logger.Info().Str("event", "command.step.result").Int("index", i).Str("outcome", string(result.Outcome)).Str("error", result.Error).Msg("step result")
		}
	}

	// Fallback path.
	if !executedAny && o.Fallback != nil {
		logger.Info().Str("event", "command.fallback.triggered").Msg("no step produced an executable action")
		if code, explanation, ok := o.Fallback.PlanOneShot(ctx, text); ok {
			program.CodeLines = append(program.CodeLines, code)
			program.ExplanationLines = append(program.ExplanationLines, explanation)
			executedAny = true
		}
	}

	// Step 7.
	var screenSummary string
	if needsPerception && opts.CaptureScreenshots && !desc.Skipped {
		afterInfo, err := o.capture(ctx, "after")
		if err == nil {
			state.AfterScreenshot = afterInfo.Path
			afterDesc := o.Perception.Build(ctx, afterInfo.Path, afterInfo.Width, afterInfo.Height, nil)
			screenSummary = diffSummary(desc, afterDesc)
		}
	}

	success := allSucceeded(state.StepsExecuted)

	// Step 8.
	entry := model.CommandHistoryEntry{
		Timestamp:     runTimestamp(),
		Command:       text,
		Steps:         stepTexts(steps),
		Code:          program.Code(),
		Success:       success,
		ScreenSummary: screenSummary,
	}
	if o.History != nil {
		if err := o.History.Append(entry); err != nil {
			logger.Warn().Err(err).Msg("history append failed")
		}
	}

	logger.Info().Str("event", "command.completed").Bool("success", success).Msg("run complete")

	if o.AfterRun != nil {
		go o.AfterRun()
	}

	return model.RunOutcome{
		Success:       success,
		Steps:         state.StepsExecuted,
		ActionProgram: program.Code(),
		BeforePath:    state.BeforeScreenshot,
		AfterPath:     state.AfterScreenshot,
		ScreenSummary: screenSummary,
	}, nil
}

// stabilityCapture grabs one frame for the stability waiter's
// similarity comparison, decoding the saved PNG back into an
// image.Image.
func (o *Orchestrator) stabilityCapture(ctx context.Context) (image.Image, error) {
	info, err := o.capture(ctx, "stability")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func (o *Orchestrator) capture(ctx context.Context, kind string) (screenshot.Info, error) {
	if err := ctx.Err(); err != nil {
		return screenshot.Info{}, err
	}
	if o.Screenshot == nil {
		return screenshot.Info{}, fmt.Errorf("pipeline: no screenshot capturer configured")
	}
	return o.Screenshot.Capture(o.ScreenshotDir, kind)
}

func (o *Orchestrator) cancelledOutcome(logger zerolog.Logger, text string, steps []model.Step, state *model.RunState) model.RunOutcome {
	logger.Warn().Msg("run cancelled at suspension point")
	entry := model.CommandHistoryEntry{
		Timestamp: runTimestamp(),
		Command:   text,
		Steps:     stepTexts(steps),
		Success:   false,
	}
	if o.History != nil {
		_ = o.History.Append(entry)
	}
	return model.RunOutcome{Success: false, Steps: state.StepsExecuted}
}

func fragmentsOf(steps []model.Step) []string {
	var out []string
	for _, s := range steps {
		if s.TargetFragment != "" {
			out = append(out, s.TargetFragment)
		}
	}
	return out
}

func stepTexts(steps []model.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Original
	}
	return out
}

// allSucceeded reports whether every step actually ran. A skipped step
// (unresolved target, unrecognized key) is not fatal to the run, but a
// run that couldn't do everything it was asked is not a success either.
func allSucceeded(results []model.StepResult) bool {
	for _, r := range results {
		if r.Outcome != model.OutcomeExecuted {
			return false
		}
	}
	return true
}

// stabilityClass buckets a step for the fallback sleep table, using the
// same verb cues §4.7 names (app-open/major-click/nav-key/other).
func stabilityClass(step model.Step) stability.ActionClass {
	lower := strings.ToLower(step.Normalized)
	switch {
	case strings.Contains(lower, "open") || strings.Contains(lower, "abre"):
		return stability.ActionAppOpen
	case strings.Contains(lower, "double click") || strings.Contains(lower, "doble clic"):
		return stability.ActionMajorClick
	case strings.Contains(lower, "tab") || strings.Contains(lower, "enter") || strings.Contains(lower, "escape"):
		return stability.ActionNavKey
	default:
		return stability.ActionOther
	}
}

// diffSummary computes the screen-change summary: added/removed
// normalized texts and per-kind count deltas between before and after.
func diffSummary(before, after model.UIDescription) string {
	beforeTexts := textSet(before)
	afterTexts := textSet(after)

	var added, removed []string
	for t := range afterTexts {
		if !beforeTexts[t] {
			added = append(added, t)
		}
	}
	for t := range beforeTexts {
		if !afterTexts[t] {
			removed = append(removed, t)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	beforeCounts := kindCounts(before)
	afterCounts := kindCounts(after)

	var deltas []string
	kinds := map[model.ElementKind]bool{}
	for k := range beforeCounts {
		kinds[k] = true
	}
	for k := range afterCounts {
		kinds[k] = true
	}
	kindList := make([]string, 0, len(kinds))
	for k := range kinds {
		kindList = append(kindList, string(k))
	}
	sort.Strings(kindList)
	for _, k := range kindList {
		kind := model.ElementKind(k)
		d := afterCounts[kind] - beforeCounts[kind]
		if d != 0 {
			deltas = append(deltas, fmt.Sprintf("%s:%+d", k, d))
		}
	}

	var b strings.Builder
	if len(added) > 0 {
		fmt.Fprintf(&b, "added: %s. ", strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		fmt.Fprintf(&b, "removed: %s. ", strings.Join(removed, ", "))
	}
	if len(deltas) > 0 {
		fmt.Fprintf(&b, "kind deltas: %s.", strings.Join(deltas, ", "))
	}
	return strings.TrimSpace(b.String())
}

func textSet(desc model.UIDescription) map[string]bool {
	out := map[string]bool{}
	for _, e := range desc.Elements {
		if e.Text != "" {
			out[textutil.NormalizeForMatching(e.Text)] = true
		}
	}
	return out
}

func kindCounts(desc model.UIDescription) map[model.ElementKind]int {
	out := map[model.ElementKind]int{}
	for _, e := range desc.Elements {
		out[e.Kind]++
	}
	return out
}

// runTimestamp is the sole Date.Now()-equivalent call site in the
// pipeline, isolated here so tests can swap it out.
var runTimestamp = func() time.Time { return time.Now() }
