// Package model defines the data shapes shared by every pipeline stage:
// the parsed instruction, the UI elements perceived on screen, and the
// per-run state the orchestrator owns.
package model

import "time"

// Instruction is the input string plus an optional pre-detected source
// language. Immutable once accepted.
type Instruction struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Step is one atomic segment of an instruction.
type Step struct {
	Original             string `json:"original"`
	Normalized           string `json:"normalized"`
	NeedsVisualGrounding bool   `json:"needs_visual_grounding"`
	TargetFragment       string `json:"target_fragment,omitempty"`
	SpatialQualifier     string `json:"spatial_qualifier,omitempty"`

	// FragmentFromLLM records whether TargetFragment came from the LLM
	// extraction path rather than the regex fallback; the resolver
	// weights LLM-derived fragments higher.
	FragmentFromLLM bool `json:"-"`
}

// ElementKind is the closed set of UI element categories the resolver
// reasons about.
type ElementKind string

const (
	KindButton     ElementKind = "button"
	KindInputField ElementKind = "input_field"
	KindMenuItem   ElementKind = "menu_item"
	KindCheckbox   ElementKind = "checkbox"
	KindLink       ElementKind = "link"
	KindIcon       ElementKind = "icon"
	KindTab        ElementKind = "tab"
	KindText       ElementKind = "text"
	KindUnknown    ElementKind = "unknown"
)

// ElementSource records which collaborator produced a UIElement.
type ElementSource string

const (
	SourceOCR      ElementSource = "ocr"
	SourceDetector ElementSource = "detector"
	SourceCaption  ElementSource = "caption"
	SourceFallback ElementSource = "fallback"
)

// BBox is a pixel-space bounding box. The invariant X1<X2, Y1<Y2 holds
// for every constructed box; callers that receive raw collaborator data
// must validate before building one.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box is well formed.
func (b BBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Center returns the box's center point.
func (b BBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns the box's pixel area, used as a tie-breaker in C4.
func (b BBox) Area() float64 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// UIElement is one candidate on screen.
type UIElement struct {
	BBox        BBox          `json:"bbox"`
	HasBBox     bool          `json:"has_bbox"`
	Text        string        `json:"text,omitempty"`
	Description string        `json:"description,omitempty"`
	Kind        ElementKind   `json:"kind"`
	Confidence  float64       `json:"confidence"`
	Source      ElementSource `json:"source"`
}

// UIDescription is the aggregated, per-run snapshot of screen elements.
// A skipped perception pass is marked by Skipped; a pass that ran but
// found nothing has zero elements with Skipped false. Both are valid,
// well-formed values.
type UIDescription struct {
	ScreenWidth  int         `json:"screen_width"`
	ScreenHeight int         `json:"screen_height"`
	Elements     []UIElement `json:"elements"`
	CapturedAt   time.Time   `json:"captured_at"`
	Skipped      bool        `json:"skipped"`
}

// ScreenSize returns (width, height) for the spatial filter.
func (d UIDescription) ScreenSize() (int, int) {
	return d.ScreenWidth, d.ScreenHeight
}

// ActionKind is the closed set of things a step can do to the desktop.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionRightClick  ActionKind = "right_click"
	ActionType        ActionKind = "type"
	ActionKeyboard    ActionKind = "keyboard"
	ActionReference   ActionKind = "reference"
	ActionNone        ActionKind = "none"
)

// StepOutcome is the terminal status of one executed step.
type StepOutcome string

const (
	OutcomeExecuted StepOutcome = "executed"
	OutcomeSkipped  StepOutcome = "skipped"
	OutcomeFailed   StepOutcome = "failed"
)

// StepResult records what happened when one step was planned and run.
type StepResult struct {
	Step    Step        `json:"step"`
	Outcome StepOutcome `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RunState is the mutable, per-run bookkeeping the orchestrator owns
// exclusively. It is never shared outside C8 and C6.
type RunState struct {
	RunID            string
	LastUIElement    *UIElement
	LastCoordinates  *Point
	LastActionKind   ActionKind
	StepsExecuted    []StepResult
	BeforeScreenshot string
	AfterScreenshot  string
}

// Point is a screen-space coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewRunState creates a fresh, empty RunState for one orchestrator
// invocation.
func NewRunState(runID string) *RunState {
	return &RunState{
		RunID:          runID,
		LastActionKind: ActionNone,
	}
}

// RecordUIElement updates the last-targeted element and its center,
// per C6's "on any successful UI-action or reference" state-update rule.
func (s *RunState) RecordUIElement(elem UIElement, at Point) {
	e := elem
	s.LastUIElement = &e
	p := at
	s.LastCoordinates = &p
}

// GetLastUIElement mirrors the original source's get_last_ui_element
// lookup used by reference-step handling.
func (s *RunState) GetLastUIElement() *UIElement { return s.LastUIElement }

// GetLastCoordinates mirrors get_last_coordinates.
func (s *RunState) GetLastCoordinates() *Point { return s.LastCoordinates }

// GetLastCommand mirrors get_last_command.
func (s *RunState) GetLastCommand() ActionKind { return s.LastActionKind }

// GetStepHistory mirrors get_step_history.
func (s *RunState) GetStepHistory() []StepResult { return s.StepsExecuted }

// CommandHistoryEntry is one append-only row of the persisted command
// history.
type CommandHistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Command       string    `json:"command"`
	Steps         []string  `json:"steps"`
	Code          string    `json:"code"`
	Success       bool      `json:"success"`
	ScreenSummary string    `json:"screen_summary"`
}

// RunOutcome is the structured result returned by one pipeline run.
type RunOutcome struct {
	Success       bool         `json:"success"`
	Steps         []StepResult `json:"steps"`
	ActionProgram string       `json:"action_program"`
	BeforePath    string       `json:"before_path,omitempty"`
	AfterPath     string       `json:"after_path,omitempty"`
	ScreenSummary string       `json:"screen_summary,omitempty"`
}
