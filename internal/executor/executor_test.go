package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
)

type call struct {
	name string
	x, y float64
	key  string
	text string
}

type fakeAutomator struct {
	calls   []call
	failOn  string
	failErr error
}

func (f *fakeAutomator) record(c call) error {
	f.calls = append(f.calls, c)
	if f.failOn == c.name {
		return f.failErr
	}
	return nil
}

func (f *fakeAutomator) Move(ctx context.Context, x, y float64) error {
	return f.record(call{name: "move", x: x, y: y})
}
func (f *fakeAutomator) Click(ctx context.Context) error       { return f.record(call{name: "click"}) }
func (f *fakeAutomator) DoubleClick(ctx context.Context) error { return f.record(call{name: "double_click"}) }
func (f *fakeAutomator) RightClick(ctx context.Context) error  { return f.record(call{name: "right_click"}) }
func (f *fakeAutomator) Type(ctx context.Context, text string) error {
	return f.record(call{name: "type", text: text})
}
func (f *fakeAutomator) Press(ctx context.Context, key string) error {
	return f.record(call{name: "press", key: key})
}
func (f *fakeAutomator) Scroll(ctx context.Context, dx, dy int) error { return nil }
func (f *fakeAutomator) Sleep(ctx context.Context, d time.Duration) error { return nil }

func newState() *model.RunState {
	return model.NewRunState("run-1")
}

func descWith(elems ...model.UIElement) model.UIDescription {
	return model.UIDescription{ScreenWidth: 1000, ScreenHeight: 800, Elements: elems}
}

func TestPlanTypingStepTypesExtractedText(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: `type "hello world"`, Normalized: `type "hello world"`}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 1)
	assert.Equal(t, "type", auto.calls[0].name)
	assert.Equal(t, "hello world", auto.calls[0].text)
	assert.Equal(t, model.ActionType, state.LastActionKind)
	assert.Contains(t, program.Code(), "pyautogui.write")
}

func TestPlanTypingStepWithEmptyTextIsNoOp(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: "type", Normalized: "type"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeSkipped, result.Outcome)
	assert.Equal(t, "empty_typing_text", result.Reason)
	assert.Empty(t, auto.calls)
}

func TestPlanKeyboardStepPressesCanonicalKey(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: "press enter", Normalized: "press enter"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 1)
	assert.Equal(t, "press", auto.calls[0].name)
	assert.Equal(t, "enter", auto.calls[0].key)
	assert.Equal(t, model.ActionKeyboard, state.LastActionKind)
}

func TestPlanKeyboardStepPressesEveryRecognizedKeyInOrder(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: "press shift tab", Normalized: "press shift tab"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 2)
	assert.Equal(t, "shift", auto.calls[0].key)
	assert.Equal(t, "tab", auto.calls[1].key)
}

func TestPlanKeyboardStepSkipsUnrecognizedKey(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: "press xyzzy", Normalized: "press xyzzy"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	assert.Equal(t, model.OutcomeSkipped, result.Outcome)
	assert.Equal(t, "unrecognized_key", result.Reason)
	assert.Empty(t, auto.calls)
}

func TestPlanReferenceStepWithoutPriorTargetIsSkipped(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: "click it again", Normalized: "click it again"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	assert.Equal(t, model.OutcomeSkipped, result.Outcome)
	assert.Equal(t, "no_prior_target", result.Reason)
}

func TestPlanReferenceStepReusesLastTarget(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	state.RecordUIElement(model.UIElement{Kind: model.KindButton, Text: "Save"}, model.Point{X: 42, Y: 84})
	program := &Program{}
	step := model.Step{Original: "click it again", Normalized: "click it again"}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 2)
	assert.Equal(t, "move", auto.calls[0].name)
	assert.Equal(t, 42.0, auto.calls[0].x)
	assert.Equal(t, 84.0, auto.calls[0].y)
	assert.Equal(t, "click", auto.calls[1].name)
}

func TestPlanTypingStepClicksResolvedTargetBeforeTyping(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	desc := descWith(model.UIElement{
		Text: "Search box", Kind: model.KindInputField, Confidence: 1.0,
		BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 30}, HasBBox: true,
	})
	step := model.Step{Original: `type hello in the search box`, Normalized: `type hello in the search box`}

	result := Plan(context.Background(), zerolog.Nop(), auto, desc, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 3)
	assert.Equal(t, "move", auto.calls[0].name)
	assert.Equal(t, "click", auto.calls[1].name)
	assert.Equal(t, "type", auto.calls[2].name)
	assert.Equal(t, "hello", auto.calls[2].text)
	require.NotNil(t, state.GetLastUIElement())
	assert.Equal(t, "Search box", state.GetLastUIElement().Text)
}

func TestPlanTypingStepSkipsClickWhenPerceptionNeverRan(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: `type hello in the search box`, Normalized: `type hello in the search box`}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 1)
	assert.Equal(t, "type", auto.calls[0].name)
	assert.Equal(t, "hello", auto.calls[0].text)
}

func TestPlanTypingStepPressesTrailingKeyAfterTyping(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	step := model.Step{Original: `type hello then press enter`, Normalized: `type hello then press enter`}

	result := Plan(context.Background(), zerolog.Nop(), auto, model.UIDescription{Skipped: true}, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 2)
	assert.Equal(t, "type", auto.calls[0].name)
	assert.Equal(t, "hello", auto.calls[0].text)
	assert.Equal(t, "press", auto.calls[1].name)
	assert.Equal(t, "enter", auto.calls[1].key)
}

func TestPlanUIActionClicksResolvedTarget(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	desc := descWith(model.UIElement{
		Text: "Save", Kind: model.KindButton, Confidence: 1.0,
		BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 30}, HasBBox: true,
	})
	step := model.Step{Original: "click Save", Normalized: "click save", TargetFragment: "save"}

	result := Plan(context.Background(), zerolog.Nop(), auto, desc, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 2)
	assert.Equal(t, "move", auto.calls[0].name)
	assert.Equal(t, "click", auto.calls[1].name)
	assert.Equal(t, model.ActionClick, state.LastActionKind)
	require.NotNil(t, state.GetLastUIElement())
	assert.Equal(t, "Save", state.GetLastUIElement().Text)
}

func TestPlanUIActionDoubleClickUsesDoubleClickPrimitive(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	desc := descWith(model.UIElement{
		Text: "File", Kind: model.KindIcon, Confidence: 1.0,
		BBox: model.BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}, HasBBox: true,
	})
	step := model.Step{Original: "double click File", Normalized: "double click file", TargetFragment: "file"}

	result := Plan(context.Background(), zerolog.Nop(), auto, desc, state, program, step)

	require.Equal(t, model.OutcomeExecuted, result.Outcome)
	require.Len(t, auto.calls, 2)
	assert.Equal(t, "double_click", auto.calls[1].name)
	assert.Equal(t, model.ActionDoubleClick, state.LastActionKind)
}

func TestPlanUIActionSkipsWhenTargetNotFound(t *testing.T) {
	auto := &fakeAutomator{}
	state := newState()
	program := &Program{}
	desc := descWith(model.UIElement{Text: "Cancel", Kind: model.KindButton, Confidence: 1.0})
	step := model.Step{Original: "click Save", Normalized: "click save", TargetFragment: "save"}

	result := Plan(context.Background(), zerolog.Nop(), auto, desc, state, program, step)

	assert.Equal(t, model.OutcomeSkipped, result.Outcome)
	assert.Equal(t, "found 1 elements, none matched", result.Reason)
	assert.Empty(t, auto.calls)
	require.Len(t, program.CodeLines, 1)
	assert.Contains(t, program.CodeLines[0], "# skipped: found 1 elements, none matched")
}

func TestPlanRecordsFailureWhenAutomatorErrors(t *testing.T) {
	auto := &fakeAutomator{failOn: "click", failErr: errors.New("display unreachable")}
	state := newState()
	program := &Program{}
	desc := descWith(model.UIElement{
		Text: "Save", Kind: model.KindButton, Confidence: 1.0,
		BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 30}, HasBBox: true,
	})
	step := model.Step{Original: "click Save", Normalized: "click save", TargetFragment: "save"}

	result := Plan(context.Background(), zerolog.Nop(), auto, desc, state, program, step)

	assert.Equal(t, model.OutcomeFailed, result.Outcome)
	assert.Equal(t, "display unreachable", result.Error)
}
