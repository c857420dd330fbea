package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/history"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/perception"
)

type recordedCall struct {
	name string
	key  string
	text string
}

type fakeAutomator struct {
	calls []recordedCall
}

func (f *fakeAutomator) record(c recordedCall) error {
	f.calls = append(f.calls, c)
	return nil
}
func (f *fakeAutomator) Move(ctx context.Context, x, y float64) error {
	return f.record(recordedCall{name: "move"})
}
func (f *fakeAutomator) Click(ctx context.Context) error       { return f.record(recordedCall{name: "click"}) }
func (f *fakeAutomator) DoubleClick(ctx context.Context) error { return f.record(recordedCall{name: "double_click"}) }
func (f *fakeAutomator) RightClick(ctx context.Context) error  { return f.record(recordedCall{name: "right_click"}) }
func (f *fakeAutomator) Type(ctx context.Context, text string) error {
	return f.record(recordedCall{name: "type", text: text})
}
func (f *fakeAutomator) Press(ctx context.Context, key string) error {
	return f.record(recordedCall{name: "press", key: key})
}
func (f *fakeAutomator) Scroll(ctx context.Context, dx, dy int) error     { return nil }
func (f *fakeAutomator) Sleep(ctx context.Context, d time.Duration) error { return nil }

type fakeOCR struct{ regions []perception.OCRRegion }

func (f fakeOCR) Recognize(ctx context.Context, path string) ([]perception.OCRRegion, error) {
	return f.regions, nil
}

type fakeFallback struct {
	code, explanation string
	ok                bool
}

func (f fakeFallback) PlanOneShot(ctx context.Context, instruction string) (string, string, bool) {
	return f.code, f.explanation, f.ok
}

func newOrchestrator(t *testing.T, auto *fakeAutomator) (*Orchestrator, string) {
	t.Helper()
	historyPath := filepath.Join(t.TempDir(), "history.csv")
	store, err := history.Open(historyPath)
	require.NoError(t, err)
	orch := &Orchestrator{
		Logger:     zerolog.Nop(),
		Automator:  auto,
		Perception: &perception.Gate{},
		History:    store,
	}
	return orch, historyPath
}

func TestRunRejectsEmptyInstruction(t *testing.T) {
	orch, _ := newOrchestrator(t, &fakeAutomator{})
	_, err := orch.Run(context.Background(), "   ", DefaultOptions())
	assert.ErrorIs(t, err, ErrEmptyInstruction)
}

func TestRunExecutesTypingStepAndAppendsHistory(t *testing.T) {
	auto := &fakeAutomator{}
	orch, historyPath := newOrchestrator(t, auto)

	outcome, err := orch.Run(context.Background(), `type "hello"`, Options{CaptureScreenshots: false, EnableStabilityWait: false})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, model.OutcomeExecuted, outcome.Steps[0].Outcome)
	assert.Contains(t, outcome.ActionProgram, "pyautogui.write")

	loaded, err := history.Load(historyPath)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].Success)
}

func TestRunUIActionResolvesAgainstPerceptionGate(t *testing.T) {
	auto := &fakeAutomator{}
	orch, _ := newOrchestrator(t, auto)
	orch.Perception = &perception.Gate{
		OCR: fakeOCR{regions: []perception.OCRRegion{
			{Text: "Settings", Confidence: 0.9, BBox: model.BBox{X1: 10, Y1: 10, X2: 50, Y2: 30}},
		}},
		OCRMinConfidence: 0.4,
	}

	outcome, err := orch.Run(context.Background(), "click settings", Options{CaptureScreenshots: false, EnableStabilityWait: false})

	require.NoError(t, err)
	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, model.OutcomeExecuted, outcome.Steps[0].Outcome)
	assert.True(t, outcome.Success)

	var sawClick bool
	for _, c := range auto.calls {
		if c.name == "click" {
			sawClick = true
		}
	}
	assert.True(t, sawClick)
}

func TestRunUsesFallbackWhenNoStepExecutes(t *testing.T) {
	auto := &fakeAutomator{}
	orch, _ := newOrchestrator(t, auto)
	orch.Fallback = fakeFallback{code: "pyautogui.click(1, 2)", explanation: "fallback click", ok: true}

	outcome, err := orch.Run(context.Background(), "click nonexistent thing", Options{CaptureScreenshots: false, EnableStabilityWait: false})

	require.NoError(t, err)
	assert.Contains(t, outcome.ActionProgram, "pyautogui.click(1, 2)")
	require.Len(t, outcome.Steps, 1)
	assert.Equal(t, model.OutcomeSkipped, outcome.Steps[0].Outcome)
	assert.False(t, outcome.Success)
}

func TestRunReturnsBusyWhenRejectAndAlreadyLocked(t *testing.T) {
	orch, _ := newOrchestrator(t, &fakeAutomator{})
	orch.Reject = true
	orch.mu.Lock()
	defer orch.mu.Unlock()

	_, err := orch.Run(context.Background(), "click ok", DefaultOptions())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRunReturnsCancelledForPreCancelledContext(t *testing.T) {
	orch, _ := newOrchestrator(t, &fakeAutomator{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := orch.Run(ctx, "click ok", Options{CaptureScreenshots: false, EnableStabilityWait: false})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, outcome.Success)
}

func TestRunKeyboardStepPressesKey(t *testing.T) {
	auto := &fakeAutomator{}
	orch, _ := newOrchestrator(t, auto)

	outcome, err := orch.Run(context.Background(), "press enter", Options{CaptureScreenshots: false, EnableStabilityWait: false})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.Len(t, auto.calls, 1)
	assert.Equal(t, "press", auto.calls[0].name)
	assert.Equal(t, "enter", auto.calls[0].key)
}

func TestRunMultiStepInstructionInsertsInterStepSleep(t *testing.T) {
	auto := &fakeAutomator{}
	orch, _ := newOrchestrator(t, auto)

	outcome, err := orch.Run(context.Background(), `type "a" then press enter`, Options{CaptureScreenshots: false, EnableStabilityWait: false})

	require.NoError(t, err)
	require.Len(t, outcome.Steps, 2)
	assert.Contains(t, outcome.ActionProgram, "time.sleep(1)")
}
