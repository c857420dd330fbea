// Package automation defines the Automate(primitive program) contract
// (§6) the core depends on — desktop-wide move/click/type/press/scroll
// primitives — and a concrete backing implementation atop robotgo.
//
// This mirrors the teacher's browser.Controller/Launcher shape (a
// narrow interface, a concrete engine behind it, explicit lifecycle)
// but re-targets it at desktop coordinates instead of a DOM, since the
// automation primitive library is specified as an external collaborator
// consumed through a narrow interface, not a browser engine.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// Automator is the narrow contract C6 drives the desktop through.
type Automator interface {
	Move(ctx context.Context, x, y float64) error
	Click(ctx context.Context) error
	DoubleClick(ctx context.Context) error
	RightClick(ctx context.Context) error
	Type(ctx context.Context, safeText string) error
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, dx, dy int) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Robotgo is the default Automator backing, driving the real desktop
// via github.com/go-vgo/robotgo.
type Robotgo struct{}

// NewRobotgo constructs the default desktop automation backing.
func NewRobotgo() *Robotgo { return &Robotgo{} }

func (r *Robotgo) Move(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.MoveMouse(int(x), int(y))
	return nil
}

func (r *Robotgo) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Click("left", false)
	return nil
}

func (r *Robotgo) DoubleClick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Click("left", true)
	return nil
}

func (r *Robotgo) RightClick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Click("right", false)
	return nil
}

func (r *Robotgo) Type(ctx context.Context, safeText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.TypeStr(safeText)
	return nil
}

func (r *Robotgo) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("automation: empty key name")
	}
	return robotgo.KeyTap(key)
}

func (r *Robotgo) Scroll(ctx context.Context, dx, dy int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Scroll(dx, dy)
	return nil
}

func (r *Robotgo) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SafeText doubles curly braces, the only characters the typing
// primitive treats as meta, per §4.6's safe-text contract. Nothing
// else is transformed.
func SafeText(text string) string {
	text = strings.ReplaceAll(text, "{", "{{")
	text = strings.ReplaceAll(text, "}", "}}")
	return text
}

// KeyNameTable is the closed synonym map from spoken key names to the
// canonical names robotgo.KeyTap expects.
var KeyNameTable = map[string]string{
	"enter": "enter", "intro": "enter", "return": "enter",
	"escape": "esc", "esc": "esc", "escapar": "esc",
	"tab": "tab", "tabulador": "tab",
	"space": "space", "espacio": "space",
	"backspace": "backspace", "retroceso": "backspace",
	"delete": "delete", "suprimir": "delete", "borrar": "delete",
	"up": "up", "arriba": "up",
	"down": "down", "abajo": "down",
	"left": "left", "izquierda": "left",
	"right": "right", "derecha": "right",
	"control": "ctrl", "ctrl": "ctrl",
	"command": "cmd", "cmd": "cmd", "win": "cmd", "windows": "cmd",
	"alt": "alt", "shift": "shift", "mayuscula": "shift", "mayusculas": "shift",
	"home": "home", "inicio": "home",
	"end": "end", "fin": "end",
}

// CanonicalKey looks up a spoken key name in KeyNameTable. The bool
// result is false for unknown names, which the caller drops silently
// (with a warning log), per §4.6.
func CanonicalKey(spoken string) (string, bool) {
	k, ok := KeyNameTable[strings.ToLower(strings.TrimSpace(spoken))]
	return k, ok
}
