// Package screenshot defines the Screenshot(region?) contract (§6) and
// a concrete backing atop kbinani/screenshot, plus the screenshot-store
// retention rules (§6 "Screenshot store").
package screenshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	ks "github.com/kbinani/screenshot"
)

// Info is the saved-PNG info the Screenshot contract returns.
type Info struct {
	Path   string
	Width  int
	Height int
}

// Capturer is the narrow external-collaborator contract: capture a
// screenshot (optionally of one display index), save it under dir,
// and report its path/dimensions. Any error is the caller's to handle;
// this contract does not degrade silently because perception has
// nothing meaningful to build without a frame.
type Capturer interface {
	Capture(dir, kind string) (Info, error)
}

// Desktop is the default Capturer backing, using
// github.com/kbinani/screenshot to grab the primary display.
type Desktop struct {
	DisplayIndex int
}

// NewDesktop constructs the default screenshot backing for the primary
// display.
func NewDesktop() *Desktop { return &Desktop{DisplayIndex: 0} }

// Capture saves a PNG named "{kind}_{unix}.png" under dir, per §6's
// screenshot store naming convention.
func (d *Desktop) Capture(dir, kind string) (Info, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("screenshot: mkdir: %w", err)
	}
	bounds := ks.GetDisplayBounds(d.DisplayIndex)
	img, err := ks.CaptureRect(bounds)
	if err != nil {
		return Info{}, fmt.Errorf("screenshot: capture: %w", err)
	}
	name := fmt.Sprintf("%s_%d.png", kind, time.Now().Unix())
	path := filepath.Join(dir, name)
	if err := savePNG(path, img); err != nil {
		return Info{}, err
	}
	return Info{Path: path, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("screenshot: create: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("screenshot: encode: %w", err)
	}
	return nil
}

// EnforceRetention deletes files under dir older than maxAge or beyond
// maxCount (oldest first), per §6's retention rule. It is best-effort:
// errors are swallowed, since cleanup is a fire-and-forget hook, not a
// run-blocking concern (§9 "coroutines/threads" design note).
func EnforceRetention(dir string, maxAge time.Duration, maxCount int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
			continue
		}
		files = append(files, fileInfo{path: path, modTime: info.ModTime()})
	}
	if maxCount <= 0 || len(files) <= maxCount {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	excess := len(files) - maxCount
	for i := 0; i < excess; i++ {
		_ = os.Remove(files[i].path)
	}
}
