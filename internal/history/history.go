// Package history implements the append-only command history CSV
// persistence (§6 "Command history"), grounded on
// llm_control/command_processing/history.py's file-backed log.
package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/model"
)

// Header is the exact column header every history file carries.
var Header = []string{"timestamp", "command", "steps", "code", "success", "screen_summary"}

// legacyHeader is the pre-screen-summary column set (§6: "a legacy
// header missing screen_summary"), migrated in place by appending an
// empty column to every row rather than losing them.
var legacyHeader = []string{"timestamp", "command", "steps", "code", "success"}

// Store is an append-only CSV command history file.
type Store struct {
	path string
}

// Open returns a Store bound to path, migrating a legacy-header file
// in place if found. The file need not exist yet; it is created (with
// Header) on the first Append.
func Open(path string) (*Store, error) {
	if err := migrateIfLegacy(path); err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// Append writes one row, creating the file and its header if this is
// the first write.
func (s *Store) Append(entry model.CommandHistoryEntry) error {
	needsHeader := false
	if info, err := os.Stat(s.path); err != nil || info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("history: write header: %w", err)
		}
	}
	if err := w.Write(rowFor(entry)); err != nil {
		return fmt.Errorf("history: write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func rowFor(e model.CommandHistoryEntry) []string {
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Command,
		strings.Join(e.Steps, "; "),
		e.Code,
		strconv.FormatBool(e.Success),
		e.ScreenSummary,
	}
}

// Load reads every row back into CommandHistoryEntry values, skipping
// rows that fail to parse (a corrupt tail row must not block reading
// the rest of the history).
func Load(path string) ([]model.CommandHistoryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("history: read: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]model.CommandHistoryEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		entry, ok := parseRow(row)
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func parseRow(row []string) (model.CommandHistoryEntry, bool) {
	if len(row) < 6 {
		return model.CommandHistoryEntry{}, false
	}
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return model.CommandHistoryEntry{}, false
	}
	success, _ := strconv.ParseBool(row[4])
	var steps []string
	if row[2] != "" {
		steps = strings.Split(row[2], "; ")
	}
	return model.CommandHistoryEntry{
		Timestamp:     ts,
		Command:       row[1],
		Steps:         steps,
		Code:          row[3],
		Success:       success,
		ScreenSummary: row[5],
	}, true
}

// migrateIfLegacy rewrites a file carrying legacyHeader into the
// current column order, in place, preserving every row.
func migrateIfLegacy(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("history: open for migration check: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	f.Close()
	if err != nil || len(rows) == 0 {
		return nil
	}
	if !equalHeader(rows[0], legacyHeader) {
		return nil
	}

	migrated := make([][]string, 0, len(rows))
	migrated = append(migrated, Header)
	for _, row := range rows[1:] {
		if len(row) < 5 {
			continue
		}
		// legacy order: timestamp,command,steps,code,success — append an
		// empty screen_summary column.
		migrated = append(migrated, []string{row[0], row[1], row[2], row[3], row[4], ""})
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("history: create for migration: %w", err)
	}
	defer out.Close()
	w := csv.NewWriter(out)
	if err := w.WriteAll(migrated); err != nil {
		return fmt.Errorf("history: write migrated: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Prune enforces §6's History.max_age_days / History.max_count
// retention by rewriting the file with only the rows that survive
// both bounds, oldest rows dropped first when max_count is exceeded.
// Best-effort: a missing file or unreadable row is not an error.
func Prune(path string, maxAge time.Duration, maxCount int) error {
	entries, err := Load(path)
	if err != nil || entries == nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := entries[:0:0]
	for _, e := range entries {
		if maxAge > 0 && e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	if maxCount > 0 && len(kept) > maxCount {
		kept = kept[len(kept)-maxCount:]
	}
	if len(kept) == len(entries) {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("history: create for prune: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("history: write header: %w", err)
	}
	for _, e := range kept {
		if err := w.Write(rowFor(e)); err != nil {
			return fmt.Errorf("history: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
