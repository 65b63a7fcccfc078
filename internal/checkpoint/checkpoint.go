// Package checkpoint persists scan progress so an interrupted run resumes
// where it left off instead of re-spending provider credits.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Processing stages, in pipeline order.
const (
	StageProfiles = "profiles"
	StagePhone    = "phone"
	StageEmail    = "email"
	StageComplete = "complete"
)

// Scan directions.
const (
	DirectionForward = "forward"
	DirectionReverse = "reverse"
)

// Stats counts what the run has done so far. The counters survive restarts
// with the rest of the checkpoint.
type Stats struct {
	TotalContacts     int `json:"total_contacts"`
	Processed         int `json:"processed"`
	Skipped           int `json:"skipped"`
	JobChangers       int `json:"job_changers"`
	PhonesEnriched    int `json:"phones_enriched"`
	EmailsEnriched    int `json:"emails_enriched"`
	Errors            int `json:"errors"`
	ProfilesValidated int `json:"profiles_validated"`
	ProfilesPrivate   int `json:"profiles_private"`
	ProfilesNotFound  int `json:"profiles_not_found"`
}

// Checkpoint is the persisted scan state.
type Checkpoint struct {
	LastProcessedRow int       `json:"last_processed_row"`
	Stage            string    `json:"stage"`
	Direction        string    `json:"direction"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Stats            Stats     `json:"stats"`
	FailedRows       []int     `json:"failed_rows"`
	KnownTotalRows   int       `json:"known_total_rows"`
}

// Manager owns one checkpoint file plus its backup. Saves go backup-first:
// the previous good state is copied aside before the new state replaces the
// primary through a temp file rename, so a crash mid-write never leaves both
// copies broken.
type Manager struct {
	path   string
	backup string

	mu      sync.Mutex
	current *Checkpoint
}

// NewManager creates a manager for the given directory. Forward and reverse
// scans keep independent files so they never clobber each other's progress.
func NewManager(dir string, reverse bool) *Manager {
	name := "progress"
	if reverse {
		name = "progress_reverse"
	}
	return &Manager{
		path:   filepath.Join(dir, name+".json"),
		backup: filepath.Join(dir, name+"_backup.json"),
	}
}

// Exists reports whether a checkpoint file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Load reads the checkpoint. A missing primary means a fresh start (nil, nil).
// A corrupt primary falls back to the backup; if that is also unreadable the
// state is unrecoverable and the caller must not guess a resume point.
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := readFile(m.path)
	if os.IsNotExist(err) {
		zap.L().Info("no checkpoint found, starting fresh", zap.String("path", m.path))
		return nil, nil
	}
	if err != nil {
		zap.L().Warn("checkpoint unreadable, trying backup",
			zap.String("path", m.path),
			zap.Error(err),
		)
		cp, err = readFile(m.backup)
		if err != nil {
			return nil, eris.Wrapf(err, "checkpoint: both %s and its backup are unreadable", m.path)
		}
	}

	m.current = cp
	zap.L().Info("checkpoint loaded",
		zap.Int("last_processed_row", cp.LastProcessedRow),
		zap.String("stage", cp.Stage),
		zap.Int("processed", cp.Stats.Processed),
		zap.Int("failed_rows", len(cp.FailedRows)),
	)
	return cp, nil
}

func readFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: parse %s", path)
	}
	return &cp, nil
}

// Create starts a new checkpoint. The cursor begins one row outside the scan
// range on the approach side, so the first advance lands on startRow itself:
// startRow-1 for forward scans, startRow+1 for reverse scans (which start at
// the highest row and move down).
func (m *Manager) Create(startRow, totalContacts, knownTotalRows int, direction string) (*Checkpoint, error) {
	cursor := startRow - 1
	if direction == DirectionReverse {
		cursor = startRow + 1
	}
	now := time.Now()
	cp := &Checkpoint{
		LastProcessedRow: cursor,
		Stage:            StageProfiles,
		Direction:        direction,
		StartedAt:        now,
		UpdatedAt:        now,
		Stats:            Stats{TotalContacts: totalContacts},
		KnownTotalRows:   knownTotalRows,
	}

	m.mu.Lock()
	m.current = cp
	m.mu.Unlock()

	if err := m.Save(); err != nil {
		return nil, err
	}
	return cp, nil
}

// Save persists the current state, preserving the previous file as backup.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	m.current.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return eris.Wrap(err, "checkpoint: create directory")
	}

	if _, err := os.Stat(m.path); err == nil {
		if err := copyFile(m.path, m.backup); err != nil {
			return eris.Wrap(err, "checkpoint: backup previous state")
		}
	}

	data, err := json.MarshalIndent(m.current, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode")
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return eris.Wrap(err, "checkpoint: replace file")
	}

	zap.L().Debug("checkpoint saved", zap.Int("last_processed_row", m.current.LastProcessedRow))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Current returns the in-memory state, or nil before Load/Create.
func (m *Manager) Current() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Update applies a mutation under the manager's lock. It does not persist;
// call Save once the batch's row-store writes have landed.
func (m *Manager) Update(fn func(cp *Checkpoint)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		fn(m.current)
	}
}

// AddFailedRow records a row for retry on the next run. Idempotent.
func (m *Manager) AddFailedRow(row int) {
	m.Update(func(cp *Checkpoint) {
		if !slices.Contains(cp.FailedRows, row) {
			cp.FailedRows = append(cp.FailedRows, row)
		}
	})
}

// RemoveFailedRow clears a row that has since succeeded.
func (m *Manager) RemoveFailedRow(row int) {
	m.Update(func(cp *Checkpoint) {
		if i := slices.Index(cp.FailedRows, row); i >= 0 {
			cp.FailedRows = slices.Delete(cp.FailedRows, i, i+1)
		}
	})
}

// DetectNewRows compares the live row count against the count recorded when
// the checkpoint was created. Growth means rows were appended mid-scan; the
// caller decides whether to widen the range or just report.
func (m *Manager) DetectNewRows(liveTotalRows int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.KnownTotalRows == 0 {
		return 0
	}
	if grown := liveTotalRows - m.current.KnownTotalRows; grown > 0 {
		zap.L().Info("row count grew since checkpoint",
			zap.Int("known", m.current.KnownTotalRows),
			zap.Int("live", liveTotalRows),
			zap.Int("new_rows", grown),
		)
		return grown
	}
	return 0
}

// SetKnownTotalRows records the live row count and persists immediately.
func (m *Manager) SetKnownTotalRows(total int) error {
	m.Update(func(cp *Checkpoint) {
		cp.KnownTotalRows = total
	})
	return m.Save()
}

// Summary renders a human-readable progress report.
func (m *Manager) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "no checkpoint loaded\n"
	}

	cp := m.current
	var b strings.Builder
	line := strings.Repeat("=", 50)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "PROCESSING SUMMARY")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Direction: %s\n", cp.Direction)
	fmt.Fprintf(&b, "Last processed row: %d\n", cp.LastProcessedRow)
	fmt.Fprintf(&b, "Current stage: %s\n", cp.Stage)
	fmt.Fprintf(&b, "Started at: %s\n", cp.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Updated at: %s\n", cp.UpdatedAt.Format(time.RFC3339))
	if cp.KnownTotalRows > 0 {
		fmt.Fprintf(&b, "Known total rows: %d\n", cp.KnownTotalRows)
	}
	fmt.Fprintln(&b, strings.Repeat("-", 50))
	fmt.Fprintf(&b, "Total contacts: %d\n", cp.Stats.TotalContacts)
	fmt.Fprintf(&b, "Processed: %d\n", cp.Stats.Processed)
	fmt.Fprintf(&b, "Skipped: %d\n", cp.Stats.Skipped)
	fmt.Fprintf(&b, "Job changers found: %d\n", cp.Stats.JobChangers)
	fmt.Fprintf(&b, "Profiles validated: %d\n", cp.Stats.ProfilesValidated)
	fmt.Fprintf(&b, "Profiles private: %d\n", cp.Stats.ProfilesPrivate)
	fmt.Fprintf(&b, "Profiles not found: %d\n", cp.Stats.ProfilesNotFound)
	fmt.Fprintf(&b, "Phones enriched: %d\n", cp.Stats.PhonesEnriched)
	fmt.Fprintf(&b, "Emails enriched: %d\n", cp.Stats.EmailsEnriched)
	fmt.Fprintf(&b, "Errors: %d\n", cp.Stats.Errors)
	fmt.Fprintf(&b, "Failed rows pending retry: %d\n", len(cp.FailedRows))
	fmt.Fprintln(&b, line)
	return b.String()
}
