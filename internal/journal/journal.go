// Package journal records every monitoring cycle to disk: one JSON line per
// cycle in a daily file, plus a state file remembering which conflicts the
// user has already been told about.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"donna/internal/models"
	"donna/internal/workflow"
)

const seenFile = "seen-conflicts.json"

var (
	_ workflow.CycleObserver = (*Journal)(nil)
	_ workflow.History       = (*Journal)(nil)
)

// SeenConflicts maps a conflict id to when the user was last told about it.
type SeenConflicts map[string]time.Time

// Entry is one line of the cycle log.
type Entry struct {
	Time           time.Time                `json:"time"`
	Step           workflow.Step            `json:"step"`
	ErrorCount     int                      `json:"error_count"`
	Emails         int                      `json:"emails"`
	CalendarEvents int                      `json:"calendar_events"`
	Conflicts      []models.Conflict        `json:"conflicts"`
	Notified       []string                 `json:"notified,omitempty"`
	ImportantItems []workflow.ImportantItem `json:"important_items,omitempty"`
	Actions        []models.ActionResult    `json:"action_results,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// Journal appends cycle entries under dir. It implements workflow.CycleObserver
// and workflow.History.
type Journal struct {
	logger *slog.Logger
	dir    string
	now    func() time.Time

	mu   sync.Mutex
	seen SeenConflicts
}

// New opens the journal directory, creating it if needed, and loads the seen
// conflict state.
func New(logger *slog.Logger, dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	seen, err := loadSeen(filepath.Join(dir, seenFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load seen conflicts: %w", err)
		}
		logger.Info("No seen conflicts file found, starting fresh.", "file", seenFile)
		seen = make(SeenConflicts)
	}

	return &Journal{
		logger: logger,
		dir:    dir,
		now:    time.Now,
		seen:   seen,
	}, nil
}

// Seen returns when the user was last told about a conflict.
func (j *Journal) Seen(conflictID string) (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.seen[conflictID]
	return t, ok
}

// ObserveCycle writes one entry for the finished cycle. Failures are logged;
// the journal never stops monitoring.
func (j *Journal) ObserveCycle(st *workflow.State, runErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	entry := Entry{
		Time:           now,
		Step:           st.CurrentStep,
		ErrorCount:     st.ErrorCount,
		Emails:         len(st.Emails),
		CalendarEvents: len(st.CalendarEvents),
		Conflicts:      st.Conflicts,
		ImportantItems: st.ImportantItems,
		Actions:        st.ActionResults,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	for id, at := range st.NotifiedConflicts {
		if prev, ok := j.seen[id]; ok && !at.After(prev) {
			continue
		}
		j.seen[id] = at
		entry.Notified = append(entry.Notified, id)
	}
	slices.Sort(entry.Notified)

	if err := j.append(entry); err != nil {
		j.logger.Error("Failed to write journal entry", "error", err)
	}
	if len(entry.Notified) > 0 {
		if err := j.saveSeen(); err != nil {
			j.logger.Error("Failed to save seen conflicts", "error", err)
		}
	}
}

// Path returns the log file for the day containing t.
func (j *Journal) Path(t time.Time) string {
	return filepath.Join(j.dir, "cycles-"+t.Format("2006-01-02")+".jsonl")
}

func (j *Journal) append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	f, err := os.OpenFile(j.Path(entry.Time), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadSeen(path string) (SeenConflicts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seen SeenConflicts
	if err := json.Unmarshal(data, &seen); err != nil {
		return nil, err
	}
	if seen == nil {
		seen = make(SeenConflicts)
	}
	return seen, nil
}

func (j *Journal) saveSeen() error {
	data, err := json.MarshalIndent(j.seen, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal seen conflicts: %w", err)
	}
	return os.WriteFile(filepath.Join(j.dir, seenFile), data, 0o644)
}
