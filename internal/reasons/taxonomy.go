// Package reasons maintains the user-editable mapping from free-text visit
// reasons to the entry/exit classification every derivation depends on.
package reasons

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"roomlog/internal/eventlog"
	"roomlog/internal/metrics"
)

const csvHeader = "Reason,Type"

// DefaultEntryReasons are the built-in sign-in reasons, used whenever no
// customized configuration has been persisted.
func DefaultEntryReasons() []string {
	return []string{
		"Anxiety/Stress",
		"Friendship Issues",
		"Sensory Overload",
		"Academic Stress",
		"Family Issues",
		"Need Quiet Time",
		"Medical Issue",
		"Counseling Session",
		"Other In",
	}
}

// DefaultExitReasons are the built-in sign-out outcomes.
func DefaultExitReasons() []string {
	return []string{
		"Feeling Better",
		"Return to Class",
		"Going to Lunch",
		"Going to Recess",
		"Going to Library",
		"Going to Office",
		"Going to Nurse",
		"Going to Counselor",
		"Medical Appointment",
		"Parent Contact",
		"Going Home",
		"Other Out",
	}
}

// Taxonomy holds the ordered entry and exit reason lists and persists every
// mutation immediately to a small CSV file. A reason present in neither
// list classifies as entry: treating an unrecognized student as present is
// the recoverable failure mode, treating them as absent is not.
type Taxonomy struct {
	mu    sync.RWMutex
	path  string
	entry []string
	exit  []string
	log   *zap.Logger
}

// Load reads the persisted taxonomy from path, falling back to the built-in
// defaults when the file is absent, unreadable, or yields no reasons.
func Load(path string, log *zap.Logger) *Taxonomy {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Taxonomy{path: path, log: log}
	t.entry = DefaultEntryReasons()
	t.exit = DefaultExitReasons()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("reasons config unreadable, using defaults", zap.Error(err))
		}
		return t
	}
	entry, exit := parseCSV(string(data))
	if len(entry) > 0 {
		t.entry = entry
	}
	if len(exit) > 0 {
		t.exit = exit
	}
	return t
}

// Classify maps a reason onto an action. The entry list wins over the exit
// list; anything unrecognized classifies as entry and bumps the drift
// counter.
func (t *Taxonomy) Classify(reason string) eventlog.Action {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if contains(t.entry, reason) {
		return eventlog.ActionEntry
	}
	if contains(t.exit, reason) {
		return eventlog.ActionExit
	}
	metrics.ClassificationFallbacks.Inc()
	t.log.Debug("reason matched neither list, defaulting to entry",
		zap.String("reason", reason))
	return eventlog.ActionEntry
}

// EntryReasons returns a copy of the ordered entry list.
func (t *Taxonomy) EntryReasons() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.entry...)
}

// ExitReasons returns a copy of the ordered exit list.
func (t *Taxonomy) ExitReasons() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.exit...)
}

// Replace swaps both lists and persists. Empty slices keep the current side
// untouched, matching how imports have always behaved.
func (t *Taxonomy) Replace(entry, exit []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(entry) > 0 {
		t.entry = dedupe(entry)
	}
	if len(exit) > 0 {
		t.exit = dedupe(exit)
	}
	return t.save()
}

// ImportCSV parses a Reason,Type document and applies it via Replace
// semantics.
func (t *Taxonomy) ImportCSV(data string) error {
	entry, exit := parseCSV(data)
	if len(entry) == 0 && len(exit) == 0 {
		return fmt.Errorf("reasons import: no valid rows")
	}
	return t.Replace(entry, exit)
}

// Add appends a reason to the list for the given action, dropping it from
// the other list if present, and persists.
func (t *Taxonomy) Add(reason string, action eventlog.Action) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("reason required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if action == eventlog.ActionExit {
		t.entry = remove(t.entry, reason)
		if !contains(t.exit, reason) {
			t.exit = append(t.exit, reason)
		}
	} else {
		t.exit = remove(t.exit, reason)
		if !contains(t.entry, reason) {
			t.entry = append(t.entry, reason)
		}
	}
	return t.save()
}

// Remove deletes a reason from both lists and persists.
func (t *Taxonomy) Remove(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry = remove(t.entry, reason)
	t.exit = remove(t.exit, reason)
	return t.save()
}

// ResetDefaults restores the built-in lists and persists them.
func (t *Taxonomy) ResetDefaults() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry = DefaultEntryReasons()
	t.exit = DefaultExitReasons()
	return t.save()
}

// save writes the CSV file. Callers hold the write lock.
func (t *Taxonomy) save() error {
	var b strings.Builder
	b.WriteString(csvHeader + "\n")
	for _, r := range t.entry {
		b.WriteString(r + ",In\n")
	}
	for _, r := range t.exit {
		b.WriteString(r + ",Out\n")
	}
	if err := os.WriteFile(t.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("save reasons: %w", err)
	}
	return nil
}

// parseCSV reads Reason,Type rows. The type token is case-insensitive;
// rows with fewer than two columns or an unknown type are skipped.
func parseCSV(data string) (entry, exit []string) {
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) < 2 {
			continue
		}
		reason := strings.TrimSpace(cols[0])
		kind := strings.ToLower(strings.TrimSpace(cols[1]))
		switch kind {
		case "in":
			entry = append(entry, reason)
		case "out":
			exit = append(exit, reason)
		}
	}
	return entry, exit
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
