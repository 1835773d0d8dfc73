// Package lunch implements the lunch room head count. Unlike the other
// rooms, lunch occupancy is a plain persisted counter with no per-student
// identity; the event log only receives audit rows that are never read
// back for counting.
package lunch

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"roomlog/internal/eventlog"
)

const (
	entryReason = "Lunch Entry"
	resetReason = "Lunch Reset"

	// Placeholder roster fields for synthesized lunch rows; the tally has
	// no real identity to write.
	lunchYear    = "Lunch Year"
	lunchTeacher = "Lunch Teacher"
)

// Auditor receives the audit rows that mirror tally mutations. Satisfied
// by *eventlog.Store.
type Auditor interface {
	Append(eventlog.Event) error
}

// Tally is the file-backed lunch counter. The tally file is the single
// source of truth for lunch occupancy: the audit append may fail without
// affecting the persisted count.
type Tally struct {
	mu    sync.Mutex
	path  string
	count int
	audit Auditor
	log   *zap.Logger
	now   func() time.Time
}

// NewTally loads the persisted count from path. An absent or unparseable
// file reads as zero.
func NewTally(path string, audit Auditor, log *zap.Logger) *Tally {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tally{path: path, audit: audit, log: log, now: time.Now}

	data, err := os.ReadFile(path)
	if err == nil {
		if n, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && n >= 0 {
			t.count = n
		}
	} else if !os.IsNotExist(err) {
		log.Warn("lunch tally unreadable, starting at zero", zap.Error(err))
	}
	return t
}

// Read returns the current count.
func (t *Tally) Read() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Increment bumps the count, persists it, and then appends an audit row
// with a synthesized "Lunch Student N" name. The synthesized name is only
// for log readability; after a reset it will repeat for different physical
// students. Returns the new count.
func (t *Tally) Increment() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.count + 1
	if err := t.persist(next); err != nil {
		return t.count, err
	}
	t.count = next

	t.auditAppend(eventlog.Event{
		StudentName: fmt.Sprintf("Lunch Student %d", next),
		Year:        lunchYear,
		Teacher:     lunchTeacher,
		Reason:      entryReason,
		Room:        eventlog.RoomLunch,
		Timestamp:   t.now(),
		Action:      eventlog.ActionEntry,
	})
	return next, nil
}

// Reset zeroes the count, persists it, and appends a reset marker row.
func (t *Tally) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.persist(0); err != nil {
		return err
	}
	t.count = 0

	t.auditAppend(eventlog.Event{
		StudentName: "All Students",
		Year:        lunchYear,
		Teacher:     lunchTeacher,
		Reason:      resetReason,
		Room:        eventlog.RoomLunch,
		Timestamp:   t.now(),
		Action:      eventlog.ActionExit,
	})
	return nil
}

// Zero persists a zero count without writing an audit row. Used by the
// clear-data action, which removes the log the audit row would land in
// anyway.
func (t *Tally) Zero() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.persist(0); err != nil {
		return err
	}
	t.count = 0
	return nil
}

func (t *Tally) persist(n int) error {
	if err := os.WriteFile(t.path, []byte(strconv.Itoa(n)), 0o644); err != nil {
		return fmt.Errorf("persist lunch tally: %w", err)
	}
	return nil
}

// auditAppend is fire-and-forget: the tally is authoritative independent of
// the log.
func (t *Tally) auditAppend(e eventlog.Event) {
	if t.audit == nil {
		return
	}
	if err := t.audit.Append(e); err != nil {
		t.log.Warn("lunch audit append failed", zap.Error(err))
	}
}
