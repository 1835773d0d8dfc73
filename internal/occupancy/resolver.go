// Package occupancy derives who is currently present from the immutable
// event history. There is no presence table to drift out of sync: every
// query is a fresh fold over the full log.
package occupancy

import (
	"sort"

	"roomlog/internal/eventlog"
)

// Lunch room presence is tally-based, never event-based. Lunch rows exist
// in the log purely as an audit trail and are skipped here, as are rows
// whose legacy layout carried no room column.

// Resolve returns the names currently present in the given room. A student
// is present iff their most recent event in that room classifies as an
// entry. Ties at the same second keep original row order. Names come back
// sorted for deterministic output.
func Resolve(events []eventlog.Event, room eventlog.Room) []string {
	if room == eventlog.RoomLunch || room == eventlog.RoomUnknown {
		return nil
	}

	byStudent := groupByStudent(events, func(e eventlog.Event) bool {
		return e.Room == room
	})

	var present []string
	for name, entries := range byStudent {
		if last := lastEvent(entries); last != nil && last.Action == eventlog.ActionEntry {
			present = append(present, name)
		}
	}
	sort.Strings(present)
	return present
}

// ResolveAny returns the names currently signed in anywhere, using each
// student's single globally most recent event. This is the scope the
// sign-in eligibility check wants: a student signed into any room is not
// offered for sign-in elsewhere. Lunch and unknown-room events are still
// excluded.
func ResolveAny(events []eventlog.Event) []string {
	byStudent := groupByStudent(events, func(e eventlog.Event) bool {
		return e.Room != eventlog.RoomLunch && e.Room != eventlog.RoomUnknown
	})

	var present []string
	for name, entries := range byStudent {
		if last := lastEvent(entries); last != nil && last.Action == eventlog.ActionEntry {
			present = append(present, name)
		}
	}
	sort.Strings(present)
	return present
}

// IsPresent reports room-scoped presence for one student.
func IsPresent(events []eventlog.Event, name string, room eventlog.Room) bool {
	for _, n := range Resolve(events, room) {
		if n == name {
			return true
		}
	}
	return false
}

// IsPresentAnywhere reports global-scoped presence for one student.
func IsPresentAnywhere(events []eventlog.Event, name string) bool {
	for _, n := range ResolveAny(events) {
		if n == name {
			return true
		}
	}
	return false
}

type indexed struct {
	eventlog.Event
	idx int
}

func groupByStudent(events []eventlog.Event, keep func(eventlog.Event) bool) map[string][]indexed {
	byStudent := make(map[string][]indexed)
	for i, e := range events {
		if !keep(e) {
			continue
		}
		byStudent[e.StudentName] = append(byStudent[e.StudentName], indexed{Event: e, idx: i})
	}
	return byStudent
}

// lastEvent sorts a student's events ascending by timestamp, original row
// order breaking ties, and returns the final one. The log only has second
// precision, so same-second writes are a real case.
func lastEvent(entries []indexed) *eventlog.Event {
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].idx < entries[j].idx
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return &entries[len(entries)-1].Event
}
