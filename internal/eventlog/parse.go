package eventlog

import (
	"strings"
	"time"

	"roomlog/internal/metrics"
)

// The log format has gone through three generations, all of which coexist
// in a single file on long-lived installs:
//
//	7 columns: name,year,teacher,reason,room,datetime,type
//	6 columns: name,year,teacher,reason,room,datetime        (room-bearing)
//	6 columns: name,year,teacher,reason,datetime,type        (no room)
//	5 columns: name,year,teacher,reason,datetime
//
// The two six-column shapes are told apart by sniffing column five: a room
// label contains "Room" or one of the room name words, a datetime does not.

// Normalize parses one raw row into a canonical event. The boolean is false
// for rows that must be discarded: fewer than five columns, or a datetime
// that does not match the fixed format. Discards are expected (trailing
// garbage, half-written rows) and are never errors.
//
// The action is always recomputed from the reason, even when the row
// carries a type column.
func Normalize(raw string, c Classifier) (Event, bool) {
	cols := strings.Split(raw, ",")

	var e Event
	var dateStr string

	switch {
	case len(cols) >= 7:
		e.StudentName = strings.TrimSpace(cols[0])
		e.Year = strings.TrimSpace(cols[1])
		e.Teacher = strings.TrimSpace(cols[2])
		e.Reason = strings.TrimSpace(cols[3])
		e.Room = ParseRoom(strings.TrimSpace(cols[4]))
		dateStr = strings.TrimSpace(cols[5])

	case len(cols) >= 6:
		e.StudentName = strings.TrimSpace(cols[0])
		e.Year = strings.TrimSpace(cols[1])
		e.Teacher = strings.TrimSpace(cols[2])
		e.Reason = strings.TrimSpace(cols[3])
		fifth := strings.TrimSpace(cols[4])
		if looksLikeRoom(fifth) {
			e.Room = ParseRoom(fifth)
			dateStr = strings.TrimSpace(cols[5])
		} else {
			// name,year,teacher,reason,datetime,type — no room column,
			// the trailing type suffix is ignored like every other type.
			e.Room = RoomUnknown
			dateStr = fifth
		}

	case len(cols) >= 5:
		e.StudentName = strings.TrimSpace(cols[0])
		e.Year = strings.TrimSpace(cols[1])
		e.Teacher = strings.TrimSpace(cols[2])
		e.Reason = strings.TrimSpace(cols[3])
		e.Room = RoomUnknown
		dateStr = strings.TrimSpace(cols[4])

	default:
		metrics.RowsDiscarded.Inc()
		return Event{}, false
	}

	ts, err := time.Parse(TimeLayout, dateStr)
	if err != nil {
		metrics.RowsDiscarded.Inc()
		return Event{}, false
	}
	e.Timestamp = ts
	e.Action = c.Classify(e.Reason)

	metrics.RowsParsed.Inc()
	return e, true
}

// NormalizeAll parses a slice of raw rows, silently dropping the malformed
// ones and preserving the order of the rest.
func NormalizeAll(rows []string, c Classifier) []Event {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		if e, ok := Normalize(row, c); ok {
			events = append(events, e)
		}
	}
	return events
}

func looksLikeRoom(s string) bool {
	return strings.Contains(s, "Room") ||
		strings.Contains(s, "Wellbeing") ||
		strings.Contains(s, "Diverse") ||
		strings.Contains(s, "Lunch")
}
