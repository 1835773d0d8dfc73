package eventlog

import "time"

// TimeLayout is the fixed timestamp format used in every log row. The log
// has always been written with second precision in local time; parsing is
// not timezone aware.
const TimeLayout = "2006-01-02 15:04:05"

// Room identifies one of the tracked spaces. The string forms match the
// labels historically written into the log's room column.
type Room string

const (
	RoomWellbeing       Room = "Wellbeing Room"
	RoomDiverseLearners Room = "Diverse Learners Room"
	RoomLunch           Room = "Lunch Room"
	RoomUnknown         Room = "Unknown"
)

// ParseRoom maps a room column value onto a known room. Anything that is
// not an exact match resolves to RoomUnknown; unknown rows still become
// valid events but are excluded from per-room derivation.
func ParseRoom(s string) Room {
	switch Room(s) {
	case RoomWellbeing, RoomDiverseLearners, RoomLunch:
		return Room(s)
	}
	return RoomUnknown
}

// ParseRoomSlug maps API path identifiers onto rooms.
func ParseRoomSlug(s string) (Room, bool) {
	switch s {
	case "wellbeing":
		return RoomWellbeing, true
	case "diverse-learners", "diverseLearners":
		return RoomDiverseLearners, true
	case "lunch":
		return RoomLunch, true
	}
	return RoomUnknown, false
}

// Slug returns the API path identifier for a room.
func (r Room) Slug() string {
	switch r {
	case RoomWellbeing:
		return "wellbeing"
	case RoomDiverseLearners:
		return "diverse-learners"
	case RoomLunch:
		return "lunch"
	}
	return "unknown"
}

// Action is the derived entry/exit classification for a logged reason.
// It is recomputed from the reason on every read; the log's type column
// has been unreliable across schema generations and is never trusted.
type Action string

const (
	ActionEntry Action = "SIGN_IN"
	ActionExit  Action = "SIGN_OUT"
)

// Classifier decides whether a reason string is an entry or an exit.
// Implemented by reasons.Taxonomy.
type Classifier interface {
	Classify(reason string) Action
}

// Event is a canonical attendance record, normalized from any of the
// historical row layouts. Events are immutable once appended.
type Event struct {
	StudentName string
	Year        string
	Teacher     string
	Reason      string
	Room        Room
	Timestamp   time.Time
	Action      Action
}
