package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"roomlog/internal/eventlog"
	"roomlog/internal/stats"
)

func at(day, h, m int) time.Time {
	return time.Date(2024, 5, day, h, m, 0, 0, time.UTC)
}

func ev(name, reason string, room eventlog.Room, action eventlog.Action, ts time.Time) eventlog.Event {
	return eventlog.Event{
		StudentName: name,
		Year:        "10",
		Teacher:     "Mrs Ray",
		Reason:      reason,
		Room:        room,
		Timestamp:   ts,
		Action:      action,
	}
}

func TestForRoomAverageSessionLength(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		// Amy: 20 minute session.
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Amy Lee", "Feeling Better", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 9, 20)),
		// Ben: 40 minute session.
		ev("Ben Roy", "Academic Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 10, 0)),
		ev("Ben Roy", "Return to Class", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 10, 40)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.InDelta(t, 30.0, rs.AverageMinutes, 0.001)
	assert.Equal(t, "30 min", rs.AverageDisplay)
}

func TestForRoomSkipsUnpairedEvents(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		// An exit with no preceding entry, then a clean 20 minute session,
		// then an entry still open.
		ev("Amy Lee", "Feeling Better", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 8, 0)),
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Amy Lee", "Return to Class", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 9, 20)),
		ev("Amy Lee", "Need Quiet Time", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 11, 0)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.InDelta(t, 20.0, rs.AverageMinutes, 0.001)
}

func TestForRoomNoSessions(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Zero(t, rs.AverageMinutes)
	assert.Equal(t, "No data", rs.AverageDisplay)
	assert.Equal(t, 1, rs.CurrentlyInRoom)
}

func TestForRoomTodayCounts(t *testing.T) {
	now := at(2, 15, 0)
	events := []eventlog.Event{
		// Yesterday.
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Amy Lee", "Feeling Better", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 9, 30)),
		// Today.
		ev("Ben Roy", "Academic Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(2, 10, 0)),
		ev("Ben Roy", "Return to Class", eventlog.RoomWellbeing, eventlog.ActionExit, at(2, 10, 30)),
		ev("Cal Ito", "Need Quiet Time", eventlog.RoomWellbeing, eventlog.ActionEntry, at(2, 11, 0)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Equal(t, 3, rs.TodayEntries)
	assert.Equal(t, 2, rs.TodaySignedIn)
}

func TestForRoomIgnoresOtherRooms(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Ben Roy", "Academic Stress", eventlog.RoomDiverseLearners, eventlog.ActionEntry, at(1, 9, 5)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Equal(t, 1, rs.TodayEntries)
	assert.Equal(t, 1, rs.CurrentlyInRoom)
}

func TestForRoomTopReasons(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Ben Roy", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 5)),
		ev("Cal Ito", "Academic Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 10)),
		ev("Amy Lee", "Feeling Better", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 9, 30)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Equal(t, []stats.ReasonCount{
		{Reason: "Anxiety/Stress", Count: 2},
		{Reason: "Academic Stress", Count: 1},
	}, rs.TopEntryReasons)
	assert.Equal(t, []stats.ReasonCount{
		{Reason: "Feeling Better", Count: 1},
	}, rs.TopOutcomes)
}

func TestForRoomTopReasonsTieKeepsFirstSeenOrder(t *testing.T) {
	now := at(1, 12, 0)
	events := []eventlog.Event{
		ev("Amy Lee", "Friendship Issues", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Ben Roy", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 5)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Equal(t, "Friendship Issues", rs.TopEntryReasons[0].Reason)
	assert.Equal(t, "Anxiety/Stress", rs.TopEntryReasons[1].Reason)
}

func TestForRoomWeeklyTrend(t *testing.T) {
	// 2024-05-01 was a Wednesday, 2024-05-02 a Thursday.
	now := at(2, 12, 0)
	events := []eventlog.Event{
		ev("Amy Lee", "Anxiety/Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(1, 9, 0)),
		ev("Amy Lee", "Feeling Better", eventlog.RoomWellbeing, eventlog.ActionExit, at(1, 9, 30)),
		ev("Ben Roy", "Academic Stress", eventlog.RoomWellbeing, eventlog.ActionEntry, at(2, 10, 0)),
	}

	rs := stats.ForRoom(events, eventlog.RoomWellbeing, now, 0)
	assert.Equal(t, 2, rs.WeeklyTrend["Wednesday"])
	assert.Equal(t, 1, rs.WeeklyTrend["Thursday"])
}

func TestForRoomLunchUsesTallyCount(t *testing.T) {
	now := at(1, 12, 30)
	events := []eventlog.Event{
		ev("Lunch Student 1", "Lunch Entry", eventlog.RoomLunch, eventlog.ActionEntry, at(1, 12, 0)),
		ev("Lunch Student 2", "Lunch Entry", eventlog.RoomLunch, eventlog.ActionEntry, at(1, 12, 5)),
	}

	rs := stats.ForRoom(events, eventlog.RoomLunch, now, 17)
	// Occupancy comes from the tally, not from the audit rows.
	assert.Equal(t, 17, rs.CurrentlyInRoom)
	// The audit rows still feed today's entry count.
	assert.Equal(t, 2, rs.TodayEntries)
}

func TestFormatAverage(t *testing.T) {
	assert.Equal(t, "No data", stats.FormatAverage(0))
	assert.Equal(t, "45 min", stats.FormatAverage(45.6))
	assert.Equal(t, "1h", stats.FormatAverage(60))
	assert.Equal(t, "1h 30m", stats.FormatAverage(90))
	assert.Equal(t, "2h 5m", stats.FormatAverage(125.4))
}

func TestWeekdaysSundayFirst(t *testing.T) {
	days := stats.Weekdays()
	assert.Equal(t, "Sunday", days[0])
	assert.Equal(t, "Saturday", days[6])
	assert.Len(t, days, 7)
}
