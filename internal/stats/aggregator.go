// Package stats computes per-room usage statistics from the canonical
// event history.
package stats

import (
	"fmt"
	"sort"
	"time"

	"roomlog/internal/eventlog"
	"roomlog/internal/occupancy"
)

// ReasonCount pairs a reason with its frequency.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// RoomStats is the aggregate view for one room.
type RoomStats struct {
	Room            string         `json:"room"`
	TodayEntries    int            `json:"today_entries"`
	TodaySignedIn   int            `json:"today_signed_in"`
	CurrentlyInRoom int            `json:"currently_in_room"`
	AverageMinutes  float64        `json:"average_minutes"`
	AverageDisplay  string         `json:"average_display"`
	TopEntryReasons []ReasonCount  `json:"top_entry_reasons"`
	TopOutcomes     []ReasonCount  `json:"top_outcomes"`
	WeeklyTrend     map[string]int `json:"weekly_trend"`
}

// TopN is the prefix length the dashboard views display.
const TopN = 3

// ForRoom aggregates statistics for one room as of now. Lunch room
// occupancy is not derivable from events, so the caller passes the tally
// count, which is used only when room is the lunch room.
func ForRoom(events []eventlog.Event, room eventlog.Room, now time.Time, lunchCount int) RoomStats {
	rs := RoomStats{
		Room:        string(room),
		WeeklyTrend: make(map[string]int),
	}

	byStudent := make(map[string][]eventlog.Event)
	entryCounts := newCounter()
	exitCounts := newCounter()

	for _, e := range events {
		if e.Room != room {
			continue
		}
		byStudent[e.StudentName] = append(byStudent[e.StudentName], e)

		if sameDay(e.Timestamp, now) {
			rs.TodayEntries++
			if e.Action == eventlog.ActionEntry {
				rs.TodaySignedIn++
			}
		}
		rs.WeeklyTrend[e.Timestamp.Weekday().String()]++

		if e.Action == eventlog.ActionEntry {
			entryCounts.add(e.Reason)
		} else {
			exitCounts.add(e.Reason)
		}
	}

	if room == eventlog.RoomLunch {
		rs.CurrentlyInRoom = lunchCount
	} else {
		rs.CurrentlyInRoom = len(occupancy.Resolve(events, room))
	}

	rs.AverageMinutes = averageSessionMinutes(byStudent)
	rs.AverageDisplay = FormatAverage(rs.AverageMinutes)
	rs.TopEntryReasons = entryCounts.sorted()
	rs.TopOutcomes = exitCounts.sorted()
	return rs
}

// averageSessionMinutes walks each student's room events in timestamp
// order, pairing an entry immediately followed by an exit into a completed
// session. Unpaired events (entry-entry, or an exit with no open entry)
// contribute nothing and are stepped over. Zero completed sessions averages
// to zero, displayed as "No data".
func averageSessionMinutes(byStudent map[string][]eventlog.Event) float64 {
	var totalMinutes float64
	var sessions int

	for _, entries := range byStudent {
		sorted := append([]eventlog.Event(nil), entries...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		i := 0
		for i < len(sorted)-1 {
			if sorted[i].Action == eventlog.ActionEntry && sorted[i+1].Action == eventlog.ActionExit {
				totalMinutes += sorted[i+1].Timestamp.Sub(sorted[i].Timestamp).Minutes()
				sessions++
				i += 2
			} else {
				i++
			}
		}
	}

	if sessions == 0 {
		return 0
	}
	return totalMinutes / float64(sessions)
}

// FormatAverage renders an average duration the way the room views show it.
func FormatAverage(minutes float64) string {
	switch {
	case minutes == 0:
		return "No data"
	case minutes < 60:
		return fmt.Sprintf("%d min", int(minutes))
	default:
		h := int(minutes) / 60
		m := int(minutes) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// Weekdays lists bucket names Sunday first, the order the trend view
// renders.
func Weekdays() []string {
	return []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// counter tracks frequencies while remembering first-seen order for tie
// breaking.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) sorted() []ReasonCount {
	out := make([]ReasonCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, ReasonCount{Reason: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
