// Package wellbeing wires the stores together and implements the
// operations the API handlers expose: sign-in/sign-out, presence queries,
// head counts, statistics, and the data-clearing action.
package wellbeing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"roomlog/internal/eventlog"
	"roomlog/internal/lunch"
	"roomlog/internal/occupancy"
	"roomlog/internal/queue"
	"roomlog/internal/reasons"
	"roomlog/internal/roster"
	"roomlog/internal/stats"
	"roomlog/internal/syncsvc"
)

var (
	// ErrAlreadyPresent rejects a sign-in for a student whose globally most
	// recent event is an entry; a student signed into any room is not
	// eligible anywhere.
	ErrAlreadyPresent = errors.New("student already signed in")

	// ErrNotPresent rejects a sign-out for a student not currently resolved
	// as present in the queried room.
	ErrNotPresent = errors.New("student not signed in to this room")

	// ErrInvalidRoom rejects per-student operations on the lunch room,
	// which is tally-only, and on unknown rooms.
	ErrInvalidRoom = errors.New("room does not track individual sign-ins")
)

// Service composes the stores. All derivation is recomputed from the log on
// every call; nothing here caches presence.
type Service struct {
	logs     *eventlog.Store
	taxonomy *reasons.Taxonomy
	tally    *lunch.Tally
	roster   *roster.Store
	queue    queue.Queue
	syncer   *syncsvc.Service // nil when sync is disabled
	log      *zap.Logger
	now      func() time.Time
}

// New builds the service. syncer may be nil.
func New(logs *eventlog.Store, taxonomy *reasons.Taxonomy, tally *lunch.Tally,
	rosterStore *roster.Store, q queue.Queue, syncer *syncsvc.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		logs:     logs,
		taxonomy: taxonomy,
		tally:    tally,
		roster:   rosterStore,
		queue:    q,
		syncer:   syncer,
		log:      log,
		now:      time.Now,
	}
}

// Taxonomy exposes the reason store for the reasons endpoints.
func (s *Service) Taxonomy() *reasons.Taxonomy { return s.taxonomy }

// Roster exposes the roster store for the roster endpoints.
func (s *Service) Roster() *roster.Store { return s.roster }

// Log exposes the event log store for export and row-count endpoints.
func (s *Service) Log() *eventlog.Store { return s.logs }

// SignInRequest carries the fields a sign-in row needs.
type SignInRequest struct {
	Name    string `json:"name" binding:"required"`
	Year    string `json:"year"`
	Teacher string `json:"teacher"`
	Reason  string `json:"reason" binding:"required"`
}

// SignIn appends an entry event for a student in the given room. The
// eligibility check is global scope: a student signed into any room is
// rejected. A failed append is logged and tolerated rather than failing the
// action; losing one audit row must not block the room's door.
func (s *Service) SignIn(ctx context.Context, room eventlog.Room, req SignInRequest) (eventlog.Event, error) {
	if room != eventlog.RoomWellbeing && room != eventlog.RoomDiverseLearners {
		return eventlog.Event{}, ErrInvalidRoom
	}
	name := strings.TrimSpace(req.Name)
	reason := strings.TrimSpace(req.Reason)
	if name == "" || reason == "" {
		return eventlog.Event{}, fmt.Errorf("name and reason required")
	}

	events, _ := s.Events()
	if occupancy.IsPresentAnywhere(events, name) {
		return eventlog.Event{}, ErrAlreadyPresent
	}

	e := eventlog.Event{
		StudentName: name,
		Year:        strings.TrimSpace(req.Year),
		Teacher:     strings.TrimSpace(req.Teacher),
		Reason:      reason,
		Room:        room,
		Timestamp:   s.now(),
		Action:      s.taxonomy.Classify(reason),
	}
	if err := s.logs.Append(e); err != nil {
		s.log.Error("sign-in append failed", zap.String("student", name), zap.Error(err))
	}

	s.notify(ctx, queue.KindCounts)
	s.mirrorActivity(ctx, room, string(e.Action), name)
	return e, nil
}

// SignOut appends an exit event for a student currently present in the
// given room. Presence here is room scoped, unlike sign-in eligibility.
func (s *Service) SignOut(ctx context.Context, room eventlog.Room, name, reason string) (eventlog.Event, error) {
	if room != eventlog.RoomWellbeing && room != eventlog.RoomDiverseLearners {
		return eventlog.Event{}, ErrInvalidRoom
	}
	name = strings.TrimSpace(name)
	reason = strings.TrimSpace(reason)
	if name == "" || reason == "" {
		return eventlog.Event{}, fmt.Errorf("name and reason required")
	}

	events, _ := s.Events()
	if !occupancy.IsPresent(events, name, room) {
		return eventlog.Event{}, ErrNotPresent
	}

	action := s.taxonomy.Classify(reason)
	if action != eventlog.ActionExit {
		// A custom outcome outside the exit list still classifies as entry
		// by the fail-safe rule, which would leave the student present.
		s.log.Warn("sign-out reason classifies as entry",
			zap.String("reason", reason), zap.String("student", name))
	}

	var year, teacher string
	if rec, ok := s.rosterRecord(name); ok {
		year, teacher = rec.Year, rec.Teacher
	}

	e := eventlog.Event{
		StudentName: name,
		Year:        year,
		Teacher:     teacher,
		Reason:      reason,
		Room:        room,
		Timestamp:   s.now(),
		Action:      action,
	}
	if err := s.logs.Append(e); err != nil {
		s.log.Error("sign-out append failed", zap.String("student", name), zap.Error(err))
	}

	s.notify(ctx, queue.KindCounts)
	s.mirrorActivity(ctx, room, string(e.Action), name)
	return e, nil
}

// Events reads and normalizes the full log. An unreadable log degrades to
// zero events plus a safety warning; it is never an error to the caller.
func (s *Service) Events() ([]eventlog.Event, []string) {
	rows, err := s.logs.ReadAll()
	if err != nil {
		s.log.Warn("event log unreadable", zap.Error(err))
		return nil, []string{"SAFETY ERROR: Cannot read log file - assuming no students signed in"}
	}
	if len(rows) == 0 {
		return nil, []string{"SAFETY INFO: No log entries found - no students signed in"}
	}
	return eventlog.NormalizeAll(rows, s.taxonomy), nil
}

// RoomPresence is the per-room presence view.
type RoomPresence struct {
	Room     string           `json:"room"`
	Count    int              `json:"count"`
	Names    []string         `json:"names"`
	Students []roster.Student `json:"students,omitempty"`
}

// PresentInRoom resolves room-scoped presence and decorates names with
// roster records where one matches. Lunch is rejected here; its occupancy
// is the tally, fetched via LunchCount.
func (s *Service) PresentInRoom(room eventlog.Room) (RoomPresence, error) {
	if room != eventlog.RoomWellbeing && room != eventlog.RoomDiverseLearners {
		return RoomPresence{}, ErrInvalidRoom
	}
	events, _ := s.Events()
	names := occupancy.Resolve(events, room)
	return RoomPresence{
		Room:     string(room),
		Count:    len(names),
		Names:    names,
		Students: s.matchRoster(names),
	}, nil
}

// HeadCount is the whole-site safety view.
type HeadCount struct {
	Wellbeing       RoomPresence `json:"wellbeing"`
	DiverseLearners RoomPresence `json:"diverse_learners"`
	LunchCount      int          `json:"lunch_count"`
	Warnings        []string     `json:"warnings,omitempty"`
	AuditedAt       time.Time    `json:"audited_at"`
}

// HeadCounts resolves all three rooms. Wellbeing and diverse learners come
// from the log, lunch only from the tally. Derivation failure shows zeros
// with a warning rather than anything stale.
func (s *Service) HeadCounts() HeadCount {
	events, warnings := s.Events()

	wb := occupancy.Resolve(events, eventlog.RoomWellbeing)
	dl := occupancy.Resolve(events, eventlog.RoomDiverseLearners)
	lunchCount := s.tally.Read()

	hc := HeadCount{
		Wellbeing: RoomPresence{
			Room:     string(eventlog.RoomWellbeing),
			Count:    len(wb),
			Names:    wb,
			Students: s.matchRoster(wb),
		},
		DiverseLearners: RoomPresence{
			Room:     string(eventlog.RoomDiverseLearners),
			Count:    len(dl),
			Names:    dl,
			Students: s.matchRoster(dl),
		},
		LunchCount: lunchCount,
		Warnings:   warnings,
		AuditedAt:  s.now(),
	}
	hc.Warnings = append(hc.Warnings, fmt.Sprintf(
		"SAFETY AUDIT COMPLETE: Wellbeing(%d), Diverse Learners(%d), Lunch(%d)",
		hc.Wellbeing.Count, hc.DiverseLearners.Count, lunchCount))
	return hc
}

// AvailableStudents returns roster students eligible for sign-in: everyone
// whose globally most recent event is not an entry.
func (s *Service) AvailableStudents() ([]roster.Student, []string) {
	students, err := s.roster.List()
	if err != nil {
		s.log.Warn("roster unreadable", zap.Error(err))
		return nil, []string{"SAFETY ERROR: Cannot read roster"}
	}

	events, warnings := s.Events()
	signedIn := make(map[string]struct{})
	for _, name := range occupancy.ResolveAny(events) {
		signedIn[name] = struct{}{}
	}

	available := make([]roster.Student, 0, len(students))
	for _, st := range students {
		if _, ok := signedIn[st.FullName()]; !ok {
			available = append(available, st)
		}
	}
	return available, warnings
}

// Overview is the statistics rollup across all rooms.
type Overview struct {
	Wellbeing       stats.RoomStats `json:"wellbeing"`
	DiverseLearners stats.RoomStats `json:"diverse_learners"`
	Lunch           stats.RoomStats `json:"lunch"`

	TotalSignedInToday    int `json:"total_signed_in_today"`
	TotalEntriesToday     int `json:"total_entries_today"`
	TotalCurrentlyInRooms int `json:"total_currently_in_rooms"`
	TotalStudents         int `json:"total_students"`

	Warnings []string `json:"warnings,omitempty"`
}

// Statistics aggregates all three rooms as of now.
func (s *Service) Statistics() Overview {
	events, warnings := s.Events()
	now := s.now()
	lunchCount := s.tally.Read()

	o := Overview{
		Wellbeing:       stats.ForRoom(events, eventlog.RoomWellbeing, now, lunchCount),
		DiverseLearners: stats.ForRoom(events, eventlog.RoomDiverseLearners, now, lunchCount),
		Lunch:           stats.ForRoom(events, eventlog.RoomLunch, now, lunchCount),
		Warnings:        warnings,
	}
	o.TotalSignedInToday = o.Wellbeing.TodaySignedIn + o.DiverseLearners.TodaySignedIn + o.Lunch.TodaySignedIn
	o.TotalEntriesToday = o.Wellbeing.TodayEntries + o.DiverseLearners.TodayEntries + o.Lunch.TodayEntries
	o.TotalCurrentlyInRooms = o.Wellbeing.CurrentlyInRoom + o.DiverseLearners.CurrentlyInRoom + o.Lunch.CurrentlyInRoom

	if students, err := s.roster.List(); err == nil {
		o.TotalStudents = len(students)
	}
	return o
}

// RoomStatistics aggregates a single room.
func (s *Service) RoomStatistics(room eventlog.Room) stats.RoomStats {
	events, _ := s.Events()
	return stats.ForRoom(events, room, s.now(), s.tally.Read())
}

// LunchIncrement bumps the tally and nudges replication.
func (s *Service) LunchIncrement(ctx context.Context) (int, error) {
	n, err := s.tally.Increment()
	if err != nil {
		return n, err
	}
	s.notify(ctx, queue.KindCounts)
	s.mirrorActivity(ctx, eventlog.RoomLunch, string(eventlog.ActionEntry), fmt.Sprintf("Lunch Student %d", n))
	return n, nil
}

// LunchReset zeroes the tally and nudges replication.
func (s *Service) LunchReset(ctx context.Context) error {
	if err := s.tally.Reset(); err != nil {
		return err
	}
	s.notify(ctx, queue.KindCounts)
	s.mirrorActivity(ctx, eventlog.RoomLunch, "RESET", "All Students")
	return nil
}

// LunchCount reads the tally.
func (s *Service) LunchCount() int { return s.tally.Read() }

// ClearLog removes the event log and zeroes the lunch tally. The two
// stores are structurally independent but the user sees them as one data
// set, so clearing always does both.
func (s *Service) ClearLog(ctx context.Context) error {
	if err := s.logs.Clear(); err != nil {
		return err
	}
	if err := s.tally.Zero(); err != nil {
		return err
	}
	s.notify(ctx, queue.KindClear)
	return nil
}

// RoomCounts snapshots current occupancy for replication.
func (s *Service) RoomCounts() syncsvc.Counts {
	events, _ := s.Events()
	return syncsvc.Counts{
		Wellbeing:       len(occupancy.Resolve(events, eventlog.RoomWellbeing)),
		DiverseLearners: len(occupancy.Resolve(events, eventlog.RoomDiverseLearners)),
		Lunch:           s.tally.Read(),
		Timestamp:       s.now(),
	}
}

// Sync exposes the sync service for the status endpoints; nil when
// disabled.
func (s *Service) Sync() *syncsvc.Service { return s.syncer }

// PushCounts forces an immediate replication push.
func (s *Service) PushCounts(ctx context.Context) error {
	if s.syncer == nil {
		return fmt.Errorf("sync disabled")
	}
	return s.syncer.Push(ctx, s.RoomCounts())
}

// PullCounts fetches the last snapshot any device replicated, for the
// remote-counts view. Local derivation never depends on it.
func (s *Service) PullCounts(ctx context.Context) (syncsvc.Counts, error) {
	if s.syncer == nil {
		return syncsvc.Counts{}, fmt.Errorf("sync disabled")
	}
	return s.syncer.Pull(ctx)
}

func (s *Service) notify(ctx context.Context, kind string) {
	if s.queue == nil {
		return
	}
	msg := queue.Message{Kind: kind, At: s.now()}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.log.Warn("queue publish failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Service) mirrorActivity(ctx context.Context, room eventlog.Room, action string, name string) {
	if s.syncer == nil {
		return
	}
	s.syncer.LogActivity(ctx, string(room), action, name)
}

func (s *Service) rosterRecord(fullName string) (roster.Student, bool) {
	students, err := s.roster.List()
	if err != nil {
		return roster.Student{}, false
	}
	for _, st := range students {
		if st.FullName() == fullName {
			return st, true
		}
	}
	return roster.Student{}, false
}

func (s *Service) matchRoster(names []string) []roster.Student {
	students, err := s.roster.List()
	if err != nil || len(students) == 0 {
		return nil
	}
	byName := make(map[string]roster.Student, len(students))
	for _, st := range students {
		if _, ok := byName[st.FullName()]; !ok {
			byName[st.FullName()] = st
		}
	}
	var matched []roster.Student
	for _, name := range names {
		if st, ok := byName[name]; ok {
			matched = append(matched, st)
		}
	}
	return matched
}
