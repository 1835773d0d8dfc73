// Package syncsvc replicates room head counts to a shared Redis instance so
// other devices can display them. Replication is opportunistic: every view
// remains fully computable from local files when Redis is down, and
// failures surface only as a status indicator.
package syncsvc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomlog/internal/metrics"
)

// Counts is the replicated per-room snapshot. Last write wins across
// devices.
type Counts struct {
	Wellbeing       int       `json:"wellbeing"`
	DiverseLearners int       `json:"diverse_learners"`
	Lunch           int       `json:"lunch"`
	Timestamp       time.Time `json:"timestamp"`
	DeviceID        string    `json:"device_id"`
}

// Status is the non-blocking health view the API exposes.
type Status struct {
	Connected bool      `json:"connected"`
	LastSync  time.Time `json:"last_sync,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// NewClient connects to Redis with short timeouts so a dead sync target
// cannot stall local operations.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// Service pushes and pulls count snapshots. One counts hash and one
// bounded activity list per install key.
type Service struct {
	rdb      *redis.Client
	key      string
	deviceID string
	log      *zap.Logger

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
}

const activityMax = 500

// New creates a sync service. key namespaces one install's counters.
func New(rdb *redis.Client, key, deviceID string, log *zap.Logger) *Service {
	if key == "" {
		key = "roomlog:counts"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rdb: rdb, key: key, deviceID: deviceID, log: log}
}

// Push replicates a snapshot. The error is recorded for Status and counted,
// never fatal.
func (s *Service) Push(ctx context.Context, c Counts) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	err := s.rdb.HSet(ctx, s.key, map[string]interface{}{
		"wellbeing":        c.Wellbeing,
		"diverse_learners": c.DiverseLearners,
		"lunch":            c.Lunch,
		"timestamp":        c.Timestamp.Unix(),
		"device_id":        s.deviceID,
	}).Err()
	s.record(err)
	if err != nil {
		metrics.SyncFailures.WithLabelValues("push").Inc()
		return fmt.Errorf("sync push: %w", err)
	}
	return nil
}

// Pull fetches the most recent replicated snapshot. A missing hash is a
// zero snapshot, not an error.
func (s *Service) Pull(ctx context.Context) (Counts, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	s.record(err)
	if err != nil {
		metrics.SyncFailures.WithLabelValues("pull").Inc()
		return Counts{}, fmt.Errorf("sync pull: %w", err)
	}

	var c Counts
	c.Wellbeing = atoiField(fields, "wellbeing")
	c.DiverseLearners = atoiField(fields, "diverse_learners")
	c.Lunch = atoiField(fields, "lunch")
	if ts := atoiField(fields, "timestamp"); ts > 0 {
		c.Timestamp = time.Unix(int64(ts), 0)
	}
	c.DeviceID = fields["device_id"]
	return c, nil
}

// LogActivity mirrors one sign-in/sign-out to a bounded activity list.
// Fire and forget.
func (s *Service) LogActivity(ctx context.Context, room, action, studentName string) {
	entry := fmt.Sprintf("%d|%s|%s|%s|%s",
		time.Now().Unix(), s.deviceID, room, action, studentName)
	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, s.key+":activity", entry)
	pipe.LTrim(ctx, s.key+":activity", 0, activityMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.SyncFailures.WithLabelValues("activity").Inc()
		s.log.Debug("activity mirror failed", zap.Error(err))
	}
}

// Healthy verifies connectivity.
func (s *Service) Healthy(ctx context.Context) bool {
	if s == nil || s.rdb == nil {
		return false
	}
	return s.rdb.Ping(ctx).Err() == nil
}

// Status reports the last sync outcome without touching the network.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Connected: s.lastErr == nil && !s.lastSync.IsZero(),
		LastSync:  s.lastSync,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Service) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastSync = time.Now()
	}
}

func atoiField(fields map[string]string, key string) int {
	n, _ := strconv.Atoi(fields[key])
	return n
}
