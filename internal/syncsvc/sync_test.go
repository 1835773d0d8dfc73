package syncsvc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlog/internal/syncsvc"
)

func TestPushWritesHashFields(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := syncsvc.New(db, "roomlog:counts", "device-1", zap.NewNop())

	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectHSet("roomlog:counts", map[string]interface{}{
		"wellbeing":        2,
		"diverse_learners": 1,
		"lunch":            14,
		"timestamp":        ts.Unix(),
		"device_id":        "device-1",
	}).SetVal(5)

	err := svc.Push(context.Background(), syncsvc.Counts{
		Wellbeing:       2,
		DiverseLearners: 1,
		Lunch:           14,
		Timestamp:       ts,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	st := svc.Status()
	assert.True(t, st.Connected)
	assert.Empty(t, st.LastError)
	assert.False(t, st.LastSync.IsZero())
}

func TestPushErrorRecordedInStatus(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := syncsvc.New(db, "roomlog:counts", "device-1", zap.NewNop())

	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectHSet("roomlog:counts", map[string]interface{}{
		"wellbeing":        1,
		"diverse_learners": 0,
		"lunch":            0,
		"timestamp":        ts.Unix(),
		"device_id":        "device-1",
	}).SetErr(errors.New("connection refused"))

	err := svc.Push(context.Background(), syncsvc.Counts{Wellbeing: 1, Timestamp: ts})
	require.Error(t, err)

	st := svc.Status()
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "connection refused")
}

func TestPullReadsSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := syncsvc.New(db, "roomlog:counts", "device-1", zap.NewNop())

	mock.ExpectHGetAll("roomlog:counts").SetVal(map[string]string{
		"wellbeing":        "3",
		"diverse_learners": "2",
		"lunch":            "20",
		"timestamp":        "1714554000",
		"device_id":        "device-2",
	})

	c, err := svc.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Wellbeing)
	assert.Equal(t, 2, c.DiverseLearners)
	assert.Equal(t, 20, c.Lunch)
	assert.Equal(t, "device-2", c.DeviceID)
	assert.Equal(t, time.Unix(1714554000, 0), c.Timestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPullMissingHashIsZeroSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	svc := syncsvc.New(db, "roomlog:counts", "device-1", zap.NewNop())

	mock.ExpectHGetAll("roomlog:counts").SetVal(map[string]string{})

	c, err := svc.Pull(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.Wellbeing)
	assert.Zero(t, c.Lunch)
	assert.True(t, c.Timestamp.IsZero())
}

func TestStatusBeforeFirstSync(t *testing.T) {
	db, _ := redismock.NewClientMock()
	svc := syncsvc.New(db, "", "device-1", zap.NewNop())

	st := svc.Status()
	assert.False(t, st.Connected)
	assert.True(t, st.LastSync.IsZero())
}

func TestHealthyNilService(t *testing.T) {
	var svc *syncsvc.Service
	assert.False(t, svc.Healthy(context.Background()))
}
