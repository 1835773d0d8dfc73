package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlog/internal/auth"
	"roomlog/internal/config"
	"roomlog/internal/eventlog"
	"roomlog/internal/lunch"
	"roomlog/internal/queue"
	"roomlog/internal/reasons"
	"roomlog/internal/roster"
	"roomlog/internal/syncsvc"
	"roomlog/internal/wellbeing"
)

func testConfig(t *testing.T) config.App {
	t.Helper()
	return config.App{
		Env:             "dev",
		DataDir:         t.TempDir(),
		SyncKey:         "roomlog:counts",
		JWTIssuer:       "roomlog",
		JWTSigningKey:   "test-signing-key",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      24 * time.Hour,
		RateLimitPerMin: 1000,
	}
}

func testRouter(t *testing.T, cfg config.App, syncer *syncsvc.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	logStore := eventlog.NewStore(cfg.EventLogPath(), logger)
	taxonomy := reasons.Load(cfg.ReasonsPath(), logger)
	tally := lunch.NewTally(cfg.LunchTallyPath(), logStore, logger)
	rosterStore := roster.NewStore(cfg.RosterPath(), logger)

	svc := wellbeing.New(logStore, taxonomy, tally, rosterStore, queue.NewInMemory(8), syncer, logger)
	return newRouter(cfg, svc, auth.NewRegistry())
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerDevice(t *testing.T, r *gin.Engine, deviceID string) (access, refresh string) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/v1/devices/register", "", gin.H{"device_id": deviceID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.AccessToken, resp.RefreshToken
}

func TestRegisterIssuesTokens(t *testing.T) {
	r := testRouter(t, testConfig(t), nil)
	access, _ := registerDevice(t, r, "device-1")

	// The access token works against the authenticated group.
	w := doJSON(r, http.MethodGet, "/v1/lunch", access, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticatedGroupRejectsMissingToken(t *testing.T) {
	r := testRouter(t, testConfig(t), nil)

	w := doJSON(r, http.MethodGet, "/v1/lunch", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	r := testRouter(t, testConfig(t), nil)
	_, refresh := registerDevice(t, r, "device-1")

	w := doJSON(r, http.MethodPost, "/v1/devices/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	wAuthed := doJSON(r, http.MethodGet, "/v1/lunch", resp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, wAuthed.Code)
}

func TestRefreshRejectsUnregisteredDevice(t *testing.T) {
	cfg := testConfig(t)
	r := testRouter(t, cfg, nil)

	// A validly signed token for a device this process never registered.
	pair, err := auth.Issue("ghost-device", "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/v1/devices/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	r := testRouter(t, testConfig(t), nil)

	w := doJSON(r, http.MethodPost, "/v1/devices/refresh", "", gin.H{"refresh_token": "not.a.token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncCountsReturnsRemoteSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	syncer := syncsvc.New(db, "roomlog:counts", "device-1", zap.NewNop())
	r := testRouter(t, testConfig(t), syncer)
	access, _ := registerDevice(t, r, "device-1")

	mock.ExpectHGetAll("roomlog:counts").SetVal(map[string]string{
		"wellbeing":        "3",
		"diverse_learners": "1",
		"lunch":            "12",
		"timestamp":        "1714554000",
		"device_id":        "device-2",
	})

	w := doJSON(r, http.MethodGet, "/v1/sync/counts", access, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var counts syncsvc.Counts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, 3, counts.Wellbeing)
	assert.Equal(t, 1, counts.DiverseLearners)
	assert.Equal(t, 12, counts.Lunch)
	assert.Equal(t, "device-2", counts.DeviceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCountsWhenSyncDisabled(t *testing.T) {
	r := testRouter(t, testConfig(t), nil)
	access, _ := registerDevice(t, r, "device-1")

	w := doJSON(r, http.MethodGet, "/v1/sync/counts", access, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
