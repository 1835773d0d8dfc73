package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomlog/internal/auth"
)

const testKey = "test-signing-key"

func TestIssueAndParse(t *testing.T) {
	pair, err := auth.Issue("device-1", "device", "roomlog", testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := auth.Parse(pair.AccessToken, testKey, "roomlog")
	require.NoError(t, err)
	assert.Equal(t, "device-1", claims.Subject)
	assert.Equal(t, "device", claims.Role)
	assert.Equal(t, "roomlog", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := auth.Issue("device-1", "device", "roomlog", testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, "other-key", "roomlog")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := auth.Issue("device-1", "device", "someone-else", testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, testKey, "roomlog")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	pair, err := auth.Issue("device-1", "device", "roomlog", testKey, -time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = auth.Parse(pair.AccessToken, testKey, "roomlog")
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := auth.Parse("not.a.token", testKey, "roomlog")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := auth.NewRegistry()

	assert.False(t, r.Known("device-1"))
	require.NoError(t, r.Register("device-1"))
	assert.True(t, r.Known("device-1"))

	// Registering again is a no-op, not an error.
	require.NoError(t, r.Register("device-1"))

	assert.Error(t, r.Register(""))
}
