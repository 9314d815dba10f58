package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshToken_State(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := RefreshToken{Token: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	require.False(t, tok.IsExpired(now))
	require.True(t, tok.IsActive(now))

	// Граница: now == ExpiresAt уже истёк.
	require.True(t, tok.IsExpired(now.Add(time.Hour)))
	require.False(t, tok.IsActive(now.Add(time.Hour)))
	require.False(t, tok.IsExpired(now.Add(time.Hour-time.Nanosecond)))
}

func TestRefreshToken_Revoke_WriteOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := RefreshToken{Token: "t", ExpiresAt: now.Add(time.Hour)}

	require.True(t, tok.Revoke(now, "1.1.1.1", "next"))
	require.True(t, tok.IsRevoked())
	require.False(t, tok.IsActive(now))
	require.Equal(t, now, *tok.RevokedAt)

	require.False(t, tok.Revoke(now.Add(time.Minute), "2.2.2.2", "other"))
	require.Equal(t, now, *tok.RevokedAt)
	require.Equal(t, "1.1.1.1", tok.RevokedByIP)
	require.Equal(t, "next", tok.ReplacedByToken)
}

func TestRefreshToken_ExpiredThenRevoked(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := RefreshToken{Token: "t", ExpiresAt: now.Add(-time.Minute)}

	require.True(t, tok.IsExpired(now))
	require.False(t, tok.IsRevoked())
	require.True(t, tok.Revoke(now, "ip", ""))
	require.Empty(t, tok.ReplacedByToken)
}
