package service

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, _ := newMemSvc(t)
	ctx := context.Background()

	tok, exp, err := svc.generateAccessToken(ctx, 42, svc.now())
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	id, err := svc.ValidateAccessToken(ctx, tok)
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
}

func TestAccessToken_Claims(t *testing.T) {
	t.Parallel()

	clk := newClock()
	svc, _ := newMemSvc(t, WithClock(clk.Now))

	tok, _, err := svc.generateAccessToken(context.Background(), 7, clk.Now())
	require.NoError(t, err)

	claims := &accessClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	require.NoError(t, err)

	require.Equal(t, "7", claims.ID)
	require.Equal(t, "7", claims.Subject)
	require.Equal(t, "account-service", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"account-api"}, claims.Audience)
	require.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestAccessToken_Expired(t *testing.T) {
	t.Parallel()

	clk := newClock()
	svc, _ := newMemSvc(t, WithClock(clk.Now))
	ctx := context.Background()

	tok, _, err := svc.generateAccessToken(ctx, 1, clk.Now())
	require.NoError(t, err)

	clk.Advance(15*time.Minute - time.Second)
	_, err = svc.ValidateAccessToken(ctx, tok)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = svc.ValidateAccessToken(ctx, tok)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAccessToken_Rejected(t *testing.T) {
	t.Parallel()

	svc, _ := newMemSvc(t)
	ctx := context.Background()
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, mutate func(c *accessClaims)) string {
		c := &accessClaims{
			ID: "1",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "1",
				Issuer:    "account-service",
				Audience:  jwt.ClaimStrings{"account-api"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		if mutate != nil {
			mutate(c)
		}
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}

	secret := []byte("unit-secret")

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "empty", token: ""},
		{name: "wrong secret", token: sign(jwt.SigningMethodHS256, []byte("other"), nil)},
		{name: "wrong alg", token: sign(jwt.SigningMethodHS512, secret, nil)},
		{name: "alg none", token: sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, nil)},
		{name: "wrong issuer", token: sign(jwt.SigningMethodHS256, secret, func(c *accessClaims) { c.Issuer = "evil" })},
		{name: "wrong audience", token: sign(jwt.SigningMethodHS256, secret, func(c *accessClaims) { c.Audience = jwt.ClaimStrings{"other"} })},
		{name: "no expiry", token: sign(jwt.SigningMethodHS256, secret, func(c *accessClaims) { c.ExpiresAt = nil })},
		{name: "id mismatch", token: sign(jwt.SigningMethodHS256, secret, func(c *accessClaims) { c.ID = "2" })},
		{name: "non numeric id", token: sign(jwt.SigningMethodHS256, secret, func(c *accessClaims) { c.ID, c.Subject = "x", "x" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(ctx, tt.token)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestNewRefreshToken(t *testing.T) {
	t.Parallel()

	clk := newClock()
	svc, _ := newMemSvc(t, WithClock(clk.Now))

	a, err := svc.newRefreshToken("10.0.0.1", clk.Now())
	require.NoError(t, err)
	b, err := svc.newRefreshToken("10.0.0.1", clk.Now())
	require.NoError(t, err)

	require.Len(t, a.Token, 80)
	raw, err := hex.DecodeString(a.Token)
	require.NoError(t, err)
	require.Len(t, raw, 40)

	require.NotEqual(t, a.Token, b.Token)
	require.Equal(t, "10.0.0.1", a.CreatedByIP)
	require.Equal(t, clk.Now(), a.CreatedAt)
	require.Equal(t, clk.Now().Add(7*24*time.Hour), a.ExpiresAt)
	require.True(t, a.IsActive(clk.Now()))
	require.Nil(t, a.RevokedAt)
	require.Empty(t, a.ReplacedByToken)
}

func TestNewRefreshToken_RandFailure(t *testing.T) {
	old := randRead
	randRead = func(b []byte) (int, error) { return 0, errors.New("entropy exhausted") }
	t.Cleanup(func() { randRead = old })

	svc, _ := newMemSvc(t)

	_, err := svc.newRefreshToken("ip", time.Now())
	require.Error(t, err)
}
