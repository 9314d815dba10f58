package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleAccount() *Account {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	upd := now.Add(time.Hour)
	return &Account{
		ID:           7,
		Title:        "Ms",
		FirstName:    "Ann",
		LastName:     "Lee",
		Email:        "ann@example.com",
		PasswordHash: "hash",
		Role:         RoleUser,
		AcceptTerms:  true,
		CreatedAt:    now,
		UpdatedAt:    &upd,
		Version:      3,
		RefreshTokens: []RefreshToken{
			{Token: "a", ExpiresAt: now.Add(time.Hour)},
			{Token: "b", ExpiresAt: now.Add(time.Hour)},
		},
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, RoleUser.Valid())
	require.True(t, RoleAdmin.Valid())
	require.False(t, Role("admin").Valid())
	require.False(t, Role("").Valid())
}

func TestAccount_RefreshToken_OwnsToken(t *testing.T) {
	t.Parallel()

	a := sampleAccount()

	require.NotNil(t, a.RefreshToken("b"))
	require.Nil(t, a.RefreshToken("c"))
	require.True(t, a.OwnsToken("a"))
	require.False(t, a.OwnsToken("c"))
	require.False(t, a.OwnsToken(""))

	// Указатель ссылается на элемент аккаунта.
	a.RefreshToken("a").Revoke(time.Now(), "ip", "")
	require.True(t, a.RefreshTokens[0].IsRevoked())
}

func TestAccount_IsAdmin(t *testing.T) {
	t.Parallel()

	a := sampleAccount()
	require.False(t, a.IsAdmin())
	a.Role = RoleAdmin
	require.True(t, a.IsAdmin())
}

func TestAccount_Clone_Isolated(t *testing.T) {
	t.Parallel()

	a := sampleAccount()
	a.RefreshTokens[0].Revoke(a.CreatedAt, "ip", "b")

	c := a.Clone()
	require.Equal(t, a, c)

	*c.UpdatedAt = c.UpdatedAt.Add(time.Hour)
	*c.RefreshTokens[0].RevokedAt = c.CreatedAt.Add(time.Hour)
	c.RefreshTokens[1].Token = "changed"

	require.Equal(t, a.CreatedAt.Add(time.Hour), *a.UpdatedAt)
	require.Equal(t, a.CreatedAt, *a.RefreshTokens[0].RevokedAt)
	require.Equal(t, "b", a.RefreshTokens[1].Token)
}

func TestAccount_View_HidesSecrets(t *testing.T) {
	t.Parallel()

	a := sampleAccount()
	v := a.View()

	require.Equal(t, AccountView{
		ID:        7,
		Title:     "Ms",
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "ann@example.com",
		Role:      RoleUser,
		Created:   a.CreatedAt,
		Updated:   a.UpdatedAt,
	}, v)
}
