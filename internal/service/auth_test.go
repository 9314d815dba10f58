package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/storage"
)

func TestAuthenticate_OK(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)
	rec := &recorder{}
	svc.events = rec

	account := &models.Account{
		ID:           1,
		Email:        "user@example.com",
		PasswordHash: mustHashPW(t, "secret1"),
		Role:         models.RoleAdmin,
		Version:      3,
	}

	var saved *models.Account
	st.EXPECT().AccountByEmail(gomock.Any(), "user@example.com").Return(account, nil)
	st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *models.Account) error {
			saved = a.Clone()
			return nil
		})

	res, err := svc.Authenticate(context.Background(), "user@example.com", "secret1", "10.0.0.1")
	require.NoError(t, err)

	require.NotEmpty(t, res.AccessToken)
	require.Len(t, res.RefreshToken, 80)
	require.Equal(t, models.RoleAdmin, res.Account.Role)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), res.AccessExpiresAt, 2*time.Second)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.RefreshExpiresAt, 2*time.Second)

	require.Len(t, saved.RefreshTokens, 1)
	require.Equal(t, res.RefreshToken, saved.RefreshTokens[0].Token)
	require.Equal(t, "10.0.0.1", saved.RefreshTokens[0].CreatedByIP)

	id, err := svc.ValidateAccessToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)
	require.Equal(t, 1, rec.count(EventAuthenticateOK))
}

func TestAuthenticate_UnknownEmailAndWrongPassword_SameError(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)

	st.EXPECT().AccountByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().AccountByEmail(gomock.Any(), "user@example.com").
		Return(&models.Account{ID: 1, Email: "user@example.com", PasswordHash: mustHashPW(t, "secret1")}, nil)

	_, errUnknown := svc.Authenticate(context.Background(), "ghost@example.com", "secret1", "ip")
	_, errWrong := svc.Authenticate(context.Background(), "user@example.com", "wrong-pass", "ip")

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestAuthenticate_StorageError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)

	st.EXPECT().AccountByEmail(gomock.Any(), "user@example.com").Return(nil, errors.New("db down"))

	_, err := svc.Authenticate(context.Background(), "user@example.com", "secret1", "ip")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_TokenCollision_Retried(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)

	account := &models.Account{ID: 1, Email: "user@example.com", PasswordHash: mustHashPW(t, "secret1"), Version: 1}

	var lens []int
	st.EXPECT().AccountByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
	gomock.InOrder(
		st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Account) error {
				lens = append(lens, len(a.RefreshTokens))
				return storage.ErrAlreadyExists
			}),
		st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Account) error {
				lens = append(lens, len(a.RefreshTokens))
				return nil
			}),
	)

	res, err := svc.Authenticate(context.Background(), "user@example.com", "secret1", "ip")
	require.NoError(t, err)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, []int{1, 1}, lens)
}

func TestAuthenticate_TokenCollision_Exhausted(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)

	account := &models.Account{ID: 1, Email: "user@example.com", PasswordHash: mustHashPW(t, "secret1"), Version: 1}

	st.EXPECT().AccountByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
	st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists).Times(maxCollisionAttempts)

	_, err := svc.Authenticate(context.Background(), "user@example.com", "secret1", "ip")
	require.ErrorIs(t, err, ErrRefreshTokenCollision)
}

func TestAuthenticate_VersionConflict_ReloadsAccount(t *testing.T) {
	t.Parallel()

	svc, st := newMockSvc(t)

	hash := mustHashPW(t, "secret1")
	stale := &models.Account{ID: 1, Email: "user@example.com", PasswordHash: hash, Version: 1}
	fresh := &models.Account{ID: 1, Email: "user@example.com", PasswordHash: hash, Version: 2,
		RefreshTokens: []models.RefreshToken{{Token: "other-session", ExpiresAt: time.Now().Add(time.Hour)}}}

	st.EXPECT().AccountByEmail(gomock.Any(), gomock.Any()).Return(stale, nil)
	gomock.InOrder(
		st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).Return(storage.ErrConflict),
		st.EXPECT().AccountByID(gomock.Any(), int64(1)).Return(fresh, nil),
		st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Account) error {
				require.EqualValues(t, 2, a.Version)
				require.Len(t, a.RefreshTokens, 2)
				require.Equal(t, "other-session", a.RefreshTokens[0].Token)
				return nil
			}),
	)

	_, err := svc.Authenticate(context.Background(), "user@example.com", "secret1", "ip")
	require.NoError(t, err)
}

func TestAuthenticate_AppendsTokenPerLogin(t *testing.T) {
	t.Parallel()

	svc, st := newMemSvc(t)
	ctx := context.Background()
	id := mustRegister(t, svc, "user@example.com")

	r1, err := svc.Authenticate(ctx, "user@example.com", "secret1", "10.0.0.1")
	require.NoError(t, err)
	r2, err := svc.Authenticate(ctx, "user@example.com", "secret1", "10.0.0.2")
	require.NoError(t, err)
	require.NotEqual(t, r1.RefreshToken, r2.RefreshToken)

	a, err := st.AccountByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, a.RefreshTokens, 2)
	require.True(t, a.OwnsToken(r1.RefreshToken))
	require.True(t, a.OwnsToken(r2.RefreshToken))
}
