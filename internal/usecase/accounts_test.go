package usecase

import (
	"context"
	"testing"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	"OBScan/internal/repository"
	"OBScan/internal/service/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAccounts(t *testing.T, now time.Time) (*AccountService, *auth.TokenManager) {
	t.Helper()
	tm, err := auth.NewTokenManager(testSecret, time.Hour, auth.WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)
	svc := NewAccountService(repository.NewMemoryUserRepository(), tm, 3, nil)
	svc.now = func() time.Time { return now }
	return svc, tm
}

func TestRegister_Plans(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newAccounts(t, now)
	ctx := context.Background()

	trial, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", PlanTrial)
	require.NoError(t, err)
	assert.NotEmpty(t, trial.ID)
	assert.True(t, trial.Roles.Has(models.RoleUser))
	assert.True(t, trial.Roles.Has(models.RoleTrial))
	assert.False(t, trial.IsPremium)
	require.NotNil(t, trial.TrialEnd)
	assert.Equal(t, now.AddDate(0, 0, 3), *trial.TrialEnd)

	premium, err := svc.Register(ctx, "bob", "bob@example.com", "secret1", PlanPremium)
	require.NoError(t, err)
	assert.True(t, premium.IsPremium)
	assert.True(t, premium.Roles.Has(models.RolePremium))
	assert.Nil(t, premium.TrialEnd)

	basic, err := svc.Register(ctx, "carol", "carol@example.com", "secret1", PlanNone)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSet{models.RoleUser}, basic.Roles)

	_, err = svc.Register(ctx, "dave", "dave@example.com", "secret1", "gold")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestRegister_Duplicates(t *testing.T) {
	svc, _ := newAccounts(t, time.Now())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", PlanTrial)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@example.com", "secret1", PlanTrial)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(ctx, "alice2", "ALICE@example.com", "secret1", PlanTrial)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	now := time.Now()
	svc, tm := newAccounts(t, now)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", PlanPremium)
	require.NoError(t, err)

	resp, err := svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)
	assert.Contains(t, resp.Roles, string(models.RolePremium))

	claims, err := tm.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRoleTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newAccounts(t, now)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", PlanTrial)
	require.NoError(t, err)

	st, err := svc.GrantPremium(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.IsPremium)
	assert.False(t, st.TrialActive)
	assert.Nil(t, st.TrialExpiryDate)
	assert.Contains(t, st.Roles, string(models.RolePremium))
	assert.NotContains(t, st.Roles, string(models.RoleTrial))

	st, err = svc.ActivateTrial(ctx, "alice", 7)
	require.NoError(t, err)
	assert.False(t, st.IsPremium)
	assert.True(t, st.TrialActive)
	assert.Equal(t, now.AddDate(0, 0, 7), *st.TrialExpiryDate)
	assert.NotContains(t, st.Roles, string(models.RolePremium))

	st, err = svc.RevokePremium(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.IsPremium)
	assert.False(t, st.TrialActive)
	assert.Contains(t, st.Roles, string(models.RoleUser))

	_, err = svc.ActivateTrial(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidTrialDays)

	_, err = svc.GrantPremium(ctx, "ghost")
	assert.ErrorIs(t, err, drepo.ErrUserNotFound)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestTrialExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newAccounts(t, now)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", PlanTrial)
	require.NoError(t, err)

	svc.now = func() time.Time { return now.AddDate(0, 0, 4) }
	st, err := svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.TrialActive)
	assert.NotNil(t, st.TrialExpiryDate)
}

func TestEntitle(t *testing.T) {
	p := DefaultEntitlementPolicy()

	e := p.Entitle(&models.UserStatus{IsPremium: true}, drepo.TF15m)
	assert.Equal(t, Entitlement{Allowed: true, Limit: 100, Timeframe: drepo.TF15m}, e)

	e = p.Entitle(&models.UserStatus{TrialActive: true}, drepo.TF1h)
	assert.True(t, e.Allowed)
	assert.Equal(t, 20, e.Limit)
	assert.Equal(t, drepo.TF4h, e.Timeframe)
	assert.True(t, e.Forced)

	e = p.Entitle(&models.UserStatus{TrialActive: true}, drepo.TF4h)
	assert.False(t, e.Forced)

	assert.False(t, p.Entitle(&models.UserStatus{}, drepo.TF4h).Allowed)
	assert.False(t, p.Entitle(nil, drepo.TF4h).Allowed)
}
