package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	"OBScan/internal/service/auth"
	applogger "OBScan/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email is already in use")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPlan        = errors.New("plan must be trial, premium or none")
	ErrInvalidTrialDays   = errors.New("trial days must be positive")
)

const (
	PlanTrial   = "trial"
	PlanPremium = "premium"
	PlanNone    = "none"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(username string, roles []string) (string, time.Time, error)
}

// AccountService covers registration, login and the admin role changes.
type AccountService struct {
	users     drepo.UserRepository
	tokens    TokenIssuer
	trialDays int
	log       *applogger.Logger
	now       func() time.Time
}

func NewAccountService(users drepo.UserRepository, tokens TokenIssuer, trialDays int, l *applogger.Logger) *AccountService {
	if trialDays <= 0 {
		trialDays = 3
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &AccountService{users: users, tokens: tokens, trialDays: trialDays, log: l, now: time.Now}
}

// Register creates an account. Every user gets ROLE_USER; the trial plan adds
// ROLE_TRIAL with a trial window, the premium plan ROLE_PREMIUM.
func (s *AccountService) Register(ctx context.Context, username, email, password, plan string) (*models.User, error) {
	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}
	taken, err = s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        models.RoleSet{models.RoleUser},
		CreatedAt:    now,
	}
	switch strings.ToLower(plan) {
	case PlanTrial, "":
		s.startTrial(u, now, s.trialDays)
	case PlanPremium:
		u.Roles = u.Roles.With(models.RolePremium)
		u.IsPremium = true
	case PlanNone:
	default:
		return nil, ErrInvalidPlan
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, drepo.ErrUserExists) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.log.Info("user registered", applogger.String("username", username), applogger.String("roles", u.Roles.String()))
	return u, nil
}

// Login checks the password and issues a token.
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, drepo.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.Username, u.Roles.Strings())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &models.AuthResponse{
		Token:     token,
		Username:  u.Username,
		Roles:     u.Roles.Strings(),
		ExpiresAt: exp.UnixMilli(),
	}, nil
}

// Status reports premium and trial state as of now.
func (s *AccountService) Status(ctx context.Context, username string) (*models.UserStatus, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.status(u), nil
}

func (s *AccountService) status(u *models.User) *models.UserStatus {
	return &models.UserStatus{
		Username:        u.Username,
		IsPremium:       u.IsPremium,
		TrialActive:     u.TrialActive(s.now()),
		TrialExpiryDate: u.TrialEnd,
		Roles:           u.Roles.Strings(),
	}
}

// ListUsers returns every account's status.
func (s *AccountService) ListUsers(ctx context.Context) ([]*models.UserStatus, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.UserStatus, len(users))
	for i, u := range users {
		out[i] = s.status(u)
	}
	return out, nil
}

// GrantPremium makes the user premium and ends any trial.
func (s *AccountService) GrantPremium(ctx context.Context, username string) (*models.UserStatus, error) {
	return s.update(ctx, username, "premium granted", func(u *models.User) {
		u.IsPremium = true
		u.TrialStart, u.TrialEnd = nil, nil
		u.Roles = u.Roles.With(models.RolePremium).Without(models.RoleTrial)
	})
}

// RevokePremium removes premium and clears trial dates.
func (s *AccountService) RevokePremium(ctx context.Context, username string) (*models.UserStatus, error) {
	return s.update(ctx, username, "premium revoked", func(u *models.User) {
		u.IsPremium = false
		u.TrialStart, u.TrialEnd = nil, nil
		u.Roles = u.Roles.Without(models.RolePremium)
	})
}

// ActivateTrial starts a fresh trial of days and drops premium.
func (s *AccountService) ActivateTrial(ctx context.Context, username string, days int) (*models.UserStatus, error) {
	if days <= 0 {
		return nil, ErrInvalidTrialDays
	}
	now := s.now().UTC()
	return s.update(ctx, username, "trial activated", func(u *models.User) {
		s.startTrial(u, now, days)
		u.Roles = u.Roles.Without(models.RolePremium)
	})
}

func (s *AccountService) startTrial(u *models.User, now time.Time, days int) {
	end := now.AddDate(0, 0, days)
	u.TrialStart, u.TrialEnd = &now, &end
	u.IsPremium = false
	u.Roles = u.Roles.With(models.RoleTrial)
}

func (s *AccountService) update(ctx context.Context, username, event string, mutate func(*models.User)) (*models.UserStatus, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	mutate(u)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info(event, applogger.String("username", username), applogger.String("roles", u.Roles.String()))
	return s.status(u), nil
}

// EntitlementPolicy holds the per-plan scan limits.
type EntitlementPolicy struct {
	PremiumLimit   int
	TrialLimit     int
	TrialTimeframe drepo.Timeframe
}

func DefaultEntitlementPolicy() EntitlementPolicy {
	return EntitlementPolicy{PremiumLimit: 100, TrialLimit: 20, TrialTimeframe: drepo.TF4h}
}

// Entitlement is what a user may scan.
type Entitlement struct {
	Allowed   bool
	Limit     int
	Timeframe drepo.Timeframe
	Forced    bool // requested timeframe was overridden
}

// Entitle applies the policy: premium scans the requested timeframe over
// PremiumLimit instruments; an active trial gets TrialLimit instruments on
// TrialTimeframe; anyone else is denied.
func (p EntitlementPolicy) Entitle(st *models.UserStatus, requested drepo.Timeframe) Entitlement {
	switch {
	case st == nil:
		return Entitlement{}
	case st.IsPremium:
		return Entitlement{Allowed: true, Limit: p.PremiumLimit, Timeframe: requested}
	case st.TrialActive:
		return Entitlement{
			Allowed:   true,
			Limit:     p.TrialLimit,
			Timeframe: p.TrialTimeframe,
			Forced:    requested != p.TrialTimeframe,
		}
	default:
		return Entitlement{}
	}
}
