package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"OBScan/internal/domain/models"
	"OBScan/internal/domain/repository"
)

// MemoryUserRepository keeps accounts in process memory. It backs local
// development when no postgres DSN is configured.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

var _ repository.UserRepository = (*MemoryUserRepository)(nil)

func (m *MemoryUserRepository) Init(context.Context) error { return nil }

func (m *MemoryUserRepository) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; ok {
		return repository.ErrUserExists
	}
	for _, x := range m.users {
		if strings.EqualFold(x.Email, u.Email) {
			return repository.ErrUserExists
		}
	}
	m.users[u.Username] = clone(u)
	return nil
}

func (m *MemoryUserRepository) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; !ok {
		return repository.ErrUserNotFound
	}
	m.users[u.Username] = clone(u)
	return nil
}

func (m *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := clone(&u)
	return &c, nil
}

func (m *MemoryUserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[username]
	return ok, nil
}

func (m *MemoryUserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryUserRepository) List(context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		c := clone(&u)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func clone(u *models.User) models.User {
	c := *u
	c.Roles = append(models.RoleSet(nil), u.Roles...)
	if u.TrialStart != nil {
		t := *u.TrialStart
		c.TrialStart = &t
	}
	if u.TrialEnd != nil {
		t := *u.TrialEnd
		c.TrialEnd = &t
	}
	return c
}
