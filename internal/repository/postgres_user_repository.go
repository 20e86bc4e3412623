package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"OBScan/internal/domain/models"
	"OBScan/internal/domain/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL DEFAULT '',
	is_premium    BOOLEAN NOT NULL DEFAULT FALSE,
	trial_start   TIMESTAMPTZ NULL,
	trial_end     TIMESTAMPTZ NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const uniqueViolation = "23505"

type userRow struct {
	ID           string       `db:"id"`
	Username     string       `db:"username"`
	Email        string       `db:"email"`
	PasswordHash string       `db:"password_hash"`
	Roles        string       `db:"roles"`
	IsPremium    bool         `db:"is_premium"`
	TrialStart   sql.NullTime `db:"trial_start"`
	TrialEnd     sql.NullTime `db:"trial_end"`
	CreatedAt    time.Time    `db:"created_at"`
}

func toRow(u *models.User) userRow {
	return userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        u.Roles.String(),
		IsPremium:    u.IsPremium,
		TrialStart:   nullTime(u.TrialStart),
		TrialEnd:     nullTime(u.TrialEnd),
		CreatedAt:    u.CreatedAt,
	}
}

func (r userRow) user() *models.User {
	u := &models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Roles:        models.ParseRoles(r.Roles),
		IsPremium:    r.IsPremium,
		CreatedAt:    r.CreatedAt,
	}
	if r.TrialStart.Valid {
		t := r.TrialStart.Time
		u.TrialStart = &t
	}
	if r.TrialEnd.Valid {
		t := r.TrialEnd.Time
		u.TrialEnd = &t
	}
	return u
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgresUserRepository stores accounts in a single users table; roles are
// kept as a comma separated column.
type PostgresUserRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresUserRepository(db *sqlx.DB, timeout time.Duration) *PostgresUserRepository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresUserRepository{db: db, timeout: timeout}
}

var _ repository.UserRepository = (*PostgresUserRepository)(nil)

func (r *PostgresUserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, usersSchema); err != nil {
		return fmt.Errorf("init users schema: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, roles, is_premium, trial_start, trial_end, created_at)
		VALUES (:id, :username, :email, :password_hash, :roles, :is_premium, :trial_start, :trial_end, :created_at)`,
		toRow(u))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", repository.ErrUserExists, u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users SET email = :email, password_hash = :password_hash, roles = :roles,
			is_premium = :is_premium, trial_start = :trial_start, trial_end = :trial_end
		WHERE username = :username`,
		toRow(u))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM users WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return row.user(), nil
}

func (r *PostgresUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PostgresUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *PostgresUserRepository) exists(ctx context.Context, q, arg string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, arg); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return ok, nil
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM users ORDER BY created_at, username`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*models.User, len(rows))
	for i, row := range rows {
		out[i] = row.user()
	}
	return out, nil
}
