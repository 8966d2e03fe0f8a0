package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/platform/db"
	"github.com/tagboard/tagboard/internal/shared"
)

var (
	// ErrDuplicateName indicates another account already uses the name.
	ErrDuplicateName = errors.New("users: duplicate name")
	// ErrNotFirst is returned by SaveFirst once any account exists.
	ErrNotFirst = errors.New("users: not the first account")
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	FindByName(ctx context.Context, name string) (*User, error)
	FindByNameOrEmail(ctx context.Context, identifier string) (*User, error)
	FindByEmailToken(ctx context.Context, token string) (*User, error)
	Count(ctx context.Context) (int64, error)
	Save(ctx context.Context, user *User) error
	// SaveFirst inserts user only while no account exists. Concurrent calls
	// are serialized so that at most one of them succeeds.
	SaveFirst(ctx context.Context, user *User) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUser = `SELECT id, name, pass_salt, pass_hash, access_rank,
	COALESCE(email_confirmed, ''), COALESCE(email_unconfirmed, ''), COALESCE(email_token, ''),
	staff_confirmed, banned, join_date, COALESCE(last_login_date, join_date)
	FROM users`

// FindByName fetches a user by case-insensitive name.
func (r *PGRepository) FindByName(ctx context.Context, name string) (*User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE LOWER(name) = LOWER($1)`, name)
	return scanUser(row, name)
}

// FindByNameOrEmail fetches a user by name, falling back to the confirmed
// e-mail address.
func (r *PGRepository) FindByNameOrEmail(ctx context.Context, identifier string) (*User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE LOWER(name) = LOWER($1) OR LOWER(email_confirmed) = LOWER($1)
		ORDER BY (LOWER(name) = LOWER($1)) DESC LIMIT 1`, strings.TrimSpace(identifier))
	return scanUser(row, identifier)
}

// FindByEmailToken fetches the user awaiting confirmation of an e-mail
// address with token.
func (r *PGRepository) FindByEmailToken(ctx context.Context, token string) (*User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE email_token = $1`, token)
	return scanUser(row, token)
}

// Count returns the number of registered users.
func (r *PGRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return n, nil
}

// Save inserts new users and updates existing ones.
func (r *PGRepository) Save(ctx context.Context, user *User) error {
	if user.IsNew() {
		return insertUser(ctx, r.pool, user)
	}
	_, err := r.pool.Exec(ctx, `UPDATE users SET name = $2, pass_salt = $3, pass_hash = $4, access_rank = $5,
		email_confirmed = NULLIF($6, ''), email_unconfirmed = NULLIF($7, ''), email_token = NULLIF($8, ''),
		staff_confirmed = $9, banned = $10, last_login_date = $11
		WHERE id = $1`,
		user.ID, user.Name, user.PasswordSalt, user.PasswordHash, user.Rank.String(),
		user.EmailConfirmed, user.EmailUnconfirmed, user.EmailToken, user.StaffConfirmed, user.Banned, nullableTime(user.LastLoginAt),
	)
	return translateWriteErr(err)
}

// SaveFirst inserts the first account.
func (r *PGRepository) SaveFirst(ctx context.Context, user *User) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return saveFirst(ctx, tx, user)
	})
}

// saveFirst locks the table against its own lock mode and against plain
// inserts, so a racing registration either waits or is seen.
func saveFirst(ctx context.Context, tx pgx.Tx, user *User) error {
	if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("users: lock: %w", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return fmt.Errorf("users: count: %w", err)
	}
	if exists {
		return ErrNotFirst
	}
	return insertUser(ctx, tx, user)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertUser(ctx context.Context, q rowQuerier, user *User) error {
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	err := q.QueryRow(ctx, `INSERT INTO users
		(name, pass_salt, pass_hash, access_rank, email_confirmed, email_unconfirmed, email_token, staff_confirmed, banned, join_date)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10) RETURNING id`,
		user.Name, user.PasswordSalt, user.PasswordHash, user.Rank.String(),
		user.EmailConfirmed, user.EmailUnconfirmed, user.EmailToken, user.StaffConfirmed, user.Banned, user.JoinedAt,
	).Scan(&user.ID)
	return translateWriteErr(err)
}

func scanUser(row pgx.Row, key string) (*User, error) {
	var (
		user User
		rank string
	)
	err := row.Scan(&user.ID, &user.Name, &user.PasswordSalt, &user.PasswordHash, &rank,
		&user.EmailConfirmed, &user.EmailUnconfirmed, &user.EmailToken, &user.StaffConfirmed, &user.Banned,
		&user.JoinedAt, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shared.NotFoundError{Entity: "user", Key: key}
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	parsed, err := access.ParseRank(rank)
	if err != nil {
		return nil, fmt.Errorf("users: %s: %w", user.Name, err)
	}
	user.Rank = parsed
	return &user, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return fmt.Errorf("users: save: %w", err)
}

var _ Repository = (*PGRepository)(nil)
