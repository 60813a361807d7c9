package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts the user rows the core reads and the presence columns it writes.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetSummaries(ctx context.Context, userIDs []int) (map[int]models.UserSummary, error)
	// UpdateStatus writes status only when stamp is newer than the stored one.
	// It reports whether the row was changed.
	UpdateStatus(ctx context.Context, userID int, status string, lastSeen *time.Time, stamp int64) (bool, error)
	Search(ctx context.Context, term string, excludeID int, limit int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db sqlx.ExtContext
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db sqlx.ExtContext) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, name, email, avatar, status, last_seen, status_stamp`

// GetUser fetches a single user.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.db, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetSummaries returns name and avatar for every known id.
func (r *UserRepo) GetSummaries(ctx context.Context, userIDs []int) (map[int]models.UserSummary, error) {
	result := make(map[int]models.UserSummary, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	query, args, err := in(r.db, `SELECT id, name, avatar FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var rows []models.UserSummary
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	for _, u := range rows {
		result[u.ID] = u
	}
	return result, nil
}

// UpdateStatus persists presence. Stale stamps are ignored.
func (r *UserRepo) UpdateStatus(ctx context.Context, userID int, status string, lastSeen *time.Time, stamp int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users
        SET status=?, last_seen=COALESCE(?, last_seen), status_stamp=?
        WHERE id=? AND status_stamp < ?`), status, lastSeen, stamp, userID, stamp)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Search matches names case-insensitively, excluding the caller.
func (r *UserRepo) Search(ctx context.Context, term string, excludeID int, limit int) ([]models.User, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	var users []models.User
	err := sqlx.SelectContext(ctx, r.db, &users, r.db.Rebind(`SELECT `+userColumns+` FROM users
        WHERE id<>? AND (LOWER(name) LIKE ? OR LOWER(email) LIKE ?)
        ORDER BY name ASC LIMIT ?`), excludeID, pattern, pattern, limit)
	return users, err
}
