package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/deskviewer/relay-server-go/internal/model"
)

type RecentSessionRepository interface {
	Find(ctx context.Context, userID int64, code string) (*model.RecentSession, error)
	Create(ctx context.Context, userID int64, code string) (*model.RecentSession, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]model.RecentSession, error)
	Delete(ctx context.Context, userID int64, code string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RecentSessionRepository
}

type recentSessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type recentSessionRepo struct {
	db recentSessionDB
}

func NewRecentSessionRepository(db *sqlx.DB) RecentSessionRepository {
	return &recentSessionRepo{db: db}
}

func (r *recentSessionRepo) WithTx(tx *sqlx.Tx) RecentSessionRepository {
	return &recentSessionRepo{db: tx}
}

func (r *recentSessionRepo) Find(ctx context.Context, userID int64, code string) (*model.RecentSession, error) {
	var rs model.RecentSession
	err := r.db.GetContext(ctx, &rs, `
		SELECT * FROM recent_sessions WHERE user_id = $1 AND session_id = $2
	`, userID, code)
	return HandleNotFound(&rs, err)
}

func (r *recentSessionRepo) Create(ctx context.Context, userID int64, code string) (*model.RecentSession, error) {
	var rs model.RecentSession
	err := r.db.GetContext(ctx, &rs, `
		INSERT INTO recent_sessions (user_id, session_id)
		VALUES ($1, $2)
		RETURNING *
	`, userID, code)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *recentSessionRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]model.RecentSession, error) {
	sessions := []model.RecentSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM recent_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *recentSessionRepo) Delete(ctx context.Context, userID int64, code string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM recent_sessions WHERE user_id = $1 AND session_id = $2
	`, userID, code)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *recentSessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM recent_sessions WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
