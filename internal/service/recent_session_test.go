package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/deskviewer/relay-server-go/internal/errors"
	"github.com/deskviewer/relay-server-go/internal/model"
	"github.com/deskviewer/relay-server-go/internal/repository"
)

type fakeRecentSessionRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []model.RecentSession
}

func (r *fakeRecentSessionRepo) Find(_ context.Context, userID int64, code string) (*model.RecentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].SessionCode == code {
			row := r.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (r *fakeRecentSessionRepo) Create(_ context.Context, userID int64, code string) (*model.RecentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	row := model.RecentSession{
		ID:          r.nextID,
		UserID:      userID,
		SessionCode: code,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.rows = append(r.rows, row)
	return &row, nil
}

func (r *fakeRecentSessionRepo) ListByUser(_ context.Context, userID int64, limit int) ([]model.RecentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.RecentSession{}
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].UserID == userID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

func (r *fakeRecentSessionRepo) Delete(_ context.Context, userID int64, code string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].UserID == userID && r.rows[i].SessionCode == code {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (r *fakeRecentSessionRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []model.RecentSession
	var deleted int64
	for _, row := range r.rows {
		if row.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return deleted, nil
}

func (r *fakeRecentSessionRepo) WithTx(_ *sqlx.Tx) repository.RecentSessionRepository {
	return r
}

func TestRecentSessionAdd(t *testing.T) {
	// Validation runs before any database work, so a nil handle is fine here.
	svc := NewRecentSessionService(nil, &fakeRecentSessionRepo{}, 10)

	t.Run("empty code", func(t *testing.T) {
		_, err := svc.Add(context.Background(), 1, "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("malformed code", func(t *testing.T) {
		for _, code := range []string{"abc", "12345", "12345678901", "123456789x"} {
			_, err := svc.Add(context.Background(), 1, code)
			assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err), "code %q", code)
		}
	})
}

func TestRecentSessionList(t *testing.T) {
	repo := &fakeRecentSessionRepo{}
	svc := NewRecentSessionService(nil, repo, 10)

	for _, code := range []string{"1111111111", "2222222222", "3333333333"} {
		_, err := repo.Create(context.Background(), 1, code)
		require.NoError(t, err)
	}
	_, err := repo.Create(context.Background(), 2, "4444444444")
	require.NoError(t, err)

	t.Run("returns the user's sessions newest first", func(t *testing.T) {
		sessions, err := svc.List(context.Background(), 1, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, "3333333333", sessions[0].SessionCode)
	})

	t.Run("respects an explicit limit", func(t *testing.T) {
		sessions, err := svc.List(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("rejects a limit above the maximum", func(t *testing.T) {
		_, err := svc.List(context.Background(), 1, 51)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("user with no history gets an empty list", func(t *testing.T) {
		sessions, err := svc.List(context.Background(), 99, 0)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestRecentSessionRemove(t *testing.T) {
	repo := &fakeRecentSessionRepo{}
	svc := NewRecentSessionService(nil, repo, 10)

	_, err := repo.Create(context.Background(), 1, "1111111111")
	require.NoError(t, err)

	t.Run("removes an existing entry", func(t *testing.T) {
		require.NoError(t, svc.Remove(context.Background(), 1, "1111111111"))

		sessions, err := svc.List(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("removing again is not found", func(t *testing.T) {
		err := svc.Remove(context.Background(), 1, "1111111111")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("empty code", func(t *testing.T) {
		err := svc.Remove(context.Background(), 1, "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}
