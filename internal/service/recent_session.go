package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/deskviewer/relay-server-go/internal/config"
	"github.com/deskviewer/relay-server-go/internal/database"
	apperrors "github.com/deskviewer/relay-server-go/internal/errors"
	"github.com/deskviewer/relay-server-go/internal/model"
	"github.com/deskviewer/relay-server-go/internal/repository"
	"github.com/deskviewer/relay-server-go/internal/util"
)

// RecentSessionService maintains the per-user history of session codes a
// viewer has connected to.
type RecentSessionService struct {
	db         *database.DB
	repo       repository.RecentSessionRepository
	codeLength int
}

func NewRecentSessionService(db *database.DB, repo repository.RecentSessionRepository, codeLength int) *RecentSessionService {
	return &RecentSessionService{db: db, repo: repo, codeLength: codeLength}
}

// Add records a session code for the user. Adding a code that is already
// recorded is not an error and leaves the existing row untouched.
func (s *RecentSessionService) Add(ctx context.Context, userID int64, code string) (*model.RecentSession, error) {
	if code == "" {
		return nil, apperrors.MissingRequired("Session ID")
	}
	if !util.IsValidSessionCode(code, s.codeLength) {
		return nil, apperrors.InvalidInput("session ID", "must be numeric digits of the configured length")
	}

	var result *model.RecentSession
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.Find(ctx, userID, code)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		created, err := repo.Create(ctx, userID, code)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return result, nil
}

// List returns the user's most recent sessions, newest first. The limit is
// clamped to the configured maximum.
func (s *RecentSessionService) List(ctx context.Context, userID int64, limit int) ([]model.RecentSession, error) {
	if limit <= 0 {
		limit = config.DefaultRecentSessionLimit
	}
	if limit > config.MaxRecentSessionLimit {
		return nil, apperrors.InvalidInput("limit", "cannot exceed 50")
	}

	sessions, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return sessions, nil
}

// Remove deletes one recorded session code for the user.
func (s *RecentSessionService) Remove(ctx context.Context, userID int64, code string) error {
	if code == "" {
		return apperrors.MissingRequired("Session ID")
	}

	deleted, err := s.repo.Delete(ctx, userID, code)
	if err != nil {
		return apperrors.Database(err)
	}
	if deleted == 0 {
		return apperrors.NotFound("Recent session")
	}

	log.Debug().Int64("userId", userID).Str("code", util.MaskCode(code)).Msg("recent session removed")
	return nil
}
