package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	apperrors "github.com/deskviewer/relay-server-go/internal/errors"
	"github.com/deskviewer/relay-server-go/internal/model"
	"github.com/deskviewer/relay-server-go/internal/repository"
	"github.com/deskviewer/relay-server-go/internal/util"
)

// CodeRegistry tracks session codes currently in use. The redis-backed
// implementation lives in internal/redis; tests use an in-memory fake.
type CodeRegistry interface {
	AddActiveCode(ctx context.Context, code string) error
	RemoveActiveCode(ctx context.Context, code string) error
	IsActiveCode(ctx context.Context, code string) (bool, error)
}

// SessionCodeService issues the numeric codes under which hosts register
// their sessions. A code must be unique against both the active-code
// registry and the users table.
type SessionCodeService struct {
	users       repository.UserRepository
	codes       CodeRegistry
	length      int
	maxAttempts int
}

func NewSessionCodeService(users repository.UserRepository, codes CodeRegistry, length, maxAttempts int) *SessionCodeService {
	return &SessionCodeService{
		users:       users,
		codes:       codes,
		length:      length,
		maxAttempts: maxAttempts,
	}
}

// Issue generates a fresh unique code for the user, releases the user's
// previous code, and persists the new one on the user row.
func (s *SessionCodeService) Issue(ctx context.Context, user *model.User) (string, error) {
	code, err := s.generateUnique(ctx)
	if err != nil {
		return "", err
	}

	if err := s.codes.AddActiveCode(ctx, code); err != nil {
		return "", fmt.Errorf("register session code: %w", err)
	}

	if user.SessionCode != nil {
		if err := s.codes.RemoveActiveCode(ctx, *user.SessionCode); err != nil {
			log.Warn().Err(err).Str("code", util.MaskCode(*user.SessionCode)).
				Msg("failed to release previous session code")
		}
	}

	if err := s.users.UpdateSessionCode(ctx, user.ID, &code); err != nil {
		return "", fmt.Errorf("store session code: %w", err)
	}

	log.Info().Int64("userId", user.ID).Str("code", util.MaskCode(code)).Msg("session code issued")
	return code, nil
}

// Release frees a code that is no longer backing a session.
func (s *SessionCodeService) Release(ctx context.Context, code string) error {
	return s.codes.RemoveActiveCode(ctx, code)
}

func (s *SessionCodeService) IsActive(ctx context.Context, code string) (bool, error) {
	return s.codes.IsActiveCode(ctx, code)
}

func (s *SessionCodeService) generateUnique(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := randomCode(s.length)
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}

		active, err := s.codes.IsActiveCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check active codes: %w", err)
		}
		if active {
			continue
		}

		existing, err := s.users.FindBySessionCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check users for session code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", apperrors.CodeExhausted()
}

// randomCode returns a numeric code of the given length with a non-zero
// leading digit.
func randomCode(length int) (string, error) {
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, low).String(), nil
}
