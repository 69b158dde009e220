package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/deskviewer/relay-server-go/internal/errors"
	"github.com/deskviewer/relay-server-go/internal/model"
	"github.com/deskviewer/relay-server-go/internal/repository"
	"github.com/deskviewer/relay-server-go/internal/util"
)

type LoginResult struct {
	User        *model.User `json:"user"`
	Token       string      `json:"token"`
	SessionCode string      `json:"sessionCode"`
}

type AuthService struct {
	users     repository.UserRepository
	codes     *SessionCodeService
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(users repository.UserRepository, codes *SessionCodeService, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		codes:     codes,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Login verifies credentials, issues a signed token, and assigns the user a
// fresh unique session code under which their host can register.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, apperrors.MissingRequired("Email and password")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.InvalidCredentials()
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	code, err := s.codes.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	user.SessionCode = &code

	log.Info().Int64("userId", user.ID).Msg("user logged in")

	return &LoginResult{
		User:        user,
		Token:       token,
		SessionCode: code,
	}, nil
}

// VerifyToken parses a login token and loads the user it belongs to.
func (s *AuthService) VerifyToken(ctx context.Context, tokenString string) (*model.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("Invalid token").WithCause(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperrors.InvalidToken("Invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, apperrors.InvalidToken("Invalid token subject")
	}
	var userID int64
	if _, err := fmt.Sscan(sub, &userID); err != nil {
		return nil, apperrors.InvalidToken("Invalid token subject")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Unknown user")
	}
	return user, nil
}

func (s *AuthService) signToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
