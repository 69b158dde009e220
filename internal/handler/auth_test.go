package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskviewer/relay-server-go/internal/model"
	"github.com/deskviewer/relay-server-go/internal/repository"
	"github.com/deskviewer/relay-server-go/internal/service"
	"github.com/deskviewer/relay-server-go/internal/util"
)

type stubUserRepo struct {
	user *model.User
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	if r.user != nil && r.user.ID == id {
		return r.user, nil
	}
	return nil, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if r.user != nil && r.user.Email == email {
		return r.user, nil
	}
	return nil, nil
}

func (r *stubUserRepo) FindBySessionCode(context.Context, string) (*model.User, error) {
	return nil, nil
}

func (r *stubUserRepo) UpdateSessionCode(_ context.Context, _ int64, code *string) error {
	r.user.SessionCode = code
	return nil
}

func (r *stubUserRepo) WithTx(*sqlx.Tx) repository.UserRepository {
	return r
}

type stubCodeRegistry struct{}

func (stubCodeRegistry) AddActiveCode(context.Context, string) error    { return nil }
func (stubCodeRegistry) RemoveActiveCode(context.Context, string) error { return nil }
func (stubCodeRegistry) IsActiveCode(context.Context, string) (bool, error) {
	return false, nil
}

func newTestAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()

	hash, err := util.HashPassword("hunter22")
	require.NoError(t, err)
	repo := &stubUserRepo{user: &model.User{ID: 1, Email: "a@example.com", PasswordHash: hash}}

	codes := service.NewSessionCodeService(repo, stubCodeRegistry{}, 10, 100)
	auth := service.NewAuthService(repo, codes, "test-secret", time.Hour)
	return NewAuthHandler(auth)
}

func TestLoginEndpoint(t *testing.T) {
	post := func(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		return rec
	}

	t.Run("successful login", func(t *testing.T) {
		h := newTestAuthHandler(t)

		rec := post(t, h, `{"email":"a@example.com","password":"hunter22"}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var result struct {
			Token       string `json:"token"`
			SessionCode string `json:"sessionCode"`
			User        struct {
				Email string `json:"email"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.NotEmpty(t, result.Token)
		assert.Len(t, result.SessionCode, 10)
		assert.Equal(t, "a@example.com", result.User.Email)
	})

	t.Run("password hash never leaves the server", func(t *testing.T) {
		h := newTestAuthHandler(t)

		rec := post(t, h, `{"email":"a@example.com","password":"hunter22"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "$2a$")
	})

	t.Run("wrong password", func(t *testing.T) {
		h := newTestAuthHandler(t)

		rec := post(t, h, `{"email":"a@example.com","password":"wrong"}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newTestAuthHandler(t)

		rec := post(t, h, `{not json`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
