package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
)

type stubAccounts struct {
	signups   []services.SignupInput
	signupErr error

	logins   []services.LoginInput
	loginErr error

	loggedOut []string
	user      *models.User
	userErr   error
}

func (s *stubAccounts) Signup(_ context.Context, input services.SignupInput) (*models.User, error) {
	s.signups = append(s.signups, input)
	if s.signupErr != nil {
		return nil, s.signupErr
	}
	return &models.User{ID: 9, Email: input.Email, FirstName: input.FirstName, LastName: input.LastName, Role: models.RoleGuest}, nil
}

func (s *stubAccounts) Login(_ context.Context, input services.LoginInput) (*services.LoginResult, error) {
	s.logins = append(s.logins, input)
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &services.LoginResult{
		Token:     "signed.jwt.token",
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		User:      &models.User{ID: 7, Email: input.Email, Role: models.RoleGuest},
	}, nil
}

func (s *stubAccounts) Logout(_ context.Context, sessionID string) error {
	s.loggedOut = append(s.loggedOut, sessionID)
	return nil
}

func (s *stubAccounts) CurrentUser(_ context.Context, userID int64) (*models.User, error) {
	return s.user, s.userErr
}

func setupAuthHandlerRouter(accounts *stubAccounts) *gin.Engine {
	h := NewAuthHandler(accounts, CookieSettings{Name: "auth-token", Secure: true}, testLogger())
	r := gin.New()
	// httptest requests arrive from 192.0.2.1, standing in for the load balancer
	_ = r.SetTrustedProxies([]string{"192.0.2.0/24"})
	auth := r.Group("/api/auth")
	auth.POST("/signup", h.Signup)
	auth.POST("/login", h.Login)
	auth.POST("/logout", asUser(7, models.RoleGuest), h.Logout)
	auth.GET("/me", asUser(7, models.RoleGuest), h.Me)
	return r
}

func TestAuthHandler_Signup(t *testing.T) {
	valid := map[string]string{
		"email":     "ama@example.com",
		"password":  "secret1",
		"firstName": "Ama",
		"lastName":  "Osei",
	}

	t.Run("Success", func(t *testing.T) {
		accounts := &stubAccounts{}
		r := setupAuthHandlerRouter(accounts)

		w := performRequest(r, http.MethodPost, "/api/auth/signup", valid, nil)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		user := body["user"].(map[string]interface{})
		assert.Equal(t, "ama@example.com", user["email"])
		assert.NotContains(t, user, "password_hash")
	})

	t.Run("Short Password", func(t *testing.T) {
		accounts := &stubAccounts{}
		r := setupAuthHandlerRouter(accounts)

		form := map[string]string{"email": "ama@example.com", "password": "123", "firstName": "Ama", "lastName": "Osei"}
		w := performRequest(r, http.MethodPost, "/api/auth/signup", form, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["fields"], "Password")
		assert.Empty(t, accounts.signups)
	})

	t.Run("Email Taken", func(t *testing.T) {
		r := setupAuthHandlerRouter(&stubAccounts{signupErr: database.ErrEmailTaken})

		w := performRequest(r, http.MethodPost, "/api/auth/signup", valid, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	creds := map[string]string{"email": "kofi@example.com", "password": "password123"}

	t.Run("Sets Session Cookie", func(t *testing.T) {
		accounts := &stubAccounts{}
		r := setupAuthHandlerRouter(accounts)

		w := performRequest(r, http.MethodPost, "/api/auth/login", creds, map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
			"X-Forwarded-For": "41.66.200.10",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decodeBody(t, w)["success"])

		var cookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == "auth-token" {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.Equal(t, "signed.jwt.token", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, "/", cookie.Path)
		assert.InDelta(t, 7*24*3600, cookie.MaxAge, 5)

		require.Len(t, accounts.logins, 1)
		assert.Equal(t, "41.66.200.10", accounts.logins[0].IPAddress)
		assert.Contains(t, accounts.logins[0].UserAgent, "Chrome")
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Invalid Credentials", services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"Disabled", services.ErrAccountDisabled, http.StatusForbidden},
		{"Throttled", &services.RateLimitError{Message: "Too many failed login attempts", RetryAfter: time.Now().Add(10 * time.Minute), Type: "login"}, http.StatusTooManyRequests},
		{"Unexpected", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupAuthHandlerRouter(&stubAccounts{loginErr: tt.err})

			w := performRequest(r, http.MethodPost, "/api/auth/login", creds, nil)

			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	accounts := &stubAccounts{}
	r := setupAuthHandlerRouter(accounts)

	w := performRequest(r, http.MethodPost, "/api/auth/logout", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"session-1"}, accounts.loggedOut)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth-token", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := setupAuthHandlerRouter(&stubAccounts{user: &models.User{ID: 7, Email: "kofi@example.com", Role: models.RoleGuest}})

		w := performRequest(r, http.MethodGet, "/api/auth/me", nil, nil)

		require.Equal(t, http.StatusOK, w.Code)
		user := decodeBody(t, w)["user"].(map[string]interface{})
		assert.Equal(t, float64(7), user["id"])
	})

	t.Run("Deleted Account", func(t *testing.T) {
		r := setupAuthHandlerRouter(&stubAccounts{userErr: services.ErrSessionRevoked})

		w := performRequest(r, http.MethodGet, "/api/auth/me", nil, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
