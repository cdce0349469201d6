package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/handler"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/profile"
	"github.com/sakif/leaseshield/internal/service"
)

func accountRouter(env *testEnv) http.Handler {
	logger := discardLogger()
	authSvc := service.NewAuthService(env.db, env.tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), logger)
	profiles := service.NewProfileService(env.db, env.db, profile.NewLocalNotifier(), logger)
	authHandler := handler.NewAuthHandler(authSvc, nil, false, logger)
	account := handler.NewAccountHandler(authSvc, profiles, env.db, "G-TEST", "", logger)

	r := chi.NewRouter()
	r.Post("/auth/register", authHandler.HandleRegister)
	r.Post("/auth/login", authHandler.HandleLogin)
	r.Post("/auth/logout", authHandler.HandleLogout)
	r.Get("/auth/google/login", authHandler.HandleGoogleLogin)
	r.Get("/api/config", account.HandleConfig)
	r.Get("/healthz", account.HandleHealth)
	r.With(auth.RequireAuth(env.tokens)).Get("/api/me", account.HandleMe)
	return r
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newEnv(t)
	h := accountRouter(env)
	creds := `{"email":"  Tenant@Example.com ","password":"correct horse battery"}`

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(creds)), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	var user model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "tenant@example.com", user.Email)
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(creds)), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(creds)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sessionCookie(rec))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/me", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Session auth.Session   `json:"session"`
		Profile *model.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.True(t, me.Session.Present)
	require.NotNil(t, me.Profile)
	assert.Equal(t, model.TierFree, me.Profile.SubscriptionTier)
}

func TestLogin_Failures(t *testing.T) {
	env := newEnv(t)
	h := accountRouter(env)
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"tenant@example.com","password":"correct horse battery"}`)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong password", body: `{"email":"tenant@example.com","password":"wrong password!"}`},
		{name: "unknown email", body: `{"email":"nobody@example.com","password":"correct horse battery"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)), nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Invalid email or password")
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	env := newEnv(t)
	rec := serve(accountRouter(env), httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"tenant@example.com","password":"short"}`)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newEnv(t)
	rec := serve(accountRouter(env), httptest.NewRequest(http.MethodPost, "/auth/logout", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestGoogleLogin_NotConfigured(t *testing.T) {
	env := newEnv(t)
	rec := serve(accountRouter(env), httptest.NewRequest(http.MethodGet, "/auth/google/login", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigAndHealth(t *testing.T) {
	env := newEnv(t)
	h := accountRouter(env)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/config", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg handler.PublicConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "G-TEST", cfg.GAMeasurementID)
	assert.NotEmpty(t, cfg.ChatModels)
	assert.Equal(t, cfg.ChatModels[0], cfg.DefaultModel)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
