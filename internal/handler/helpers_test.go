package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/repository/sqlite"
)

const testSecret = "handler-test-secret-0123456789"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is an in-memory database plus a token service, shared by the
// handler tests.
type testEnv struct {
	db     *sqlite.DB
	tokens *auth.TokenService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	return &testEnv{db: db, tokens: tokens}
}

func (e *testEnv) user(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, DisplayName: "Test", PasswordHash: "hash"}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) setTier(t *testing.T, u *model.User, tier model.Tier) {
	t.Helper()
	_, err := e.db.UpdateProfile(context.Background(), model.ProfileUpdate{UserID: u.ID, SubscriptionTier: &tier})
	require.NoError(t, err)
}

// cookie returns a session cookie for u.
func (e *testEnv) cookie(t *testing.T, u *model.User) *http.Cookie {
	t.Helper()
	token, err := e.tokens.Generate(u.ID, u.Email)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func serve(h http.Handler, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
