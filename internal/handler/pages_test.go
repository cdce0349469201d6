package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/leaseshield/internal/gate"
	"github.com/sakif/leaseshield/internal/handler"
	"github.com/sakif/leaseshield/internal/profile"
)

func pageRouter(t *testing.T, env *testEnv) http.Handler {
	t.Helper()
	routes, err := gate.DefaultRoutes()
	require.NoError(t, err)
	g := gate.New(routes, "admin@example.com", profile.NewWatcher(env.db, profile.NewLocalNotifier(), discardLogger()))

	pages, err := handler.NewPageHandler(routes, "G-TEST", "", discardLogger())
	require.NoError(t, err)

	r := chi.NewRouter()
	gated := r.With(g.Middleware(env.tokens, discardLogger()))
	for _, route := range routes.All() {
		gated.Get(route.Path, pages.HandlePage)
	}
	return r
}

func TestHandlePage(t *testing.T) {
	env := newEnv(t)
	u := env.user(t, "tenant@example.com")
	h := pageRouter(t, env)

	t.Run("public page renders for anyone", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/pricing", nil), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<title>Pricing | LeaseShield AI</title>")
		assert.Contains(t, rec.Body.String(), "gtag/js?id=G-TEST")
		assert.Contains(t, rec.Body.String(), `data-signed-in="false"`)
	})

	t.Run("protected page redirects anonymous visitors", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil), nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, gate.LoginPath, rec.Header().Get("Location"))
	})

	t.Run("signed-in user sees route parameters", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/lease42", nil), env.cookie(t, u))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `name="leaseId" value="lease42"`)
		assert.Contains(t, rec.Body.String(), `data-signed-in="true"`)
	})

	t.Run("trial page sends a subscriber to the dashboard", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/trial", nil), env.cookie(t, u))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, gate.DashboardPath, rec.Header().Get("Location"))
	})
}
