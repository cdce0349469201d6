package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoutes_Match(t *testing.T) {
	routes, err := DefaultRoutes()
	require.NoError(t, err)

	tests := []struct {
		path         string
		wantPattern  string
		public       bool
		requirePaid  bool
		requireAdmin bool
	}{
		{"/", "/", true, false, false},
		{"/pricing", "/pricing", true, false, false},
		{"/blog/lease-red-flags", "/blog/*", true, false, false},
		{"/dashboard", "/dashboard", false, false, false},
		{"/dashboard/", "/dashboard", false, false, false},
		{"/analysis/abc123", "/analysis/{leaseId}", false, false, false},
		{"/manager", "/manager", false, true, false},
		{"/agent", "/agent", false, true, false},
		{"/scan-expense", "/scan-expense", false, true, false},
		{"/inspect-photos", "/inspect-photos", false, true, false},
		{"/compliance", "/compliance", false, false, true},
		{"/admin", "/admin", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, _, ok := routes.Match(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.wantPattern, route.Path)
			assert.Equal(t, tt.public, route.Public)
			assert.Equal(t, tt.requirePaid, route.RequirePaid)
			assert.Equal(t, tt.requireAdmin, route.RequireAdmin)
		})
	}
}

func TestDefaultRoutes_TrialAndUnknown(t *testing.T) {
	routes, err := DefaultRoutes()
	require.NoError(t, err)

	trial, _, ok := routes.Match("/trial")
	require.True(t, ok)
	assert.True(t, trial.Trial)
	assert.False(t, trial.Protected())

	_, _, ok = routes.Match("/does-not-exist")
	assert.False(t, ok)

	_, _, ok = routes.Match("/analysis/abc/extra")
	assert.False(t, ok)
}

func TestMatch_ExtractsParams(t *testing.T) {
	routes, err := DefaultRoutes()
	require.NoError(t, err)

	_, params, ok := routes.Match("/analysis/lease-77")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"leaseId": "lease-77"}, params)
}

func TestParseRoutes_Rejects(t *testing.T) {
	_, err := ParseRoutes([]byte("routes:\n  - { path: manager }\n"))
	assert.Error(t, err)

	_, err = ParseRoutes([]byte("routes:\n  - { path: /x, public: true, requirePaid: true }\n"))
	assert.Error(t, err)

	_, err = ParseRoutes([]byte("routes: [unclosed"))
	assert.Error(t, err)
}
