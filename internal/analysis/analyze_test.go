package analysis

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
)

func TestAnalyze_TextRequest(t *testing.T) {
	var gotBody map[string]string
	var gotAuth, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"success":true,"analysis":{"extracted_data":{"Landlord_Name":"Jane"},"risks":[],"score":88},"leaseId":"lease-1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeTokens{})
	res, err := c.Analyze(context.Background(), model.TextTask("This lease is made between..."))

	require.NoError(t, err)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, map[string]string{"text": "This lease is made between..."}, gotBody)

	assert.True(t, res.Success)
	assert.Equal(t, 88, res.Score)
	assert.Equal(t, "lease-1", res.SavedID)
	require.NotNil(t, res.ExtractedData["Landlord_Name"])
	assert.Equal(t, "Jane", *res.ExtractedData["Landlord_Name"])
}

func TestAnalyze_FileRequestPreservesFilename(t *testing.T) {
	pdfBytes := minimalPDF(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("leaseFile")
		require.NoError(t, err)
		defer file.Close()

		data, _ := io.ReadAll(file)
		assert.Equal(t, "my lease.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, pdfBytes, data)
		_, _ = io.WriteString(w, `{"success":true,"analysis":{"risks":["a"]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeTokens{})
	res, err := c.Analyze(context.Background(), model.FileTask("my lease.pdf", "application/pdf", pdfBytes))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "my lease.pdf", res.FileName)
	assert.Empty(t, res.SavedID)
}

func TestAnalyze_FreshTokenPerCall(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"success":true,"analysis":{}}`)
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	c := NewClient(srv.URL, tokens)
	for i := 0; i < 3; i++ {
		_, err := c.Analyze(context.Background(), model.TextTask("lease"))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, tokens.count())
	assert.Equal(t, []string{"Bearer token-1", "Bearer token-2", "Bearer token-3"}, seen)
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantError   string
		wantUpgrade bool
	}{
		{"upgrade required", http.StatusPaymentRequired, `{"error":"Free scan limit reached","upgradeRequired":true}`, "Free scan limit reached", true},
		{"402 without marker", http.StatusPaymentRequired, `{"error":"Payment required"}`, "Payment required", true},
		{"marker on another status", http.StatusForbidden, `{"error":"Upgrade to Pro","upgradeRequired":true}`, "Upgrade to Pro", true},
		{"server error with message", http.StatusInternalServerError, `{"error":"model overloaded"}`, "model overloaded", false},
		{"server error without body", http.StatusBadGateway, ``, "Analysis failed with status: 502", false},
		{"non-json error body", http.StatusInternalServerError, `<html>oops</html>`, "Analysis failed with status: 500", false},
		{"2xx without analysis", http.StatusOK, `{"success":true}`, UnexpectedDataMessage, false},
		{"2xx reporting failure", http.StatusOK, `{"success":false,"error":"could not parse lease"}`, "could not parse lease", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res, err := NewClient(srv.URL, &fakeTokens{}).Analyze(context.Background(), model.TextTask("lease"))

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Equal(t, tt.wantUpgrade, res.UpgradeRequired)
			assert.Equal(t, tt.wantUpgrade, IsUpgradeRequired(res, nil))
		})
	}
}

func TestAnalyze_ValidationNeverSends(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	c := NewClient(srv.URL, tokens)

	tasks := []model.AnalysisTask{
		model.TextTask("   "),
		model.FileTask("lease.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("x")),
		model.FileTask("lease.pdf", "application/pdf", []byte("not a pdf")),
		model.FileTask("empty.txt", "text/plain", nil),
	}
	for _, task := range tasks {
		_, err := c.Analyze(context.Background(), task)
		assert.ErrorIs(t, err, apperror.ErrValidation, "task %+v", task.FileName)
	}

	assert.Zero(t, calls)
	assert.Zero(t, tokens.count())
}

func TestAnalyze_NoSession(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	_, err := NewClient(srv.URL, signedOut()).Analyze(context.Background(), model.TextTask("lease"))

	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Zero(t, calls)
}

func TestAnalyze_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, &fakeTokens{}).Analyze(ctx, model.TextTask("lease"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, 60, Score(nil, 4), "fallback: 100 - 10*4")
	assert.Equal(t, 100, Score(nil, 0))
	assert.Equal(t, 0, Score(nil, 12))
	assert.Equal(t, 73, Score(f(73), 9), "explicit score wins over risk count")
	assert.Equal(t, 0, Score(f(0), 0), "explicit zero is kept")
	assert.Equal(t, 100, Score(f(140), 0))
	assert.Equal(t, 0, Score(f(-5), 0))
	assert.Equal(t, 67, Score(f(66.6), 0))
	assert.Equal(t, 100, Score(f(1e300), 0), "huge values clamp before conversion")
	assert.Equal(t, 0, Score(f(-1e300), 0))
	assert.Equal(t, 100, Score(f(math.Inf(1)), 0))
}

func TestNormalize_ScoreFallbackAndLenientFields(t *testing.T) {
	var body analyzeResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"success": true,
		"leaseId": "abc",
		"analysis": {
			"extracted_data": {"Monthly_Rent_Amount": 1500, "Tenant_Name": null, "Pets": true},
			"clause_summaries": {"Pet_Policy": "No pets allowed"},
			"risks": ["Late fee is high", {"description": "No repair timeline"}, "", {"risk": "Auto renewal"}, 7]
		}
	}`), &body))

	res := normalize(body)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"Late fee is high", "No repair timeline", "Auto renewal", "7"}, res.Risks)
	assert.Equal(t, 60, res.Score)
	assert.Equal(t, "abc", res.SavedID)
	require.NotNil(t, res.ExtractedData["Monthly_Rent_Amount"])
	assert.Equal(t, "1500", *res.ExtractedData["Monthly_Rent_Amount"])
	assert.Equal(t, "true", *res.ExtractedData["Pets"])
	assert.Nil(t, res.ExtractedData["Tenant_Name"])
	assert.Equal(t, "No pets allowed", *res.ClauseSummaries["Pet_Policy"])
}

func TestNormalize_RawFallback(t *testing.T) {
	var body analyzeResponse
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"analysis":{"error_message":"Could not parse JSON","raw_analysis":"The lease..."}}`), &body))

	res := normalize(body)

	assert.True(t, res.Success)
	assert.Equal(t, "Could not parse JSON", res.ErrorMessage)
	assert.Equal(t, "The lease...", res.RawAnalysis)
	assert.Equal(t, 100, res.Score)
}
