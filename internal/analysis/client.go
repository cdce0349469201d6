// Package analysis is the client of the external lease analysis API.
//
// Every call carries a bearer minted for that call alone. Failures reported
// by the API come back as data (a failed AnalysisResult or an *APIError);
// a returned error from Analyze means the request was never sent.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
)

// DefaultTimeout bounds a single upstream call. Document analysis routinely
// takes close to a minute.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// TokenSource hands out a fresh bearer for the session in ctx.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the analysis API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient constructs an analysis API client.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the analysis API.
type APIError struct {
	Status          int
	Message         string
	UpgradeRequired bool
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap maps the status onto the shared error taxonomy so handlers can
// answer with a matching status code.
func (e *APIError) Unwrap() error {
	switch {
	case e.UpgradeRequired || e.Status == http.StatusPaymentRequired:
		return apperror.ErrUpgradeRequired
	case e.Status == http.StatusTooManyRequests:
		return apperror.ErrRateLimited
	case e.Status == http.StatusUnauthorized:
		return apperror.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return apperror.ErrForbidden
	case e.Status == http.StatusBadRequest:
		return apperror.ErrValidation
	}
	return nil
}

// errorBody is the structured failure payload of the API.
type errorBody struct {
	Error           string `json:"error"`
	UpgradeRequired bool   `json:"upgradeRequired"`
}

// newRequest builds an authenticated request. A missing session fails here,
// before anything is sent.
func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("analysis: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("analysis: encoding request: %w", err)
	}
	return c.newRequest(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

// formFile is one file part of a multipart body.
type formFile struct {
	field       string
	fileName    string
	contentType string
	data        []byte
}

func (c *Client) multipartRequest(ctx context.Context, path string, fields map[string]string, files []formFile) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("analysis: writing field %s: %w", name, err)
		}
	}
	for _, f := range files {
		ct := f.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.field), quoteEscaper.Replace(f.fileName)))
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("analysis: creating part %s: %w", f.fileName, err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, fmt.Errorf("analysis: writing part %s: %w", f.fileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("analysis: closing multipart body: %w", err)
	}

	return c.newRequest(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// do sends req and decodes a 2xx JSON body into out. Non-2xx answers become
// an *APIError whose message falls back to fallback(status).
func (c *Client) do(req *http.Request, out any, fallback func(status int) string) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analysis: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("analysis api call",
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &body)
		msg := body.Error
		if msg == "" {
			msg = fallback(resp.StatusCode)
		}
		return &APIError{
			Status:          resp.StatusCode,
			Message:         msg,
			UpgradeRequired: body.UpgradeRequired || resp.StatusCode == http.StatusPaymentRequired,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analysis: decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

func statusMessage(prefix string) func(int) string {
	return func(status int) string {
		return fmt.Sprintf("%s with status: %d", prefix, status)
	}
}

// failureFrom turns a transport or API error into a failed result.
func failureFrom(err error) model.AnalysisResult {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return model.AnalysisResult{
			Success:         false,
			Error:           apiErr.Message,
			UpgradeRequired: apiErr.UpgradeRequired,
		}
	}
	return model.AnalysisResult{Success: false, Error: err.Error()}
}
