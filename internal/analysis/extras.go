package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
)

const (
	imagePath    = "/api/analyze-image"
	expensePath  = "/api/scan-expense"
	inspectPath  = "/api/inspect-photos"
	agentPath    = "/api/real-estate/analyze"
	chatPath     = "/api/chat"
	checkoutPath = "/api/payid/create-checkout-session"

	ImageField    = "imageFile"
	ExpenseField  = "documents"
	PhotoField    = "photos"
	AgentField    = "documents"
	agentPrefsKey = "tenantPreferences"
)

// ChatModels are the assistant models offered to users. The first is the
// default.
var ChatModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite-preview-06-17",
	"gemini-2.0-flash",
}

// AnalyzeImage sends one photo of a lease or property.
func (c *Client) AnalyzeImage(ctx context.Context, img model.Upload) (model.ImageAnalysis, error) {
	if err := ValidateImage(img.FileName, img.Data); err != nil {
		return model.ImageAnalysis{}, err
	}
	req, err := c.multipartRequest(ctx, imagePath, nil, []formFile{{
		field: ImageField, fileName: img.FileName, contentType: img.ContentType, data: img.Data,
	}})
	if err != nil {
		return model.ImageAnalysis{}, err
	}

	var out model.ImageAnalysis
	if err := c.do(req, &out, statusMessage("Image analysis failed")); err != nil {
		return model.ImageAnalysis{}, err
	}
	return out, nil
}

// ScanExpenses extracts line items and totals from receipts and invoices.
// Per-file failures come back in ExpenseScan.Errors.
func (c *Client) ScanExpenses(ctx context.Context, docs []model.Upload) (model.ExpenseScan, error) {
	if len(docs) == 0 {
		return model.ExpenseScan{}, apperror.ValidationFailed(ExpenseField, "Please add at least one file to scan.")
	}
	req, err := c.multipartRequest(ctx, expensePath, nil, formFiles(ExpenseField, docs))
	if err != nil {
		return model.ExpenseScan{}, err
	}

	var out model.ExpenseScan
	if err := c.do(req, &out, func(int) string { return "Scan failed." }); err != nil {
		return model.ExpenseScan{}, err
	}
	if out.ExtractedDataList == nil {
		out.ExtractedDataList = []model.ExpenseData{}
	}
	if out.Errors == nil {
		out.Errors = []model.FileError{}
	}
	return out, nil
}

// InspectPhotos finds visible damage in property photos and prices the
// repairs.
func (c *Client) InspectPhotos(ctx context.Context, photos []model.Upload) (model.InspectionReport, error) {
	if len(photos) == 0 {
		return model.InspectionReport{}, apperror.ValidationFailed(PhotoField, "Please add at least one photo to inspect.")
	}
	for _, p := range photos {
		if err := ValidateImage(p.FileName, p.Data); err != nil {
			return model.InspectionReport{}, err
		}
	}

	req, err := c.multipartRequest(ctx, inspectPath, nil, formFiles(PhotoField, photos))
	if err != nil {
		return model.InspectionReport{}, err
	}

	var out struct {
		model.InspectionReport
		Error string `json:"error"`
	}
	if err := c.do(req, &out, statusMessage("Request failed")); err != nil {
		return model.InspectionReport{}, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "API indicated an error during inspection."
		}
		return model.InspectionReport{}, &APIError{Status: 200, Message: msg}
	}
	if out.Results == nil || out.RepairEstimate == nil {
		return model.InspectionReport{}, &APIError{Status: 200, Message: "API response format is incorrect."}
	}

	report := out.InspectionReport
	for i := range report.Results {
		for j := range report.Results[i].Issues {
			loc := &report.Results[i].Issues[j].Location
			loc.X = clampPercent(loc.X)
			loc.Y = clampPercent(loc.Y)
		}
	}
	return report, nil
}

// AgentAnalyze screens tenant documents against the landlord's preferences.
func (c *Client) AgentAnalyze(ctx context.Context, prefs model.TenantPreferences, docs []model.Upload) (model.AgentReport, error) {
	if len(docs) == 0 && strings.TrimSpace(prefs.Notes) == "" && prefs.IncomeRange == model.DefaultTenantPreferences().IncomeRange {
		return model.AgentReport{}, apperror.ValidationFailed(AgentField, "Please upload relevant files or specify some tenant preferences.")
	}
	rawPrefs, err := json.Marshal(prefs)
	if err != nil {
		return model.AgentReport{}, fmt.Errorf("analysis: encoding preferences: %w", err)
	}

	req, err := c.multipartRequest(ctx, agentPath, map[string]string{agentPrefsKey: string(rawPrefs)}, formFiles(AgentField, docs))
	if err != nil {
		return model.AgentReport{}, err
	}

	var out struct {
		model.AgentReport
		Error string `json:"error"`
	}
	if err := c.do(req, &out, statusMessage("Request failed")); err != nil {
		return model.AgentReport{}, err
	}
	if !out.Success || out.ExtractedInfo == "" {
		msg := out.Error
		if msg == "" {
			msg = "API did not return the expected information."
		}
		return model.AgentReport{}, &APIError{Status: 200, Message: msg}
	}
	return out.AgentReport, nil
}

// Chat sends one message to the assistant. A 429 means the user's daily
// message allowance is used up.
func (c *Client) Chat(ctx context.Context, message, chatModel string) (model.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.ChatReply{}, apperror.ValidationFailed("message", "message is required")
	}
	if chatModel == "" {
		chatModel = ChatModels[0]
	}
	if !slices.Contains(ChatModels, chatModel) {
		return model.ChatReply{}, apperror.ValidationFailed("model", fmt.Sprintf("unknown model %q", chatModel))
	}

	req, err := c.jsonRequest(ctx, chatPath, map[string]string{"message": message, "model": chatModel})
	if err != nil {
		return model.ChatReply{}, err
	}

	var out model.ChatReply
	err = c.do(req, &out, func(status int) string {
		if status == 429 {
			return "Daily message limit reached."
		}
		return "Server error"
	})
	if err != nil {
		return model.ChatReply{}, err
	}
	out.Model = chatModel
	return out, nil
}

// ErrNoCheckoutURL is returned when the payment backend answers without a
// redirect target.
var ErrNoCheckoutURL = errors.New("analysis: checkout response has no checkoutUrl")

// CreateCheckoutSession starts a hosted checkout and returns its URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, planID string) (string, error) {
	payload := map[string]string{}
	if planID != "" {
		payload["planId"] = planID
	}
	req, err := c.jsonRequest(ctx, checkoutPath, payload)
	if err != nil {
		return "", err
	}

	var out struct {
		CheckoutURL string `json:"checkoutUrl"`
	}
	if err := c.do(req, &out, statusMessage("Checkout failed")); err != nil {
		return "", err
	}
	if out.CheckoutURL == "" {
		return "", ErrNoCheckoutURL
	}
	return out.CheckoutURL, nil
}

func formFiles(field string, uploads []model.Upload) []formFile {
	out := make([]formFile, len(uploads))
	for i, u := range uploads {
		out[i] = formFile{field: field, fileName: u.FileName, contentType: u.ContentType, data: u.Data}
	}
	return out
}

func clampPercent(v float64) float64 {
	return max(0, min(100, v))
}
