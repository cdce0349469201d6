package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/leaseshield/internal/model"
)

const (
	analyzePath = "/api/analyze"

	// DocumentField is the multipart field carrying a lease document.
	DocumentField = "leaseFile"

	// UnexpectedDataMessage is reported for a 2xx answer without an analysis.
	UnexpectedDataMessage = "Analysis API returned unexpected data"
)

// analyzeResponse is the wire shape of /api/analyze.
type analyzeResponse struct {
	Success         bool          `json:"success"`
	Analysis        *analysisBody `json:"analysis"`
	LeaseID         string        `json:"leaseId"`
	Error           string        `json:"error"`
	UpgradeRequired bool          `json:"upgradeRequired"`
}

// analysisBody is decoded loosely: the model behind the API does not always
// respect the schema, so values of unexpected types are stringified rather
// than rejected.
type analysisBody struct {
	ExtractedData   map[string]any `json:"extracted_data"`
	ClauseSummaries map[string]any `json:"clause_summaries"`
	Risks           []any          `json:"risks"`
	Score           *float64       `json:"score"`
	ErrorMessage    string         `json:"error_message"`
	RawAnalysis     string         `json:"raw_analysis"`
}

// Analyze validates task, sends it, and normalizes the answer.
//
// The returned error is non-nil only when nothing was sent (validation, no
// session) or ctx ended. Everything the API says, including failures and
// upgrade demands, is reported in the result.
func (c *Client) Analyze(ctx context.Context, task model.AnalysisTask) (model.AnalysisResult, error) {
	if err := ValidateTask(task); err != nil {
		return model.AnalysisResult{}, err
	}

	var (
		req *http.Request
		err error
	)
	switch task.Kind {
	case model.InputText:
		req, err = c.jsonRequest(ctx, analyzePath, map[string]string{"text": task.Text})
	default:
		req, err = c.multipartRequest(ctx, analyzePath, nil, []formFile{{
			field:       DocumentField,
			fileName:    task.FileName,
			contentType: baseContentType(task.ContentType),
			data:        task.Data,
		}})
	}
	if err != nil {
		return model.AnalysisResult{}, err
	}

	var body analyzeResponse
	if err := c.do(req, &body, statusMessage("Analysis failed")); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.AnalysisResult{}, ctxErr
		}
		res := failureFrom(err)
		res.FileName = task.FileName
		return res, nil
	}

	res := normalize(body)
	res.FileName = task.FileName
	return res, nil
}

// normalize converts a decoded 2xx answer into a result.
func normalize(body analyzeResponse) model.AnalysisResult {
	if !body.Success || body.Analysis == nil {
		msg := body.Error
		if msg == "" {
			msg = UnexpectedDataMessage
		}
		return model.AnalysisResult{Success: false, Error: msg, UpgradeRequired: body.UpgradeRequired}
	}

	a := body.Analysis
	risks := make([]string, 0, len(a.Risks))
	for _, r := range a.Risks {
		if s := riskText(r); s != "" {
			risks = append(risks, s)
		}
	}

	return model.AnalysisResult{
		Success:         true,
		ExtractedData:   stringMap(a.ExtractedData),
		ClauseSummaries: stringMap(a.ClauseSummaries),
		Risks:           risks,
		Score:           Score(a.Score, len(risks)),
		SavedID:         body.LeaseID,
		ErrorMessage:    a.ErrorMessage,
		RawAnalysis:     a.RawAnalysis,
	}
}

// Score uses the explicit score when present, otherwise 100 minus 10 per
// risk. Either way the result is clamped to [0, 100].
func Score(explicit *float64, riskCount int) int {
	if explicit != nil && !math.IsNaN(*explicit) {
		return int(math.Round(math.Max(0, math.Min(100, *explicit))))
	}
	return max(0, min(100, 100-10*riskCount))
}

func stringMap(in map[string]any) map[string]*string {
	if in == nil {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		out[k] = stringify(v)
	}
	return out
}

// stringify keeps nulls as nil and renders everything else as display text.
func stringify(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(b)
		}
	}
	return &s
}

// riskText accepts plain strings and the object form some prompts produce
// ({"risk": ..., "description": ...}).
func riskText(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		for _, key := range []string{"description", "risk", "text", "title"} {
			if s, ok := x[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case nil:
		return ""
	}
	if s := stringify(v); s != nil {
		return *s
	}
	return ""
}

// IsUpgradeRequired reports whether err or res demands an upgrade.
func IsUpgradeRequired(res model.AnalysisResult, err error) bool {
	if res.UpgradeRequired {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.UpgradeRequired
}
