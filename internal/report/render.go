// Package report turns an analysis result into what users read and download:
// a display model, pretty JSON, a PDF and a letter to the landlord.
//
// Nothing here mutates the result it is given.
package report

import (
	"sort"
	"strings"

	"github.com/sakif/leaseshield/internal/model"
)

const (
	NotFound         = "Not Found"
	NoRisksMessage   = "No significant risks identified"
	NoClausesMessage = "No clause summaries available"
	NoRawOutput      = "No raw output available."
)

// overviewFields lists the extracted keys shown in the overview, in order.
var overviewFields = []struct {
	key   string
	label string
}{
	{"Landlord_Name", "Landlord"},
	{"Tenant_Name", "Tenant"},
	{"Property_Address", "Property Address"},
	{"Lease_Start_Date", "Lease Start Date"},
	{"Lease_End_Date", "Lease End Date"},
	{"Monthly_Rent_Amount", "Monthly Rent Amount"},
	{"Rent_Due_Date", "Rent Due Date"},
	{"Security_Deposit_Amount", "Security Deposit Amount"},
	{"Lease_Term", "Lease Term (months)"},
}

type Field struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Value   string `json:"value"`
	Missing bool   `json:"missing"`
}

type Clause struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// RawFallback is shown when the backend could not structure its output.
type RawFallback struct {
	ErrorMessage string `json:"errorMessage"`
	Output       string `json:"output"`
}

// DisplayModel is everything a report page or PDF shows.
type DisplayModel struct {
	Title    string  `json:"title"`
	Score    int     `json:"score"`
	Severity string  `json:"severity"`
	Overview []Field `json:"overview"`

	Risks          []string `json:"risks"`
	NoRisks        bool     `json:"noRisks"`
	NoRisksMessage string   `json:"noRisksMessage,omitempty"`

	Clauses          []Clause `json:"clauses"`
	NoClausesMessage string   `json:"noClausesMessage,omitempty"`

	Raw *RawFallback `json:"raw,omitempty"`
}

// Render builds the display model for a result.
func Render(res model.AnalysisResult) DisplayModel {
	dm := DisplayModel{
		Title:    "Lease Analysis Report",
		Score:    res.Score,
		Severity: Severity(res.Score),
	}

	dm.Overview = make([]Field, 0, len(overviewFields))
	for _, f := range overviewFields {
		v, ok := value(res.ExtractedData, f.key)
		field := Field{Key: f.key, Label: f.label, Value: v}
		if !ok {
			field.Value = NotFound
			field.Missing = true
		}
		dm.Overview = append(dm.Overview, field)
	}

	dm.Risks = make([]string, 0, len(res.Risks))
	for _, r := range res.Risks {
		if r = strings.TrimSpace(r); r != "" {
			dm.Risks = append(dm.Risks, r)
		}
	}
	if len(dm.Risks) == 0 {
		dm.NoRisks = true
		dm.NoRisksMessage = NoRisksMessage
	}

	dm.Clauses = make([]Clause, 0, len(res.ClauseSummaries))
	for name := range res.ClauseSummaries {
		summary, ok := value(res.ClauseSummaries, name)
		if !ok {
			summary = NotFound
		}
		dm.Clauses = append(dm.Clauses, Clause{Name: ClauseName(name), Summary: summary})
	}
	sort.Slice(dm.Clauses, func(i, j int) bool { return dm.Clauses[i].Name < dm.Clauses[j].Name })
	if len(dm.Clauses) == 0 {
		dm.NoClausesMessage = NoClausesMessage
	}

	if res.ErrorMessage != "" || res.RawAnalysis != "" {
		out := res.RawAnalysis
		if out == "" {
			out = NoRawOutput
		}
		dm.Raw = &RawFallback{ErrorMessage: res.ErrorMessage, Output: out}
	}

	return dm
}

// ClauseName turns a clause key such as "Pet_Policy" into "Pet Policy".
func ClauseName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// Severity buckets a score the way the dashboard colours it.
func Severity(score int) string {
	switch {
	case score < 40:
		return "High Risk"
	case score < 70:
		return "Moderate Concerns"
	default:
		return "Good Lease"
	}
}

// value treats nil, blank and the backend's own "Not Found" as absent.
func value(m map[string]*string, key string) (string, bool) {
	p, ok := m[key]
	if !ok || p == nil {
		return "", false
	}
	v := strings.TrimSpace(*p)
	if v == "" || strings.EqualFold(v, NotFound) {
		return "", false
	}
	return v, true
}
