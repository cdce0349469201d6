package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sakif/leaseshield/internal/model"
)

// ToJSON encodes res with two-space indentation.
func ToJSON(res model.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return nil, fmt.Errorf("report: encoding json: %w", err)
	}
	return buf.Bytes(), nil
}

// FromJSON decodes what ToJSON produced.
func FromJSON(data []byte) (model.AnalysisResult, error) {
	var res model.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("report: decoding json: %w", err)
	}
	return res, nil
}

// JSONFilename is analysis_<name>.json, where name is the source file name
// up to its first dot.
func JSONFilename(source string) string {
	return exportName(source, "json")
}

func PDFFilename(source string) string {
	return exportName(source, "pdf")
}

func exportName(source, ext string) string {
	base := filepath.Base(strings.TrimSpace(source))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	base = sanitize(base)
	if base == "" {
		return "lease_analysis." + ext
	}
	return "analysis_" + base + "." + ext
}

// sanitize keeps a filename safe for a Content-Disposition header.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
