package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/sakif/leaseshield/internal/model"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html").
		Funcs(template.FuncMap{"severityClass": severityClass}).
		ParseFS(templateFS, "templates/report.html"),
)

type reportPage struct {
	Title     string
	Source    string
	Generated string
	Model     DisplayModel
}

// HTML renders the printable report. source is the uploaded file name and
// may be empty.
func HTML(res model.AnalysisResult, source string, now time.Time) (string, error) {
	dm := Render(res)
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, reportPage{
		Title:     dm.Title,
		Source:    source,
		Generated: now.UTC().Format("January 2, 2006 15:04 MST"),
		Model:     dm,
	})
	if err != nil {
		return "", fmt.Errorf("report: rendering html: %w", err)
	}
	return buf.String(), nil
}

func severityClass(score int) string {
	switch {
	case score < 40:
		return "sev-high"
	case score < 70:
		return "sev-moderate"
	default:
		return "sev-good"
	}
}
