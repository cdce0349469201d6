package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/gate"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the HTML shell of every page in the route table. The
// gate middleware runs first, so anything reaching it is allowed.
type PageHandler struct {
	templates *template.Template
	routes    *gate.Routes
	gaID      string
	gtmID     string
	logger    *slog.Logger
}

// NewPageHandler parses base.html and page.html together so "base" can
// pull in "content".
func NewPageHandler(routes *gate.Routes, gaID, gtmID string, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/page.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{templates: tmpl, routes: routes, gaID: gaID, gtmID: gtmID, logger: logger}, nil
}

type pageData struct {
	Title           string
	Path            string
	Route           gate.Route
	Params          map[string]string
	SignedIn        bool
	GAMeasurementID string
	GTMID           string
}

// HandlePage serves GET for any path in the route table.
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	route, ok := gate.RouteFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, params, _ := h.routes.Match(r.URL.Path)

	data := pageData{
		Title:           route.Title,
		Path:            r.URL.Path,
		Route:           route,
		Params:          params,
		SignedIn:        auth.SessionFromContext(r.Context()).Present,
		GAMeasurementID: h.gaID,
		GTMID:           h.gtmID,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render page", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
