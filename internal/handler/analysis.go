package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/progress"
	"github.com/sakif/leaseshield/internal/report"
	"github.com/sakif/leaseshield/internal/repository"
	"github.com/sakif/leaseshield/internal/service"
	"github.com/sakif/leaseshield/internal/storage"
)

// PDFRenderer prints a result. report.PDFRenderer is the real one.
type PDFRenderer interface {
	Render(ctx context.Context, res model.AnalysisResult, source string) ([]byte, error)
}

// Archiver keeps a copy of an export and links to it.
type Archiver interface {
	Save(ctx context.Context, userID, analysisID, filename, contentType string, data []byte) (storage.Link, error)
}

// ArchiveHeader carries the presigned download link of an archived export.
const ArchiveHeader = "X-Archive-URL"

// AnalysisHandler runs lease analyses and serves saved results and exports.
type AnalysisHandler struct {
	analyses *service.AnalysisService
	pdf      PDFRenderer
	archive  Archiver          // nil when object storage is not configured
	progress *progress.Tracker // nil disables progress bars
	logger   *slog.Logger
}

func NewAnalysisHandler(analyses *service.AnalysisService, pdf PDFRenderer, archive Archiver, tracker *progress.Tracker, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses, pdf: pdf, archive: archive, progress: tracker, logger: logger}
}

type textRequest struct {
	Text string `json:"text"`
}

// HandleAnalyze accepts pasted text as JSON or a document as multipart
// (field leaseFile). Upstream failures come back as a 200 with
// success=false, the same shape the backend uses; upgradeRequired tells the
// client to send the user to /pricing. With ProgressHeader set the request
// also drives a bar sized for progress.DocumentTarget.
//
// HTTP: POST /api/analyze
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	task, err := h.readTask(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	finish, err := beginProgress(r, h.progress, progress.DocumentTarget)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.analyses.Submit(r.Context(), task)
	finish(err == nil && res.Success)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Success {
		h.logger.Info("analysis failed",
			slog.String("user_id", auth.SessionFromContext(r.Context()).UserID),
			slog.Bool("upgrade_required", res.UpgradeRequired),
			slog.String("error", res.Error),
		)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AnalysisHandler) readTask(w http.ResponseWriter, r *http.Request) (model.AnalysisTask, error) {
	if !isMultipart(r) {
		var req textRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return model.AnalysisTask{}, err
		}
		return model.TextTask(req.Text), nil
	}

	if err := parseForm(w, r, analysis.MaxDocumentBytes+(1<<20)); err != nil {
		return model.AnalysisTask{}, err
	}
	uploads, err := formUploads(r, analysis.DocumentField)
	if err != nil {
		return model.AnalysisTask{}, err
	}
	if len(uploads) != 1 {
		return model.AnalysisTask{}, apperror.ValidationFailed(analysis.DocumentField, "Please select a file to upload")
	}
	u := uploads[0]
	return model.FileTask(u.FileName, u.ContentType, u.Data), nil
}

// HTTP: GET /api/analyses?limit=&offset=
func (h *AnalysisHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.analyses.List(r.Context(), userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: GET /api/analyses/{id}
func (h *AnalysisHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// HandleReport returns the display model the report page renders.
//
// HTTP: GET /api/analyses/{id}/report
func (h *AnalysisHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.Render(saved.Result))
}

// HTTP: GET /api/analyses/{id}/email-draft
func (h *AnalysisHandler) HandleEmailDraft(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"body": report.EmailDraft(saved.Result)})
}

// HTTP: GET /api/analyses/{id}/export.json
func (h *AnalysisHandler) HandleExportJSON(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.load(w, r)
	if !ok {
		return
	}
	data, err := report.ToJSON(saved.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	h.sendExport(w, r, saved, report.JSONFilename(saved.FileName), "application/json", data)
}

// HandleExportPDF answers 501 when the server has no Chromium.
//
// HTTP: GET /api/analyses/{id}/export.pdf
func (h *AnalysisHandler) HandleExportPDF(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.load(w, r)
	if !ok {
		return
	}
	data, err := h.pdf.Render(r.Context(), saved.Result, saved.FileName)
	if err != nil {
		if errors.Is(err, report.ErrPDFDependencyMissing) {
			writeJSON(w, http.StatusNotImplemented, ErrorResponse{
				Error:   "pdf_unavailable",
				Message: "PDF export is not available on this server",
			})
			return
		}
		h.logger.Error("pdf export failed", slog.String("analysis_id", saved.ID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	h.sendExport(w, r, saved, report.PDFFilename(saved.FileName), "application/pdf", data)
}

// sendExport streams the file as an attachment. With object storage
// configured, a copy is archived first and its link is sent in a header;
// archiving never blocks the download.
func (h *AnalysisHandler) sendExport(w http.ResponseWriter, r *http.Request, saved *model.SavedAnalysis, filename, contentType string, data []byte) {
	if h.archive != nil {
		link, err := h.archive.Save(r.Context(), saved.UserID, saved.ID, filename, contentType, data)
		if err != nil {
			h.logger.Warn("export not archived", slog.String("analysis_id", saved.ID), slog.String("error", err.Error()))
		} else {
			w.Header().Set(ArchiveHeader, link.URL)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// load fetches {id} for the signed-in owner, writing the error response
// itself when that fails.
func (h *AnalysisHandler) load(w http.ResponseWriter, r *http.Request) (*model.SavedAnalysis, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in required"))
		return nil, false
	}
	saved, err := h.analyses.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return saved, true
}
