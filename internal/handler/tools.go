package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/progress"
	"github.com/sakif/leaseshield/internal/service"
)

// maxToolUpload bounds the multi-file tool forms.
const maxToolUpload = 50 << 20

// ToolsHandler serves the secondary tools: image analysis, expense scanning,
// photo inspection, the tenant-screening agent, chat and checkout.
type ToolsHandler struct {
	tools    *service.ToolsService
	progress *progress.Tracker // nil disables progress bars
	logger   *slog.Logger
}

func NewToolsHandler(tools *service.ToolsService, tracker *progress.Tracker, logger *slog.Logger) *ToolsHandler {
	return &ToolsHandler{tools: tools, progress: tracker, logger: logger}
}

// HandleAnalyzeImage describes one image. With ProgressHeader set it also
// drives a bar sized for progress.ImageTarget.
//
// HTTP: POST /api/analyze-image (multipart imageFile)
func (h *ToolsHandler) HandleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, analysis.MaxImageBytes+(1<<20)); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := formUploads(r, analysis.ImageField)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(uploads) != 1 {
		writeError(w, apperror.ValidationFailed(analysis.ImageField, "Please select an image to upload"))
		return
	}

	finish, err := beginProgress(r, h.progress, progress.ImageTarget)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.tools.AnalyzeImage(r.Context(), uploads[0])
	finish(err == nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HTTP: POST /api/scan-expense (multipart documents)
func (h *ToolsHandler) HandleScanExpense(w http.ResponseWriter, r *http.Request) {
	uploads, ok := h.uploads(w, r, analysis.ExpenseField)
	if !ok {
		return
	}
	out, err := h.tools.ScanExpenses(r.Context(), uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HTTP: POST /api/inspect-photos (multipart photos)
func (h *ToolsHandler) HandleInspectPhotos(w http.ResponseWriter, r *http.Request) {
	uploads, ok := h.uploads(w, r, analysis.PhotoField)
	if !ok {
		return
	}
	out, err := h.tools.InspectPhotos(r.Context(), uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAgent takes documents plus a tenantPreferences JSON field. A missing
// field means the defaults.
//
// HTTP: POST /api/agent
func (h *ToolsHandler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	uploads, ok := h.uploads(w, r, analysis.AgentField)
	if !ok {
		return
	}

	prefs := model.DefaultTenantPreferences()
	if raw := strings.TrimSpace(r.FormValue("tenantPreferences")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
			writeError(w, apperror.ValidationFailed("tenantPreferences", "Invalid tenant preferences"))
			return
		}
	}

	out, err := h.tools.AgentAnalyze(r.Context(), prefs, uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type chatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// HTTP: POST /api/chat
func (h *ToolsHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	reply, err := h.tools.Chat(r.Context(), req.Message, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// HandleCheckout starts a hosted checkout. Form posts are redirected there
// with 303; JSON callers get the URL.
//
// HTTP: POST /api/checkout
func (h *ToolsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var planID string
	wantsJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if wantsJSON {
		var req struct {
			PlanID string `json:"planId"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		planID = req.PlanID
	} else {
		planID = r.FormValue("planId")
	}

	url, err := h.tools.Checkout(r.Context(), planID)
	if err != nil {
		h.logger.Error("checkout failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if wantsJSON {
		writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": url})
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (h *ToolsHandler) uploads(w http.ResponseWriter, r *http.Request, field string) ([]model.Upload, bool) {
	if err := parseForm(w, r, maxToolUpload); err != nil {
		writeError(w, err)
		return nil, false
	}
	uploads, err := formUploads(r, field)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return uploads, true
}
