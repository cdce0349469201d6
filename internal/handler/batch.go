package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/batch"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/service"
	"github.com/sakif/leaseshield/internal/stream"
)

// BatchField is the multipart field carrying batch documents.
const BatchField = "files"

// BatchHandler starts multi-document analyses and streams their progress.
type BatchHandler struct {
	batches  *service.BatchService
	registry *batch.Registry
	logger   *slog.Logger
}

func NewBatchHandler(batches *service.BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{batches: batches, registry: batches.Registry(), logger: logger}
}

// HandleStart accepts up to batch.MaxItems documents and returns the batch
// id. Six or more are rejected before anything is sent upstream.
//
// HTTP: POST /api/batches
func (h *BatchHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, int64(batch.MaxItems+1)*(analysis.MaxDocumentBytes+(1<<20))); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := formUploads(r, BatchField)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := batch.CheckSize(len(uploads)); err != nil {
		writeError(w, err)
		return
	}

	tasks := make([]model.AnalysisTask, len(uploads))
	for i, u := range uploads {
		tasks[i] = model.FileTask(u.FileName, u.ContentType, u.Data)
	}

	id, err := h.batches.Start(r.Context(), tasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// HTTP: GET /api/batches/{id}
func (h *BatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	snap, err := h.registry.Snapshot(chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HTTP: DELETE /api/batches/{id}
func (h *BatchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.registry.Cancel(chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvents streams "snapshot" events until the batch finishes or the
// client goes away. Snapshots that pile up between writes are coalesced to
// the latest.
//
// HTTP: GET /api/batches/{id}/events
func (h *BatchHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in required"))
		return
	}
	id := chi.URLParam(r, "id")

	mb := stream.NewMailbox[batch.Snapshot]()
	unsubscribe, err := h.registry.Subscribe(id, userID, mb.Put)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	events, err := startEventStream(w)
	if err != nil {
		h.logger.Error("batch events", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-mb.Ready():
		}

		pending := mb.Drain()
		if len(pending) == 0 {
			continue
		}
		snap := pending[len(pending)-1]
		if err := events.send("snapshot", snap); err != nil {
			return
		}
		if snap.State.Terminal() {
			return
		}
	}
}
