package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/progress"
	"github.com/sakif/leaseshield/internal/stream"
)

// ProgressHeader carries the client-chosen id under which a single analysis
// publishes its progress bar. The client opens
// /api/progress/{id}/events first, or right after, and sends the request.
const ProgressHeader = "X-Progress-ID"

// beginProgress starts a bar for r when it carries ProgressHeader. The
// returned finish is never nil.
func beginProgress(r *http.Request, tracker *progress.Tracker, target time.Duration) (finish func(ok bool), err error) {
	id := r.Header.Get(ProgressHeader)
	if tracker == nil || id == "" {
		return func(bool) {}, nil
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	run, err := tracker.Begin(r.Context(), userID, id, target)
	if err != nil {
		return nil, err
	}
	return func(ok bool) {
		if ok {
			run.Succeed()
			return
		}
		run.Fail()
	}, nil
}

// ProgressHandler streams the bars of single analyses.
type ProgressHandler struct {
	tracker *progress.Tracker
	logger  *slog.Logger
}

func NewProgressHandler(tracker *progress.Tracker, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{tracker: tracker, logger: logger}
}

// HandleEvents streams "progress" events ({percent, done}) for one of the
// caller's requests until the final frame or until the client leaves.
//
// HTTP: GET /api/progress/{id}/events
func (h *ProgressHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("sign in required"))
		return
	}

	mb := stream.NewMailbox[progress.Update]()
	unsubscribe, err := h.tracker.Watch(userID, chi.URLParam(r, "id"), mb.Put)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	events, err := startEventStream(w)
	if err != nil {
		h.logger.Error("progress events", slog.String("error", err.Error()))
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
		u := pending[len(pending)-1]
		if err := events.send("progress", u); err != nil {
			return
		}
		if u.Done {
			return
		}
	}
}
