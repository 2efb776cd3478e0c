package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Ingestor accepts a normalized callback for background processing. The
// return value reports whether the work was actually queued; the webhook
// acknowledgement does not depend on it.
type Ingestor interface {
	Dispatch(cb NormalizedCallback) bool
}

// Handler is the inbound callback boundary. Authentication, parsing and
// routing failures become status codes here; everything after the 200 is
// best-effort and observable only through logs.
type Handler struct {
	Secret string
	Ingest Ingestor
	Logger *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	log := h.logger().With("delivery_id", uuid.NewString())

	if h.Secret != "" {
		if err := VerifySignature(h.Secret, r.Header.Get(SignatureHeader), body); err != nil {
			log.Warn("callback rejected", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	cb, err := Normalize(body)
	switch {
	case errors.Is(err, ErrUnrecognizedPayload):
		log.Error("callback shape not recognized; upstream schema may have changed")
		w.WriteHeader(http.StatusBadRequest)
		return
	case errors.Is(err, ErrNoCorrelationToken):
		log.Warn("callback carries no correlation token; dropping")
		w.WriteHeader(http.StatusBadRequest)
		return
	case err != nil:
		log.Warn("callback body malformed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.Ingest.Dispatch(cb) {
		log.Warn("ingest queue full; callback dropped after acknowledgement",
			"conversation_id", cb.ConversationID)
	}
	w.WriteHeader(http.StatusOK)
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
