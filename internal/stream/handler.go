package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"paddock/internal/platform/metrics"
	"paddock/pkg/requestcontext"
)

// Handler serves the live result stream over SSE.
type Handler struct {
	hub     *Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHandler(hub *Hub, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, metrics: m, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/results/stream", h.stream)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.observeAgent(r.Context(), requestcontext.UserAgent(r.Context()))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-sub.Events():
			if err := writeEvent(w, event); err != nil {
				h.logger.DebugContext(r.Context(), "stream write failed, dropping observer", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// observeAgent records which browser families watch the stream. Useful
// for deciding when legacy EventSource quirks can be dropped.
func (h *Handler) observeAgent(ctx context.Context, rawUA string) {
	if rawUA == "" {
		return
	}
	ua := useragent.New(rawUA)
	browser, version := ua.Browser()
	if browser == "" {
		browser = "unknown"
	}
	if h.metrics != nil {
		h.metrics.StreamObserverAgents.WithLabelValues(browser).Inc()
	}
	h.logger.DebugContext(ctx, "stream observer connected",
		"browser", browser, "browser_version", version,
		"os", ua.OS(), "mobile", ua.Mobile(), "bot", ua.Bot())
}

func writeEvent(w http.ResponseWriter, event Event) error {
	if event.Data == nil {
		_, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event.Type)
		return err
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}
