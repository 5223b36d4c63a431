package server

import (
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/document"
	"github.com/marmos91/copad/pkg/registry"
	"github.com/marmos91/copad/pkg/store"
)

// Handler serves the document API routes.
type Handler struct {
	registry *registry.Registry
	store    store.Store // nil when persistence is disabled
	upgrader websocket.Upgrader
}

// NewHandler creates the API handler. The store may be nil.
func NewHandler(reg *registry.Registry, st store.Store) *Handler {
	return &Handler{
		registry: reg,
		store:    st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The editor is expected to be served from arbitrary origins
			// (reverse proxies, embedded deployments), so origin checking is
			// left to the deployment in front of the server.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Socket upgrades the request to a websocket and runs the collaborative
// session for the document until the client disconnects.
func (h *Handler) Socket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.registry.Acquire(r.Context(), id)
	if err != nil {
		logger.Error("failed to open document", logger.KeyDocumentID, id, logger.KeyError, err)
		Error(w, http.StatusInternalServerError, "failed to open document")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		logger.Warn("websocket upgrade failed", logger.KeyDocumentID, id, logger.KeyError, err)
		return
	}
	defer conn.Close()

	// Scope the document and remote address into the context so the
	// connection loop's log lines carry them automatically.
	ctx := logger.WithContext(r.Context(), logger.NewLogContext(id, r.RemoteAddr))
	doc.HandleConnection(ctx, conn)
}

// Text returns the current text of a document as plain UTF-8. Unknown
// documents read as empty rather than 404, matching what a fresh websocket
// session for that ID would see.
func (h *Handler) Text(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	text, err := h.registry.Text(r.Context(), id)
	if err != nil {
		logger.Error("failed to read document", logger.KeyDocumentID, id, logger.KeyError, err)
		Error(w, http.StatusInternalServerError, "failed to read document")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// Create allocates a fresh document and returns its ID as plain text. An
// optional language path parameter pre-sets the editor language, and a
// non-empty request body becomes the document's initial text.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var language *string
	if lang := chi.URLParam(r, "language"); lang != "" {
		language = &lang
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4*document.MaxTextLen))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	text := string(body)
	if utf8.RuneCountInString(text) > document.MaxTextLen {
		Error(w, http.StatusBadRequest, "initial text exceeds the document size limit")
		return
	}

	id, err := h.registry.CreateDocument(r.Context(), language, text)
	if err != nil {
		logger.Error("failed to create document", logger.KeyError, err)
		Error(w, http.StatusInternalServerError, "failed to create document")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(id))
}

// StatsResponse is the payload returned by the stats endpoint.
type StatsResponse struct {
	// StartTime is when the server started, in unix seconds.
	StartTime int64 `json:"start_time"`

	// NumDocuments counts persisted documents, or currently loaded sessions
	// when persistence is disabled.
	NumDocuments int64 `json:"num_documents"`

	// DatabaseSize is the snapshot store size in bytes, or -1 when
	// unavailable.
	DatabaseSize int64 `json:"database_size"`
}

// Stats returns server statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		StartTime:    h.registry.StartTime().Unix(),
		NumDocuments: int64(h.registry.Count()),
		DatabaseSize: -1,
	}

	if h.store != nil {
		count, err := h.store.Count(r.Context())
		if err != nil {
			logger.Error("failed to count documents", logger.KeyStoreOp, "count", logger.KeyError, err)
			Error(w, http.StatusInternalServerError, "failed to gather stats")
			return
		}
		resp.NumDocuments = count

		size, err := h.store.Size(r.Context())
		if err != nil {
			logger.Error("failed to read database size", logger.KeyStoreOp, "size", logger.KeyError, err)
			Error(w, http.StatusInternalServerError, "failed to gather stats")
			return
		}
		resp.DatabaseSize = size
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"documents": h.registry.Count(),
	}))
}
