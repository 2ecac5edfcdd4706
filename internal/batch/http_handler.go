package batch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// maxBodyBytes bounds the inbound JSON body. Oversize bodies are
// rejected with an explicit 400 rather than silently truncated.
const maxBodyBytes = 32 * 1024

// Response headers set on a successful ingest.
const (
	HeaderBatchID      = "X-Batch-Id"
	HeaderBatchSize    = "X-Batch-Size"
	HeaderBatchCreated = "X-Batch-Created"
)

// IngestHandler implements the Ingest Handler contract as a reusable
// http.Handler: path resolution, method/content-type/body-size
// validation, decode, Engine.Ingest, and the taxonomy error responses.
// It backs both the Caddy Transport Module and the standalone
// net/http binary.
type IngestHandler struct {
	engine          *Engine
	logger          *zap.Logger
	requestIDHeader string
}

// NewIngestHandler builds an IngestHandler around engine. requestIDHeader,
// if non-empty, is echoed back on every response whenever the inbound
// request carries it, so a reverse proxy in front of this handler can
// correlate log lines; pass "" to disable the echo.
func NewIngestHandler(engine *Engine, logger *zap.Logger, requestIDHeader string) *IngestHandler {
	return &IngestHandler{engine: engine, logger: logger, requestIDHeader: requestIDHeader}
}

// ServeHTTP implements http.Handler for the standalone binary, where
// there is no next handler to fall through to: a path that doesn't
// match the webhook shape is answered directly with the path-invalid
// taxonomy error.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handled := h.TryServeHTTP(w, r); !handled {
		h.echoRequestID(w, r)
		writeTaxonomyError(w, http.StatusNotFound, ErrCodePathInvalid, "no webhook route at this path")
	}
}

// TryServeHTTP attempts to handle r as a webhook ingest request,
// reporting handled=false when the path doesn't match the webhook
// shape so a caller composing this handler into a larger router (the
// Caddy Transport Module) can fall through to the next handler
// instead of answering 404 itself.
func (h *IngestHandler) TryServeHTTP(w http.ResponseWriter, r *http.Request) bool {
	key, ok := ResolvePath(r.URL.Path, r.URL.RawQuery)
	if !ok {
		return false
	}

	h.echoRequestID(w, r)

	if r.Method != http.MethodPost {
		writeTaxonomyError(w, http.StatusMethodNotAllowed, 0, "method not allowed")
		return true
	}

	h.ingest(w, r, key)
	return true
}

// echoRequestID copies the configured request-id header from the
// inbound request onto the response, if both are set. Must run before
// the first WriteHeader call.
func (h *IngestHandler) echoRequestID(w http.ResponseWriter, r *http.Request) {
	if h.requestIDHeader == "" {
		return
	}
	if v := r.Header.Get(h.requestIDHeader); v != "" {
		w.Header().Set(h.requestIDHeader, v)
	}
}

func (h *IngestHandler) ingest(w http.ResponseWriter, r *http.Request, key DestinationKey) {
	if mediaType(r.Header.Get("Content-Type")) != "application/json" {
		writeTaxonomyError(w, http.StatusBadRequest, ErrCodeBodyInvalid, "Content-Type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeTaxonomyError(w, http.StatusBadRequest, ErrCodeBodyInvalid, "invalid JSON body")
		return
	}

	snapshot, err := h.engine.Ingest(key, payload)
	if err != nil {
		var taxErr *TaxonomyError
		if errors.As(err, &taxErr) {
			writeTaxonomyError(w, taxErr.HTTPStatus, taxErr.Code, taxErr.Message)
			return
		}
		h.logger.Error("ingest failed", zap.Error(err))
		writeTaxonomyError(w, http.StatusInternalServerError, 0, "internal error")
		return
	}

	w.Header().Set(HeaderBatchID, key.BatchID())
	w.Header().Set(HeaderBatchSize, strconv.Itoa(len(snapshot.Payloads)))
	w.Header().Set(HeaderBatchCreated, strconv.FormatInt(snapshot.CreatedAt.UnixMilli(), 10))
	w.WriteHeader(http.StatusNoContent)
}

// taxonomyBody is the {"code": N, "message": "..."} error shape.
type taxonomyBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeTaxonomyError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(taxonomyBody{Code: code, Message: message})
}

func mediaType(contentType string) string {
	for i, c := range contentType {
		if c == ';' {
			return contentType[:i]
		}
	}
	return contentType
}
