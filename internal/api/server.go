package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperlessocr/internal/paperless"
	"paperlessocr/internal/pipeline"
)

const maxWebhookBody = 1 << 20

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type Options struct {
	Runner Runner
	Logger logrus.FieldLogger
}

type Server struct {
	runner Runner
	log    logrus.FieldLogger
}

type webhookRequest struct {
	DocURL string `json:"doc_url"`
	URL    string `json:"url"`
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{runner: opts.Runner, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/paperless-webhook", s.handleWebhook)
	return withRequestLog(s.log, mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	docURL := strings.TrimSpace(req.DocURL)
	if docURL == "" {
		docURL = strings.TrimSpace(req.URL)
	}
	docID, ok := paperless.ExtractDocumentID(docURL)
	if !ok {
		s.log.WithFields(logrus.Fields{"request_id": requestIDFrom(r.Context()), "doc_url": docURL}).Warn("Webhook without document id")
		writeErr(w, http.StatusBadRequest, pipeline.ErrNoDocumentID)
		return
	}

	// Processing is not tied to the webhook connection: a sender that
	// disconnects must not leave a document half processed.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.runner.Run(ctx, pipeline.Request{
		DocumentID: docID,
		DocURL:     docURL,
		RequestID:  requestIDFrom(r.Context()),
	})
	if err != nil {
		writeDocErr(w, statusFor(err), err, docID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "doc_id": res.DocumentID})
}

func statusFor(err error) int {
	switch pipeline.KindOf(err) {
	case pipeline.KindBadRequest:
		return http.StatusBadRequest
	case pipeline.KindNotReady:
		return http.StatusServiceUnavailable
	case pipeline.KindUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeDocErr(w, code, err, 0)
}

func writeDocErr(w http.ResponseWriter, code int, err error, docID int) {
	apiErr := toAPIError(code, err)
	body := map[string]any{
		"status": "error",
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	}
	if docID > 0 {
		body["doc_id"] = docID
	}
	writeJSON(w, code, body)
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "POCR-API-4000"

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "POCR-API-5020", Message: "Paperless API call failed."}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "POCR-OCR-5030", Message: "OCR engine not ready. Retry shortly."}
	case status >= 500:
		if pipeline.KindOf(err) == pipeline.KindConfigMissing {
			return apiError{Code: "POCR-CFG-5001", Message: "Paperless API config missing."}
		}
		return apiError{Code: "POCR-API-5000", Message: "OCR processing failed. Check service logs."}
	case status == http.StatusBadRequest:
		code = "POCR-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusMethodNotAllowed:
		code = "POCR-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	if status >= 400 && status < 500 && err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, pipeline.ErrNoDocumentID):
			msg = "doc_id not found in doc_url or url."
		case errors.As(err, &tooLarge):
			msg = "Request body too large."
		case strings.Contains(strings.ToLower(err.Error()), "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

type ctxKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog assigns a request id (reusing X-Request-ID when sent) and
// writes one access log line per request.
func withRequestLog(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		entry := log.WithFields(logrus.Fields{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if r.URL.Path == "/healthz" {
			entry.Debug("request served")
			return
		}
		entry.Info("request served")
	})
}
