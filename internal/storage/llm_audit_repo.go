package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	CallStatusOK       = "ok"
	CallStatusError    = "error"
	CallStatusRejected = "rejected"
)

type LLMCallRecord struct {
	CallID       string
	Operation    string
	DocumentID   int
	RequestID    string
	ProviderName string
	Model        string
	Status       string
	ErrorType    string
	LatencyMS    int64
}

// LLMAuditor records completion calls made while processing documents.
type LLMAuditor interface {
	Insert(ctx context.Context, rec LLMCallRecord) error
}

// NopAuditor is used when no audit database is configured.
type NopAuditor struct{}

func (NopAuditor) Insert(context.Context, LLMCallRecord) error { return nil }

type LLMAuditRepo struct {
	db *DB

	schemaMu       sync.Mutex
	schemaPrepared bool
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) EnsureSchema(ctx context.Context) error {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if r.schemaPrepared {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS llm_calls (
  call_id UUID PRIMARY KEY,
  operation TEXT NOT NULL,
  document_id BIGINT NOT NULL,
  request_id TEXT,
  provider_name TEXT NOT NULL,
  model TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('ok','error','rejected')),
  error_type TEXT,
  latency_ms BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_llm_calls_document ON llm_calls(document_id, created_at DESC);
`
	if _, err := r.db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure llm_calls schema: %w", err)
	}
	r.schemaPrepared = true
	return nil
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, document_id, request_id, provider_name, model, status, error_type, latency_ms)
VALUES ($1::uuid, $2, $3, NULLIF($4,''), $5, $6, $7, NULLIF($8,''), $9)`,
		rec.CallID, rec.Operation, rec.DocumentID, rec.RequestID, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
