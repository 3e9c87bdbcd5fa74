package llm

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperlessocr/internal/providers"
	"paperlessocr/internal/storage"
)

const (
	OperationTitle  = "title"
	OperationFormat = "format"
)

// Call carries the per-document context of one optional LLM stage.
type Call struct {
	DocumentID int
	RequestID  string
	Log        logrus.FieldLogger
}

func (c Call) logger() logrus.FieldLogger {
	log := c.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return log.WithFields(logrus.Fields{"doc_id": c.DocumentID, "request_id": c.RequestID})
}

// stage is the shared plumbing of the titler and formatter: gate, call, audit.
type stage struct {
	enabled  bool
	provider providers.LLMProvider
	auditor  storage.LLMAuditor
}

func newStage(enabled bool, provider providers.LLMProvider, auditor storage.LLMAuditor) stage {
	if auditor == nil {
		auditor = storage.NopAuditor{}
	}
	return stage{enabled: enabled && provider != nil, provider: provider, auditor: auditor}
}

type outcome struct {
	callID  string
	text    string
	info    providers.ProviderInfo
	latency time.Duration
	err     error
}

func (s stage) generate(ctx context.Context, req providers.GenerateRequest) outcome {
	start := time.Now()
	resp, info, err := s.provider.Generate(ctx, req)
	return outcome{
		callID:  uuid.NewString(),
		text:    resp.Text,
		info:    info,
		latency: time.Since(start),
		err:     err,
	}
}

func (s stage) audit(ctx context.Context, call Call, op string, out outcome, status string) {
	rec := storage.LLMCallRecord{
		CallID:       out.callID,
		Operation:    op,
		DocumentID:   call.DocumentID,
		RequestID:    call.RequestID,
		ProviderName: out.info.Name,
		Model:        out.info.Model,
		Status:       status,
		ErrorType:    string(providers.ClassifyError(out.err)),
		LatencyMS:    out.latency.Milliseconds(),
	}
	// The audit row must not be lost to an expired stage context.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.auditor.Insert(actx, rec); err != nil {
		call.logger().WithError(err).WithField("operation", op).Warn("LLM call audit failed")
	}
}
