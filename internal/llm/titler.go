package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"paperlessocr/internal/content"
	"paperlessocr/internal/providers"
	"paperlessocr/internal/storage"
	"paperlessocr/internal/util"
)

const (
	titleInputRunes   = 4000
	titleMaxTokens    = 100
	titleTemperature  = 0.2
	titleSystemPrompt = "You name scanned documents. Produce a concise title of at most 80 characters for the document text you are given. " +
		"If the text already contains a title or heading, prefer it. Correct obvious OCR noise and broken line breaks. " +
		"Return only the title text, without quotes or explanations."
)

type Titler struct {
	stage
}

func NewTitler(enabled bool, provider providers.LLMProvider, auditor storage.LLMAuditor) *Titler {
	return &Titler{stage: newStage(enabled, provider, auditor)}
}

func (t *Titler) Enabled() bool { return t != nil && t.enabled }

// Generate asks the completion service for a title. Failures are logged and
// reported as absent; they never fail the caller.
func (t *Titler) Generate(ctx context.Context, call Call, text string) (string, bool) {
	if !t.Enabled() {
		return "", false
	}
	log := call.logger().WithField("operation", OperationTitle)
	out := t.generate(ctx, providers.GenerateRequest{
		Operation:   OperationTitle,
		System:      titleSystemPrompt,
		Prompt:      util.Truncate(text, titleInputRunes),
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
	})
	if out.err != nil {
		t.audit(ctx, call, OperationTitle, out, storage.CallStatusError)
		log.WithFields(logrus.Fields{
			"error_type": providers.ClassifyError(out.err),
			"provider":   out.info.Name,
		}).WithError(out.err).Warn("LLM title generation failed")
		return "", false
	}
	title := util.Truncate(cleanTitle(out.text), content.MaxTitleRunes)
	if title == "" {
		t.audit(ctx, call, OperationTitle, out, storage.CallStatusRejected)
		log.Warn("LLM returned an empty title")
		return "", false
	}
	t.audit(ctx, call, OperationTitle, out, storage.CallStatusOK)
	return title, true
}

var titleQuotes = [][2]string{{`"`, `"`}, {"'", "'"}, {"`", "`"}, {"“", "”"}, {"「", "」"}, {"《", "》"}}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range titleQuotes {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
