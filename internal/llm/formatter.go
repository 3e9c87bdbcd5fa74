package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"paperlessocr/internal/providers"
	"paperlessocr/internal/storage"
	"paperlessocr/internal/util"
)

const (
	formatInputRunes   = 6000
	formatMaxTokensCap = 1500
	formatMinRatio     = 0.5
	formatMaxRatio     = 2.0
	formatSystemPrompt = "You restore the layout of OCR output. Reinsert plausible paragraph and line breaks so the text reads like the original document. " +
		"Do not change, add, remove, translate or summarize any wording. Return plain text only, without Markdown or commentary."
)

type Formatter struct {
	stage
}

func NewFormatter(enabled bool, provider providers.LLMProvider, auditor storage.LLMAuditor) *Formatter {
	return &Formatter{stage: newStage(enabled, provider, auditor)}
}

func (f *Formatter) Enabled() bool { return f != nil && f.enabled }

// FormatTokenBudget is min(runes/2 + 200, 1500).
func FormatTokenBudget(inputRunes int) int {
	return min(inputRunes/2+200, formatMaxTokensCap)
}

// AcceptRatio reports whether output is a plausible reformatting of input
// judging by length alone.
func AcceptRatio(inputRunes, outputRunes int) (float64, bool) {
	ratio := float64(outputRunes) / float64(max(inputRunes, 1))
	return ratio, ratio >= formatMinRatio && ratio <= formatMaxRatio
}

// splitHead cuts text to at most maxRunes for the model, preferring the last
// line break inside the limit. sep rejoins the formatted head with rest.
func splitHead(text string, maxRunes int) (head, sep, rest string) {
	cut, n := len(text), 0
	for i := range text {
		if n == maxRunes {
			cut = i
			break
		}
		n++
	}
	if cut == len(text) {
		return text, "", ""
	}
	head = text[:cut]
	if i := strings.LastIndexByte(head, '\n'); i > 0 {
		return strings.TrimRight(head[:i], " \t\r"), "\n", strings.TrimLeft(text[i:], "\r\n")
	}
	return head, "", text[len(head):]
}

// Format asks the completion service to restore the layout of text. Only the
// first 6000 runes are sent; anything after them is appended unchanged. The
// result is absent when the stage is disabled, the call fails, or the output
// length is out of proportion to the part that was sent.
func (f *Formatter) Format(ctx context.Context, call Call, text string) (string, bool) {
	if !f.Enabled() {
		return "", false
	}
	input := strings.TrimSpace(text)
	if input == "" {
		return "", false
	}
	input, sep, rest := splitHead(input, formatInputRunes)
	inputRunes := util.RuneLen(input)

	log := call.logger().WithField("operation", OperationFormat)
	out := f.generate(ctx, providers.GenerateRequest{
		Operation:   OperationFormat,
		System:      formatSystemPrompt,
		Prompt:      input,
		MaxTokens:   FormatTokenBudget(inputRunes),
		Temperature: 0,
	})
	if out.err != nil {
		f.audit(ctx, call, OperationFormat, out, storage.CallStatusError)
		log.WithFields(logrus.Fields{
			"error_type": providers.ClassifyError(out.err),
			"provider":   out.info.Name,
		}).WithError(out.err).Warn("LLM formatting failed")
		return "", false
	}
	formatted := strings.TrimSpace(out.text)
	ratio, ok := AcceptRatio(inputRunes, util.RuneLen(formatted))
	if !ok {
		f.audit(ctx, call, OperationFormat, out, storage.CallStatusRejected)
		log.WithFields(logrus.Fields{
			"ratio":      ratio,
			"input_len":  inputRunes,
			"output_len": util.RuneLen(formatted),
		}).Warn("LLM formatted content rejected by length ratio")
		return "", false
	}
	f.audit(ctx, call, OperationFormat, out, storage.CallStatusOK)
	if rest != "" {
		log.WithField("unformatted_runes", util.RuneLen(rest)).Debug("LLM formatted the head, remainder kept as is")
		return formatted + sep + rest, true
	}
	return formatted, true
}
