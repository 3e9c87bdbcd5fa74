// Package content turns OCR fragments into the text and fallback title stored
// on a document.
package content

import (
	"strings"

	"paperlessocr/internal/util"
)

const (
	MaxTitleRunes   = 80
	LogPreviewRunes = 200
)

// Assemble joins fragments with newlines in reading order.
func Assemble(fragments []string) string {
	return strings.Join(fragments, "\n")
}

// FallbackTitle returns the first non-empty fragment, cut to MaxTitleRunes.
func FallbackTitle(fragments []string) (string, bool) {
	for _, f := range fragments {
		if f != "" {
			return util.Truncate(f, MaxTitleRunes), true
		}
	}
	return "", false
}

func Preview(text string) string {
	return util.Preview(text, LogPreviewRunes)
}
