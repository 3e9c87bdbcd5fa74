// Package ocr wraps the OCR engine used on rendered pages.
package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
)

var ErrNotReady = errors.New("ocr engine not initialized")

// Line is one recognized text line as reported by the engine.
type Line struct {
	Box        image.Rectangle
	Text       string
	Confidence float64
}

// Engine recognizes text on a page image. Implementations must be safe for
// concurrent use once Ready reports true.
type Engine interface {
	Ready() bool
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// CleanLines drops positions and confidences, trims every line and removes the
// ones that end up empty. Engine order is kept.
func CleanLines(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		txt := strings.TrimSpace(l.Text)
		if txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

var languageAliases = map[string][]string{
	"ch":          {"chi_sim", "eng"},
	"chinese_cht": {"chi_tra", "eng"},
	"en":          {"eng"},
	"german":      {"deu"},
	"de":          {"deu"},
	"french":      {"fra"},
	"fr":          {"fra"},
	"japan":       {"jpn"},
	"korean":      {"kor"},
	"it":          {"ita"},
	"es":          {"spa"},
	"pt":          {"por"},
	"ru":          {"rus"},
}

// TesseractLanguages maps a configured language to Tesseract trained-data
// names. Short aliases (ch, en, german, ...) are expanded; Tesseract names,
// optionally joined with '+', pass through.
func TesseractLanguages(lang string) []string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return []string{"eng"}
	}
	if langs, ok := languageAliases[lang]; ok {
		return append([]string(nil), langs...)
	}
	out := make([]string, 0, 2)
	for _, p := range strings.Split(lang, "+") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
