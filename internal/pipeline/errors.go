package pipeline

import (
	"errors"
	"fmt"

	"paperlessocr/internal/ocr"
	"paperlessocr/internal/paperless"
)

// Kind classifies why an invocation failed. The HTTP layer maps it to a status.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindNotReady         Kind = "not_ready"
	KindConfigMissing    Kind = "config_missing"
	KindUpstreamFailed   Kind = "upstream_failed"
	KindProcessingFailed Kind = "processing_failed"
)

type Stage string

const (
	StageExtractID Stage = "extract_id"
	StageDownload  Stage = "download"
	StageRasterize Stage = "rasterize"
	StageOCR       Stage = "ocr"
	StageUpdate    Stage = "update"
)

var ErrNoDocumentID = errors.New("doc_id not found")

type Error struct {
	Kind       Kind
	DocumentID int
	Stage      Stage
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s (doc_id=%d): %v", e.Kind, e.Stage, e.DocumentID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or KindProcessingFailed for errors
// that did not come from Run.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProcessingFailed
}

func classify(err error) Kind {
	var se *paperless.StatusError
	switch {
	case errors.Is(err, paperless.ErrConfigMissing):
		return KindConfigMissing
	case errors.Is(err, ocr.ErrNotReady):
		return KindNotReady
	case errors.As(err, &se):
		return KindUpstreamFailed
	default:
		return KindProcessingFailed
	}
}
