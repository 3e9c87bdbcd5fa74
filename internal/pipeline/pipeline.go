// Package pipeline runs one webhook invocation end to end: download, rasterize,
// OCR, optional LLM formatting and titling, and the write-back.
package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"paperlessocr/internal/content"
	"paperlessocr/internal/llm"
	"paperlessocr/internal/ocr"
	"paperlessocr/internal/paperless"
	"paperlessocr/internal/worker"
)

type Backend interface {
	Download(ctx context.Context, docID int) (paperless.RawDocument, error)
	Update(ctx context.Context, docID int, content, title string) error
}

type Rasterizer interface {
	Pages(data []byte, contentType string) ([]image.Image, error)
}

type Titler interface {
	Generate(ctx context.Context, call llm.Call, text string) (string, bool)
}

type Formatter interface {
	Format(ctx context.Context, call llm.Call, text string) (string, bool)
}

type TitleSource string

const (
	TitleSourceLLM      TitleSource = "llm"
	TitleSourceFallback TitleSource = "fallback"
	TitleSourceNone     TitleSource = "none"
)

type Request struct {
	DocumentID int
	DocURL     string
	RequestID  string
}

type Result struct {
	DocumentID  int         `json:"doc_id"`
	Title       string      `json:"title,omitempty"`
	Fragments   int         `json:"fragments"`
	Formatted   bool        `json:"formatted"`
	TitleSource TitleSource `json:"title_source"`
}

type Options struct {
	Backend    Backend
	Rasterizer Rasterizer
	Engine     ocr.Engine
	Workers    *worker.Pool
	Titler     Titler
	Formatter  Formatter
	// Timeout bounds a whole invocation; zero means no bound beyond ctx.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

type Pipeline struct {
	backend   Backend
	raster    Rasterizer
	engine    ocr.Engine
	workers   *worker.Pool
	titler    Titler
	formatter Formatter
	timeout   time.Duration
	log       logrus.FieldLogger
}

func New(opts Options) *Pipeline {
	workers := opts.Workers
	if workers == nil {
		workers = worker.NewPool(0)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		backend:   opts.Backend,
		raster:    opts.Rasterizer,
		engine:    opts.Engine,
		workers:   workers,
		titler:    opts.Titler,
		formatter: opts.Formatter,
		timeout:   opts.Timeout,
		log:       log,
	}
}

// Run processes one document. Any failure before the update aborts the
// invocation without writing to the backend; LLM stages only ever degrade.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	log := p.log.WithFields(logrus.Fields{"doc_id": req.DocumentID, "request_id": req.RequestID})
	if req.DocumentID <= 0 {
		return Result{}, p.fail(log, req, StageExtractID, KindBadRequest, ErrNoDocumentID)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()
	log.WithField("doc_url", req.DocURL).Info("Webhook received")

	if p.engine == nil || !p.engine.Ready() {
		return Result{}, p.fail(log, req, StageOCR, KindNotReady, ocr.ErrNotReady)
	}

	doc, err := p.backend.Download(ctx, req.DocumentID)
	if err != nil {
		return Result{}, p.fail(log, req, StageDownload, classify(err), err)
	}
	log.WithFields(logrus.Fields{"bytes": len(doc.Data), "content_type": doc.ContentType}).Debug("Document downloaded")

	pages, err := worker.Submit(ctx, p.workers, func() ([]image.Image, error) {
		return p.raster.Pages(doc.Data, doc.ContentType)
	})
	if err != nil {
		return Result{}, p.fail(log, req, StageRasterize, classify(err), err)
	}

	fragments, err := p.recognize(ctx, pages)
	if err != nil {
		return Result{}, p.fail(log, req, StageOCR, classify(err), err)
	}
	text := content.Assemble(fragments)
	log.WithFields(logrus.Fields{
		"pages":           len(pages),
		"lines":           len(fragments),
		"content_preview": content.Preview(text),
	}).Info("OCR content extracted")
	log.WithField("content", text).Debug("OCR raw content")

	call := llm.Call{DocumentID: req.DocumentID, RequestID: req.RequestID, Log: log}
	res := Result{DocumentID: req.DocumentID, Fragments: len(fragments), TitleSource: TitleSourceNone}

	if p.formatter != nil {
		if formatted, ok := p.formatter.Format(ctx, call, text); ok {
			text = formatted
			res.Formatted = true
			log.WithField("content_preview", content.Preview(text)).Info("LLM formatted content")
			log.WithField("content", text).Debug("LLM formatted raw content")
		}
	}

	if p.titler != nil {
		if title, ok := p.titler.Generate(ctx, call, text); ok {
			res.Title, res.TitleSource = title, TitleSourceLLM
			log.WithField("title", title).Info("LLM generated title")
		}
	}
	if res.TitleSource == TitleSourceNone {
		if title, ok := content.FallbackTitle(fragments); ok {
			res.Title, res.TitleSource = title, TitleSourceFallback
		}
	}

	if err := p.backend.Update(ctx, req.DocumentID, text, res.Title); err != nil {
		return Result{}, p.fail(log, req, StageUpdate, classify(err), err)
	}

	log.WithFields(logrus.Fields{
		"lines":           res.Fragments,
		"title":           res.Title,
		"title_source":    res.TitleSource,
		"formatted":       res.Formatted,
		"content_preview": content.Preview(text),
		"elapsed_ms":      time.Since(start).Milliseconds(),
	}).Info("Document updated")
	return res, nil
}

// recognize runs OCR over pages on the worker pool and keeps page order.
func (p *Pipeline) recognize(ctx context.Context, pages []image.Image) ([]string, error) {
	perPage := make([][]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers.Size())
	for i, page := range pages {
		g.Go(func() error {
			lines, err := worker.Submit(gctx, p.workers, func() ([]string, error) {
				return p.engine.Recognize(gctx, page)
			})
			if err != nil {
				return err
			}
			perPage[i] = lines
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var fragments []string
	for _, lines := range perPage {
		fragments = append(fragments, lines...)
	}
	return fragments, nil
}

func (p *Pipeline) fail(log logrus.FieldLogger, req Request, stage Stage, kind Kind, err error) error {
	e := &Error{Kind: kind, DocumentID: req.DocumentID, Stage: stage, Err: err}
	entry := log.WithFields(logrus.Fields{"stage": stage, "kind": kind}).WithError(err)
	switch kind {
	case KindUpstreamFailed:
		entry.Error("Paperless API call failed")
	case KindProcessingFailed:
		entry.Error("Failed to process document")
	default:
		entry.Warn("Document not processed")
	}
	return e
}
