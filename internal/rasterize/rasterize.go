// Package rasterize turns a downloaded document into page images for OCR.
package rasterize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrTooManyPages = errors.New("document exceeds page limit")

var pdfMagic = []byte("%PDF")

type Options struct {
	DPI      int
	MaxPages int
	Logger   logrus.FieldLogger
}

// Rasterizer renders PDFs page by page with MuPDF and decodes standalone
// images. It holds no per-document state and is safe for concurrent use.
type Rasterizer struct {
	dpi      float64
	maxPages int
	log      logrus.FieldLogger

	openPDF func([]byte) (*fitz.Document, error)
}

func New(opts Options) *Rasterizer {
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 200
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Rasterizer{dpi: float64(dpi), maxPages: opts.MaxPages, log: log, openPDF: fitz.NewFromMemory}
}

// IsPDF checks the declared content type first and falls back to the %PDF
// signature so that misreported types are tolerated.
func IsPDF(data []byte, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(data, pdfMagic)
}

// Pages returns one image per page in document order.
func (r *Rasterizer) Pages(data []byte, contentType string) ([]image.Image, error) {
	if IsPDF(data, contentType) {
		return r.renderPDF(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image (content-type %q): %w", contentType, err)
	}
	return []image.Image{img}, nil
}

// renderPDF enforces the page limit from the page tree before MuPDF decodes
// anything. MuPDF's own count is used only when the probe cannot read the file.
func (r *Rasterizer) renderPDF(data []byte) ([]image.Image, error) {
	probed, err := probePageCount(data)
	if err != nil {
		r.log.WithError(err).Debug("PDF page probe failed, counting pages with MuPDF")
	} else if err := r.checkPageLimit(probed); err != nil {
		return nil, err
	}

	doc, err := r.openPDF(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if probed > 0 && probed != n {
		r.log.WithFields(logrus.Fields{"probed": probed, "pages": n}).Debug("PDF page count differs from probe")
	}
	if err := r.checkPageLimit(n); err != nil {
		return nil, err
	}
	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("render pdf page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func (r *Rasterizer) checkPageLimit(n int) error {
	if r.maxPages > 0 && n > r.maxPages {
		return fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, n, r.maxPages)
	}
	return nil
}

// probePageCount reads the page tree without rendering. The parser panics on
// some malformed files, so panics are turned into errors.
func probePageCount(data []byte) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf probe panic: %v", rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return rd.NumPage(), nil
}
