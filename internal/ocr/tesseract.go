package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

type TesseractOptions struct {
	Language string
	// PoolSize is the number of Tesseract clients kept warm. A gosseract
	// client is not safe for concurrent use, so this caps parallel pages.
	PoolSize int
	Logger   logrus.FieldLogger
}

// Tesseract is an Engine backed by a pool of gosseract clients. Init must
// complete before Recognize is called.
type Tesseract struct {
	langs    []string
	poolSize int
	log      logrus.FieldLogger

	newClient func() *gosseract.Client

	once    sync.Once
	initErr error
	ready   atomic.Bool
	clients chan *gosseract.Client
	all     []*gosseract.Client
}

func NewTesseract(opts TesseractOptions) *Tesseract {
	size := opts.PoolSize
	if size <= 0 {
		size = 1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tesseract{
		langs:     TesseractLanguages(opts.Language),
		poolSize:  size,
		log:       log,
		newClient: gosseract.NewClient,
	}
}

func (t *Tesseract) Ready() bool {
	return t.ready.Load()
}

// Init creates the client pool and loads trained data by running a warm-up
// recognition on a blank page. It is safe to call more than once; only the
// first call does work.
func (t *Tesseract) Init(ctx context.Context) error {
	t.once.Do(func() {
		t.initErr = t.init(ctx)
	})
	return t.initErr
}

func (t *Tesseract) init(ctx context.Context) error {
	mode := gosseract.PSM_AUTO_OSD
	blank, err := encodePNG(image.NewGray(image.Rect(0, 0, 32, 32)))
	if err != nil {
		return err
	}

	warm := t.newClient()
	if err := configure(warm, t.langs, mode); err != nil {
		_ = warm.Close()
		return err
	}
	if err := warmUp(warm, blank); err != nil {
		// Orientation detection needs osd.traineddata; run without it
		// rather than refusing to start.
		t.log.WithError(err).Warn("Tesseract orientation detection unavailable, falling back to automatic segmentation")
		mode = gosseract.PSM_AUTO
		if err := configure(warm, t.langs, mode); err != nil {
			_ = warm.Close()
			return err
		}
		if err := warmUp(warm, blank); err != nil {
			_ = warm.Close()
			return fmt.Errorf("tesseract warm-up (langs %v): %w", t.langs, err)
		}
	}

	clients := make(chan *gosseract.Client, t.poolSize)
	all := []*gosseract.Client{warm}
	clients <- warm
	for i := 1; i < t.poolSize; i++ {
		if err := ctx.Err(); err != nil {
			closeAll(all)
			return err
		}
		c := t.newClient()
		if err := configure(c, t.langs, mode); err != nil {
			_ = c.Close()
			closeAll(all)
			return err
		}
		all = append(all, c)
		clients <- c
	}
	t.clients = clients
	t.all = all
	t.ready.Store(true)
	t.log.WithFields(logrus.Fields{
		"langs":     t.langs,
		"pool_size": t.poolSize,
		"version":   gosseract.Version(),
	}).Info("OCR engine initialized")
	return nil
}

// Recognize returns the trimmed, non-empty text lines found on img.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if !t.Ready() {
		return nil, ErrNotReady
	}
	var c *gosseract.Client
	select {
	case c = <-t.clients:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { t.clients <- c }()

	lines, err := recognizeLines(c, img)
	if err != nil {
		return nil, err
	}
	return CleanLines(lines), nil
}

// Close releases every pooled client. The engine is unusable afterwards.
func (t *Tesseract) Close() error {
	if !t.ready.Swap(false) {
		return nil
	}
	return closeAll(t.all)
}

func recognizeLines(c *gosseract.Client, img image.Image) ([]Line, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, Line{Box: b.Box, Text: b.Word, Confidence: b.Confidence})
	}
	return lines, nil
}

func configure(c *gosseract.Client, langs []string, mode gosseract.PageSegMode) error {
	if err := c.SetLanguage(langs...); err != nil {
		return fmt.Errorf("set languages %v: %w", langs, err)
	}
	if err := c.SetPageSegMode(mode); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	return nil
}

func warmUp(c *gosseract.Client, blank []byte) error {
	if err := c.SetImageFromBytes(blank); err != nil {
		return err
	}
	_, err := c.Text()
	return err
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

func closeAll(clients []*gosseract.Client) error {
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
