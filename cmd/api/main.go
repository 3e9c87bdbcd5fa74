package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"paperlessocr/internal/api"
	"paperlessocr/internal/config"
	"paperlessocr/internal/llm"
	"paperlessocr/internal/logging"
	"paperlessocr/internal/ocr"
	"paperlessocr/internal/paperless"
	"paperlessocr/internal/pipeline"
	"paperlessocr/internal/providers"
	"paperlessocr/internal/rasterize"
	"paperlessocr/internal/storage"
	"paperlessocr/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if !cfg.PaperlessConfigured() {
		log.Warn("Env PAPERLESS_BASE_URL or PAPERLESS_API_TOKEN is missing; Paperless API calls will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	httpClient := &http.Client{Transport: transport}
	defer httpClient.CloseIdleConnections()

	workers := worker.NewPool(cfg.OCRWorkers)
	engine := ocr.NewTesseract(ocr.TesseractOptions{
		Language: cfg.OCRLang,
		PoolSize: workers.Size(),
		Logger:   log,
	})
	defer func() {
		if err := engine.Close(); err != nil {
			log.WithError(err).Warn("OCR engine close failed")
		}
	}()
	go func() {
		if err := engine.Init(ctx); err != nil {
			log.WithError(err).WithField("lang", cfg.OCRLang).Error("OCR engine init failed; webhooks will answer 503")
		}
	}()

	auditor, closeAudit := openAuditor(ctx, cfg, log)
	defer closeAudit()

	provider := providers.NewOpenAIProvider(providers.OpenAIOptions{
		BaseURL:    cfg.LLMAPIBase,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.RequestTimeout,
		HTTPClient: httpClient,
	})

	p := pipeline.New(pipeline.Options{
		Backend: paperless.NewClient(paperless.Options{
			BaseURL:          cfg.PaperlessBaseURL,
			Token:            cfg.PaperlessToken,
			Timeout:          cfg.RequestTimeout,
			MaxDownloadBytes: cfg.MaxDownloadBytes,
			HTTPClient:       httpClient,
		}),
		Rasterizer: rasterize.New(rasterize.Options{DPI: cfg.OCRDPI, MaxPages: cfg.OCRMaxPages, Logger: log}),
		Engine:     engine,
		Workers:    workers,
		Titler:     llm.NewTitler(cfg.TitlingEnabled(), provider, auditor),
		Formatter:  llm.NewFormatter(cfg.FormattingEnabled(), provider, auditor),
		Timeout:    cfg.PipelineTimeout,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(api.Options{Runner: p, Logger: log}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":          cfg.ListenAddr,
			"lang":          cfg.OCRLang,
			"ocr_workers":   workers.Size(),
			"llm_title":     cfg.TitlingEnabled(),
			"llm_format":    cfg.FormattingEnabled(),
			"llm_model":     cfg.LLMModel,
			"audit_enabled": cfg.AuditPostgresURL != "",
		}).Info("paperless ocr webhook listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	case <-ctx.Done():
		log.Info("shutting down, waiting for in-flight documents")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown incomplete")
		}
	}
}

// openAuditor connects the LLM call audit when AUDIT_POSTGRES_URL is set.
// Audit problems never stop the service; it falls back to no auditing.
func openAuditor(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (storage.LLMAuditor, func()) {
	if cfg.AuditPostgresURL == "" {
		return storage.NopAuditor{}, func() {}
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(cctx, cfg.AuditPostgresURL)
	if err != nil {
		log.WithError(err).Warn("LLM call audit disabled")
		return storage.NopAuditor{}, func() {}
	}
	repo := storage.NewLLMAuditRepo(db)
	if err := repo.EnsureSchema(cctx); err != nil {
		log.WithError(err).Warn("LLM call audit disabled")
		db.Close()
		return storage.NopAuditor{}, func() {}
	}
	return repo, db.Close
}
