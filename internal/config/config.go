package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel         string
	LogFormat        string
	ListenAddr       string
	PaperlessBaseURL string
	PaperlessToken   string
	OCRLang          string
	OCRWorkers       int
	OCRDPI           int
	OCRMaxPages      int
	RequestTimeout   time.Duration
	PipelineTimeout  time.Duration
	ShutdownTimeout  time.Duration
	MaxDownloadBytes int64
	LLMEnabled       bool
	LLMFormatEnabled bool
	LLMAPIBase       string
	LLMAPIKey        string
	LLMModel         string
	AuditPostgresURL string
}

func Load() Config {
	return Config{
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
		ListenAddr:       getenv("LISTEN_ADDR", ":8000"),
		PaperlessBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PAPERLESS_BASE_URL")), "/"),
		PaperlessToken:   strings.TrimSpace(os.Getenv("PAPERLESS_API_TOKEN")),
		OCRLang:          getenv("PAPERLESS_LANG", "ch"),
		OCRWorkers:       getenvInt("OCR_WORKERS", runtime.NumCPU()),
		OCRDPI:           getenvInt("OCR_DPI", 200),
		OCRMaxPages:      getenvInt("OCR_MAX_PAGES", 0),
		RequestTimeout:   getenvSeconds("REQUEST_TIMEOUT_SECONDS", 30),
		PipelineTimeout:  getenvSeconds("PIPELINE_TIMEOUT_SECONDS", 600),
		ShutdownTimeout:  getenvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 30),
		MaxDownloadBytes: int64(getenvInt("MAX_DOWNLOAD_BYTES", 256<<20)),
		LLMEnabled:       getenvBool("LLM_ENABLED", false),
		LLMFormatEnabled: getenvBool("LLM_FORMAT_ENABLED", false),
		LLMAPIBase:       strings.TrimRight(getenv("LLM_API_BASE", "https://api.openai.com/v1"), "/"),
		LLMAPIKey:        strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		LLMModel:         getenv("LLM_MODEL", "gpt-4o-mini"),
		AuditPostgresURL: strings.TrimSpace(os.Getenv("AUDIT_POSTGRES_URL")),
	}
}

// PaperlessConfigured reports whether both backend URL and token are present.
func (c Config) PaperlessConfigured() bool {
	return c.PaperlessBaseURL != "" && c.PaperlessToken != ""
}

// TitlingEnabled mirrors the gate used by the title stage.
func (c Config) TitlingEnabled() bool {
	return c.LLMEnabled && c.LLMAPIKey != ""
}

// FormattingEnabled mirrors the gate used by the formatting stage.
func (c Config) FormattingEnabled() bool {
	return c.LLMEnabled && c.LLMFormatEnabled && c.LLMAPIKey != ""
}

func getenv(k, fallback string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getenvBool(k string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getenvSeconds(k string, fallback int) time.Duration {
	n := getenvInt(k, fallback)
	if n == 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
