package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"LOG_LEVEL", "LISTEN_ADDR", "PAPERLESS_BASE_URL", "PAPERLESS_API_TOKEN", "PAPERLESS_LANG",
		"REQUEST_TIMEOUT_SECONDS", "LLM_ENABLED", "LLM_FORMAT_ENABLED", "LLM_API_KEY", "LLM_API_BASE", "LLM_MODEL",
	} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "ch", cfg.OCRLang)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLMAPIBase)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.False(t, cfg.LLMEnabled)
	assert.False(t, cfg.PaperlessConfigured())
	assert.False(t, cfg.TitlingEnabled())
	assert.False(t, cfg.FormattingEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAPERLESS_BASE_URL", "http://paperless:8000/")
	t.Setenv("PAPERLESS_API_TOKEN", "secret")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("OCR_WORKERS", "3")
	t.Setenv("LLM_ENABLED", "true")
	t.Setenv("LLM_API_KEY", "k")

	cfg := Load()
	require.Equal(t, "http://paperless:8000", cfg.PaperlessBaseURL)
	require.True(t, cfg.PaperlessConfigured())
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, 3, cfg.OCRWorkers)
	require.True(t, cfg.TitlingEnabled())
	require.False(t, cfg.FormattingEnabled())

	t.Setenv("LLM_FORMAT_ENABLED", "1")
	require.True(t, Load().FormattingEnabled())
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("OCR_DPI", "lots")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "-4")
	cfg := Load()
	assert.Equal(t, 200, cfg.OCRDPI)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}
