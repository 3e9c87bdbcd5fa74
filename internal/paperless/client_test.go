package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDocumentID(t *testing.T) {
	cases := map[string]struct {
		id int
		ok bool
	}{
		"https://x/api/documents/42/download/": {42, true},
		"https://x/api/documents/7/":           {7, true},
		"/documents/123/":                      {123, true},
		"https://x/api/documents/42":           {0, false},
		"https://x/api/documents/abc/":         {0, false},
		"https://x/api/documents/0/":           {0, false},
		"https://x/api/documents/99999999999999999999999/": {0, false},
		"": {0, false},
	}
	for in, want := range cases {
		id, ok := ExtractDocumentID(in)
		assert.Equal(t, want.ok, ok, in)
		assert.Equal(t, want.id, id, in)
	}
}

func newTestClient(srv *httptest.Server, maxBytes int64) *Client {
	return NewClient(Options{
		BaseURL:          srv.URL + "/",
		Token:            "tok",
		Timeout:          2 * time.Second,
		MaxDownloadBytes: maxBytes,
		HTTPClient:       srv.Client(),
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/documents/42/download/", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("original"))
		assert.Equal(t, "Token tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv, 0).Download(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), doc.Data)
}

func TestDownloadNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 0).Download(context.Background(), 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "download", se.Op)
	assert.Equal(t, "not found", se.Body)
}

func TestDownloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 16).Download(context.Background(), 1)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestMissingConfig(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://paperless", Timeout: time.Second})
	_, err := c.Download(context.Background(), 1)
	require.ErrorIs(t, err, ErrConfigMissing)
	require.ErrorIs(t, c.Update(context.Background(), 1, "x", ""), ErrConfigMissing)
}

func TestUpdate(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/documents/9/", r.URL.Path)
		assert.Equal(t, "Token tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		assert.NoError(t, json.Unmarshal(b, &m))
		got = append(got, m)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	require.NoError(t, c.Update(context.Background(), 9, "body\x00 text", "Title"))
	require.NoError(t, c.Update(context.Background(), 9, "body", ""))

	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"content": "body text", "title": "Title"}, got[0])
	assert.Equal(t, map[string]any{"content": "body"}, got[1])
	_, hasTitle := got[1]["title"]
	assert.False(t, hasTitle)
}

func TestUpdateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(srv, 0).Update(context.Background(), 3, "c", "t")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "update", se.Op)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestDownloadTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(Options{BaseURL: srv.URL, Token: "tok", Timeout: 50 * time.Millisecond, HTTPClient: srv.Client()})
	_, err := c.Download(context.Background(), 1)
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
