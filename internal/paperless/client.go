package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paperlessocr/internal/util"
)

var (
	ErrConfigMissing = errors.New("paperless base url or api token missing")
	ErrTooLarge      = errors.New("paperless document exceeds download limit")
)

const errorBodyLimit = 4 << 10

// StatusError is returned when the Paperless API answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("paperless %s error %d: %s", e.Op, e.StatusCode, e.Body)
}

// RawDocument is the original file as served by Paperless.
type RawDocument struct {
	Data        []byte
	ContentType string
}

type Options struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	MaxDownloadBytes int64
	HTTPClient       *http.Client
}

// Client talks to the Paperless REST API. It is safe for concurrent use; the
// underlying http.Client is shared across requests.
type Client struct {
	baseURL  string
	token    string
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
}

func NewClient(opts Options) *Client {
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: opts.Timeout}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:    strings.TrimSpace(opts.Token),
		timeout:  timeout,
		maxBytes: opts.MaxDownloadBytes,
		client:   c,
	}
}

func (c *Client) configured() bool {
	return c.baseURL != "" && c.token != ""
}

// Download fetches the original file of a document.
func (c *Client) Download(ctx context.Context, docID int) (RawDocument, error) {
	if !c.configured() {
		return RawDocument{}, ErrConfigMissing
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/documents/%d/download/?original=true", c.baseURL, docID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RawDocument{}, fmt.Errorf("build download request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.token)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return RawDocument{}, fmt.Errorf("paperless download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawDocument{}, statusError("download", resp)
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return RawDocument{}, fmt.Errorf("read paperless download: %w", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return RawDocument{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}
	return RawDocument{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Update patches the content of a document and, when title is non-empty, its
// title. An empty title is never sent.
func (c *Client) Update(ctx context.Context, docID int, content, title string) error {
	if !c.configured() {
		return ErrConfigMissing
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]any{"content": util.SanitizeText(content)}
	if title != "" {
		payload["title"] = title
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode paperless update: %w", err)
	}
	url := fmt.Sprintf("%s/api/documents/%d/", c.baseURL, docID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paperless update request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("update", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
