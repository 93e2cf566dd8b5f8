package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBodyBytes caps how much of an error response is kept for
// diagnostics.
const maxErrorBodyBytes = 4 << 10

// HTTPTransport calls the backend annotation API over HTTP.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPTransportConfig holds transport settings.
type HTTPTransportConfig struct {
	BaseURL string        // e.g. http://localhost:8000
	Token   string        // optional bearer token
	Timeout time.Duration // per-request timeout, default 30s
}

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateAnnotation POSTs to the episode's annotation collection.
func (t *HTTPTransport) CreateAnnotation(ctx context.Context, datasetID, episodeID string, payload json.RawMessage) error {
	path := fmt.Sprintf("/api/datasets/%s/episodes/%s/annotations",
		url.PathEscape(datasetID), url.PathEscape(episodeID))
	return t.do(ctx, http.MethodPost, path, payload)
}

// UpdateAnnotation PUTs an annotation by ID.
func (t *HTTPTransport) UpdateAnnotation(ctx context.Context, annotationID string, payload json.RawMessage) error {
	return t.do(ctx, http.MethodPut, "/api/annotations/"+url.PathEscape(annotationID), payload)
}

// DeleteAnnotation DELETEs an annotation by ID.
func (t *HTTPTransport) DeleteAnnotation(ctx context.Context, annotationID string) error {
	return t.do(ctx, http.MethodDelete, "/api/annotations/"+url.PathEscape(annotationID), nil)
}

// do performs one request. Any non-2xx response becomes a TransportError so
// the processor can classify conflicts by status code.
func (t *HTTPTransport) do(ctx context.Context, method, path string, body json.RawMessage) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &TransportError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}
