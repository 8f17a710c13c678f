// Package client is a typed HTTP client for the suggestion API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"redline/internal/domain"
	"redline/internal/domain/models/docsystem"
	models "redline/internal/domain/models/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/mirror"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// APIError is a non-2xx response decoded from an RFC 7807 body.
type APIError struct {
	Status int
	Title  string
	Detail string
	Reason string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Is maps response statuses back onto the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrValidation:
		return e.Status == http.StatusBadRequest
	case domain.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case domain.ErrForbidden:
		return e.Status == http.StatusForbidden
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrInvalidTransition:
		return e.Status == http.StatusConflict && e.Reason == "invalid_transition"
	case domain.ErrDocumentLocked:
		return e.Status == http.StatusConflict && e.Reason == "document_locked"
	case domain.ErrStore:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// Client talks to one API server on behalf of one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client using the functional options pattern
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.http = cl }
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the API at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func documentPath(documentID string, parts ...string) string {
	p := "/api/documents/" + url.PathEscape(documentID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// CreateSuggestions submits a batch of candidates and returns how many were anchored.
func (c *Client) CreateSuggestions(ctx context.Context, documentID string, candidates []models.Candidate) (int, error) {
	var out struct {
		Created int `json:"created"`
	}
	body := map[string]interface{}{"suggestions": candidates}
	if err := c.do(ctx, http.MethodPost, documentPath(documentID, "suggestions"), body, &out); err != nil {
		return 0, err
	}
	return out.Created, nil
}

// ListSuggestions fetches the display list. A nil version means current.
func (c *Client) ListSuggestions(ctx context.Context, documentID string, version *docsystem.Version) (*suggestionSvc.DisplayResult, error) {
	path := documentPath(documentID, "suggestions")
	if version != nil {
		path += "?version=" + url.QueryEscape(version.String())
	}
	var out suggestionSvc.DisplayResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revalidate reports a document change.
func (c *Client) Revalidate(ctx context.Context, documentID, newBody string, newVersion docsystem.Version, publish bool) (*suggestionSvc.RevalidationReport, error) {
	req := suggestionSvc.RevalidateRequest{NewBody: newBody, NewVersion: newVersion, IsTerminalPublish: publish}
	var out struct {
		Success bool                             `json:"success"`
		Report  suggestionSvc.RevalidationReport `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, documentPath(documentID, "revalidate"), req, &out); err != nil {
		return nil, err
	}
	return &out.Report, nil
}

// UpdateStatus applies a status change. It returns nil for deletions.
func (c *Client) UpdateStatus(ctx context.Context, documentID, suggestionID string, status models.Status) (*models.Suggestion, error) {
	var out models.Suggestion
	body := map[string]models.Status{"status": status}
	if err := c.do(ctx, http.MethodPatch, documentPath(documentID, "suggestions", suggestionID), body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

// Prune deletes expired pending suggestions and returns how many went.
func (c *Client) Prune(ctx context.Context, documentID string) (int, error) {
	var out struct {
		Pruned int `json:"pruned"`
	}
	if err := c.do(ctx, http.MethodPost, documentPath(documentID, "suggestions", "prune"), nil, &out); err != nil {
		return 0, err
	}
	return out.Pruned, nil
}

// LoadMirror fetches the display list into m.
func (c *Client) LoadMirror(ctx context.Context, m *mirror.Mirror, documentID string, version *docsystem.Version) error {
	res, err := c.ListSuggestions(ctx, documentID, version)
	if err != nil {
		return err
	}
	m.Load(res.Suggestions)
	return nil
}

// StatusForwarder returns a mirror flush hook that sends each committed
// change to the server. Failures are logged; the mirror keeps its state.
func (c *Client) StatusForwarder(ctx context.Context, documentID string, logger *slog.Logger) mirror.FlushHook {
	return func(changes []mirror.Change) {
		for _, ch := range changes {
			if _, err := c.UpdateStatus(ctx, documentID, ch.ID, ch.To); err != nil {
				logger.Warn("failed to forward status change",
					"document_id", documentID,
					"suggestion_id", ch.ID,
					"status", ch.To,
					"error", err,
				)
			}
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeProblem(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeProblem(status int, data []byte) error {
	apiErr := &APIError{Status: status, Title: http.StatusText(status)}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &problem); err == nil {
		if problem.Title != "" {
			apiErr.Title = problem.Title
		}
		apiErr.Detail = problem.Detail
		apiErr.Reason = problem.Reason
	} else if len(data) > 0 {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}
