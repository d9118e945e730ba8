package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"srlcanvas/api/internal/canvas"
)

// Client talks to the canvas API over HTTP. The zero token means anonymous;
// every canvas call then fails with ErrUnauthorized.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Code, e.Message)
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", body, &out, false); err != nil {
		return "", fmt.Errorf("sign up: %w", err)
	}
	return out.UserID, nil
}

// SignIn exchanges credentials for a session and keeps its token.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", body, &session, false); err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	c.SetToken(session.AccessToken)
	return session, nil
}

// SignOut revokes the current token on the server and forgets it locally.
// The local token is dropped even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/session/logout", nil, nil, true)
	c.SetToken("")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ListByUser lists the canvases of the signed-in user. The API derives the
// owner from the token, so userID only guards against a mismatched session.
// Each record is repaired like local storage; records without a usable id
// are skipped.
func (c *Client) ListByUser(ctx context.Context, userID string) ([]Canvas, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	var out struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/canvases", nil, &out, true); err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	items := make([]Canvas, 0, len(out.Items))
	for _, raw := range out.Items {
		item, ok := decodeCanvas(raw)
		if !ok {
			continue
		}
		if item.UserID != "" && item.UserID != userID {
			return nil, fmt.Errorf("list canvases: %w", ErrUnauthorized)
		}
		items = append(items, item)
	}
	return items, nil
}

// decodeCanvas reads one listed record. Malformed meta or blocks fall back
// to defaults, and an unusable date becomes the day of the last update.
func decodeCanvas(raw json.RawMessage) (Canvas, bool) {
	var wire struct {
		ID        string `json:"id"`
		UserID    string `json:"userId"`
		Title     string `json:"title"`
		Meta      any    `json:"meta"`
		Blocks    any    `json:"blocks"`
		UpdatedAt string `json:"updatedAt"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || strings.TrimSpace(wire.ID) == "" {
		return Canvas{}, false
	}

	record := Canvas{ID: wire.ID, UserID: wire.UserID, Title: wire.Title}
	if ts, err := time.Parse(time.RFC3339Nano, wire.UpdatedAt); err == nil {
		record.UpdatedAt = ts
	}
	dateFallback := record.UpdatedAt
	if dateFallback.IsZero() {
		dateFallback = time.Now()
	}

	meta, ok := canvas.SanitizeMeta(wire.Meta, dateFallback)
	if !ok {
		meta = canvas.NewMeta(dateFallback)
	}
	record.Meta = meta
	dims, ok := canvas.SanitizeDimensions(wire.Blocks)
	if !ok {
		dims = canvas.NewDimensions()
	}
	record.Dimensions = dims
	return record, true
}

func (c *Client) Upsert(ctx context.Context, input UpsertInput) (Canvas, error) {
	var out Canvas
	if err := c.do(ctx, http.MethodPost, "/api/canvases", input, &out, true); err != nil {
		return Canvas{}, fmt.Errorf("upsert canvas: %w", err)
	}
	return out, nil
}

func (c *Client) SaveSurveyResponse(ctx context.Context, payload map[string]any) (SurveyResponse, error) {
	var out SurveyResponse
	if err := c.do(ctx, http.MethodPost, "/api/survey/responses", map[string]any{"payload": payload}, &out, true); err != nil {
		return SurveyResponse{}, fmt.Errorf("save survey response: %w", err)
	}
	return out, nil
}

// ConsentStatus returns the latest consent record, or nil when none exists.
func (c *Client) ConsentStatus(ctx context.Context) (*Consent, error) {
	var out struct {
		Consent *Consent `json:"consent"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/survey/consent", nil, &out, true); err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return out.Consent, nil
}

func (c *Client) AcceptConsent(ctx context.Context, input AcceptConsentInput) (Consent, error) {
	var out Consent
	if err := c.do(ctx, http.MethodPost, "/api/survey/consent", input, &out, true); err != nil {
		return Consent{}, fmt.Errorf("accept consent: %w", err)
	}
	return out, nil
}

func (c *Client) RevokeConsent(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/survey/consent", nil, nil, true); err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authenticated bool) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	token := c.Token()
	if authenticated && token == "" {
		return ErrUnauthorized
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
		apiErr := &APIError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.Join(ErrUnauthorized, apiErr)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
