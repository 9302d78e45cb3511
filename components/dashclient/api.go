package dashclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// Endpoints that must never carry the session token.
var openEndpoints = map[string]bool{
	"login/":          true,
	"register/":       true,
	"password-reset/": true,
}

// Client is the single point of outbound HTTP calls. It attaches the
// session token, normalizes error shapes, and supports binary responses
// for the report endpoint. It implements DataGateway, AuthGateway,
// UploadGateway, and ReportGateway.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *Session
	log       *zap.Logger
	onAuthErr func()
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger attaches a structured logger for request tracing.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithAuthErrorHook registers the session-invalidation hook: it fires when
// a protected request is rejected with an authorization error.
func WithAuthErrorHook(hook func()) ClientOption {
	return func(c *Client) {
		c.onAuthErr = hook
	}
}

// NewClient builds a gateway adapter rooted at baseURL (e.g.
// "http://localhost:8000/api/").
func NewClient(baseURL string, session *Session, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		http:    &http.Client{Timeout: defaultRequestTimeout},
		session: session,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token. The token is returned to the
// caller; handing it to the session is the auth controller's job.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.postJSON(ctx, "login/", creds, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &APIError{Status: http.StatusOK, Message: "login response missing token"}
	}
	return out.Token, nil
}

// Register creates an account. Field-keyed validation errors are preserved
// in the returned *APIError.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.postJSON(ctx, "register/", reg, nil)
}

// RequestPasswordReset asks the server to send a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	payload := map[string]string{"email": email}
	return c.postJSON(ctx, "password-reset/", payload, nil)
}

// ConfirmPasswordReset finalizes a reset using the uid/token pair from the
// emailed link.
func (c *Client) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	path := fmt.Sprintf("password-reset-confirm/%s/%s/", url.PathEscape(uid), url.PathEscape(token))
	payload := map[string]string{"new_password": newPassword}
	return c.postJSON(ctx, path, payload, nil)
}

// Profile fetches the logged-in user.
func (c *Client) Profile(ctx context.Context) (UserProfile, error) {
	var out UserProfile
	err := c.getJSON(ctx, "profile/", &out)
	return out, err
}

// History lists past uploads, ordered by the server (most recent first).
func (c *Client) History(ctx context.Context) ([]UploadSummary, error) {
	var out []UploadSummary
	err := c.getJSON(ctx, "history/", &out)
	return out, err
}

// Summary fetches the computed statistics for one upload.
func (c *Client) Summary(ctx context.Context, uploadID int) (StatsSummary, error) {
	var out StatsSummary
	err := c.getJSON(ctx, fmt.Sprintf("summary/%d/", uploadID), &out)
	return out, err
}

// Data fetches the row data for one upload.
func (c *Client) Data(ctx context.Context, uploadID int) ([]EquipmentRecord, error) {
	var out []EquipmentRecord
	err := c.getJSON(ctx, fmt.Sprintf("data/%d/", uploadID), &out)
	return out, err
}

// Users lists registered users (admin tab).
func (c *Client) Users(ctx context.Context) ([]UserProfile, error) {
	var out []UserProfile
	err := c.getJSON(ctx, "users/", &out)
	return out, err
}

// Upload submits a CSV as multipart form data and returns the new upload.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("dashclient: build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadResult{}, fmt.Errorf("dashclient: read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("dashclient: finalize multipart body: %w", err)
	}

	var out UploadResult
	err = c.do(ctx, http.MethodPost, "upload/", &body, writer.FormDataContentType(), &out, nil)
	return out, err
}

// Report fetches the binary report payload for an upload.
func (c *Client) Report(ctx context.Context, uploadID int) ([]byte, error) {
	var blob []byte
	path := fmt.Sprintf("report/%d/", uploadID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", nil, &blob); err != nil {
		return nil, err
	}
	return blob, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dashclient: encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", out, nil)
}

// do issues one request. Exactly one of out (JSON target) and blob (binary
// target) may be non-nil.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any, blob *[]byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("dashclient: build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.session != nil && !openEndpoints[path] && !strings.HasPrefix(path, "password-reset-confirm/") {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Token "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return fmt.Errorf("dashclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request complete",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(resp)
		if IsAuthError(apiErr) && !openEndpoints[path] && c.onAuthErr != nil {
			c.onAuthErr()
		}
		return apiErr
	}

	if blob != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("dashclient: read binary response: %w", err)
		}
		*blob = data
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dashclient: decode %s response: %w", path, err)
	}
	return nil
}

// decodeAPIError maps the backend's error bodies onto APIError without
// losing field structure. The backend emits either {"error": "..."} /
// {"detail": "..."} or a field-keyed object like {"email": ["taken"]}.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(data) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	fields := make(map[string][]string)
	for key, value := range raw {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			if key == "error" || key == "detail" || key == "message" {
				apiErr.Message = single
			} else {
				fields[key] = []string{single}
			}
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err == nil && len(many) > 0 {
			fields[key] = many
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
	}
	if apiErr.Message == "" && len(fields) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
