// Package backend is the HTTP client of the survey backend: mailings, statistics,
// test accounts and spreadsheet uploads.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/surveybot/core/httpclient"
	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	"github.com/m3rciful/surveybot/internal/schedule"
)

const (
	maxBodyBytes = 32 << 20
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Client talks to the survey backend. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New normalizes a copy of cfg and builds a client from it.
func New(cfg Config) (*Client, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if cfg.InsecureSkipVerify {
		logger.API.Warn("tls verification disabled",
			slog.String("event", "tls.insecure"),
			slog.String("base_url", cfg.BaseURL),
		)
	}
	return &Client{
		cfg: cfg,
		http: httpclient.New(httpclient.Options{
			Timeout:            cfg.Timeout(),
			ResponseTimeout:    cfg.Timeout(),
			Retries:            cfg.retries(),
			RetryBackoff:       cfg.backoff(),
			IdempotentOnly:     true,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}),
	}, nil
}

func (c *Client) url(path string) string {
	return c.cfg.BaseURL + c.cfg.APIPrefix + path
}

// do sends one request and returns the status and the (bounded) body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return 0, nil, fmt.Errorf("backend %s: build request: %w", op, err)
	}
	rid := logger.RIDFrom(ctx)
	if rid == "" {
		rid = uuid.NewString()
		ctx = logger.WithRID(ctx, rid)
	}
	req.Header.Set("X-Request-ID", rid)
	req.Header.Set(c.cfg.AuthHeader, c.cfg.authValue())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	took := time.Since(start)
	metrics.BackendDuration.WithLabelValues(op).Observe(took.Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, metrics.ResultLabel(0)).Inc()
		logger.Warn(ctx, "backend", "request.failed",
			slog.String("op", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
			slog.String("err", err.Error()),
		)
		return 0, nil, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.BackendRequests.WithLabelValues(op, metrics.ResultLabel(resp.StatusCode)).Inc()
	level := slog.LevelInfo
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	logger.Event(ctx, "backend", level, "request.done",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
	)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("backend %s: read body: %w", op, err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any) (int, []byte, error) {
	if in == nil {
		return c.do(ctx, op, method, path, nil, "")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, fmt.Errorf("backend %s: encode: %w", op, err)
	}
	return c.do(ctx, op, method, path, bytes.NewReader(payload), "application/json")
}

// get fetches path and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	status, data, err := c.doJSON(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if !ok(status) {
		return apiError(status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodable, op, err)
	}
	return nil
}

func ok(status int) bool { return status >= 200 && status < 300 }

func apiError(status int, body []byte) *APIError {
	eb := parseErrorBody(status, body)
	return &APIError{Status: status, Code: eb.Code, Message: eb.text()}
}

// VerifyToken exchanges a one-time access token for the operator's email.
func (c *Client) VerifyToken(ctx context.Context, token string, chatID int64) (string, error) {
	in := map[string]any{"token": token, "chat_id": chatID}
	status, data, err := c.doJSON(ctx, "verify_token", http.MethodPost, "/telegram/verify-token", in)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", apiError(status, data)
	}
	var out struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Email == "" {
		return "", fmt.Errorf("%w: verify_token", ErrUndecodable)
	}
	return out.Email, nil
}

// Stats returns feedback statistics for all surveyed engineers.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.get(ctx, "stats", "/stats/all", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mailings lists every mailing known to the backend.
func (c *Client) Mailings(ctx context.Context) ([]Mailing, error) {
	var out []Mailing
	if err := c.get(ctx, "mailings", "/mailing/all", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Mailing fetches one mailing.
func (c *Client) Mailing(ctx context.Context, id int64) (*Mailing, error) {
	var out Mailing
	if err := c.get(ctx, "mailing", "/mailing/"+strconv.FormatInt(id, 10), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskLog returns the delivery log of a mailing.
func (c *Client) TaskLog(ctx context.Context, id int64) ([]TaskLogEntry, error) {
	var out []TaskLogEntry
	if err := c.get(ctx, "tasklog", "/mailing/tasklog/"+strconv.FormatInt(id, 10), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeedbackCount returns how many answers a mailing collected.
func (c *Client) FeedbackCount(ctx context.Context, id int64) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "feedback_count", "/stats/count/"+strconv.FormatInt(id, 10), &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// EmailTemplate returns the rendered HTML of the survey invitation.
func (c *Client) EmailTemplate(ctx context.Context) (string, error) {
	var out struct {
		Template string `json:"template"`
	}
	if err := c.get(ctx, "email_template", "/email-template/preview/", &out); err != nil {
		return "", err
	}
	return out.Template, nil
}

// CreateMailing schedules a mailing. An overlap with an existing mailing is
// reported as *ConflictError.
func (c *Client) CreateMailing(ctx context.Context, s MailingSettings) error {
	status, data, err := c.doJSON(ctx, "create_mailing", http.MethodPost, "/mailing/settings", s)
	if err != nil {
		return err
	}
	if ok(status) {
		return nil
	}
	eb := parseErrorBody(status, data)
	if (status == http.StatusBadRequest || status == http.StatusConflict) &&
		matchCode(eb, CodeMailingConflict, conflictMarkers) {
		return &ConflictError{
			Requested: requestedRange(s),
			Existing:  existingRange(eb),
			Message:   eb.text(),
		}
	}
	return &APIError{Status: status, Code: eb.Code, Message: eb.text()}
}

func requestedRange(s MailingSettings) DateRange {
	var r DateRange
	if t, err := schedule.ParseISO(s.StartDate, time.UTC); err == nil {
		r.Start = t
	}
	if t, err := schedule.ParseISO(s.EndDate, time.UTC); err == nil {
		r.End = t
	}
	return r
}

// CancelMailing deletes a mailing. A mailing that already ran yields ErrMailingCompleted.
func (c *Client) CancelMailing(ctx context.Context, id int64) error {
	status, data, err := c.doJSON(ctx, "cancel_mailing", http.MethodDelete, "/mailing/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return err
	}
	if ok(status) {
		return nil
	}
	eb := parseErrorBody(status, data)
	if status < 500 && matchCode(eb, CodeMailingCompleted, completedMarkers) {
		return fmt.Errorf("%w: %s", ErrMailingCompleted, eb.text())
	}
	return &APIError{Status: status, Code: eb.Code, Message: eb.text()}
}

// CreateTestAccount registers a survey test account. An existing account
// yields ErrAccountExists.
func (c *Client) CreateTestAccount(ctx context.Context, acc TestAccount) error {
	status, data, err := c.doJSON(ctx, "test_account", http.MethodPost, "/test-create", acc)
	if err != nil {
		return err
	}
	if ok(status) {
		return nil
	}
	eb := parseErrorBody(status, data)
	if status == http.StatusBadRequest && matchCode(eb, CodeAlreadyExists, existsMarkers) {
		return fmt.Errorf("%w: %s", ErrAccountExists, eb.text())
	}
	return &APIError{Status: status, Code: eb.Code, Message: eb.text()}
}

// Upload posts a workbook for cat as multipart field "file". Every status is
// decoded into the result; only transport failures and undecodable bodies
// are errors.
func (c *Client) Upload(ctx context.Context, cat Category, filename string, data []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", xlsxMIME)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("backend upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("backend upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend upload: %w", err)
	}

	status, body, err := c.do(ctx, "upload_"+string(cat), http.MethodPost, c.cfg.categoryPath(cat), &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return decodeUpload(status, body)
}

func decodeUpload(status int, body []byte) (*UploadResult, error) {
	res := &UploadResult{Status: status}
	if status == http.StatusBadRequest {
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: upload status %d", ErrUndecodable, status)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			res.FieldErrors = []FieldError{{Field: "error", Messages: Items{"validation failed"}}}
			return res, nil
		}
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			var msgs Items
			_ = msgs.UnmarshalJSON(fields[name])
			res.FieldErrors = append(res.FieldErrors, FieldError{Field: name, Messages: msgs})
		}
		return res, nil
	}
	if err := json.Unmarshal(body, res); err != nil {
		return nil, fmt.Errorf("%w: upload status %d", ErrUndecodable, status)
	}
	return res, nil
}

// Export downloads the consolidated workbook.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	status, data, err := c.do(ctx, "export", http.MethodGet, c.cfg.categoryPath(CategoryExport), nil, "")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, apiError(status, data)
	}
	return data, nil
}
