package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/domain"
)

const maxResponseBytes = 8 << 20

// Client talks to the analysis backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client for baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: NewHTTPClient(timeout),
		logger:     logger,
	}
}

// NewHTTPClient returns the pooled HTTP client used for backend calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// BaseURL returns the backend address the client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the common response wrapper of every backend endpoint
type envelope struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error"`
	Data     json.RawMessage `json:"data"`
	ReportID string          `json:"report_id"`
	Reports  json.RawMessage `json:"reports"`
}

type analyzeURLBody struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// AnalyzeURL posts a URL for analysis
func (c *Client) AnalyzeURL(ctx context.Context, req domain.URLRequest, sessionID string) (*domain.AnalysisResult, error) {
	env, status, err := c.postJSON(ctx, "/api/analyze-url", "analyze url", analyzeURLBody{URL: req.URL, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return decodeResult(env, status)
}

type generateEmailBody struct {
	Content             string `json:"content"`
	ConversationStarter string `json:"conversation_starter"`
}

// GenerateEmail asks the backend to draft an outreach email from research
// content and one of its conversation starters
func (c *Client) GenerateEmail(ctx context.Context, content, starter string) (*domain.EmailDraft, error) {
	env, status, err := c.postJSON(ctx, "/api/generate-email", "generate email", generateEmailBody{
		Content:             content,
		ConversationStarter: starter,
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &ResponseError{StatusCode: status, Logical: true, Message: env.Error}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &DecodeError{StatusCode: status, Err: errors.New("missing data")}
	}

	var draft domain.EmailDraft
	if err := json.Unmarshal(env.Data, &draft); err != nil {
		return nil, &DecodeError{StatusCode: status, Err: err}
	}
	return &draft, nil
}

func (c *Client) postJSON(ctx context.Context, path, op string, payload any) (*envelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, op)
}

// AnalyzeDocument uploads a PDF for analysis as multipart form data
func (c *Client) AnalyzeDocument(ctx context.Context, req domain.DocumentRequest, sessionID string) (*domain.AnalysisResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(req.Filename)))
	header.Set("Content-Type", req.MediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.WriteField("session_id", sessionID); err != nil {
		return nil, fmt.Errorf("failed to write session field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze-pdf", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	env, status, err := c.do(httpReq, "analyze pdf")
	if err != nil {
		return nil, err
	}
	return decodeResult(env, status)
}

// Reports lists the backend's stored reports for a session, newest first
func (c *Client) Reports(ctx context.Context, sessionID string, limit int) ([]domain.RemoteReport, error) {
	query := url.Values{}
	query.Set("session_id", sessionID)
	query.Set("limit", strconv.Itoa(limit))

	env, status, err := c.get(ctx, "/api/reports?"+query.Encode(), "list reports")
	if err != nil {
		return nil, err
	}

	reports := make([]domain.RemoteReport, 0)
	if len(env.Reports) > 0 && string(env.Reports) != "null" {
		if err := json.Unmarshal(env.Reports, &reports); err != nil {
			return nil, &DecodeError{StatusCode: status, Err: err}
		}
	}
	return reports, nil
}

// Usage returns the report quota of a session. The backend encodes an
// unlimited tier as a bare Infinity, which encoding/json rejects, so the
// body is read field by field.
func (c *Client) Usage(ctx context.Context, sessionID string) (*domain.Usage, error) {
	query := url.Values{}
	query.Set("session_id", sessionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/usage?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	body, status, err := c.send(httpReq, "get usage")
	if err != nil {
		return nil, err
	}

	if gjson.GetBytes(body, "success").Type != gjson.True {
		return nil, &ResponseError{StatusCode: status, Logical: true, Message: gjson.GetBytes(body, "error").String()}
	}

	raw := gjson.GetBytes(body, "usage")
	if !raw.IsObject() {
		return nil, &DecodeError{StatusCode: status, Err: errors.New("missing usage")}
	}
	return parseUsage(raw), nil
}

func parseUsage(raw gjson.Result) *domain.Usage {
	usage := &domain.Usage{
		ReportsGenerated: int(raw.Get("reports_generated").Int()),
		Tier:             raw.Get("tier").String(),
	}

	// anything but a finite number (Infinity, null, a string) is unlimited
	if limit := raw.Get("limit"); limit.Type == gjson.Number && !math.IsInf(limit.Num, 0) && !math.IsNaN(limit.Num) {
		n := int(limit.Num)
		usage.Limit = &n
	}
	if reset := raw.Get("reset_date"); reset.Type == gjson.String {
		date := reset.Str
		usage.ResetDate = &date
	}
	return usage
}

// Health reports whether the backend is reachable and healthy
func (c *Client) Health(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Op: "health", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ResponseError{StatusCode: resp.StatusCode, Message: gjson.GetBytes(body, "error").String()}
	}
	return gjson.GetBytes(body, "status").String(), nil
}

func (c *Client) get(ctx context.Context, path, op string) (*envelope, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	env, status, err := c.do(httpReq, op)
	if err != nil {
		return nil, status, err
	}
	if !env.Success {
		return nil, status, &ResponseError{StatusCode: status, Logical: true, Message: env.Error}
	}
	return env, status, nil
}

// do executes req and decodes the envelope
func (c *Client) do(req *http.Request, op string) (*envelope, int, error) {
	body, status, err := c.send(req, op)
	if err != nil {
		return nil, status, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, status, &DecodeError{StatusCode: status, Err: err}
	}
	return &env, status, nil
}

// send executes req and classifies the outcome. Non-2xx answers become a
// ResponseError carrying the body's "error" field when there is one.
func (c *Client) send(req *http.Request, op string) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("op", op),
			zap.String("url", req.URL.Redacted()),
			zap.Error(err),
		)
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Op: op, Err: err}
	}

	c.logger.Debug("Backend responded",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respErr := &ResponseError{StatusCode: resp.StatusCode}
		if gjson.ValidBytes(body) {
			if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
				respErr.Message = msg.Str
			}
			respErr.Logical = gjson.GetBytes(body, "success").Type == gjson.False
		}
		return nil, resp.StatusCode, respErr
	}
	return body, resp.StatusCode, nil
}

func decodeResult(env *envelope, status int) (*domain.AnalysisResult, error) {
	if !env.Success {
		return nil, &ResponseError{StatusCode: status, Logical: true, Message: env.Error}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &DecodeError{StatusCode: status, Err: errors.New("missing data")}
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, &DecodeError{StatusCode: status, Err: err}
	}
	if result.ReportID == "" {
		result.ReportID = env.ReportID
	}
	return &result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
