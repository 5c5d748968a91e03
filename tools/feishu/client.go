package feishu

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/toolbridge/internal/cache"
	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/tools/apitool"
)

const (
	instrumentationName = "github.com/BaSui01/toolbridge/tools/feishu"

	// DefaultBaseURL is the Feishu open platform.
	DefaultBaseURL = "https://open.feishu.cn"

	tokenCacheType    = "feishu_token"
	bitablePageSize   = 500
	minTokenTTL       = 30 * time.Second
	defaultRefreshGap = 5 * time.Minute
)

// Feishu business codes meaning the tenant token is no longer valid.
var invalidTokenCodes = map[int]bool{
	99991661: true,
	99991663: true,
	99991668: true,
}

// Recorder receives Feishu call and token cache observations.
type Recorder interface {
	RecordFeishuRequest(endpoint string, code int)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// APIError is a non-zero business code returned by the open platform.
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu %s failed: code=%d msg=%s", e.Endpoint, e.Code, e.Msg)
}

// Client calls the Feishu open platform as one app.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	http       *http.Client
	tokens     cache.Store
	refreshGap time.Duration
	flight     *singleflight.Group
	recorder   Recorder
	tracer     trace.Tracer
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the open platform address.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTokenStore shares tenant tokens through store, e.g. Redis.
func WithTokenStore(store cache.Store) ClientOption {
	return func(c *Client) { c.tokens = store }
}

// WithRefreshGap renews tokens this long before they expire.
func WithRefreshGap(d time.Duration) ClientOption {
	return func(c *Client) { c.refreshGap = d }
}

// WithRecorder reports calls to r.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func withFlightGroup(g *singleflight.Group) ClientOption {
	return func(c *Client) { c.flight = g }
}

// NewClient creates a client for one app.
func NewClient(appID, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		appID:      appID,
		appSecret:  appSecret,
		refreshGap: defaultRefreshGap,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = tlsutil.SecureHTTPClient(30 * time.Second)
	}
	if c.tokens == nil {
		c.tokens = cache.NewMemoryStore()
	}
	if c.flight == nil {
		c.flight = &singleflight.Group{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "feishu"), zap.String("app_id", appID))
	return c
}

// =============================================================================
// tenant_access_token
// =============================================================================

// tokenKey includes a digest of the secret so a rotated secret never
// reuses a token minted with the old one.
func (c *Client) tokenKey() string {
	sum := sha256.Sum256([]byte(c.appID + ":" + c.appSecret))
	return "feishu:tenant_token:" + c.appID + ":" + hex.EncodeToString(sum[:8])
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// TenantToken returns a cached token or fetches a new one. Concurrent
// misses for the same app share one fetch.
func (c *Client) TenantToken(ctx context.Context) (string, error) {
	key := c.tokenKey()
	if tok, err := c.tokens.Get(ctx, key); err == nil && tok != "" {
		c.observeCache(true)
		return tok, nil
	} else if err != nil && !cache.IsCacheMiss(err) {
		c.logger.Warn("token cache read failed", zap.Error(err))
	}
	c.observeCache(false)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		return c.fetchToken(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context, key string) (string, error) {
	if c.appID == "" || c.appSecret == "" {
		return "", fmt.Errorf("missing app_id or app_secret")
	}

	payload, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("feishu token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response (status %d): %w", resp.StatusCode, err)
	}
	c.observeCall("auth.tenant_access_token", tr.Code)
	if tr.Code != 0 {
		return "", &APIError{Endpoint: "auth.tenant_access_token", Code: tr.Code, Msg: tr.Msg}
	}

	ttl := time.Duration(tr.Expire)*time.Second - c.refreshGap
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	if err := c.tokens.Set(ctx, key, tr.TenantAccessToken, ttl); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
	c.logger.Debug("tenant token refreshed", zap.Duration("ttl", ttl))
	return tr.TenantAccessToken, nil
}

// =============================================================================
// 通用调用
// =============================================================================

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call performs one authorized request. An invalid-token reply drops the
// cached token and retries once.
func (c *Client) call(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "feishu."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("feishu.endpoint", endpoint)))
	defer span.End()

	err := c.callOnce(ctx, endpoint, method, path, query, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && invalidTokenCodes[apiErr.Code] {
		c.logger.Info("tenant token rejected, refreshing", zap.Int("code", apiErr.Code))
		_ = c.tokens.Delete(ctx, c.tokenKey())
		err = c.callOnce(ctx, endpoint, method, path, query, body, out)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) callOnce(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	token, err := c.TenantToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feishu %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode feishu %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}
	c.observeCall(endpoint, env.Code)
	if env.Code != 0 {
		return &APIError{Endpoint: endpoint, Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode feishu %s data: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observeCall(endpoint string, code int) {
	if c.recorder != nil {
		c.recorder.RecordFeishuRequest(endpoint, code)
	}
}

func (c *Client) observeCache(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit(tokenCacheType)
	} else {
		c.recorder.RecordCacheMiss(tokenCacheType)
	}
}

// =============================================================================
// Wiki / Sheets / Bitable
// =============================================================================

// Node is a wiki node and the document it wraps.
type Node struct {
	NodeToken string `json:"node_token"`
	ObjToken  string `json:"obj_token"`
	ObjType   string `json:"obj_type"`
	Title     string `json:"title"`
}

// GetNode resolves a wiki token to its underlying document.
func (c *Client) GetNode(ctx context.Context, wikiToken string) (Node, error) {
	var data struct {
		Node Node `json:"node"`
	}
	err := c.call(ctx, "wiki.get_node", http.MethodGet, "/open-apis/wiki/v2/spaces/get_node",
		url.Values{"token": {wikiToken}}, nil, &data)
	return data.Node, err
}

// ReadSheet returns every populated cell of a sheet, row by row.
func (c *Client) ReadSheet(ctx context.Context, spreadsheetToken, sheetID string) ([][]any, error) {
	var data struct {
		ValueRange struct {
			Values [][]any `json:"values"`
		} `json:"valueRange"`
	}
	path := "/open-apis/sheets/v2/spreadsheets/" + url.PathEscape(spreadsheetToken) + "/values/" + url.PathEscape(sheetID)
	query := url.Values{
		"valueRenderOption":    {"ToString"},
		"dateTimeRenderOption": {"FormattedString"},
	}
	if err := c.call(ctx, "sheets.values.get", http.MethodGet, path, query, nil, &data); err != nil {
		return nil, err
	}
	return data.ValueRange.Values, nil
}

// WriteResult is the outcome of a sheet write.
type WriteResult struct {
	SpreadsheetToken string `json:"spreadsheetToken"`
	UpdatedRange     string `json:"updatedRange"`
	UpdatedRows      int    `json:"updatedRows"`
	UpdatedColumns   int    `json:"updatedColumns"`
	UpdatedCells     int    `json:"updatedCells"`
	Revision         int    `json:"revision"`
}

// WriteSheet overwrites the sheet starting at A1 with values.
func (c *Client) WriteSheet(ctx context.Context, spreadsheetToken, sheetID string, values [][]string) (WriteResult, error) {
	var res WriteResult
	if len(values) == 0 {
		return res, fmt.Errorf("nothing to write")
	}
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}

	body := map[string]any{
		"valueRange": map[string]any{
			"range":  fmt.Sprintf("%s!A1:%s%d", sheetID, columnName(width), len(values)),
			"values": values,
		},
	}
	path := "/open-apis/sheets/v2/spreadsheets/" + url.PathEscape(spreadsheetToken) + "/values"
	err := c.call(ctx, "sheets.values.put", http.MethodPut, path, nil, body, &res)
	return res, err
}

// Record is one bitable row with its fields in server order.
type Record struct {
	RecordID string         `json:"record_id"`
	Fields   apitool.Object `json:"fields"`
}

// ListRecords pages through every record of a bitable table.
func (c *Client) ListRecords(ctx context.Context, appToken, tableID string) ([]Record, error) {
	path := "/open-apis/bitable/v1/apps/" + url.PathEscape(appToken) + "/tables/" + url.PathEscape(tableID) + "/records"

	var records []Record
	pageToken := ""
	for {
		query := url.Values{"page_size": {fmt.Sprint(bitablePageSize)}}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		var page struct {
			Items     []Record `json:"items"`
			HasMore   bool     `json:"has_more"`
			PageToken string   `json:"page_token"`
		}
		if err := c.call(ctx, "bitable.records.list", http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Items...)

		if !page.HasMore || page.PageToken == "" || page.PageToken == pageToken {
			return records, nil
		}
		pageToken = page.PageToken
	}
}

// columnName converts a 1-based column number to sheet letters (1 → A, 27 → AA).
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
