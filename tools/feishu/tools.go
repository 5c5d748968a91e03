package feishu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/types"
)

// Tool names.
const (
	GetTableToolName   = "feishu_get_table"
	WriteTableToolName = "feishu_write_table"
)

// Credential keys read from the tool runtime.
const (
	CredentialAppID     = "app_id"
	CredentialAppSecret = "app_secret"
)

// Output formats of feishu_get_table.
const (
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// =============================================================================
// Connector
// =============================================================================

// Connector hands out one Client per app. Clients share the token store,
// HTTP client, recorder and the token refresh flight group.
type Connector struct {
	opts   []ClientOption
	flight *singleflight.Group
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewConnector creates a Connector whose clients are built with opts.
func NewConnector(logger *zap.Logger, opts ...ClientOption) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		opts:    append([]ClientOption{WithLogger(logger)}, opts...),
		flight:  &singleflight.Group{},
		logger:  logger.With(zap.String("component", "feishu_connector")),
		clients: make(map[string]*Client),
	}
}

// Client returns the cached client for the app, creating it on first use.
func (c *Connector) Client(appID, appSecret string) *Client {
	sum := sha256.Sum256([]byte(appID + ":" + appSecret))
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}
	opts := append(append([]ClientOption{}, c.opts...), withFlightGroup(c.flight))
	client := NewClient(appID, appSecret, opts...)
	c.clients[key] = client
	c.logger.Debug("feishu client created", zap.String("app_id", appID))
	return client
}

// clientFor reads app_id and app_secret from creds.
func (c *Connector) clientFor(creds map[string]any) (*Client, error) {
	appID, _ := creds[CredentialAppID].(string)
	appSecret, _ := creds[CredentialAppSecret].(string)
	if appID == "" || appSecret == "" {
		return nil, fmt.Errorf("missing %s or %s", CredentialAppID, CredentialAppSecret)
	}
	return c.Client(appID, appSecret), nil
}

// =============================================================================
// feishu_get_table
// =============================================================================

// GetTableTool reads a wiki sheet or bitable and renders it as text.
type GetTableTool struct {
	conn *Connector
}

// NewGetTableTool creates the feishu_get_table tool.
func NewGetTableTool(conn *Connector) *GetTableTool {
	return &GetTableTool{conn: conn}
}

// Name returns feishu_get_table.
func (t *GetTableTool) Name() string { return GetTableToolName }

// Schema describes the tool for function calling.
func (t *GetTableTool) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        GetTableToolName,
		Description: "Read a Feishu wiki sheet or bitable and return it as a table.",
		Parameters: json.RawMessage(`{"type":"object","properties":{` +
			`"table_url":{"type":"string","description":"Wiki URL with ?sheet= or ?table="},` +
			`"format":{"type":"string","enum":["markdown","csv"],"default":"markdown"}},` +
			`"required":["table_url"]}`),
	}
}

// Invoke returns the table text, or a message describing why it could not
// be read. It never fails.
func (t *GetTableTool) Invoke(ctx context.Context, creds map[string]any, params map[string]any) string {
	tableURL, _ := params["table_url"].(string)
	if tableURL == "" {
		return "Invalid parameter table_url"
	}
	format, _ := params["format"].(string)
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatCSV {
		return "Invalid parameter format"
	}

	text, err := t.read(ctx, creds, tableURL, format)
	if err != nil {
		return fmt.Sprintf("Failed to get table. %v", err)
	}
	return text
}

func (t *GetTableTool) read(ctx context.Context, creds map[string]any, tableURL, format string) (string, error) {
	client, err := t.conn.clientFor(creds)
	if err != nil {
		return "", err
	}
	table, err := GetTable(ctx, client, tableURL)
	if err != nil {
		return "", err
	}
	if format == FormatCSV {
		return table.CSV()
	}
	return table.Markdown(), nil
}

// =============================================================================
// feishu_write_table
// =============================================================================

// WriteTableTool overwrites a wiki sheet with a Markdown table.
type WriteTableTool struct {
	conn *Connector
}

// NewWriteTableTool creates the feishu_write_table tool.
func NewWriteTableTool(conn *Connector) *WriteTableTool {
	return &WriteTableTool{conn: conn}
}

// Name returns feishu_write_table.
func (t *WriteTableTool) Name() string { return WriteTableToolName }

// Schema describes the tool for function calling.
func (t *WriteTableTool) Schema() types.ToolSchema {
	return types.ToolSchema{
		Name:        WriteTableToolName,
		Description: "Write a Markdown table into a Feishu wiki sheet, header row first.",
		Parameters: json.RawMessage(`{"type":"object","properties":{` +
			`"table_url":{"type":"string","description":"Wiki URL with ?sheet="},` +
			`"table_data":{"type":"string","description":"Markdown pipe table"}},` +
			`"required":["table_url","table_data"]}`),
	}
}

// Invoke returns the write result as JSON text, or a failure message.
func (t *WriteTableTool) Invoke(ctx context.Context, creds map[string]any, params map[string]any) string {
	tableURL, _ := params["table_url"].(string)
	if tableURL == "" {
		return "Invalid parameter table_url"
	}
	tableData, _ := params["table_data"].(string)
	if tableData == "" {
		return "Invalid parameter table_data"
	}

	text, err := t.write(ctx, creds, tableURL, tableData)
	if err != nil {
		return fmt.Sprintf("Failed to write table. %v", err)
	}
	return text
}

func (t *WriteTableTool) write(ctx context.Context, creds map[string]any, tableURL, tableData string) (string, error) {
	client, err := t.conn.clientFor(creds)
	if err != nil {
		return "", err
	}
	res, err := WriteTable(ctx, client, tableURL, tableData)
	if err != nil {
		return "", err
	}
	return apitool.CanonicalJSON(res)
}
