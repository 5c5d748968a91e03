package feishu

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/toolbridge/tools/apitool"
)

// TableKind distinguishes wiki-hosted spreadsheets from bitables.
type TableKind string

const (
	KindSheet   TableKind = "sheet"
	KindBitable TableKind = "bitable"
)

// TableRef identifies one table inside a wiki document.
type TableRef struct {
	Kind      TableKind
	WikiToken string
	// TableID is the sheet id for KindSheet and the table id for KindBitable.
	TableID string
}

var (
	sheetURLPattern   = regexp.MustCompile(`wiki/(.*)\?sheet=(.*)`)
	bitableURLPattern = regexp.MustCompile(`wiki/(.*)\?table=([^&]*)&`)

	errOnlyWiki        = errors.New("Only Wiki is supported")
	errInvalidTableURL = errors.New("Invalid parameter table_url")
)

// ParseTableURL extracts the wiki token and table id from a Feishu URL:
//
//	https://x.feishu.cn/wiki/<token>?sheet=<sheetID>
//	https://x.feishu.cn/wiki/<token>?table=<tableID>&view=<viewID>
func ParseTableURL(raw string) (TableRef, error) {
	if strings.Contains(raw, "base") {
		return TableRef{}, errOnlyWiki
	}

	kind, pattern := KindBitable, bitableURLPattern
	if strings.Contains(raw, "sheet") {
		kind, pattern = KindSheet, sheetURLPattern
	}

	m := pattern.FindStringSubmatch(raw)
	if len(m) != 3 {
		return TableRef{}, errInvalidTableURL
	}
	return TableRef{Kind: kind, WikiToken: m[1], TableID: m[2]}, nil
}

// =============================================================================
// Table
// =============================================================================

// Table is a header row plus data rows of text cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// headerPadding is the minimum slack kept around every header label.
const headerPadding = 2

// Markdown renders a pipe table. Numeric columns are right aligned.
func (t *Table) Markdown() string {
	n := len(t.Columns)
	widths := make([]int, n)
	numeric := make([]bool, n)
	for i, c := range t.Columns {
		widths[i] = utf8.RuneCountInString(escapeCell(c)) + headerPadding
		numeric[i] = len(t.Rows) > 0
	}
	for _, row := range t.Rows {
		for i := 0; i < n; i++ {
			cell := cellAt(row, i)
			if w := utf8.RuneCountInString(escapeCell(cell)); w > widths[i] {
				widths[i] = w
			}
			if numeric[i] && !isNumber(cell) {
				numeric[i] = false
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells func(int) string) {
		b.WriteByte('|')
		for i := 0; i < n; i++ {
			text := escapeCell(cells(i))
			pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(text))
			b.WriteByte(' ')
			if numeric[i] {
				b.WriteString(pad + text)
			} else {
				b.WriteString(text + pad)
			}
			b.WriteString(" |")
		}
	}

	writeRow(func(i int) string { return t.Columns[i] })
	b.WriteString("\n|")
	for i := 0; i < n; i++ {
		dashes := strings.Repeat("-", widths[i]+1)
		if numeric[i] {
			b.WriteString(dashes + ":|")
		} else {
			b.WriteString(":" + dashes + "|")
		}
	}
	for _, row := range t.Rows {
		b.WriteByte('\n')
		writeRow(func(i int) string { return cellAt(row, i) })
	}
	return b.String()
}

// CSV renders the table as RFC 4180 CSV with a header row.
func (t *Table) CSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return "", err
	}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i := range cells {
			cells[i] = cellAt(row, i)
		}
		if err := w.Write(cells); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// Values returns the header followed by the rows.
func (t *Table) Values() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Columns)
	return append(out, t.Rows...)
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// =============================================================================
// Markdown 解析
// =============================================================================

// ExtractMarkdownTable parses the first pipe table found in text. Only
// lines that start and end with "|" are considered; the separator row is
// skipped.
func ExtractMarkdownTable(text string) (*Table, error) {
	if text == "" {
		return nil, errors.New("The Markdown text is empty.")
	}

	var lines [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			continue
		}
		parts := strings.Split(strings.Trim(line, "|"), "|")
		cells := make([]string, len(parts))
		for i, p := range parts {
			cells[i] = strings.TrimSpace(p)
		}
		if isSeparatorCell(cells[0]) {
			continue
		}
		lines = append(lines, cells)
	}

	if len(lines) == 0 {
		return nil, errors.New("No tables found in the Markdown text.")
	}
	if len(lines) < 2 {
		return nil, errors.New("At least two table lines must be present in the Markdown text.")
	}
	for _, cells := range lines[1:] {
		if len(cells) != len(lines[0]) {
			return nil, errors.New("All tables must have the same number of columns.")
		}
	}
	return &Table{Columns: lines[0], Rows: lines[1:]}, nil
}

// isSeparatorCell matches "---" and aligned forms such as ":---:".
func isSeparatorCell(cell string) bool {
	if !strings.Contains(cell, "-") {
		return false
	}
	return strings.Trim(cell, "-:") == ""
}

// =============================================================================
// 读写
// =============================================================================

// GetTable reads the table a wiki URL points to.
func GetTable(ctx context.Context, c *Client, tableURL string) (*Table, error) {
	ref, err := ParseTableURL(tableURL)
	if err != nil {
		return nil, err
	}
	node, err := c.GetNode(ctx, ref.WikiToken)
	if err != nil {
		return nil, err
	}

	if ref.Kind == KindSheet {
		values, err := c.ReadSheet(ctx, node.ObjToken, ref.TableID)
		if err != nil {
			return nil, err
		}
		return sheetTable(values), nil
	}

	records, err := c.ListRecords(ctx, node.ObjToken, ref.TableID)
	if err != nil {
		return nil, err
	}
	return bitableTable(records), nil
}

// WriteTable overwrites a wiki sheet with the Markdown table in text.
func WriteTable(ctx context.Context, c *Client, tableURL, text string) (WriteResult, error) {
	if !strings.Contains(tableURL, "sheet") {
		return WriteResult{}, errors.New("Only Wiki sheet is supported currently")
	}
	ref, err := ParseTableURL(tableURL)
	if err != nil {
		return WriteResult{}, err
	}
	table, err := ExtractMarkdownTable(text)
	if err != nil {
		return WriteResult{}, err
	}
	node, err := c.GetNode(ctx, ref.WikiToken)
	if err != nil {
		return WriteResult{}, err
	}
	return c.WriteSheet(ctx, node.ObjToken, ref.TableID, table.Values())
}

// sheetTable treats the first row as the header. Short rows are padded.
func sheetTable(values [][]any) *Table {
	t := &Table{}
	if len(values) == 0 {
		return t
	}
	t.Columns = textRow(values[0])
	for _, row := range values[1:] {
		t.Rows = append(t.Rows, textRow(row))
	}
	return t
}

// bitableTable uses the union of field names in first-seen order as columns.
func bitableTable(records []Record) *Table {
	t := &Table{}
	index := map[string]int{}
	for _, r := range records {
		for _, k := range r.Fields.Keys() {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}
	for _, r := range records {
		row := make([]string, len(t.Columns))
		for _, k := range r.Fields.Keys() {
			v, _ := r.Fields.Get(k)
			row[index[k]] = cellText(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func textRow(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellText(c)
	}
	return out
}

// cellText flattens a cell value. Rich text segments are concatenated;
// other structures fall back to JSON.
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		if s, ok := segmentsText(x); ok {
			return s
		}
	case apitool.Object:
		if text, ok := x.Get("text"); ok {
			if s, ok := text.(string); ok {
				return s
			}
		}
	case map[string]any:
		if s, ok := x["text"].(string); ok {
			return s
		}
	}
	s, err := apitool.CanonicalJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func segmentsText(items []any) (string, bool) {
	var b strings.Builder
	for _, item := range items {
		var text any
		var ok bool
		switch seg := item.(type) {
		case apitool.Object:
			text, ok = seg.Get("text")
		case map[string]any:
			text, ok = seg["text"]
		case string:
			text, ok = seg, true
		}
		s, isString := text.(string)
		if !ok || !isString {
			return "", false
		}
		b.WriteString(s)
	}
	return b.String(), true
}
