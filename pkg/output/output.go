// Package output renders API results for the command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table, json, yaml, csv)", s)
	}
}

// Column is one table or CSV column. Path is a JMESPath expression
// evaluated against each row.
type Column struct {
	Header string
	Path   string
}

// Normalize converts v to the generic JSON shape (maps, slices, float64).
func Normalize(v any) (any, error) {
	var data []byte
	switch raw := v.(type) {
	case json.RawMessage:
		data = raw
	case []byte:
		data = raw
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON result: %w", err)
	}
	return out, nil
}

// Filter applies a JMESPath expression to v. An empty expression returns v normalized.
func Filter(v any, expression string) (any, error) {
	data, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	if expression == "" {
		return data, nil
	}
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JMESPath expression '%s': %w", expression, err)
	}
	result, err := jp.Search(data)
	if err != nil {
		return nil, fmt.Errorf("JMESPath search failed: %w", err)
	}
	return result, nil
}

// Render writes v in format. Table and CSV use columns when given,
// otherwise the sorted keys of the first row.
func Render(w io.Writer, format Format, v any, columns []Column) error {
	data, err := Normalize(v)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to write yaml: %w", err)
		}
		return enc.Close()
	case FormatCSV, FormatTable, "":
		headers, rows, err := tabulate(data, columns)
		if err != nil {
			return err
		}
		if format == FormatCSV {
			return writeCSV(w, headers, rows)
		}
		return writeTable(w, headers, rows)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func tabulate(data any, columns []Column) ([]string, [][]string, error) {
	var items []any
	switch v := data.(type) {
	case nil:
	case []any:
		items = v
	default:
		items = []any{v}
	}

	if len(columns) == 0 {
		columns = inferColumns(items)
	}
	headers := make([]string, len(columns))
	paths := make([]*jmespath.JMESPath, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
		path := c.Path
		if path == "" {
			path = c.Header
		}
		jp, err := jmespath.Compile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid column path '%s': %w", path, err)
		}
		paths[i] = jp
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(columns))
		if _, ok := item.(map[string]any); !ok {
			// Scalars render in the first column.
			if len(row) > 0 {
				row[0] = cell(item)
			}
			rows = append(rows, row)
			continue
		}
		for i, jp := range paths {
			v, err := jp.Search(item)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to evaluate column %s: %w", headers[i], err)
			}
			row[i] = cell(v)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func inferColumns(items []any) []Column {
	if len(items) == 0 {
		return nil
	}
	obj, ok := items[0].(map[string]any)
	if !ok {
		return []Column{{Header: "value", Path: "@"}}
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cols := make([]Column, len(keys))
	for i, k := range keys {
		cols[i] = Column{Header: k, Path: strconv.Quote(k)}
	}
	return cols
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(upper...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
