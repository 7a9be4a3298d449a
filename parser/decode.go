package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/use-agent/fonfetch/models"
	"github.com/ysmood/gson"
)

// Row is one upstream record keyed by whatever field names the portal used.
type Row map[string]gson.JSON

// DecodeRows turns a JSON payload into rows. It accepts a bare array, an
// object with a "data" array or object, and a single object. Markup is a
// WAF block; empty or malformed JSON is a parse failure.
func DecodeRows(op, body string) ([]Row, error) {
	if models.IsMarkup(body) {
		return nil, models.NewWafBlockedError(op, body)
	}
	if strings.TrimSpace(body) == "" {
		return nil, models.NewParseError(op, "empty payload", body, nil)
	}

	// gson swallows decode errors, so the body is decoded here first.
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, models.NewParseError(op, "payload is not valid JSON", body, err)
	}
	root := gson.New(v)

	switch root.Val().(type) {
	case []interface{}:
		return rowsOf(op, body, root.Arr())
	case map[string]interface{}:
		obj := root.Map()
		data, ok := obj["data"]
		if !ok {
			return []Row{Row(obj)}, nil
		}
		switch data.Val().(type) {
		case []interface{}:
			return rowsOf(op, body, data.Arr())
		case map[string]interface{}:
			return []Row{Row(data.Map())}, nil
		case nil:
			return []Row{}, nil
		}
		return nil, models.NewParseError(op, `"data" is neither an array nor an object`, body, nil)
	default:
		return nil, models.NewParseError(op, "payload is neither an array nor an object", body, nil)
	}
}

func rowsOf(op, body string, items []gson.JSON) ([]Row, error) {
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		if _, ok := item.Val().(map[string]interface{}); !ok {
			return nil, models.NewParseError(op, "array element "+strconv.Itoa(i)+" is not an object", body, nil)
		}
		rows = append(rows, Row(item.Map()))
	}
	return rows, nil
}

// TableRows adapts extracted table cells to rows so both acquisition paths
// share one transformer.
func TableRows(table []map[string]string) []Row {
	rows := make([]Row, 0, len(table))
	for _, cells := range table {
		row := make(Row, len(cells))
		for k, v := range cells {
			row[k] = gson.New(v)
		}
		rows = append(rows, row)
	}
	return rows
}

// first returns the value of the first alias present with a non-null value.
func (r Row) first(aliases []string) gson.JSON {
	for _, key := range aliases {
		if v, ok := r[key]; ok && !v.Nil() {
			return v
		}
	}
	return gson.New(nil)
}
