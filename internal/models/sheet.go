package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SheetType is the ":type" marker of single sheet documents.
const SheetType = "sheet"

// Sheet is the remote JSON document holding publish request rows. Data[0] is
// reserved as the schema carrier and survives every rewrite, even when empty.
type Sheet struct {
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
	Data   []SheetRow `json:"data"`
	Type   string     `json:":type,omitempty"`

	// ETag is the version token returned when the sheet was read, if any.
	ETag string `json:"-"`
}

// NewSheet returns an empty sheet whose schema row uses the request columns.
func NewSheet() *Sheet {
	s := &Sheet{Type: SheetType, Data: []SheetRow{NewSheetRow(RequestColumns...)}}
	s.Recount()
	return s
}

// Recount keeps total/offset/limit consistent with Data.
func (s *Sheet) Recount() {
	s.Total = len(s.Data)
	s.Offset = 0
	s.Limit = len(s.Data)
}

// Requests decodes every row. The schema row decodes to a request with no path.
func (s *Sheet) Requests() []PublishRequest {
	out := make([]PublishRequest, 0, len(s.Data))
	for _, row := range s.Data {
		out = append(out, RequestFromRow(row))
	}
	return out
}

// SheetRow is one JSON object of a sheet, keeping its original key order and
// raw cell values so rows can be rewritten without reshaping them.
type SheetRow struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewSheetRow returns a row with the given keys set to empty strings.
func NewSheetRow(keys ...string) SheetRow {
	row := SheetRow{values: make(map[string]json.RawMessage, len(keys))}
	for _, key := range keys {
		row.Set(key, "")
	}
	return row
}

// Keys returns the row's column keys in document order.
func (r SheetRow) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the cell as a string. Non-string JSON values are returned verbatim.
func (r SheetRow) Get(key string) string {
	raw, ok := r.values[key]
	if !ok {
		return ""
	}
	return cellString(raw)
}

// GetFold looks a cell up with a case-insensitive key.
func (r SheetRow) GetFold(key string) string {
	if raw, ok := r.values[key]; ok {
		return cellString(raw)
	}
	for _, k := range r.keys {
		if strings.EqualFold(k, key) {
			return cellString(r.values[k])
		}
	}
	return ""
}

// GetListFold reads a list cell that may be a JSON array or a comma separated string.
func (r SheetRow) GetListFold(key string) []string {
	raw, ok := r.values[key]
	if !ok {
		for _, k := range r.keys {
			if strings.EqualFold(k, key) {
				raw, ok = r.values[k], true
				break
			}
		}
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []string
		if err := json.Unmarshal(trimmed, &items); err == nil {
			out := make([]string, 0, len(items))
			for _, item := range items {
				out = append(out, SplitList(item)...)
			}
			return out
		}
	}
	return SplitList(cellString(raw))
}

// Set writes a string cell, appending the key when it is new.
func (r *SheetRow) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]json.RawMessage)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	encoded, _ := json.Marshal(value)
	r.values[key] = encoded
}

// EmptyCopy returns a row with the same keys and every value blank.
func (r SheetRow) EmptyCopy() SheetRow {
	return NewSheetRow(r.keys...)
}

// MarshalJSON writes the row preserving key order.
func (r SheetRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		raw := r.values[key]
		if len(raw) == 0 {
			raw = json.RawMessage(`""`)
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order.
func (r *SheetRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("sheet row: expected object, got %v", tok)
	}
	row := SheetRow{values: make(map[string]json.RawMessage)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("sheet row: unexpected key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("sheet row: value for %q: %w", key, err)
		}
		if _, seen := row.values[key]; !seen {
			row.keys = append(row.keys, key)
		}
		row.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = row
	return nil
}

func cellString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
