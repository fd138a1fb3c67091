package export

import (
	"fmt"
	"strings"
	"time"
)

// Format names a supported report encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Dataset is an ordered table. Every row holds one cell per column.
type Dataset struct {
	Title     string
	Generated time.Time
	Columns   []string
	Rows      [][]string
}

// Validate checks that the dataset is rectangular.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset requires at least one column")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

// Filename builds a download name such as publish-requests_acme-site_20240501_100000.csv.
func Filename(prefix string, parts []string, at time.Time, format Format) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := sanitize(p); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	name := prefix
	if len(cleaned) > 0 {
		name += "_" + strings.Join(cleaned, "-")
	}
	return fmt.Sprintf("%s_%s.%s", name, at.UTC().Format("20060102_150405"), format)
}

func sanitize(raw string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := strings.Trim(replacer.Replace(strings.TrimSpace(raw)), "-_.")
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
