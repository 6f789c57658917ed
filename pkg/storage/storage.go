package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/normalize"
)

// Supported formats
const (
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
	FormatNDJSON = "ndjson"
)

// Writer is a tabular sink for normalized records
type Writer interface {
	WriteHeader(columns []string) error
	WriteRecords(records []normalize.Record) error
	Close() error
}

// New opens a sink of the given format at path. An empty format is taken
// from the file extension.
func New(format, path string) (Writer, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSV(path)
	case FormatXLSX:
		return NewXLSX(path)
	case FormatNDJSON:
		return NewNDJSON(path)
	default:
		return nil, errs.New(errs.ErrorTypeConfig, fmt.Sprintf("unknown output format %q", format))
	}
}

// FormatFromPath guesses the format from the extension, defaulting to csv
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	default:
		return FormatCSV
	}
}

// createFile truncates path, creating its directory first
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeSink, err, "failed to create output directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSink, err, "failed to create output file")
	}
	return f, nil
}
