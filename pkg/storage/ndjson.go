package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/normalize"
)

// NDJSON writes one JSON object per record
type NDJSON struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	closed bool
}

func NewNDJSON(path string) (*NDJSON, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &NDJSON{file: f, buf: buf, enc: enc}, nil
}

// WriteHeader is a no-op; field names travel with every line
func (n *NDJSON) WriteHeader([]string) error { return nil }

func (n *NDJSON) WriteRecords(records []normalize.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errs.New(errs.ErrorTypeSink, "write to closed sink")
	}
	for _, r := range records {
		if err := n.enc.Encode(r); err != nil {
			return errs.Wrap(errs.ErrorTypeSink, err, "failed to encode record")
		}
	}
	if err := n.buf.Flush(); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to write records")
	}
	return nil
}

func (n *NDJSON) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if err := n.buf.Flush(); err != nil {
		n.file.Close()
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to flush records")
	}
	return n.file.Close()
}
