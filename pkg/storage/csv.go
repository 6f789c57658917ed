package storage

import (
	"encoding/csv"
	"os"
	"sync"

	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/normalize"
)

// CSV writes records as comma separated rows
type CSV struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	rows   int
	closed bool
}

// NewCSV creates (or truncates) path
func NewCSV(path string) (*CSV, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	return &CSV{file: f, writer: csv.NewWriter(f)}, nil
}

func (c *CSV) WriteHeader(columns []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write([][]string{columns})
}

func (c *CSV) WriteRecords(records []normalize.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write(rows); err != nil {
		return err
	}
	c.rows += len(rows)
	return nil
}

// Rows returns the number of records written
func (c *CSV) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSV) write(rows [][]string) error {
	if c.closed {
		return errs.New(errs.ErrorTypeSink, "write to closed sink")
	}
	// WriteAll flushes
	if err := c.writer.WriteAll(rows); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to write csv rows")
	}
	return nil
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to flush csv")
	}
	if err := c.file.Close(); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to close csv")
	}
	return nil
}
