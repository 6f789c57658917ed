package storage

import (
	"sync"

	"github.com/xuri/excelize/v2"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/normalize"
)

const sheetName = "Sheet1"

// XLSX streams records into a single worksheet. Nothing reaches disk until
// Close.
type XLSX struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	closed bool
}

// NewXLSX prepares a workbook for path. The path is created immediately so
// an unwritable location fails before the crawl starts.
func NewXLSX(path string) (*XLSX, error) {
	probe, err := createFile(path)
	if err != nil {
		return nil, err
	}
	probe.Close()

	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.ErrorTypeSink, err, "failed to open xlsx stream")
	}
	return &XLSX{path: path, file: f, stream: sw}, nil
}

func (x *XLSX) WriteHeader(columns []string) error {
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.setRow(values)
}

func (x *XLSX) WriteRecords(records []normalize.Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range records {
		if err := x.setRow(cells(r)); err != nil {
			return err
		}
	}
	return nil
}

func (x *XLSX) setRow(values []interface{}) error {
	if x.closed {
		return errs.New(errs.ErrorTypeSink, "write to closed sink")
	}
	cell, err := excelize.CoordinatesToCellName(1, x.row+1)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "invalid xlsx row")
	}
	if err := x.stream.SetRow(cell, values); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to write xlsx row")
	}
	x.row++
	return nil
}

// cells keeps numeric columns numeric so spreadsheets can sort on them
func cells(r normalize.Record) []interface{} {
	row := r.Row()
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	values[2] = r.TextLength
	if r.Timestamp != nil {
		values[12] = *r.Timestamp
	}
	return values
}

func (x *XLSX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	defer x.file.Close()

	if err := x.stream.Flush(); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to flush xlsx stream")
	}
	if err := x.file.SaveAs(x.path); err != nil {
		return errs.Wrap(errs.ErrorTypeSink, err, "failed to save xlsx")
	}
	return nil
}
