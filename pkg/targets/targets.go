// Package targets produces the list of user ids a run crawls.
package targets

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"weibocrawl/pkg/config"
	errs "weibocrawl/pkg/errors"
)

// Source yields targets once, at the start of a run
type Source interface {
	Targets(ctx context.Context) ([]string, error)
}

// Static is a fixed target list
type Static []string

func (s Static) Targets(context.Context) ([]string, error) {
	return dedupe(s), nil
}

// File reads one id per line. Blank lines and lines starting with # are
// skipped.
type File struct {
	Path string
}

func (f File) Targets(ctx context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSource, err, "failed to open target file")
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeSource, err, "failed to read target file")
	}
	return dedupe(ids), nil
}

// Range yields Start..End inclusive, at most Limit ids when Limit > 0
type Range struct {
	Start, End int64
	Limit      int
}

func (r Range) Targets(ctx context.Context) ([]string, error) {
	if r.End < r.Start {
		return nil, errs.New(errs.ErrorTypeSource, fmt.Sprintf("range end %d precedes start %d", r.End, r.Start))
	}
	var ids []string
	for id := r.Start; id <= r.End; id++ {
		if r.Limit > 0 && len(ids) >= r.Limit {
			break
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

// FromConfig picks a source: explicit ids first, then a file, then the
// Postgres query, then a bare numeric range.
func FromConfig(cfg config.TargetsConfig, ids []string) (Source, error) {
	switch {
	case len(ids) > 0:
		return Static(ids), nil
	case cfg.File != "":
		return File{Path: cfg.File}, nil
	case cfg.PostgresDSN != "":
		return &Postgres{
			DSN:   cfg.PostgresDSN,
			Table: cfg.Table,
			Start: cfg.RangeStart,
			End:   cfg.RangeEnd,
			Limit: cfg.Limit,
		}, nil
	case cfg.RangeEnd > 0:
		return Range{Start: cfg.RangeStart, End: cfg.RangeEnd, Limit: cfg.Limit}, nil
	default:
		return nil, errs.New(errs.ErrorTypeConfig, "no target source configured")
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
