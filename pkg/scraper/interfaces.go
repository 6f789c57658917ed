package scraper

import (
	"context"

	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/proxypool"
)

// TargetSource yields the run's targets once, at start
type TargetSource interface {
	Targets(ctx context.Context) ([]string, error)
}

// Sink receives the header once, then zero or more batches
type Sink interface {
	WriteHeader(columns []string) error
	WriteRecords(records []normalize.Record) error
	Close() error
}

// ProxyPool is the proxy pool as seen by the orchestrator
type ProxyPool interface {
	Acquire(ctx context.Context) (proxypool.Proxy, error)
	ReportFailure(p proxypool.Proxy)
	Release(p proxypool.Proxy)
	Run(ctx context.Context) error
	Stats() proxypool.Stats
}

// Batch is the records of one finished target
type Batch struct {
	Target  string
	Records []normalize.Record
}
