package scraper

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"weibocrawl/internal/workerpool"
	"weibocrawl/pkg/config"
	"weibocrawl/pkg/crawler"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/fetch"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/proxypool"
	"weibocrawl/pkg/report"
)

// Options configures a Scraper
type Options struct {
	Config *config.Config
	Pool   ProxyPool
	// Fetcher defaults to a fetch.Executor over Pool
	Fetcher    crawler.Fetcher
	Normalizer crawler.Normalizer
	Logger     logger.Logger
	Events     *logger.EventLog
	RunID      string
	// OnTargetStart and OnOutcome are called from worker goroutines around
	// every target
	OnTargetStart func(worker int, target string)
	OnOutcome     func(crawler.Outcome)
}

// Summary describes a finished run
type Summary struct {
	report.Report
	// Written is the number of rows the sink accepted
	Written   int
	PoolStats proxypool.Stats
}

// Scraper orchestrates the workers, the proxy supply loop and the sink
type Scraper struct {
	cfg        *config.Config
	pool       ProxyPool
	fetcher    crawler.Fetcher
	executor   *fetch.Executor
	normalizer crawler.Normalizer
	logger     logger.Logger
	events     *logger.EventLog
	runID      string
	onStart    func(int, string)
	onOutcome  func(crawler.Outcome)
}

// New creates a Scraper
func New(opts Options) (*Scraper, error) {
	if opts.Config == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "config is required")
	}
	if opts.Pool == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "proxy pool is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	events := opts.Events
	if events == nil {
		events = logger.NopEventLog()
	}

	s := &Scraper{
		cfg:        opts.Config,
		pool:       opts.Pool,
		fetcher:    opts.Fetcher,
		normalizer: opts.Normalizer,
		logger:     log.WithField("component", "scraper"),
		events:     events,
		runID:      opts.RunID,
		onStart:    opts.OnTargetStart,
		onOutcome:  opts.OnOutcome,
	}
	if s.fetcher == nil {
		s.executor = fetch.NewExecutor(opts.Pool, opts.Config.Fetch, log, events)
		s.fetcher = s.executor
	}
	if s.normalizer == nil {
		s.normalizer = normalize.Normalize
	}
	return s, nil
}

// Run crawls every target from source into sink. Target failures are
// recorded in the summary; only source, sink and context errors are
// returned. The sink is closed before Run returns.
func (s *Scraper) Run(ctx context.Context, source TargetSource, sink Sink) (Summary, error) {
	recorder := report.NewRecorder(s.runID, s.cfg.Output.Path)
	if s.executor != nil {
		defer s.executor.Close()
	}

	targets, err := source.Targets(ctx)
	if err != nil {
		sink.Close()
		return s.finish(recorder, 0, errs.Wrap(errs.ErrorTypeSource, err, "failed to load targets"))
	}

	numWorkers := s.cfg.Crawl.Workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	logger.LogComponentStart("scraper", map[string]interface{}{
		"targets": len(targets),
		"workers": numWorkers,
		"run_id":  s.runID,
	})

	// the supply loop outlives the workers and is cancelled last
	poolCtx, stopPool := context.WithCancel(ctx)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := s.pool.Run(poolCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Error("Proxy supply loop stopped")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	workers := make([]*crawler.Worker, numWorkers)
	for i := range workers {
		workers[i] = crawler.NewWorker(crawler.Options{
			ID:         i,
			Fetcher:    s.fetcher,
			Crawl:      s.cfg.Crawl,
			Retries:    s.cfg.Fetch.Retries,
			Normalizer: s.normalizer,
			Logger:     s.logger,
			Events:     s.events,
		})
	}

	wp := workerpool.New(numWorkers, func(ctx context.Context, id int, target string) (Batch, bool) {
		if s.onStart != nil {
			s.onStart(id, target)
		}
		out := workers[id].Crawl(ctx, target)
		recorder.Add(report.Outcome{
			Target:    out.Target,
			State:     string(out.State),
			Pages:     out.Pages,
			Rows:      len(out.Records),
			Details:   out.Details,
			Fallbacks: out.Fallbacks,
			Err:       out.Err,
		})
		if s.onOutcome != nil {
			s.onOutcome(out)
		}
		if len(out.Records) == 0 {
			return Batch{}, false
		}
		return Batch{Target: target, Records: out.Records}, true
	}, s.logger)
	wp.OnExit(func(id int) {
		workers[id].Close(s.pool)
	})
	wp.Start(gctx)

	g.Go(func() error {
		for _, t := range targets {
			if err := wp.Submit(gctx, t); err != nil {
				return err
			}
		}
		return wp.Stop(gctx)
	})

	written := 0
	g.Go(func() error {
		if err := sink.WriteHeader(normalize.Header()); err != nil {
			return errs.Wrap(errs.ErrorTypeSink, err, "failed to write header")
		}
		for batch := range wp.Results() {
			if err := sink.WriteRecords(batch.Records); err != nil {
				return errs.Wrap(errs.ErrorTypeSink, err, fmt.Sprintf("failed to write batch for %s", batch.Target))
			}
			written += len(batch.Records)
		}
		return nil
	})

	runErr := g.Wait()
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = errs.Wrap(errs.ErrorTypeSink, err, "failed to close sink")
	}

	stopPool()
	<-poolDone

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return s.finish(recorder, written, runErr)
}

func (s *Scraper) finish(recorder *report.Recorder, written int, runErr error) (Summary, error) {
	stats := s.pool.Stats()
	logger.LogPoolStats(s.logger, stats.Fields())

	summary := Summary{
		Report:    recorder.Finish(stats.Fields(), runErr),
		Written:   written,
		PoolStats: stats,
	}

	fields := map[string]interface{}{
		"targets":  summary.Targets,
		"done":     summary.Done,
		"aborted":  summary.Aborted,
		"rows":     summary.Written,
		"duration": summary.Duration,
	}
	if runErr != nil {
		s.logger.WithError(runErr).ErrorWithFields("Crawl run failed", fields)
	} else {
		s.logger.InfoWithFields("Crawl run finished", fields)
	}
	logger.LogComponentStop("scraper", "run complete")

	return summary, runErr
}
