// Package crawler walks one target's feed: it resolves the feed container,
// pages through it with the returned cursor and turns items into records.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"weibocrawl/pkg/config"
	"weibocrawl/pkg/fetch"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/proxypool"
	"weibocrawl/pkg/ratelimit"
	"weibocrawl/pkg/retry"
	"weibocrawl/pkg/weibo"
)

// Fetcher is the fetch executor as seen by a worker
type Fetcher interface {
	Fetch(ctx context.Context, sess *fetch.Session, url string, sticky *proxypool.Proxy, retries int) (string, proxypool.Proxy, error)
}

// Releaser takes back a worker's proxy when the worker stops
type Releaser interface {
	Release(p proxypool.Proxy)
}

// Normalizer turns one raw item into a record, or reports false to skip it
type Normalizer func(json.RawMessage) (normalize.Record, bool)

// Outcome is the result of crawling one target
type Outcome struct {
	Target  string
	State   State
	Pages   int
	Records []normalize.Record
	// Details counts truncated items expanded from their status page;
	// Fallbacks counts those that had to keep the page's text.
	Details   int
	Fallbacks int
	Err       error
	Duration  time.Duration
}

// Worker runs targets one at a time. A Worker is not safe for concurrent use.
type Worker struct {
	id        int
	fetcher   Fetcher
	endpoints weibo.Endpoints
	normalize Normalizer
	cfg       config.CrawlConfig
	retries   int
	pace      *ratelimit.Jitter
	pause     *ratelimit.Jitter
	logger    logger.Logger
	events    *logger.EventLog

	// sticky is reused across requests and targets until a fetch fails on it
	sticky proxypool.Proxy
}

// Options configures a Worker
type Options struct {
	ID         int
	Fetcher    Fetcher
	Crawl      config.CrawlConfig
	Retries    int
	Normalizer Normalizer
	Logger     logger.Logger
	Events     *logger.EventLog
}

// NewWorker creates a worker. The normalizer defaults to normalize.Normalize.
func NewWorker(opts Options) *Worker {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	events := opts.Events
	if events == nil {
		events = logger.NopEventLog()
	}
	norm := opts.Normalizer
	if norm == nil {
		norm = normalize.Normalize
	}
	return &Worker{
		id:        opts.ID,
		fetcher:   opts.Fetcher,
		endpoints: weibo.NewEndpoints(opts.Crawl.BaseURL),
		normalize: norm,
		cfg:       opts.Crawl,
		retries:   opts.Retries,
		pace:      ratelimit.NewJitter(opts.Crawl.PageDelay, opts.Crawl.PageJitter),
		pause:     ratelimit.NewJitter(0, opts.Crawl.TargetPause),
		logger:    log.WithFields(map[string]interface{}{"component": "worker", "worker": opts.ID}),
		events:    events,
	}
}

// Sticky returns the proxy the worker currently holds
func (w *Worker) Sticky() proxypool.Proxy {
	return w.sticky
}

// Close hands the sticky proxy back to r
func (w *Worker) Close(r Releaser) {
	if r != nil && !w.sticky.IsZero() {
		r.Release(w.sticky)
	}
	w.sticky = proxypool.Proxy{}
}

// Crawl runs target through RESOLVE_CONTAINER and PAGINATE. A resolve
// failure yields ABORTED with no records; a page failure yields ABORTED with
// whatever was collected before it.
func (w *Worker) Crawl(ctx context.Context, target string) Outcome {
	start := time.Now()
	sess := newSession(target)
	out := Outcome{Target: target, State: StateResolve}

	defer func() {
		out.Duration = time.Since(start)
		logger.LogTargetOutcome(w.logger, target, string(out.State), out.Pages, len(out.Records), out.Err)
		if out.Err != nil {
			w.events.Error("target_aborted", out.Err, map[string]interface{}{
				"target":  target,
				"pages":   out.Pages,
				"records": len(out.Records),
			})
		}
	}()

	if err := w.resolve(ctx, sess); err != nil {
		out.State = StateAborted
		out.Err = err
		return out
	}

	out.State = StatePaginate
	if err := w.paginate(ctx, sess, &out); err != nil {
		out.State = StateAborted
		out.Err = err
	} else {
		out.State = StateDone
	}

	if ctx.Err() == nil {
		_ = w.pause.Sleep(ctx)
	}
	return out
}

// get fetches url on the sticky proxy, falling back to the pool
func (w *Worker) get(ctx context.Context, sess *Session, url string) (string, error) {
	var sticky *proxypool.Proxy
	if !w.sticky.IsZero() {
		held := w.sticky
		sticky = &held
	}
	body, used, err := w.fetcher.Fetch(ctx, sess.HTTP, url, sticky, w.retries)
	// on failure the executor has already reported every proxy it tried
	w.sticky = used
	return body, err
}

func (w *Worker) resolve(ctx context.Context, sess *Session) error {
	if _, err := w.get(ctx, sess, w.endpoints.Landing(sess.Target)); err != nil {
		return err
	}

	cid, err := retry.DoWithResult(func() (string, error) {
		body, err := w.get(ctx, sess, w.endpoints.Index(sess.Target))
		if err != nil {
			return "", err
		}
		return weibo.ParseContainerID(body)
	}, &retry.Config{
		MaxAttempts: w.cfg.ResolveRetries + 1,
		Backoff:     &retry.ConstantBackoff{Delay: w.cfg.ErrmsgBackoff},
		RetryIf: func(err error) bool {
			return errors.Is(err, weibo.ErrThrottled)
		},
		OnRetry: func(attempt int, err error, _ time.Duration) {
			w.events.Error("errmsg", err, map[string]interface{}{
				"target":  sess.Target,
				"attempt": attempt,
			})
		},
		Context: ctx,
		Logger:  w.logger,
	})
	if err != nil {
		return err
	}
	sess.ContainerID = cid
	return nil
}

func (w *Worker) paginate(ctx context.Context, sess *Session, out *Outcome) error {
	for {
		if w.cfg.MaxPages > 0 && out.Pages >= w.cfg.MaxPages {
			return nil
		}
		if err := w.pace.Sleep(ctx); err != nil {
			return err
		}

		body, err := w.get(ctx, sess, w.endpoints.Page(sess.Target, sess.ContainerID, sess.Cursor))
		if err != nil {
			return err
		}
		page, err := weibo.ParsePage(body)
		if err != nil {
			return err
		}
		out.Pages++

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rec, ok := w.record(ctx, sess, item, out); ok {
				out.Records = append(out.Records, rec)
			}
		}

		if page.Cursor == "" || page.Cursor == sess.Cursor {
			return nil
		}
		sess.Cursor = page.Cursor
	}
}

// record normalizes item, expanding it from its status page when the text
// is truncated. The page's own copy is used if the expansion fails.
func (w *Worker) record(ctx context.Context, sess *Session, item json.RawMessage, out *Outcome) (normalize.Record, bool) {
	href, truncated := weibo.DetailHref(item)
	if !truncated || !w.cfg.DetailFetch {
		return w.normalize(item)
	}

	full, err := w.detail(ctx, sess, href)
	if err == nil {
		if rec, ok := w.normalize(full); ok {
			out.Details++
			return rec, true
		}
	}

	out.Fallbacks++
	fields := map[string]interface{}{"target": sess.Target, "href": href}
	if err != nil {
		w.logger.WithError(err).DebugWithFields("Detail fetch failed, keeping truncated text", fields)
	} else {
		w.logger.DebugWithFields("Detail status unusable, keeping truncated text", fields)
	}
	return w.normalize(item)
}

func (w *Worker) detail(ctx context.Context, sess *Session, href string) (json.RawMessage, error) {
	url, err := w.endpoints.Detail(href)
	if err != nil {
		return nil, err
	}
	body, err := w.get(ctx, sess, url)
	if err != nil {
		return nil, err
	}
	return weibo.ParseDetail(body)
}
