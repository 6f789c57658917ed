package proxypool

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"weibocrawl/pkg/config"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/logger"
)

// Stats is a point-in-time view of the pool
type Stats struct {
	Unchecked        int `json:"unchecked"`
	Checked          int `json:"checked"`
	ActiveValidators int `json:"active_validators"`
	Seen             int `json:"seen"`
	Retired          int `json:"retired"`
	ForceReleases    int `json:"force_releases"`
}

// Fields renders s for structured logging
func (s Stats) Fields() map[string]interface{} {
	return map[string]interface{}{
		"unchecked":         s.Unchecked,
		"checked":           s.Checked,
		"active_validators": s.ActiveValidators,
		"seen":              s.Seen,
		"retired":           s.Retired,
		"force_releases":    s.ForceReleases,
	}
}

// Pool circulates proxies between an unchecked queue, fed by suppliers and
// by failure reports, and a checked queue that fetchers draw from.
// Validators move proxies from the first to the second.
type Pool struct {
	cfg       config.ProxyConfig
	checker   Checker
	suppliers []Supplier
	logger    logger.Logger
	events    *logger.EventLog

	unchecked *queue
	checked   *queue

	// validator slots; never more than cfg.MaxValidators probes run at once
	sem    *semaphore.Weighted
	active atomic.Int64

	mu      sync.Mutex
	runCtx  context.Context
	seen    map[string]struct{}
	retired map[string]struct{}

	releases atomic.Int64
}

// NewPool creates a proxy pool. checker defaults to a Validator against
// cfg.CheckURL.
func NewPool(cfg config.ProxyConfig, checker Checker, suppliers []Supplier, log logger.Logger, events *logger.EventLog) *Pool {
	if log == nil {
		log = logger.GetLogger()
	}
	if events == nil {
		events = logger.NopEventLog()
	}
	if checker == nil {
		checker = NewValidator(cfg.CheckURL, cfg.Timeout, config.DefaultUserAgent)
	}
	maxValidators := cfg.MaxValidators
	if maxValidators <= 0 {
		maxValidators = 1
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 1
	}

	return &Pool{
		cfg:       cfg,
		checker:   checker,
		suppliers: suppliers,
		logger:    log.WithField("component", "proxypool"),
		events:    events,
		unchecked: newQueue(),
		checked:   newQueue(),
		sem:       semaphore.NewWeighted(int64(maxValidators)),
		seen:      make(map[string]struct{}),
		retired:   make(map[string]struct{}),
	}
}

// Acquire blocks until a checked proxy is available. It fails only when ctx
// ends or the configured acquire timeout elapses.
func (p *Pool) Acquire(ctx context.Context) (Proxy, error) {
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	px, err := p.checked.Pop(ctx)
	if err != nil {
		return Proxy{}, &errs.Error{
			Type:    errs.ErrorTypePoolExhausted,
			Message: "no checked proxy became available",
			Err:     err,
		}
	}
	return px, nil
}

// ReportFailure hands a proxy that failed a fetch back for re-validation
// with one more failure on its count. A proxy already at the retry ceiling
// is retired instead.
func (p *Pool) ReportFailure(px Proxy) {
	if px.IsZero() {
		return
	}
	if px.FailCount >= p.cfg.RetryCeiling {
		p.retire(px)
		return
	}
	px.FailCount++
	p.unchecked.Push(px)

	if ctx := p.runContext(); ctx != nil {
		p.spawnBacklog(ctx)
	}
}

// Release hands a healthy in-flight proxy back to the checked queue
func (p *Pool) Release(px Proxy) {
	if px.IsZero() {
		return
	}
	p.checked.Push(px)
}

// Seed queues addresses for validation outside the supply loop. Returns the
// number of net-new addresses queued.
func (p *Pool) Seed(addresses ...string) int {
	fresh := p.filterFresh(addresses)
	for _, addr := range fresh {
		p.markSeen(addr)
		p.unchecked.Push(Proxy{Address: addr})
	}
	if ctx := p.runContext(); ctx != nil {
		p.spawnBacklog(ctx)
	}
	return len(fresh)
}

// Stats returns current counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	seen, retired := len(p.seen), len(p.retired)
	p.mu.Unlock()

	return Stats{
		Unchecked:        p.unchecked.Len(),
		Checked:          p.checked.Len(),
		ActiveValidators: int(p.active.Load()),
		Seen:             seen,
		Retired:          retired,
		ForceReleases:    int(p.releases.Load()),
	}
}

// retire drops a proxy from circulation. Its address stays seen, so only a
// force release brings it back.
func (p *Pool) retire(px Proxy) {
	p.mu.Lock()
	p.retired[px.Address] = struct{}{}
	p.mu.Unlock()

	p.events.Proxy("retired", map[string]interface{}{
		"proxy":      px.Address,
		"fail_count": px.FailCount,
	})
}

// releaseRetired re-queues every retired proxy with a clean count
func (p *Pool) releaseRetired() int {
	p.mu.Lock()
	released := make([]string, 0, len(p.retired))
	for addr := range p.retired {
		released = append(released, addr)
	}
	p.retired = make(map[string]struct{})
	p.mu.Unlock()

	for _, addr := range released {
		p.unchecked.Push(Proxy{Address: addr})
	}
	p.releases.Add(1)
	return len(released)
}

// filterFresh normalizes and de-duplicates addresses against the seen set
func (p *Pool) filterFresh(addresses []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := make(map[string]struct{}, len(addresses))
	fresh := make([]string, 0, len(addresses))
	for _, raw := range addresses {
		addr, err := NormalizeAddress(raw)
		if err != nil {
			p.logger.DebugWithFields("Skipping malformed proxy address", map[string]interface{}{
				"address": raw,
				"error":   err.Error(),
			})
			continue
		}
		if _, ok := p.seen[addr]; ok {
			continue
		}
		if _, ok := batch[addr]; ok {
			continue
		}
		batch[addr] = struct{}{}
		fresh = append(fresh, addr)
	}
	return fresh
}

func (p *Pool) markSeen(addr string) {
	p.mu.Lock()
	p.seen[addr] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) runContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runCtx
}

// tryStartValidator reserves a slot and starts one validator. It reports
// false when every slot is taken.
func (p *Pool) tryStartValidator(ctx context.Context) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.active.Add(1)
	go p.validate(ctx)
	return true
}

// spawnBacklog starts validators for queued proxies no running validator
// will reach soon: one per queued proxy beyond the active count.
func (p *Pool) spawnBacklog(ctx context.Context) int {
	want := p.unchecked.Len() - int(p.active.Load())
	started := 0
	for ; started < want; started++ {
		if !p.tryStartValidator(ctx) {
			break
		}
	}
	return started
}

// validate drains the unchecked queue one proxy at a time
func (p *Pool) validate(ctx context.Context) {
	defer p.sem.Release(1)
	defer p.active.Add(-1)

	for ctx.Err() == nil {
		px, ok := p.unchecked.TryPop()
		if !ok {
			return
		}
		if px.FailCount >= p.cfg.RetryCeiling {
			p.retire(px)
			continue
		}

		err := p.checker.Check(ctx, px)
		if err == nil {
			p.checked.Push(px)
			continue
		}
		if ctx.Err() != nil {
			// shutting down; the pool is discarded with the run
			return
		}

		px.FailCount++
		p.unchecked.Push(px)
	}
}
