package proxypool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"weibocrawl/pkg/retry"
)

// Supplier produces candidate proxy addresses. The pool unions every
// registered supplier's output into one supply cycle.
type Supplier interface {
	Name() string
	Supply(ctx context.Context) ([]string, error)
}

// Run is the supply loop. It keeps the checked queue stocked without
// over-validating, and returns when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	p.runCtx = ctx
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.runCtx = nil
		p.mu.Unlock()
	}()

	idle := &retry.ExponentialBackoff{
		BaseDelay:    p.cfg.IdleBackoff,
		MaxDelay:     p.cfg.IdleBackoffMax,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
	idleCycles := 0

	p.logger.InfoWithFields("Supply loop started", map[string]interface{}{
		"suppliers":      len(p.suppliers),
		"max_validators": p.cfg.MaxValidators,
		"watermark":      p.cfg.CheckedWatermark,
	})
	defer p.logger.InfoWithFields("Supply loop stopped", p.Stats().Fields())

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if checked := p.checked.Len(); checked > p.cfg.CheckedWatermark {
			p.events.Proxy("watermark", map[string]interface{}{"checked": checked})
			if retry.Wait(ctx, p.cfg.WatermarkSleep) != nil {
				return nil
			}
			continue
		}

		p.spawnBacklog(ctx)

		queued, deferred := p.supplyCycle(ctx)
		if queued > 0 {
			idleCycles = 0
			p.events.Proxy("supplied", map[string]interface{}{
				"queued":   queued,
				"deferred": deferred,
				"active":   int(p.active.Load()),
			})
			if retry.Wait(ctx, p.cfg.BusySleep) != nil {
				return nil
			}
			continue
		}

		// nothing new this cycle
		if p.active.Load() > 0 || p.unchecked.Len() > 0 {
			if retry.Wait(ctx, p.cfg.BusySleep) != nil {
				return nil
			}
			continue
		}

		idleCycles++
		if idleCycles > p.cfg.ForceReleaseAfter {
			released := p.releaseRetired()
			idleCycles = 0
			p.events.Proxy("force_release", map[string]interface{}{"released": released})
			p.logger.InfoWithFields("No fresh proxy supply, re-validating retired proxies", map[string]interface{}{
				"released": released,
			})
			if released > 0 {
				continue
			}
		}

		delay := idle.NextDelay(idleCycles)
		p.events.Proxy("idle", map[string]interface{}{
			"cycle":    idleCycles,
			"delay_ms": delay.Milliseconds(),
		})
		if retry.Wait(ctx, delay) != nil {
			return nil
		}
	}
}

// supplyCycle pulls every supplier once and queues what is new, one
// validator per address. Addresses that find no free validator slot are
// left unseen so the next cycle offers them again.
func (p *Pool) supplyCycle(ctx context.Context) (queued, deferred int) {
	fresh := p.filterFresh(p.collect(ctx))

	for i, addr := range fresh {
		if !p.sem.TryAcquire(1) {
			deferred = len(fresh) - i
			break
		}
		p.markSeen(addr)
		p.unchecked.Push(Proxy{Address: addr})
		p.active.Add(1)
		go p.validate(ctx)
		queued++
	}
	return queued, deferred
}

// collect runs all suppliers concurrently. A failing supplier is logged and
// contributes nothing.
func (p *Pool) collect(ctx context.Context) []string {
	var (
		mu  sync.Mutex
		out []string
		g   errgroup.Group
	)

	for _, s := range p.suppliers {
		s := s
		g.Go(func() error {
			start := time.Now()
			addrs, err := s.Supply(ctx)
			if err != nil {
				p.logger.WithError(err).WithField("supplier", s.Name()).Warn("Proxy supplier failed")
				p.events.Error("supplier_failed", err, map[string]interface{}{"supplier": s.Name()})
				return nil
			}
			p.logger.DebugWithFields("Proxy supplier returned", map[string]interface{}{
				"supplier": s.Name(),
				"count":    len(addrs),
				"duration": time.Since(start),
			})
			mu.Lock()
			out = append(out, addrs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// CheckOnce runs a single supply cycle outside Run and waits until every
// queued proxy has been validated or retired. It returns the checked
// proxies, which stay in the pool.
func (p *Pool) CheckOnce(ctx context.Context) []Proxy {
	p.Seed(p.collect(ctx)...)

	for ctx.Err() == nil {
		p.spawnBacklog(ctx)
		if p.unchecked.Len() == 0 && p.active.Load() == 0 {
			break
		}
		if retry.Wait(ctx, 50*time.Millisecond) != nil {
			break
		}
	}

	var live []Proxy
	for {
		px, ok := p.checked.TryPop()
		if !ok {
			break
		}
		live = append(live, px)
	}
	for _, px := range live {
		p.checked.Push(px)
	}
	return live
}
