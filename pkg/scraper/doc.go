// Package scraper runs a crawl: it feeds targets to a fixed set of
// workers, keeps the proxy supply loop running beside them and drains
// finished batches into a sink.
//
// Lifecycle of Run:
//
//  1. Targets are read from the TargetSource.
//  2. The proxy pool's supply loop starts.
//  3. N workers start on a job queue of capacity 2N. The feeder submits
//     every target followed by exactly N stop messages.
//  4. The sink writes the header, then one batch per target that produced
//     records, until the last worker closes the results channel.
//  5. The sink is closed, the supply loop is cancelled and a Summary is
//     returned.
//
// A failing target never stops the run. A failing sink does: it cancels
// every worker and Run returns the sink error.
//
// Usage:
//
//	pool := proxypool.NewPool(cfg.Proxy, nil, suppliers, log, events)
//	s, err := scraper.New(scraper.Options{Config: cfg, Pool: pool})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := s.Run(ctx, targets.Static{"1669879400"}, sink)
package scraper
