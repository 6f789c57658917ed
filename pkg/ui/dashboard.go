package ui

import (
	"weibocrawl/pkg/crawler"
	"weibocrawl/pkg/proxypool"
)

// Dashboard receives crawl progress. Methods are called from worker
// goroutines and must be safe for concurrent use.
type Dashboard interface {
	TargetStarted(worker int, target string)
	TargetFinished(out crawler.Outcome)
	UpdatePool(stats proxypool.Stats)
	LogInfo(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
}
