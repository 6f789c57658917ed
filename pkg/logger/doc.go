// Package logger provides the structured logging interface used across the crawler.
//
// It wraps zerolog with a small Logger interface:
//   - leveled methods (Debug, Info, Warn, Error, Fatal)
//   - child loggers via WithField/WithFields/WithError
//   - *WithFields variants for one-off structured events
//   - a process-wide logger (Initialize, SetLogger, GetLogger)
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "proxypool")
//	log.InfoWithFields("supply cycle", map[string]interface{}{"new": 12})
//
// Operational log:
//
// EventLog is a separate best-effort sink for proxy-cycle and error events,
// written as JSON lines to two append-only files. Failing to open or write
// those files never stops a crawl.
//
// Testing:
//
// NewTestLogger captures messages for assertions, NewNopLogger discards them.
package logger
