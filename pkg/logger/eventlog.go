package logger

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// EventLog is the operational line log for proxy-cycle and error events.
// Writes are best effort: a log that could not be opened, or a write that
// fails, never interrupts the crawl.
type EventLog struct {
	mu     sync.Mutex
	proxy  zerolog.Logger
	errs   zerolog.Logger
	closer []io.Closer
}

// NewEventLog opens the two append-only files. An empty path, or one that
// cannot be opened, degrades that stream to a no-op and is reported on l.
func NewEventLog(proxyPath, errorPath string, l Logger) *EventLog {
	if l == nil {
		l = GetLogger()
	}
	ev := &EventLog{proxy: zerolog.Nop(), errs: zerolog.Nop()}

	open := func(path string) zerolog.Logger {
		if path == "" {
			return zerolog.Nop()
		}
		f, err := openAppend(path)
		if err != nil {
			l.WithError(err).WithField("path", path).Warn("Operational log disabled")
			return zerolog.Nop()
		}
		ev.closer = append(ev.closer, f)
		return zerolog.New(bestEffortWriter{f}).With().Timestamp().Logger()
	}

	ev.proxy = open(proxyPath)
	ev.errs = open(errorPath)
	return ev
}

// NewEventLogWriters builds an EventLog over arbitrary writers (tests, stdout)
func NewEventLogWriters(proxyW, errorW io.Writer) *EventLog {
	ev := &EventLog{proxy: zerolog.Nop(), errs: zerolog.Nop()}
	if proxyW != nil {
		ev.proxy = zerolog.New(bestEffortWriter{proxyW}).With().Timestamp().Logger()
	}
	if errorW != nil {
		ev.errs = zerolog.New(bestEffortWriter{errorW}).With().Timestamp().Logger()
	}
	return ev
}

// NopEventLog discards everything
func NopEventLog() *EventLog {
	return &EventLog{proxy: zerolog.Nop(), errs: zerolog.Nop()}
}

// Proxy records one proxy-cycle event
func (e *EventLog) Proxy(event string, fields map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := e.proxy.Log().Str("event", event)
	for k, v := range fields {
		ev = addFieldToEvent(ev, k, v)
	}
	ev.Send()
}

// Error records one error event
func (e *EventLog) Error(event string, err error, fields map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := e.errs.Log().Str("event", event).AnErr("error", err)
	for k, v := range fields {
		ev = addFieldToEvent(ev, k, v)
	}
	ev.Send()
}

// Close closes any files the log opened
func (e *EventLog) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.closer {
		_ = c.Close()
	}
	e.closer = nil
	e.proxy = zerolog.Nop()
	e.errs = zerolog.Nop()
	return nil
}

// bestEffortWriter swallows write errors so zerolog never reports them
type bestEffortWriter struct{ w io.Writer }

func (b bestEffortWriter) Write(p []byte) (int, error) {
	_, _ = b.w.Write(p)
	return len(p), nil
}
