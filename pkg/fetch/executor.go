package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"weibocrawl/pkg/config"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/proxypool"
	"weibocrawl/pkg/ratelimit"
)

const maxBodySize = 16 << 20

// ProxySource is the part of the proxy pool the executor needs
type ProxySource interface {
	Acquire(ctx context.Context) (proxypool.Proxy, error)
	ReportFailure(p proxypool.Proxy)
}

// Session carries the cookies of one target's crawl
type Session struct {
	Jar http.CookieJar
}

// NewSession returns a session with an empty cookie jar
func NewSession() *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{Jar: jar}
}

// Executor performs GETs through pool proxies, replacing the proxy after
// every transport failure until the retry budget is spent.
type Executor struct {
	pool    ProxySource
	timeout time.Duration
	headers http.Header
	limiter ratelimit.Limiter
	logger  logger.Logger
	events  *logger.EventLog

	// proxy address -> *http.Transport
	transports sync.Map
}

// NewExecutor creates an executor drawing proxies from pool
func NewExecutor(pool ProxySource, cfg config.FetchConfig, log logger.Logger, events *logger.EventLog) *Executor {
	if log == nil {
		log = logger.GetLogger()
	}
	if events == nil {
		events = logger.NopEventLog()
	}
	return &Executor{
		pool:    pool,
		timeout: cfg.Timeout,
		headers: MobileHeaders(cfg.UserAgent),
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		logger:  log.WithField("component", "fetch"),
		events:  events,
	}
}

// Fetch GETs url and returns the body with the proxy that served it.
//
// sticky, when non-nil and set, is tried first; otherwise a checked proxy is
// acquired. At most retries+1 attempts are made. A failed proxy is reported
// to the pool and never reused within the call. When every attempt fails
// the error is ErrFetchExhausted; transport errors are not returned.
func (e *Executor) Fetch(ctx context.Context, sess *Session, url string, sticky *proxypool.Proxy, retries int) (string, proxypool.Proxy, error) {
	if sess == nil {
		sess = NewSession()
	}
	var current proxypool.Proxy
	if sticky != nil {
		current = *sticky
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", proxypool.Proxy{}, err
		}
		if current.IsZero() {
			px, err := e.pool.Acquire(ctx)
			if err != nil {
				return "", proxypool.Proxy{}, err
			}
			current = px
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return "", proxypool.Proxy{}, err
		}

		start := time.Now()
		body, status, err := e.do(ctx, sess, url, current)
		if err == nil {
			logger.LogRequest(e.logger, url, current.Address, status, time.Since(start))
			return body, current, nil
		}
		if ctx.Err() != nil {
			return "", proxypool.Proxy{}, ctx.Err()
		}

		e.logger.DebugWithFields("Fetch attempt failed, rotating proxy", map[string]interface{}{
			"url":     url,
			"proxy":   current.Address,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		e.events.Error("fetch_failed", err, map[string]interface{}{
			"url":        url,
			"proxy":      current.Address,
			"fail_count": current.FailCount,
			"attempt":    attempt + 1,
		})
		e.forget(current.Address)
		e.pool.ReportFailure(current)
		current = proxypool.Proxy{}
	}

	return "", proxypool.Proxy{}, &errs.Error{
		Type:    errs.ErrorTypeFetchExhausted,
		Message: fmt.Sprintf("%d attempts failed for %s", retries+1, url),
	}
}

// do issues one GET through px. Errors are transport failures, including
// statuses that mean the proxy is blocked.
func (e *Executor) do(ctx context.Context, sess *Session, url string, px proxypool.Proxy) (string, int, error) {
	transport, err := e.transport(px.Address)
	if err != nil {
		return "", 0, errs.Transport(err, 0)
	}

	client := &http.Client{
		Transport: transport,
		Jar:       sess.Jar,
		Timeout:   e.timeout,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, errs.Transport(err, 0)
	}
	for k, vs := range e.headers {
		req.Header[k] = vs
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, errs.Transport(err, 0)
	}
	defer resp.Body.Close()

	if errs.IsProxyBlockingStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", resp.StatusCode, &errs.Error{
			Type:    errs.ErrorTypeTransport,
			Message: fmt.Sprintf("status %d through proxy", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", resp.StatusCode, errs.Transport(err, resp.StatusCode)
	}
	// an empty body is the caller's shape problem, not the proxy's
	if len(raw) == 0 {
		return "", resp.StatusCode, nil
	}
	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return string(raw), resp.StatusCode, nil
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return string(raw), resp.StatusCode, nil
	}
	return string(body), resp.StatusCode, nil
}

func (e *Executor) transport(address string) (*http.Transport, error) {
	if t, ok := e.transports.Load(address); ok {
		return t.(*http.Transport), nil
	}
	t, err := proxypool.NewTransport(address, e.timeout)
	if err != nil {
		return nil, err
	}
	actual, loaded := e.transports.LoadOrStore(address, t)
	if loaded {
		t.CloseIdleConnections()
	}
	return actual.(*http.Transport), nil
}

// forget drops the cached transport for address
func (e *Executor) forget(address string) {
	if t, ok := e.transports.LoadAndDelete(address); ok {
		t.(*http.Transport).CloseIdleConnections()
	}
}

// Close releases idle connections of every cached transport
func (e *Executor) Close() {
	e.transports.Range(func(key, value interface{}) bool {
		value.(*http.Transport).CloseIdleConnections()
		e.transports.Delete(key)
		return true
	})
}
