package supplier

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"weibocrawl/pkg/logger"
)

var (
	// 1.2.3.4:8080 anywhere in markup or script
	hostPortPattern = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3}):(\d{2,5})\b`)
	// {"ip": "1.2.3.4", "port": "8080"} objects embedded in JS variables
	ipPortObjectPattern = regexp.MustCompile(`"ip"\s*:\s*"(\d{1,3}(?:\.\d{1,3}){3})"\s*,\s*"port"\s*:\s*"?(\d{2,5})"?`)
)

// ScriptList scrapes pages that list proxies as text or inside JavaScript
// data, such as the fpsList variable some free-list sites render.
type ScriptList struct {
	pages   []string
	timeout time.Duration
	logger  logger.Logger
}

func NewScriptList(pages []string, timeout time.Duration, log logger.Logger) *ScriptList {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ScriptList{pages: pages, timeout: timeout, logger: log.WithField("supplier", "script_list")}
}

func (s *ScriptList) Name() string { return "script_list" }

func (s *ScriptList) Supply(ctx context.Context) ([]string, error) {
	// a fresh collector per call: colly callbacks accumulate and visited
	// URLs would otherwise be skipped on the next cycle
	c := colly.NewCollector(
		colly.UserAgent(browserUA),
		colly.StdlibContext(ctx),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}

	var (
		mu      sync.Mutex
		out     []string
		lastErr error
		okPages int
	)

	c.OnResponse(func(r *colly.Response) {
		found := extractHostPorts(r.Body)
		mu.Lock()
		okPages++
		out = append(out, found...)
		mu.Unlock()
		s.logger.DebugWithFields("Scraped proxy script page", map[string]interface{}{
			"url":   r.Request.URL.String(),
			"count": len(found),
		})
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		lastErr = err
		mu.Unlock()
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"url":         r.Request.URL.String(),
			"status_code": r.StatusCode,
		}).Warn("Proxy script page request failed")
	})

	for _, page := range s.pages {
		if ctx.Err() != nil {
			break
		}
		if err := c.Visit(page); err != nil && lastErr == nil {
			lastErr = err
		}
	}
	c.Wait()

	if okPages == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func extractHostPorts(body []byte) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(host, port []byte) {
		addr := string(host) + ":" + string(port)
		if _, ok := seen[addr]; ok || !validPort(string(port)) {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, m := range hostPortPattern.FindAllSubmatch(body, -1) {
		add(m[1], m[2])
	}
	for _, m := range ipPortObjectPattern.FindAllSubmatch(body, -1) {
		add(m[1], m[2])
	}
	return out
}
