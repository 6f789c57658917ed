package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// ForwardProxy is a plain HTTP forward proxy. Requests arrive in absolute
// form and are replayed against their target.
type ForwardProxy struct {
	*httptest.Server

	hits atomic.Int64
	// failing makes the proxy drop every connection without a response
	failing atomic.Bool
	// status, when non-zero, is answered instead of forwarding
	status atomic.Int32
}

func NewForwardProxy() *ForwardProxy {
	p := &ForwardProxy{}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// NewFailingProxy returns a proxy whose every connection is cut
func NewFailingProxy() *ForwardProxy {
	p := NewForwardProxy()
	p.SetFailing(true)
	return p
}

// Address is the proxy address as suppliers would report it
func (p *ForwardProxy) Address() string {
	return p.URL
}

// Hits counts requests that reached the proxy
func (p *ForwardProxy) Hits() int64 { return p.hits.Load() }

func (p *ForwardProxy) SetFailing(v bool) { p.failing.Store(v) }

// SetStatus makes the proxy answer every request with code itself
func (p *ForwardProxy) SetStatus(code int) { p.status.Store(int32(code)) }

func (p *ForwardProxy) handle(w http.ResponseWriter, r *http.Request) {
	p.hits.Add(1)

	if p.failing.Load() {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if code := p.status.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}
	if r.Method == http.MethodConnect || !r.URL.IsAbs() {
		http.Error(w, "forward proxy only", http.StatusMethodNotAllowed)
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for k, vs := range r.Header {
		if strings.EqualFold(k, "Proxy-Connection") {
			continue
		}
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}

	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
