package proxypool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "weibocrawl/pkg/errors"
)

// Checker decides whether a proxy is currently usable
type Checker interface {
	Check(ctx context.Context, p Proxy) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context, p Proxy) error

func (f CheckerFunc) Check(ctx context.Context, p Proxy) error { return f(ctx, p) }

// Validator probes a fixed endpoint through the candidate proxy. Only an
// HTTP 200 within the timeout counts as alive.
type Validator struct {
	checkURL  string
	timeout   time.Duration
	userAgent string
}

// NewValidator creates a validator for checkURL
func NewValidator(checkURL string, timeout time.Duration, userAgent string) *Validator {
	return &Validator{checkURL: checkURL, timeout: timeout, userAgent: userAgent}
}

// Check issues one GET to the check endpoint through p
func (v *Validator) Check(ctx context.Context, p Proxy) error {
	transport, err := NewTransport(p.Address, v.timeout)
	if err != nil {
		return errs.Transport(err, 0)
	}
	transport.DisableKeepAlives = true
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: v.timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.checkURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errs.Transport(err, 0)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return &errs.Error{
			Type:    errs.ErrorTypeTransport,
			Message: fmt.Sprintf("probe returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
	return nil
}
