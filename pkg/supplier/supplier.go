// Package supplier provides the proxy sources the pool pulls candidates
// from: a local proxy_pool API, the Kuaidaili paid API, a static file, and
// free-list web pages scraped with goquery or colly.
package supplier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"weibocrawl/pkg/auth"
	"weibocrawl/pkg/config"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/proxypool"
)

const (
	defaultTimeout = 20 * time.Second
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxBody        = 8 << 20
)

var ipv4 = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// CredentialSource looks up provider API keys; *auth.Manager satisfies it
type CredentialSource interface {
	Retrieve(provider string) (*auth.Credential, error)
}

// FromConfig builds every supplier enabled in cfg
func FromConfig(cfg config.SuppliersConfig, creds CredentialSource, log logger.Logger) ([]proxypool.Supplier, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	client := &http.Client{Timeout: defaultTimeout}

	var out []proxypool.Supplier
	if cfg.ProxyPoolAPI != "" {
		out = append(out, NewProxyPoolAPI(cfg.ProxyPoolAPI, client))
	}
	if cfg.Kuaidaili {
		if creds == nil {
			return nil, fmt.Errorf("kuaidaili supplier enabled but no credential store available")
		}
		cred, err := creds.Retrieve(auth.ProviderKuaidaili)
		if err != nil {
			return nil, fmt.Errorf("kuaidaili supplier: %w (run 'weibocrawl auth login kuaidaili')", err)
		}
		out = append(out, NewKuaidaili(cfg.KuaidailiURL, cred, client))
	}
	if cfg.StaticFile != "" {
		out = append(out, NewStaticFile(cfg.StaticFile))
	}
	if len(cfg.HTMLTables) > 0 {
		out = append(out, NewHTMLTable(cfg.HTMLTables, client, log))
	}
	if len(cfg.ScriptLists) > 0 {
		out = append(out, NewScriptList(cfg.ScriptLists, defaultTimeout, log))
	}
	return out, nil
}

// get issues a GET and returns the body of a 200 response
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
