package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const proxyPoolTimeLayout = "2006-01-02 15:04:05"

// ProxyPoolAPI reads the /all/ endpoint of a local jhao104/proxy_pool
// instance. Entries are returned most recently verified first.
type ProxyPoolAPI struct {
	url    string
	client *http.Client
}

type proxyPoolEntry struct {
	Proxy    string `json:"proxy"`
	LastTime string `json:"last_time"`
}

func NewProxyPoolAPI(url string, client *http.Client) *ProxyPoolAPI {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &ProxyPoolAPI{url: url, client: client}
}

func (s *ProxyPoolAPI) Name() string { return "proxy_pool" }

func (s *ProxyPoolAPI) Supply(ctx context.Context) ([]string, error) {
	body, err := get(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}

	var entries []proxyPoolEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode proxy_pool response: %w", err)
	}

	lastSeen := func(e proxyPoolEntry) time.Time {
		t, err := time.ParseInLocation(proxyPoolTimeLayout, e.LastTime, time.Local)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return lastSeen(entries[i]).After(lastSeen(entries[j]))
	})

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Proxy == "" {
			continue
		}
		out = append(out, "http://"+e.Proxy)
	}
	return out, nil
}
