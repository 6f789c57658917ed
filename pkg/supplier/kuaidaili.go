package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"weibocrawl/pkg/auth"
)

// Kuaidaili pulls private proxies from the kdlapi getdps endpoint
type Kuaidaili struct {
	endpoint string
	cred     *auth.Credential
	client   *http.Client
	// Num is how many proxies each call requests
	Num int
}

type kuaidailiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ProxyList []string `json:"proxy_list"`
	} `json:"data"`
}

func NewKuaidaili(endpoint string, cred *auth.Credential, client *http.Client) *Kuaidaili {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Kuaidaili{endpoint: endpoint, cred: cred, client: client, Num: 30}
}

func (s *Kuaidaili) Name() string { return "kuaidaili" }

func (s *Kuaidaili) Supply(ctx context.Context) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid kuaidaili endpoint: %w", err)
	}
	q := u.Query()
	q.Set("secret_id", s.cred.SecretID)
	q.Set("signature", s.cred.Signature)
	q.Set("num", fmt.Sprint(s.Num))
	q.Set("pt", "1")
	q.Set("dedup", "1")
	q.Set("format", "json")
	q.Set("sep", "1")
	u.RawQuery = q.Encode()

	body, err := get(ctx, s.client, u.String())
	if err != nil {
		return nil, err
	}

	var resp kuaidailiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode kuaidaili response: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("kuaidaili api error %d: %s", resp.Code, resp.Msg)
	}

	out := make([]string, 0, len(resp.Data.ProxyList))
	for _, addr := range resp.Data.ProxyList {
		out = append(out, "http://"+addr)
	}
	return out, nil
}
