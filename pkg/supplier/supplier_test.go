package supplier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawl/pkg/auth"
	"weibocrawl/pkg/config"
	"weibocrawl/pkg/logger"
)

func TestProxyPoolAPISortsByLastTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https", r.URL.Query().Get("type"))
		fmt.Fprint(w, `[
			{"proxy": "1.1.1.1:80", "last_time": "2024-05-01 10:00:00"},
			{"proxy": "2.2.2.2:80", "last_time": "2024-05-01 12:00:00"},
			{"proxy": "", "last_time": "2024-05-01 13:00:00"},
			{"proxy": "3.3.3.3:80", "last_time": "garbage"}
		]`)
	}))
	defer srv.Close()

	got, err := NewProxyPoolAPI(srv.URL+"/all/?type=https", srv.Client()).Supply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://2.2.2.2:80", "http://1.1.1.1:80", "http://3.3.3.3:80"}, got)
}

func TestProxyPoolAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			fmt.Fprint(w, `{not json`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewProxyPoolAPI(srv.URL+"/all/", nil).Supply(context.Background())
	assert.Error(t, err)

	_, err = NewProxyPoolAPI(srv.URL+"/broken", nil).Supply(context.Background())
	assert.Error(t, err)
}

func TestKuaidailiSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("secret_id") != "sid" || q.Get("signature") != "sig" {
			fmt.Fprint(w, `{"code": -1, "msg": "bad signature"}`)
			return
		}
		assert.Equal(t, "30", q.Get("num"))
		assert.Equal(t, "json", q.Get("format"))
		fmt.Fprint(w, `{"code": 0, "msg": "", "data": {"proxy_list": ["5.5.5.5:8000", "6.6.6.6:8001"]}}`)
	}))
	defer srv.Close()

	good := NewKuaidaili(srv.URL+"/api/getdps/", &auth.Credential{SecretID: "sid", Signature: "sig"}, nil)
	got, err := good.Supply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://5.5.5.5:8000", "http://6.6.6.6:8001"}, got)

	bad := NewKuaidaili(srv.URL+"/api/getdps/", &auth.Credential{SecretID: "sid", Signature: "nope"}, nil)
	_, err = bad.Supply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad signature")
}

func TestStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# free list\n1.2.3.4:80\n\n  socks5://5.6.7.8:1080  \n"), 0o644))

	got, err := NewStaticFile(path).Supply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3.4:80", "socks5://5.6.7.8:1080"}, got)

	_, err = NewStaticFile(filepath.Join(t.TempDir(), "missing")).Supply(context.Background())
	assert.Error(t, err)
}

const tablePage = `<html><body>
<table class="table table-bordered">
  <thead><tr><th>IP</th><th>PORT</th><th>TYPE</th></tr></thead>
  <tbody>
    <tr><td>10.1.1.1</td><td>8080</td><td>HTTP</td></tr>
    <tr><td> 10.1.1.2 </td><td>3128</td><td>HTTPS</td></tr>
    <tr><td>10.1.1.3</td><td>not-a-port</td><td>HTTP</td></tr>
    <tr><td>10.1.1.4:9999</td><td>HTTP</td></tr>
  </tbody>
</table>
</body></html>`

func TestHTMLTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, tablePage)
	}))
	defer srv.Close()

	s := NewHTMLTable([]string{srv.URL + "/list", srv.URL + "/down"}, nil, logger.NewNopLogger())
	got, err := s.Supply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.1:8080", "10.1.1.2:3128", "10.1.1.4:9999"}, got)

	onlyDown := NewHTMLTable([]string{srv.URL + "/down"}, nil, logger.NewNopLogger())
	_, err = onlyDown.Supply(context.Background())
	assert.Error(t, err)
}

const scriptPage = `<html><head><script>
const fpsList = [{"ip": "20.0.0.1", "port": "8080", "location": "x"}, {"ip":"20.0.0.2","port":3128}];
</script></head><body><pre>
20.0.0.3:80
20.0.0.1:8080
999.1.1.1:99999
</pre></body></html>`

func TestScriptList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, scriptPage)
	}))
	defer srv.Close()

	s := NewScriptList([]string{srv.URL + "/free/1/"}, 0, logger.NewNopLogger())
	got, err := s.Supply(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"20.0.0.3:80", "20.0.0.1:8080", "20.0.0.2:3128"}, got)

	// a second cycle revisits the same page
	again, err := s.Supply(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestFromConfig(t *testing.T) {
	manager, store := auth.NewMockManager()

	cfg := config.SuppliersConfig{
		ProxyPoolAPI: "http://127.0.0.1:5010/all/?type=https",
		Kuaidaili:    true,
		KuaidailiURL: "https://dps.kdlapi.com/api/getdps/",
		StaticFile:   "proxies.txt",
		HTMLTables:   []string{"http://example.com/a"},
		ScriptLists:  []string{"http://example.com/b"},
	}

	_, err := FromConfig(cfg, manager, logger.NewNopLogger())
	require.Error(t, err, "kuaidaili without stored credentials must fail")

	require.NoError(t, store.Store(&auth.Credential{Provider: auth.ProviderKuaidaili, SecretID: "a", Signature: "b"}))
	sups, err := FromConfig(cfg, manager, logger.NewNopLogger())
	require.NoError(t, err)

	var names []string
	for _, s := range sups {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"proxy_pool", "kuaidaili", "file:proxies.txt", "html_table", "script_list"}, names)
}
