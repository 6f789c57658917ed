package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weibocrawl/internal/testutil"
	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/report"
)

func writeTestConfig(t *testing.T, dir, feedURL string) string {
	t.Helper()
	cfg := fmt.Sprintf(`crawl:
  workers: 2
  base_url: %q
  page_delay: 0s
  page_jitter: 0s
  target_pause: 0s
  errmsg_backoff: 1ms
proxy:
  check_url: %q
  timeout: 2s
  max_validators: 4
  watermark_sleep: 5ms
  busy_sleep: 2ms
  idle_backoff: 2ms
  idle_backoff_max: 10ms
  acquire_timeout: 3s
fetch:
  retries: 2
  timeout: 2s
suppliers:
  proxy_pool_api: ""
logging:
  level: error
  proxy_log: %q
  error_log: %q
`, feedURL, feedURL+"/", filepath.Join(dir, "proxy.log"), filepath.Join(dir, "error.log"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func TestCrawlCommandEndToEnd(t *testing.T) {
	feed := testutil.NewFeedServer()
	defer feed.Close()
	proxy := testutil.NewForwardProxy()
	defer proxy.Close()

	feed.AddUser("42", &testutil.FeedUser{
		ContainerID: "1076030042",
		Pages: []testutil.FeedPage{
			{SinceID: 4990000000000001, Mblogs: []map[string]interface{}{testutil.Mblog("m1", "first")}},
			{Mblogs: []map[string]interface{}{testutil.Mblog("m2", "second")}},
		},
	})

	dir := t.TempDir()
	proxies := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(proxies, []byte(proxy.Address()+"\n"), 0600))
	out := filepath.Join(dir, "feed.csv")
	rep := filepath.Join(dir, "run.json")

	rootCmd.SetArgs([]string{
		"crawl", "42", "7",
		"--config", writeTestConfig(t, dir, feed.URL),
		"--proxy-file", proxies,
		"--output", out,
		"--report", rep,
		"--quiet",
	})
	done := make(chan error, 1)
	go func() { done <- rootCmd.Execute() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("crawl did not finish")
	}

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, normalize.Columns, rows[0])
	assert.Equal(t, "first", rows[1][1])
	assert.Equal(t, "second", rows[2][1])

	r, err := report.Load(rep)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Targets)
	assert.Equal(t, 1, r.Done)
	assert.Equal(t, 1, r.Aborted)
	assert.NotEmpty(t, r.RunID)
	assert.Positive(t, proxy.Hits())
}

func TestCrawlFlagsOnlyCarryChangedValues(t *testing.T) {
	cmd := &cobra.Command{Use: "crawl"}
	cmd.Flags().AddFlagSet(crawlCmd.Flags())
	require.NoError(t, cmd.ParseFlags([]string{"--workers", "8", "--output", "feed.xlsx", "--acquire-timeout", "30s"}))

	flags := crawlFlags(cmd)
	assert.Equal(t, 8, flags["workers"])
	assert.Equal(t, "feed.xlsx", flags["output"])
	assert.Equal(t, "xlsx", flags["format"])
	assert.Equal(t, 30*time.Second, flags["acquire-timeout"])
	assert.NotContains(t, flags, "retries")
	assert.NotContains(t, flags, "postgres")
}
