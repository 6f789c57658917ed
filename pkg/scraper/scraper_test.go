package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawl/internal/testutil"
	"weibocrawl/pkg/config"
	"weibocrawl/pkg/crawler"
	errs "weibocrawl/pkg/errors"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/normalize"
	"weibocrawl/pkg/proxypool"
	"weibocrawl/pkg/storage"
	"weibocrawl/pkg/targets"
)

type staticSupplier []string

func (s staticSupplier) Name() string { return "static" }

func (s staticSupplier) Supply(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// memorySink records what the orchestrator writes
type memorySink struct {
	mu       sync.Mutex
	header   []string
	headers  int
	batches  [][]normalize.Record
	closed   int
	failOn   int
	writeErr error
}

func (m *memorySink) WriteHeader(columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers++
	m.header = columns
	return nil
}

func (m *memorySink) WriteRecords(records []normalize.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil && len(m.batches)+1 >= m.failOn {
		return m.writeErr
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *memorySink) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type env struct {
	feed    *testutil.FeedServer
	proxies []*testutil.ForwardProxy
	cfg     *config.Config
}

func newEnv(t *testing.T, proxies int) *env {
	t.Helper()
	feed := testutil.NewFeedServer()
	t.Cleanup(feed.Close)

	e := &env{feed: feed}
	for i := 0; i < proxies; i++ {
		p := testutil.NewForwardProxy()
		t.Cleanup(p.Close)
		e.proxies = append(e.proxies, p)
	}

	cfg := config.DefaultConfig()
	cfg.Crawl.Workers = 2
	cfg.Crawl.BaseURL = feed.URL
	cfg.Crawl.PageDelay = 0
	cfg.Crawl.PageJitter = 0
	cfg.Crawl.TargetPause = 0
	cfg.Crawl.ErrmsgBackoff = time.Millisecond
	cfg.Proxy.CheckURL = feed.URL + "/"
	cfg.Proxy.Timeout = 2 * time.Second
	cfg.Proxy.MaxValidators = 4
	cfg.Proxy.WatermarkSleep = 5 * time.Millisecond
	cfg.Proxy.BusySleep = 2 * time.Millisecond
	cfg.Proxy.IdleBackoff = 2 * time.Millisecond
	cfg.Proxy.IdleBackoffMax = 10 * time.Millisecond
	cfg.Proxy.AcquireTimeout = 3 * time.Second
	cfg.Fetch.Timeout = 2 * time.Second
	cfg.Fetch.Retries = 2
	cfg.Output.Path = filepath.Join(t.TempDir(), "weibo.csv")
	e.cfg = cfg
	return e
}

func (e *env) addresses() staticSupplier {
	var out staticSupplier
	for _, p := range e.proxies {
		out = append(out, p.Address())
	}
	return out
}

func (e *env) scraper(t *testing.T, checker proxypool.Checker, opts ...func(*Options)) (*Scraper, *proxypool.Pool) {
	t.Helper()
	pool := proxypool.NewPool(e.cfg.Proxy, checker, []proxypool.Supplier{e.addresses()}, logger.NewNopLogger(), nil)
	o := Options{Config: e.cfg, Pool: pool, Logger: logger.NewNopLogger(), RunID: "test-run"}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	require.NoError(t, err)
	return s, pool
}

func run(t *testing.T, s *Scraper, source TargetSource, sink Sink) (Summary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Run(ctx, source, sink)
}

func TestRunWritesHeaderAndPagesInOrder(t *testing.T) {
	e := newEnv(t, 1)
	e.feed.AddUser("42", &testutil.FeedUser{
		ContainerID: "1076030042",
		Pages: []testutil.FeedPage{
			{SinceID: 4990000000000001, Mblogs: []map[string]interface{}{testutil.Mblog("m1", "first")}},
			{Mblogs: []map[string]interface{}{testutil.Mblog("m2", "second")}},
		},
	})

	sink, err := storage.NewCSV(e.cfg.Output.Path)
	require.NoError(t, err)

	s, _ := e.scraper(t, nil)
	summary, err := run(t, s, targets.Static{"42"}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Targets)
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, "test-run", summary.RunID)

	f, err := os.Open(e.cfg.Output.Path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, normalize.Columns, rows[0])
	assert.Equal(t, "m1", rows[1][0])
	assert.Equal(t, "first", rows[1][1])
	assert.Equal(t, "m2", rows[2][0])
}

func TestRunSurvivesTargetThatNeverSucceeds(t *testing.T) {
	e := newEnv(t, 2)
	e.feed.AddUser("42", &testutil.FeedUser{
		ContainerID: "1076030042",
		Pages:       []testutil.FeedPage{{Mblogs: []map[string]interface{}{testutil.Mblog("ok1", "healthy")}}},
	})
	e.feed.AddUser("7", &testutil.FeedUser{ContainerID: "1076037", PageStatus: 503})

	var mu sync.Mutex
	outcomes := map[string]crawler.Outcome{}
	s, _ := e.scraper(t, nil, func(o *Options) {
		o.OnOutcome = func(out crawler.Outcome) {
			mu.Lock()
			outcomes[out.Target] = out
			mu.Unlock()
		}
	})

	sink := &memorySink{}
	summary, err := run(t, s, targets.Static{"7", "42"}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.headers)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, 1, sink.rows())
	assert.Equal(t, "ok1", sink.batches[0][0].URLID)

	assert.Equal(t, 2, summary.Targets)
	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, 1, summary.Aborted)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "7", summary.Failures[0].Target)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, crawler.StateAborted, outcomes["7"].State)
	assert.Equal(t, crawler.StateDone, outcomes["42"].State)
}

func TestRunClosesWhenNoProxyEverValidates(t *testing.T) {
	e := newEnv(t, 1)
	e.cfg.Proxy.AcquireTimeout = 200 * time.Millisecond
	e.feed.AddUser("42", &testutil.FeedUser{ContainerID: "1", Pages: []testutil.FeedPage{{Mblogs: []map[string]interface{}{testutil.Mblog("x", "x")}}}})

	dead := proxypool.CheckerFunc(func(ctx context.Context, p proxypool.Proxy) error {
		return errs.Transport(errors.New("probe refused"), 0)
	})
	s, pool := e.scraper(t, dead)

	sink := &memorySink{}
	summary, err := run(t, s, targets.Static{"42", "43", "44"}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.headers)
	assert.Zero(t, sink.rows())
	assert.Equal(t, 3, summary.Aborted)
	for _, f := range summary.Failures {
		assert.Contains(t, f.Error, string(errs.ErrorTypePoolExhausted))
	}
	assert.Zero(t, pool.Stats().Checked)
	assert.Zero(t, e.feed.Requests())
}

func TestRunMissingContainerProducesNoRows(t *testing.T) {
	e := newEnv(t, 1)
	e.feed.AddUser("9", &testutil.FeedUser{MissingContainer: true})

	s, _ := e.scraper(t, nil)
	sink := &memorySink{}
	summary, err := run(t, s, targets.Static{"9"}, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.headers)
	assert.Empty(t, sink.batches)
	assert.Equal(t, 1, summary.Aborted)
	assert.Contains(t, summary.Failures[0].Error, "shape")
	assert.Equal(t, string(crawler.StateAborted), summary.Failures[0].State)
}

func TestRunManyTargetsFewWorkers(t *testing.T) {
	e := newEnv(t, 3)
	e.cfg.Crawl.Workers = 3
	var ids targets.Static
	for i := 0; i < 12; i++ {
		uid := string(rune('a'+i)) + "uid"
		ids = append(ids, uid)
		e.feed.AddUser(uid, &testutil.FeedUser{
			ContainerID: "107603" + uid,
			Pages: []testutil.FeedPage{
				{SinceID: 1, Mblogs: []map[string]interface{}{testutil.Mblog(uid+"-1", "a"), testutil.Mblog(uid+"-2", "b")}},
				{Mblogs: []map[string]interface{}{testutil.Mblog(uid+"-3", "c")}},
			},
		})
	}

	s, _ := e.scraper(t, nil)
	sink := &memorySink{}
	summary, err := run(t, s, ids, sink)
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Done)
	assert.Equal(t, 36, sink.rows())
	assert.Len(t, sink.batches, 12)

	// pages of one target stay in order within its batch
	for _, b := range sink.batches {
		require.Len(t, b, 3)
		assert.Equal(t, b[0].URLID[:len(b[0].URLID)-2]+"-3", b[2].URLID)
	}
}

func TestRunCallsTargetHooks(t *testing.T) {
	e := newEnv(t, 1)
	e.feed.AddUser("42", &testutil.FeedUser{
		ContainerID: "1076030042",
		Pages:       []testutil.FeedPage{{Mblogs: []map[string]interface{}{testutil.Mblog("m1", "only")}}},
	})

	var mu sync.Mutex
	var started, finished []string
	s, _ := e.scraper(t, nil, func(o *Options) {
		o.OnTargetStart = func(worker int, target string) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, target)
		}
		o.OnOutcome = func(out crawler.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			finished = append(finished, out.Target+":"+string(out.State))
		}
	})

	_, err := run(t, s, targets.Static{"42", "404"}, &memorySink{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"42", "404"}, started)
	assert.ElementsMatch(t, []string{"42:DONE", "404:ABORTED"}, finished)
}

func TestRunSinkErrorCancelsRun(t *testing.T) {
	e := newEnv(t, 1)
	e.cfg.Crawl.Workers = 1
	var ids targets.Static
	for _, uid := range []string{"1", "2", "3", "4"} {
		ids = append(ids, uid)
		e.feed.AddUser(uid, &testutil.FeedUser{ContainerID: "c" + uid, Pages: []testutil.FeedPage{{Mblogs: []map[string]interface{}{testutil.Mblog(uid, "x")}}}})
	}

	s, _ := e.scraper(t, nil)
	sink := &memorySink{failOn: 1, writeErr: errors.New("disk full")}
	summary, err := run(t, s, ids, sink)

	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeSink, errs.TypeOf(err))
	assert.Equal(t, 1, sink.closed)
	assert.Contains(t, summary.Error, "disk full")
}

type failingSource struct{}

func (failingSource) Targets(context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func TestRunSourceError(t *testing.T) {
	e := newEnv(t, 1)
	s, _ := e.scraper(t, nil)
	sink := &memorySink{}

	_, err := run(t, s, failingSource{}, sink)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeSource, errs.TypeOf(err))
	assert.Equal(t, 1, sink.closed)
	assert.Zero(t, sink.headers)
}

func TestRunHonoursCancellation(t *testing.T) {
	e := newEnv(t, 1)
	e.cfg.Crawl.PageDelay = time.Hour
	e.feed.AddUser("1", &testutil.FeedUser{ContainerID: "c1", Pages: []testutil.FeedPage{{Mblogs: []map[string]interface{}{testutil.Mblog("1", "x")}}}})

	s, _ := e.scraper(t, nil)
	sink := &memorySink{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, targets.Static{"1"}, sink)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, sink.closed)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))

	_, err = New(Options{Config: config.DefaultConfig()})
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}
