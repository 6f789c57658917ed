package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"weibocrawl/pkg/auth"
	"weibocrawl/pkg/config"
	"weibocrawl/pkg/crawler"
	"weibocrawl/pkg/logger"
	"weibocrawl/pkg/proxypool"
	"weibocrawl/pkg/report"
	"weibocrawl/pkg/scraper"
	"weibocrawl/pkg/storage"
	"weibocrawl/pkg/supplier"
	"weibocrawl/pkg/targets"
	"weibocrawl/pkg/ui"
	"weibocrawl/pkg/ui/tui"
)

var (
	workers        int
	outputPath     string
	outputFormat   string
	reportPath     string
	targetsFile    string
	rangeStart     int64
	rangeEnd       int64
	targetLimit    int
	postgresDSN    string
	proxyFile      string
	proxyAPI       string
	useKuaidaili   bool
	maxPages       int
	fetchRetries   int
	acquireTimeout time.Duration
	logFile        string
	useTUI         bool
	notify         bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [uid...]",
	Short: "Crawl the feeds of the given target users",
	Long: `Crawl the mobile feed of every target user and write one row per post.

Targets come from, in order of precedence:
  - user ids given as arguments
  - a file with one id per line (--targets)
  - a Postgres table of ids (--postgres)
  - a numeric id range (--range-start/--range-end)

A target that fails is recorded and skipped; the run itself only fails on
target source, output or interrupt errors.`,
	Example: `  # Crawl two users through a local proxy_pool service
  weibocrawl crawl 1669879400 5044281310

  # Crawl ids from a file with 20 workers into an Excel workbook
  weibocrawl crawl --targets uids.txt --workers 20 --output feed.xlsx

  # Crawl a slice of the uid table with proxies from a file
  weibocrawl crawl --postgres postgres://localhost/weibo --range-start 1000 --range-end 2000 --proxy-file proxies.txt

  # Watch the run in the dashboard and keep a JSON report
  weibocrawl crawl --targets uids.txt --tui --report run.json`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	f := crawlCmd.Flags()
	f.IntVarP(&workers, "workers", "w", 0, "number of pagination workers")
	f.StringVarP(&outputPath, "output", "o", "", "output file (default weibo.csv)")
	f.StringVar(&outputFormat, "format", "", "output format: csv, xlsx or ndjson (default from the output extension)")
	f.StringVar(&reportPath, "report", "", "write a JSON run report to this path")
	f.StringVarP(&targetsFile, "targets", "t", "", "file with one target user id per line")
	f.Int64Var(&rangeStart, "range-start", 0, "first target id of a numeric range")
	f.Int64Var(&rangeEnd, "range-end", 0, "last target id of a numeric range")
	f.IntVar(&targetLimit, "limit", 0, "maximum number of targets from a range or table")
	f.StringVar(&postgresDSN, "postgres", "", "Postgres DSN of the target id table")
	f.StringVar(&proxyFile, "proxy-file", "", "file with one proxy address per line")
	f.StringVar(&proxyAPI, "proxy-api", "", "proxy_pool service URL")
	f.BoolVar(&useKuaidaili, "kuaidaili", false, "use the Kuaidaili paid proxy API (see 'weibocrawl auth login')")
	f.IntVar(&maxPages, "max-pages", 0, "stop each target after this many pages (0 for no limit)")
	f.IntVar(&fetchRetries, "retries", 0, "proxy replacements per request")
	f.DurationVar(&acquireTimeout, "acquire-timeout", 0, "give up waiting for a proxy after this long (0 waits forever)")
	f.StringVar(&logFile, "log-file", "", "also write logs to this file")
	f.BoolVar(&useTUI, "tui", false, "show the interactive dashboard")
	f.BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

func crawlFlags(cmd *cobra.Command) map[string]interface{} {
	flags := baseFlags()
	changed := cmd.Flags().Changed

	if changed("workers") {
		flags["workers"] = workers
	}
	if changed("output") {
		flags["output"] = outputPath
		if !changed("format") {
			flags["format"] = storage.FormatFromPath(outputPath)
		}
	}
	if changed("format") {
		flags["format"] = outputFormat
	}
	if changed("report") {
		flags["report"] = reportPath
	}
	if changed("targets") {
		flags["targets"] = targetsFile
	}
	if changed("range-start") {
		flags["range-start"] = rangeStart
	}
	if changed("range-end") {
		flags["range-end"] = rangeEnd
	}
	if changed("limit") {
		flags["limit"] = targetLimit
	}
	if changed("postgres") {
		flags["postgres"] = postgresDSN
	}
	if changed("proxy-file") {
		flags["proxy-file"] = proxyFile
	}
	if changed("proxy-api") {
		flags["proxy-api"] = proxyAPI
	}
	if changed("kuaidaili") {
		flags["kuaidaili"] = useKuaidaili
	}
	if changed("max-pages") {
		flags["max-pages"] = maxPages
	}
	if changed("retries") {
		flags["retries"] = fetchRetries
	}
	if changed("acquire-timeout") {
		flags["acquire-timeout"] = acquireTimeout
	}
	if changed("log-file") {
		flags["log-file"] = logFile
	}
	return flags
}

// runEnv is everything a crawl needs, built from the configuration
type runEnv struct {
	cfg    *config.Config
	log    logger.Logger
	events *logger.EventLog
	pool   *proxypool.Pool
}

func setup(cfg *config.Config, runID string) (*runEnv, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	if runID != "" {
		log = log.WithField("run_id", runID)
		logger.SetLogger(log)
	}
	events := logger.NewEventLog(cfg.Logging.ProxyLog, cfg.Logging.ErrorLog, log)

	var creds supplier.CredentialSource
	if cfg.Suppliers.Kuaidaili {
		manager, err := auth.NewManager()
		if err != nil {
			events.Close()
			return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		creds = manager
	}
	suppliers, err := supplier.FromConfig(cfg.Suppliers, creds, log)
	if err != nil {
		events.Close()
		return nil, err
	}
	if len(suppliers) == 0 {
		events.Close()
		return nil, errors.New("no proxy supplier configured (use --proxy-api, --proxy-file or --kuaidaili)")
	}

	pool := proxypool.NewPool(cfg.Proxy, nil, suppliers, log, events)
	return &runEnv{cfg: cfg, log: log, events: events, pool: pool}, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, crawlFlags(cmd))
	if err != nil {
		return err
	}
	if useTUI {
		cfg.Logging.DisableConsole = true
		if cfg.Logging.File == "" {
			cfg.Logging.File = "weibocrawl.log"
		}
	}

	runID := uuid.NewString()
	env, err := setup(cfg, runID)
	if err != nil {
		return err
	}
	defer env.events.Close()

	source, err := targets.FromConfig(cfg.Targets, args)
	if err != nil {
		return err
	}
	sink, err := storage.New(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the dashboard needs the target count up front
	ids, err := source.Targets(ctx)
	if err != nil {
		sink.Close()
		return err
	}
	source = targets.Static(ids)

	var dash ui.Dashboard
	var progress *ui.ProgressDisplay
	var screen *tui.TUI
	switch {
	case useTUI:
		screen = tui.NewTUI(len(ids), cfg.Crawl.Workers, cancel)
		dash = screen
	case !quiet:
		progress = ui.NewProgressDisplay(os.Stdout, len(ids), verbose)
		dash = progress
		ui.PrintInfo("Run", runID)
		ui.PrintInfo("Targets", fmt.Sprint(len(ids)))
		ui.PrintInfo("Workers", fmt.Sprint(cfg.Crawl.Workers))
		ui.PrintInfo("Output", cfg.Output.Path)
	}

	opts := scraper.Options{
		Config: cfg,
		Pool:   env.pool,
		Logger: env.log,
		Events: env.events,
		RunID:  runID,
	}
	if dash != nil {
		opts.OnTargetStart = dash.TargetStarted
		opts.OnOutcome = func(out crawler.Outcome) {
			dash.TargetFinished(out)
			dash.UpdatePool(env.pool.Stats())
		}
	}
	s, err := scraper.New(opts)
	if err != nil {
		sink.Close()
		return err
	}

	run := func() (scraper.Summary, error) {
		if dash == nil {
			return s.Run(ctx, source, sink)
		}
		done := make(chan struct{})
		defer close(done)
		go watchPool(done, env.pool, dash)
		return s.Run(ctx, source, sink)
	}

	var summary scraper.Summary
	if screen != nil {
		runErr := make(chan error, 1)
		go func() {
			sum, err := run()
			summary = sum
			screen.RunFinished(err)
			runErr <- err
		}()
		if err := screen.Start(); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("dashboard failed: %w", err)
		}
		// quitting the dashboard cancels the run; wait for it to drain
		err = <-runErr
	} else {
		summary, err = run()
	}

	if cfg.Output.Report != "" {
		if saveErr := report.Save(cfg.Output.Report, summary.Report); saveErr != nil {
			env.log.WithError(saveErr).Warn("Failed to save run report")
		}
	}

	if progress != nil {
		progress.Complete(cfg.Output.Path)
	}
	if notify {
		n := ui.NewNotifier(ui.PlatformSender(), nil)
		if err != nil {
			n.RunFailed(err)
		} else {
			n.RunFinished(summary.Done, summary.Aborted, summary.Written, cfg.Output.Path)
		}
	}

	if errors.Is(err, context.Canceled) {
		ui.PrintWarning("Crawl interrupted", fmt.Sprintf("%d rows written", summary.Written))
		return nil
	}
	return err
}

// watchPool pushes pool snapshots to the dashboard while targets are slow
func watchPool(done <-chan struct{}, pool *proxypool.Pool, dash ui.Dashboard) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			dash.UpdatePool(pool.Stats())
		}
	}
}
