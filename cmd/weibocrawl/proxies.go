package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weibocrawl/pkg/config"
	"weibocrawl/pkg/ui"
)

var (
	checkTimeout time.Duration
	checkOut     string
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect the proxy supply",
}

var proxiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Collect and validate one round of proxies",
	Long: `Run a single supply cycle: collect candidates from every configured
supplier, validate them against the check URL and print the live ones.

Use --out to save the live proxies for a later --proxy-file run.`,
	Example: `  weibocrawl proxies check --proxy-api http://127.0.0.1:5010/all/
  weibocrawl proxies check --proxy-file candidates.txt --out live.txt`,
	RunE: runProxiesCheck,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesCheckCmd)

	f := proxiesCheckCmd.Flags()
	f.StringVar(&proxyFile, "proxy-file", "", "file with one proxy address per line")
	f.StringVar(&proxyAPI, "proxy-api", "", "proxy_pool service URL")
	f.BoolVar(&useKuaidaili, "kuaidaili", false, "use the Kuaidaili paid proxy API")
	f.DurationVar(&checkTimeout, "timeout", 2*time.Minute, "give up on the check after this long")
	f.StringVar(&checkOut, "out", "", "write live proxies to this file")
}

func runProxiesCheck(cmd *cobra.Command, args []string) error {
	flags := baseFlags()
	if cmd.Flags().Changed("proxy-file") {
		flags["proxy-file"] = proxyFile
	}
	if cmd.Flags().Changed("proxy-api") {
		flags["proxy-api"] = proxyAPI
	}
	if cmd.Flags().Changed("kuaidaili") {
		flags["kuaidaili"] = useKuaidaili
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	env, err := setup(cfg, "")
	if err != nil {
		return err
	}
	defer env.events.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	live := env.pool.CheckOnce(ctx)
	stats := env.pool.Stats()

	addrs := make([]string, 0, len(live))
	for _, px := range live {
		addrs = append(addrs, px.Address)
	}
	sort.Strings(addrs)

	if !quiet {
		for _, a := range addrs {
			fmt.Println(a)
		}
		fmt.Println()
		ui.PrintInfo("Candidates", fmt.Sprint(stats.Seen))
		ui.PrintInfo("Live", fmt.Sprint(len(addrs)))
		ui.PrintInfo("Retired", fmt.Sprint(stats.Retired))
		ui.PrintInfo("Took", time.Since(start).Round(time.Millisecond).String())
	}

	if checkOut != "" {
		f, err := os.Create(checkOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", checkOut, err)
		}
		for _, a := range addrs {
			fmt.Fprintln(f, a)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", checkOut, err)
		}
		if !quiet {
			ui.PrintSuccess(fmt.Sprintf("Saved %d proxies to %s", len(addrs), checkOut))
		}
	}
	return nil
}
