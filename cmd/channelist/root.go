package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/channelist/batch"
	"github.com/codeGROOVE-dev/channelist/config"
	"github.com/codeGROOVE-dev/channelist/proxy"
	"github.com/codeGROOVE-dev/channelist/record"
	"github.com/codeGROOVE-dev/channelist/resolve"
	"github.com/codeGROOVE-dev/channelist/search"
)

type options struct {
	input          string
	output         string
	proxies        string
	configPath     string
	workers        int
	threshold      int
	cacheTTL       time.Duration
	debug          bool
	noCache        bool
	browserCookies bool
	direct         bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "channelist",
		Short: "Resolve social profiles to YouTube and Twitch channels",
		Long: `channelist reads a CSV of social profiles and searches the web for
each profile's YouTube channel and Twitch channel, scoring every
candidate against the profile's known names. Results append to the
output CSV as they complete; re-running with the same output file
resumes where the previous run stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().StringVarP(&opts.input, "input", "i", "", "input CSV path (required)")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "results.csv", "results CSV path")
	rootCmd.Flags().StringVarP(&opts.proxies, "proxies", "p", "", "proxy list path (one proxy per line)")
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML config path")
	rootCmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "worker count 1-10 (0 = ask, or default)")
	rootCmd.Flags().IntVar(&opts.threshold, "threshold", 0, "match score threshold 1-100")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the HTTP response cache")
	rootCmd.Flags().DurationVar(&opts.cacheTTL, "cache-ttl", 0, "HTTP cache TTL (e.g. 6h; 0 = config default)")
	rootCmd.Flags().BoolVar(&opts.browserCookies, "browser-cookies", false, "send google.com cookies from local browsers")
	rootCmd.Flags().BoolVar(&opts.direct, "direct", false, "fall back to unproxied requests when all proxies fail")
	_ = rootCmd.MarkFlagRequired("input") //nolint:errcheck // flag exists

	return rootCmd
}

func run(ctx context.Context, opts *options) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.threshold > 0 {
		cfg.Matching.Threshold = opts.threshold
	}
	if opts.direct {
		cfg.Proxies.AllowDirect = true
	}
	if opts.browserCookies {
		cfg.Search.BrowserCookies = true
	}
	workers := opts.workers
	if workers == 0 {
		workers = promptWorkers(cfg.Workers)
	}
	if workers < 1 || workers > config.MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", config.MaxWorkers)
	}

	records, skipped, err := record.LoadFile(opts.input, logger)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	if skipped > 0 {
		logger.Warn("skipped malformed input rows", "count", skipped)
	}
	if len(records) == 0 {
		return fmt.Errorf("no usable records in %s", opts.input)
	}

	store, err := record.OpenStore(opts.output)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	defer store.Close() //nolint:errcheck // flushed on every append

	var pool *proxy.Pool
	if opts.proxies != "" {
		entries, perr := proxy.LoadFile(opts.proxies)
		if perr != nil {
			return fmt.Errorf("load proxies: %w", perr)
		}
		pool = proxy.New(entries,
			proxy.WithMaxRetries(cfg.Proxies.MaxRetries),
			proxy.WithLogger(logger))
		logger.Info("loaded proxies", "count", pool.Size())
	} else {
		logger.Info("no proxy list given, requests go out direct")
	}

	searchOpts := []search.Option{
		search.WithTimeout(cfg.Timeout()),
		search.WithMaxResults(cfg.Search.MaxResultsPerQuery),
		search.WithLogger(logger),
	}
	if opts.noCache {
		searchOpts = append(searchOpts, search.WithCache(search.NewNullCache()))
	} else {
		ttl := cfg.CacheTTL()
		if opts.cacheTTL > 0 {
			ttl = opts.cacheTTL
		}
		cache, cerr := search.NewCache(ttl)
		if cerr != nil {
			return fmt.Errorf("open cache: %w", cerr)
		}
		searchOpts = append(searchOpts, search.WithCache(cache))
	}
	if cfg.Search.BrowserCookies {
		searchOpts = append(searchOpts, search.WithBrowserCookies())
	}
	fetcher, err := search.New(ctx, searchOpts...)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}

	session := resolve.New(fetcher,
		resolve.WithProxyPool(pool),
		resolve.WithThreshold(cfg.Matching.Threshold),
		resolve.WithAllowDirect(cfg.Proxies.AllowDirect),
		resolve.WithLogger(logger))

	searchMin, searchMax := cfg.SearchDelay()
	batchMin, batchMax := cfg.BatchDelay()
	runner := batch.New(session, store,
		batch.WithWorkers(workers),
		batch.WithBatchSize(cfg.Delays.BatchSize),
		batch.WithThreshold(cfg.Matching.Threshold),
		batch.WithSearchDelay(searchMin, searchMax),
		batch.WithBatchDelay(batchMin, batchMax),
		batch.WithProxyPool(pool),
		batch.WithHaltOnExhaustion(!cfg.Proxies.AllowDirect),
		batch.WithLogger(logger))

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := runner.Run(runCtx, records)
	fmt.Fprintln(os.Stdout, renderSummary(summary, skipped))
	if runErr != nil {
		return runErr
	}
	logger.Info("run complete", "results", opts.output)
	return nil
}

func renderSummary(s batch.Summary, skipped int) string {
	rows := [][]string{
		{"Records", strconv.Itoa(s.Total)},
		{"Rows skipped", strconv.Itoa(skipped)},
		{"Already done", strconv.Itoa(s.AlreadyDone)},
		{"Processed", strconv.Itoa(s.Processed)},
		{"YouTube matched", strconv.Itoa(s.YouTubeMatched)},
		{"Twitch matched", strconv.Itoa(s.TwitchMatched)},
		{"Failed", strconv.Itoa(s.Failed)},
	}
	if s.ProxiesTotal > 0 {
		rows = append(rows, []string{
			"Proxies disabled",
			fmt.Sprintf("%d/%d", s.ProxiesDown, s.ProxiesTotal),
		})
	}
	rows = append(rows, []string{"Elapsed", s.Elapsed.Round(
		roundingUnit(s.Elapsed)).String()})

	return renderTable(
		[]string{"Metric", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}
