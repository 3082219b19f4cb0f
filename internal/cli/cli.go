package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/ticketscout/internal/config"
	"github.com/pfrederiksen/ticketscout/internal/fetch"
	"github.com/pfrederiksen/ticketscout/internal/filter"
	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/metrics"
	"github.com/pfrederiksen/ticketscout/internal/proxy"
	"github.com/pfrederiksen/ticketscout/internal/ratelimit"
	"github.com/pfrederiksen/ticketscout/internal/scrape"
	"github.com/pfrederiksen/ticketscout/internal/source"
	"github.com/pfrederiksen/ticketscout/internal/storage"
)

const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitNewEvents = 2
)

var (
	flagConfig   string
	flagVerbose  bool
	flagLogLevel string

	flagAll             bool
	flagKeyword         string
	flagCity            string
	flagVenue           string
	flagCategory        string
	flagDateFrom        string
	flagDateTo          string
	flagDates           string
	flagPriceMin        string
	flagPriceMax        string
	flagMaxResults      int
	flagFormat          string
	flagSort            string
	flagDataDir         string
	flagNewOnly         bool
	flagMetricsTextfile string
)

// exitCode carries a non-error exit status out of a command.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticketscout",
		Short: "Search ticket platforms for events",
		Long: `A CLI tool that searches ticket-selling platforms for events matching
a keyword, venue, date range or price range, and reports normalized listings.
Tracks listings across runs and can report only events added since the last check.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default $"+config.EnvConfig+")")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(newPlatformsCmd(), newScrapeCmd())
	return cmd
}

func newPlatformsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "List the configured ticket platforms",
		Args:  cobra.NoArgs,
		RunE:  runPlatforms,
	}
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	return cmd
}

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [platform...]",
		Short: "Scrape one or more platforms",
		Example: `  ticketscout scrape seetickets --keyword coldplay --max-results 10
  ticketscout scrape --all --keyword "die ärzte" --dates "Mar 1-15" --format json
  ticketscout scrape eventim-de --keyword rammstein --new-only --data-dir ~/.local/share/ticketscout`,
		RunE: runScrape,
	}

	f := cmd.Flags()
	f.BoolVar(&flagAll, "all", false, "Scrape every enabled platform")
	f.StringVar(&flagKeyword, "keyword", "", "Search keyword")
	f.StringVar(&flagCity, "city", "", "City (sent to platforms that support it)")
	f.StringVar(&flagVenue, "venue", "", "Keep events whose venue contains this text")
	f.StringVar(&flagCategory, "category", "", "Keep events in this category")
	f.StringVar(&flagDateFrom, "date-from", "", "Earliest event date (YYYY-MM-DD)")
	f.StringVar(&flagDateTo, "date-to", "", "Latest event date (YYYY-MM-DD)")
	f.StringVar(&flagDates, "dates", "", `Date range such as "Mar 1-15", "March 28 - April 3" or "2026-03-01..2026-03-15"`)
	f.StringVar(&flagPriceMin, "price-min", "", "Lowest acceptable price")
	f.StringVar(&flagPriceMax, "price-max", "", "Highest acceptable price")
	f.IntVar(&flagMaxResults, "max-results", 0, fmt.Sprintf("Maximum events per platform (default %d)", source.DefaultMaxResults))
	f.StringVar(&flagFormat, "format", "text", "Output format: text, json or ics")
	f.StringVar(&flagSort, "sort", "", "Sort by: date, title, price or platform (default: platform order)")
	f.StringVar(&flagDataDir, "data-dir", "", "Data directory for snapshots (enables change tracking)")
	f.BoolVar(&flagNewOnly, "new-only", false, "Only report events not seen in the previous run")
	f.StringVar(&flagMetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file")

	cmd.MarkFlagsMutuallyExclusive("dates", "date-from")
	cmd.MarkFlagsMutuallyExclusive("dates", "date-to")
	return cmd
}

// app wires the configured components together for one command run.
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	registry     *source.Registry
	metrics      *metrics.Metrics
	orchestrator *scrape.Orchestrator
	closers      []func()
}

func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	level := logger.ParseLevel(cfg.LogLevel)
	if flagVerbose {
		level = logger.LevelDebug
	}
	log := logger.New(level, stderr)
	logger.SetDefault(log)

	registry, err := source.LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("loading adapters: %w", err)
	}
	if cfg.Adapters.File != "" {
		if err := registry.LoadFile(cfg.Adapters.File); err != nil {
			return nil, fmt.Errorf("loading adapters: %w", err)
		}
	}
	if err := registry.Disable(cfg.Adapters.Disabled...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg, log: log, registry: registry, metrics: metrics.New()}

	var store ratelimit.Store
	if cfg.RateLimit.Store == config.StorePostgres {
		pg, err := ratelimit.OpenPostgres(ctx, cfg.RateLimit.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening rate-limit store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("preparing rate-limit store: %w", err)
		}
		store = pg
	}

	var rotator *proxy.Rotator
	if cfg.Proxies.Enabled {
		rotator, err = proxy.NewRotator(proxy.Config{
			List:     cfg.Proxies.List,
			Username: cfg.Proxies.Auth.Username,
			Password: cfg.Proxies.Auth.Password,
			Cooldown: cfg.Proxies.Cooldown,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:      cfg.HTTP.Timeout,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		UserAgents:   cfg.HTTP.UserAgents,
	}, ratelimit.New(store), rotator, log)

	retries := cfg.HTTP.MaxRetries
	if retries == 0 {
		retries = -1
	}
	scfg := scrape.Config{MaxRetries: retries, RetryDelay: cfg.HTTP.RetryDelay}
	if flagVerbose {
		scfg.Observer = func(platform string, from, to scrape.State) {
			log.Debug("state transition", logger.Fields{"platform": platform, "from": from.String(), "to": to.String()})
		}
	}
	a.orchestrator = scrape.New(registry, fetcher, scfg, log, a.metrics)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}

	a, err := newApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	var adapters []*source.Adapter
	for _, key := range a.registry.Keys() {
		adapter, _ := a.registry.Get(key)
		adapters = append(adapters, adapter)
	}
	return writePlatforms(cmd.OutOrStdout(), adapters, format)
}

func runScrape(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON && format != FormatICS {
		return fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'ics')", flagFormat)
	}
	order := SortOrder(strings.ToLower(flagSort))
	if order != "" && !validSortOrder(order) {
		return fmt.Errorf("invalid sort order: %s (must be 'date', 'title', 'price' or 'platform')", flagSort)
	}

	raw, err := criteriaFromFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	criteria, err := source.ParseCriteria(raw)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	keys := args
	if flagAll {
		keys = nil
		for _, adapter := range a.registry.Enabled() {
			keys = append(keys, adapter.Key)
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no platforms given (name one or more, or use --all; see 'ticketscout platforms')")
	}

	stderr := cmd.ErrOrStderr()
	if flagVerbose {
		fmt.Fprintf(stderr, "Scraping %s\n", strings.Join(keys, ", "))
		fmt.Fprintf(stderr, "Filters: %s\n", filter.Describe(criteria))
	}

	var store *storage.Storage
	if flagDataDir != "" || flagNewOnly {
		store, err = storage.New(flagDataDir)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		if flagVerbose {
			fmt.Fprintf(stderr, "Snapshots: %s\n", store.Dir())
		}
	}

	result := &OutputResult{
		ScrapedAt: time.Now().UTC(),
		NewOnly:   flagNewOnly,
		Filters:   filter.Describe(criteria),
	}

	failed := 0
	for _, outcome := range a.orchestrator.ScrapeMany(ctx, keys, raw) {
		pr := PlatformResult{Platform: outcome.Platform}
		if outcome.Err != nil {
			failed++
			pr.Error = outcome.Err.Error()
			var f *scrape.Failure
			if errors.As(outcome.Err, &f) {
				pr.Attempts = f.Attempts
			}
			result.Platforms = append(result.Platforms, pr)
			continue
		}

		res := outcome.Result
		pr.URL = res.URL
		pr.Events = len(res.Events)
		pr.Skipped = res.Stats.Skipped
		pr.Attempts = res.Attempts
		result.Platforms = append(result.Platforms, pr)

		events := res.Events
		if store != nil {
			diff, err := store.Update(res.Platform, res.Events)
			if err != nil {
				return fmt.Errorf("saving snapshot: %w", err)
			}
			result.Changes = append(result.Changes, diff.Changes...)
			if flagNewOnly {
				events = diff.NewEvents
			}
		}
		result.Events = append(result.Events, events...)
	}
	result.EventCount = len(result.Events)

	if order != "" {
		sortEvents(result.Events, order)
	}

	if err := WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	textfile := flagMetricsTextfile
	if textfile == "" {
		textfile = a.cfg.Metrics.Textfile
	}
	if textfile != "" {
		if err := a.metrics.WriteTextfile(textfile); err != nil {
			a.log.Error("writing metrics textfile", logger.Fields{"path": textfile}, err)
		}
	}

	if flagVerbose {
		writeRunSummary(stderr, logger.GetMetricsSnapshot())
	}

	if failed == len(keys) {
		return fmt.Errorf("all %d platform(s) failed", failed)
	}
	if flagNewOnly && result.EventCount > 0 {
		return exitCode(ExitNewEvents)
	}
	return nil
}

// criteriaFromFlags collects the criteria flags the user actually set.
func criteriaFromFlags(cmd *cobra.Command, now time.Time) (map[string]any, error) {
	raw := make(map[string]any)
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			raw[key] = value
		}
	}

	set("keyword", source.CriteriaKeyword, flagKeyword)
	set("city", source.CriteriaCity, flagCity)
	set("venue", source.CriteriaVenue, flagVenue)
	set("category", source.CriteriaCategory, flagCategory)
	set("date-from", source.CriteriaDateFrom, flagDateFrom)
	set("date-to", source.CriteriaDateTo, flagDateTo)
	set("price-min", source.CriteriaPriceMin, flagPriceMin)
	set("price-max", source.CriteriaPriceMax, flagPriceMax)
	set("max-results", source.CriteriaMaxResults, flagMaxResults)

	if flagDates != "" {
		from, to, err := filter.ParseDateRange(flagDates, now)
		if err != nil {
			return nil, fmt.Errorf("invalid --dates: %w", err)
		}
		raw[source.CriteriaDateFrom] = *from
		raw[source.CriteriaDateTo] = *to
	}
	return raw, nil
}

func writeRunSummary(w io.Writer, snapshot map[string]interface{}) {
	fmt.Fprintln(w, "\nRun summary:")
	if counters, ok := snapshot["counters"].(map[string]int64); ok {
		for _, name := range sortedKeys(counters) {
			fmt.Fprintf(w, "  %s: %d\n", name, counters[name])
		}
	}
	if gauges, ok := snapshot["gauges"].(map[string]float64); ok {
		for _, name := range sortedKeys(gauges) {
			fmt.Fprintf(w, "  %s: %g\n", name, gauges[name])
		}
	}
	if timings, ok := snapshot["timings"].(map[string]map[string]interface{}); ok {
		for _, name := range sortedKeys(timings) {
			fmt.Fprintf(w, "  %s: %v (x%v)\n", name, timings[name]["average"], timings[name]["count"])
		}
	}
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	var code exitCode
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitError
	}
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
