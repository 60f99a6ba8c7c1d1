package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/viant/covertree/config"
	"github.com/viant/covertree/engine"
	"github.com/viant/covertree/index/cover"
	"github.com/viant/covertree/source"
	"github.com/viant/covertree/vector"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	gops       bool
	cfg        *config.Config
	log        zerolog.Logger
	registry   *prometheus.Registry
}

func rootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "covertree",
		Short:         "Build and query cover tree indexes over vector point sets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file.")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error.")
	flags.String("log-format", "", "Log format: console or json.")
	flags.String("metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9102.")
	flags.BoolVar(&a.gops, "gops", false, "Start the gops diagnostics agent.")
	flags.String("source", "", "Point file URL (JSON lines or CSV).")
	flags.String("db", "", "SQLite database holding the documents table.")
	flags.String("table", "", "Documents table name.")
	flags.Int("workers", 0, "Parallel build shards; 0 uses GOMAXPROCS.")
	flags.Int32("level", 0, "Level of the first node of every shard tree.")
	flags.String("descent", "", "Insertion descent: first or nearest.")
	flags.String("bound", "", "Search bound: level or per-node.")
	flags.String("search", "", "kNN search order: depth-first or best-first.")

	root.AddCommand(a.buildCommand(), a.queryCommand(), a.sqlCommand())
	return root
}

// init loads the configuration, overlays changed flags and prepares logging,
// metrics and diagnostics.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	overlay := func(name string, target *string) {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}
	overlay("log-level", &cfg.Log.Level)
	overlay("log-format", &cfg.Log.Format)
	overlay("metrics-addr", &cfg.MetricsAddr)
	overlay("source", &cfg.Source)
	overlay("db", &cfg.DB)
	overlay("table", &cfg.Table)
	overlay("descent", &cfg.Descent)
	overlay("bound", &cfg.Bound)
	overlay("search", &cfg.Search)
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("level") {
		cfg.Level, _ = flags.GetInt32("level")
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.LogLevel()
	var w io.Writer = os.Stderr
	if cfg.Log.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	a.log = zerolog.New(w).Level(level).With().Timestamp().Str("cmd", cmd.Name()).Logger()

	a.registry = prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	if a.gops {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			a.log.Warn().Err(err).Msg("gops agent")
		}
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	a.log.Info().Str("addr", addr).Msg("serving metrics")
}

// loadPoints reads ids and vectors from the configured source URL or SQLite table.
func (a *app) loadPoints(ctx context.Context) ([]string, [][]float32, error) {
	switch {
	case a.cfg.Source != "":
		return source.Load(ctx, a.cfg.Source)
	case a.cfg.DB != "":
		db, err := engine.Open(a.cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		defer db.Close()
		store, err := vector.NewSQLiteStoreWithTable(db, a.cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return store.LoadEmbeddings(ctx)
	}
	return nil, nil, fmt.Errorf("either --source or --db is required")
}

// buildIndex loads the points and builds an index from them.
func (a *app) buildIndex(ctx context.Context) (*cover.Index, error) {
	started := time.Now()
	ids, vectors, err := a.loadPoints(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Int("points", len(ids)).Dur("elapsed", time.Since(started)).Msg("points loaded")
	opts, err := a.cfg.IndexOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		cover.WithLogger(a.log),
		cover.WithMetrics(cover.NewMetrics(a.registry, "covertree")),
	)
	idx := cover.New(opts...)
	if err = idx.Build(ids, vectors); err != nil {
		return nil, err
	}
	if a.cfg.Validate {
		if err = idx.Validate(); err != nil {
			return nil, err
		}
		a.log.Info().Msg("invariants hold")
	}
	return idx, nil
}
