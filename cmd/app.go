package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/samhoang/ccx/internal/cache"
	"github.com/samhoang/ccx/internal/config"
	"github.com/samhoang/ccx/internal/github"
	"github.com/samhoang/ccx/internal/installer"
	"github.com/samhoang/ccx/internal/logging"
	"github.com/samhoang/ccx/internal/metrics"
	"github.com/samhoang/ccx/internal/registry"
	"github.com/samhoang/ccx/internal/symlink"
)

// app holds the collaborators shared by every command
type app struct {
	paths     *config.Paths
	cfg       *config.Config
	logger    *zap.Logger
	cache     cache.Cache
	gh        *github.Client
	store     *registry.Store
	installer *installer.Installer
	linker    *symlink.Linker
	promReg   *prometheus.Registry
}

// current is the app built for the running command, closed by Execute
var current *app

// loadApp resolves paths and config and builds the shared collaborators.
// The registry is loaded but not created; see (*app).initialize.
func loadApp(ctx context.Context) (*app, error) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(paths.CcxDir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	var m interface {
		metrics.Proxy
		metrics.Registry
	} = metrics.Noop{}
	var promReg *prometheus.Registry
	if showMetrics {
		promReg = prometheus.NewRegistry()
		m = metrics.NewProm("ccx", promReg)
	}

	c, err := cache.Open(cfg.Cache, paths.CacheDir)
	if err != nil {
		logger.Warn("response cache unavailable, using memory", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
		opts := cache.DefaultOptions()
		if cfg.Cache.TTL.Duration > 0 {
			opts.TTL = cfg.Cache.TTL.Duration
		}
		c = cache.NewMemoryCache(opts)
	}

	gh := github.New(github.Options{
		Token:      cfg.GitHub.Token,
		BaseURL:    cfg.GitHub.APIURL,
		GraphQLURL: cfg.GitHub.GraphQLURL,
		Timeout:    cfg.GitHub.Timeout.Duration,
		UserAgent:  "ccx/" + Version,
		Cache:      c,
		Logger:     logger.Named("github"),
		Metrics:    m,
	})

	store, err := openStore(ctx, paths, logger, m)
	if err != nil {
		return nil, err
	}

	a := &app{
		paths:     paths,
		cfg:       cfg,
		logger:    logger,
		cache:     c,
		gh:        gh,
		store:     store,
		installer: installer.New(paths, store, gh, cfg.ClaudeCodeVersion, logger.Named("installer")),
		linker:    symlink.NewLinker(paths.ClaudeDir, paths.ExtensionsDir),
		promReg:   promReg,
	}
	if cfg.LinkExtensions {
		a.installer.UseLinker(a.linker)
	}
	current = a
	return a, nil
}

// openStore loads the registry, creating the ccx directory first since
// the registry lock file lives there.
func openStore(ctx context.Context, paths *config.Paths, logger *zap.Logger, m metrics.Registry) (*registry.Store, error) {
	if err := os.MkdirAll(paths.CcxDir, 0700); err != nil {
		return nil, err
	}
	store := registry.NewStore(paths.RegistryPath(), paths.ExtensionsDir,
		registry.WithLogger(logger.Named("registry")),
		registry.WithMetrics(m),
	)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the ccx directories and the registry file
func (a *app) initialize(ctx context.Context) error {
	if err := os.MkdirAll(a.paths.CcxDir, 0700); err != nil {
		return err
	}
	return a.store.Initialize(ctx)
}

func (a *app) close() {
	if a.promReg != nil {
		printMetrics(os.Stderr, a.promReg)
		a.promReg = nil
	}
	if closer, ok := a.cache.(io.Closer); ok {
		closer.Close()
	}
	a.logger.Sync()
}

// printMetrics writes one line per collected sample
func printMetrics(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics: %v\n", err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case metric.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetCounter().GetValue()))
			case metric.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetGauge().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%g", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)

	fmt.Fprintln(w)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
