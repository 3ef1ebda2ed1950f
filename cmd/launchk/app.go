package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/config"
	"github.com/deepakjacob/launchk/internal/domain"
	"github.com/deepakjacob/launchk/internal/infra"
	"github.com/deepakjacob/launchk/internal/usecase"
	"github.com/deepakjacob/launchk/internal/watch"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	transport  *infra.LaunchctlTransport
	store      *infra.PlistStore
	resolver   *usecase.Resolver
	roster     *watch.Roster
	presenter  *usecase.Presenter
	executor   *usecase.Executor
	controller *usecase.Controller
	journal    *infra.EncryptedJournal // nil when disabled or unavailable
}

func newApp(configPath string) (*app, error) {
	mode := infra.DetectExecMode()

	cfg, err := config.Load(configPath, mode)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()

	transport := infra.NewLaunchctlTransport(infra.ExecRunner{}, mode.UID, logger)
	store := infra.NewPlistStore(
		infra.DefaultPlistDirs(mode.PlistDir, cfg.ExtraPlistDirs),
		infra.NewExecEditor(cfg.Editor),
		logger,
	)
	if err := store.Refresh(); err != nil {
		logger.Warn("failed to scan plist directories", zap.Error(err))
	}

	cache := usecase.NewEntryCache()
	resolver := usecase.NewResolver(transport, store, cache, logger)
	roster := watch.NewRoster(watch.RosterConfig{
		PollInterval:          cfg.PollInterval,
		ConfigRefreshInterval: cfg.ConfigRefreshInterval,
	}, transport, store, logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		store:     store,
		resolver:  resolver,
		roster:    roster,
		presenter: usecase.NewPresenter(store, roster, resolver),
	}

	deps := usecase.ExecutorDeps{
		Transport: transport,
		Cache:     cache,
		Pipes:     infra.FifoFactory{},
		Inspector: infra.NewProcessInspector(),
		Pager:     infra.NewExecPager(cfg.Pager),
	}
	if cfg.JournalEnabled {
		journal, err := infra.OpenJournal(mode.DataDir)
		if err != nil {
			logger.Warn("mutation journal unavailable", zap.String("data_dir", mode.DataDir), zap.Error(err))
		} else {
			a.journal = journal
			deps.Journal = journal
		}
	}

	a.executor = usecase.NewExecutor(deps, logger)
	a.controller = usecase.NewController(store, a.executor, nil, logger)

	logger.Debug("launchk initialised",
		zap.String("mode", string(mode.Mode)),
		zap.Int("uid", mode.UID),
		zap.String("config", cfg.Path),
		zap.Int("plists", len(store.AllConfigured())))

	return a, nil
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// item refreshes the roster once and returns the row for label.
func (a *app) item(label string) (domain.ServiceListItem, error) {
	a.roster.Tick()
	item, ok := a.presenter.Item(label)
	if !ok {
		return domain.ServiceListItem{}, fmt.Errorf("no plist or loaded job named %q", label)
	}
	return item, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
