package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"annotated/pkg/banner"
	"annotated/pkg/bridge"
	"annotated/pkg/config"
	"annotated/pkg/janitor"
	"annotated/pkg/logger"
	"annotated/pkg/store"
	"annotated/pkg/tools"
)

// App encapsulates the server components and lifecycle: the store, the
// browser push channel, the agent tool channel and the janitor.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store    *store.Store
	hub      *bridge.Hub
	toolsSvc *tools.Service

	janitorCancel context.CancelFunc
	srv           *http.Server
}

// New validates the effective config and opens the store. It does not
// start the broadcast, janitor or HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	st, err := store.Open(eff.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", eff.StorePath, err)
	}

	cfg := eff.Config
	hub := bridge.NewHub(st, bridge.Options{
		ProjectRoot:  projectRoot(cfg),
		SyncInterval: cfg.Sync.Interval.Or(2 * time.Second),
		RPS:          cfg.Limits.RPS,
		Burst:        cfg.Limits.Burst,
	})
	toolsSvc := tools.NewService(st, hub, tools.Options{
		PollInterval:      cfg.Watch.PollInterval.Or(500 * time.Millisecond),
		AnnotationTimeout: cfg.Watch.AnnotationTimeout.Or(25 * time.Second),
		DiffTimeout:       cfg.Watch.DiffTimeout.Or(5 * time.Minute),
	})

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     st,
		hub:       hub,
		toolsSvc:  toolsSvc,
	}, nil
}

// Run starts the push channel, the janitor (when enabled) and the HTTP
// server, and blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if dir := a.eff.Config.Logging.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			logger.Warn("audit_sink_attach_failed", "dir", dir, "error", err)
		}
	}

	a.hub.Start()

	if a.eff.Config.Janitor.Enabled {
		cancel, err := janitor.Start(ctx, a.store, a.hub, janitor.Config{
			Cron:      a.eff.Config.Janitor.Cron,
			IdleAfter: a.eff.Config.Janitor.IdleAfter.Or(10 * time.Minute),
		})
		if err != nil {
			a.shutdownComponents()
			return err
		}
		a.janitorCancel = cancel
	}

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdownComponents()
		return err
	}
}

// shutdown drains the HTTP server before stopping components so in-flight
// long-polls get their timeout responses.
func (a *App) shutdown() {
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_incomplete", "error", err)
		}
	}
	a.shutdownComponents()
}

func (a *App) shutdownComponents() {
	if a.janitorCancel != nil {
		a.janitorCancel()
	}
	a.hub.Stop()
	if err := a.store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
}

func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func projectRoot(cfg *config.Config) string {
	if cfg.Manifest.Root != "" {
		return cfg.Manifest.Root
	}
	return "."
}
