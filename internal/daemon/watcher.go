// Package daemon implements the preference watcher daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/config"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
)

// PreferenceObserver is told about every preference the watcher sees.
type PreferenceObserver interface {
	Observe(pref domain.Preference)
}

// PrivilegeGate acquires the privilege of a controller kind.
type PrivilegeGate interface {
	Ensure(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error)
}

// AppStateRefresher is the app state cache as seen by the watcher.
type AppStateRefresher interface {
	Get(ctx context.Context, packageName string) (domain.AppServiceStatus, error)
	Invalidate(packageName string)
	Clear()
}

// RuleInventory lists packages that have IFW rules.
type RuleInventory interface {
	Packages(ctx context.Context) ([]string, error)
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	PreferencePoll time.Duration // How often to poll the preference store
	StateRefresh   time.Duration // How often to refresh app state snapshots
	MetricsListen  string        // Address of the /metrics endpoint, empty to disable
	Packages       []string      // Packages whose app state is kept warm
	Version        string        // Version published in the daemon registry
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PreferencePoll: config.DefaultPreferencePoll,
		StateRefresh:   config.DefaultStateRefresh,
		MetricsListen:  config.DefaultMetricsListen,
	}
}

// WatcherConfigFrom builds a watcher configuration from the loaded file.
func WatcherConfigFrom(cfg *config.Config) WatcherConfig {
	return WatcherConfig{
		PreferencePoll: cfg.PreferencePollInterval(),
		StateRefresh:   cfg.StateRefreshInterval(),
		MetricsListen:  cfg.Daemon.MetricsListen,
		Packages:       cfg.Daemon.Packages,
	}
}

// Watcher follows the controller preference. On every change it
// re-acquires privilege for the new kind and drops stale app state.
type Watcher struct {
	config     WatcherConfig
	store      domain.PreferenceStore
	observer   PreferenceObserver
	privileges PrivilegeGate
	appState   AppStateRefresher
	rules      RuleInventory
	metrics    *metrics.Registry
	registry   domain.DaemonRegistry
	logger     *zap.Logger

	current *domain.Preference
	status  domain.PermissionStatus
}

// NewWatcher creates a new watcher daemon.
func NewWatcher(
	config WatcherConfig,
	store domain.PreferenceStore,
	observer PreferenceObserver,
	privileges PrivilegeGate,
	appState AppStateRefresher,
	rules RuleInventory,
	m *metrics.Registry,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:     config,
		store:      store,
		observer:   observer,
		privileges: privileges,
		appState:   appState,
		rules:      rules,
		metrics:    m,
		logger:     logger,
	}
}

// WithRegistry makes the watcher publish its pid and heartbeat.
func (w *Watcher) WithRegistry(registry domain.DaemonRegistry) *Watcher {
	w.registry = registry
	return w
}

// Run starts the watcher loop.
// This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher daemon started",
		zap.Duration("preference_poll", w.config.PreferencePoll),
		zap.Duration("state_refresh", w.config.StateRefresh))

	if w.registry != nil {
		if err := w.registry.Register(domain.DaemonState{
			PID:     os.Getpid(),
			Version: w.config.Version,
		}); err != nil {
			return fmt.Errorf("failed to register daemon: %w", err)
		}
		defer func() {
			if err := w.registry.Clear(); err != nil {
				w.logger.Warn("failed to clear daemon registry", zap.Error(err))
			}
		}()
	}

	if w.config.MetricsListen != "" && w.metrics != nil {
		srv := w.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	prefs := w.store.Watch(ctx, w.config.PreferencePoll)
	refreshTicker := time.NewTicker(w.config.StateRefresh)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case pref, ok := <-prefs:
			if !ok {
				w.logger.Info("preference stream closed")
				return ctx.Err()
			}
			w.handlePreference(ctx, pref)

		case <-refreshTicker.C:
			w.refreshState(ctx)
		}
	}
}

// handlePreference applies a preference emitted by the store.
func (w *Watcher) handlePreference(ctx context.Context, pref domain.Preference) {
	if w.current != nil && *w.current != pref {
		w.logger.Info("controller preference changed",
			zap.Stringer("from", *w.current),
			zap.Stringer("to", pref))
		if w.metrics != nil {
			w.metrics.PreferenceChanges.Inc()
		}
	}
	w.current = &pref
	w.observer.Observe(pref)

	status, err := w.privileges.Ensure(ctx, pref.Kind)
	if err != nil {
		w.logger.Warn("privilege initialization interrupted",
			zap.Stringer("preference", pref),
			zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.ControllerInit.WithLabelValues(string(pref.Kind), status.String()).Inc()
	}
	w.status = status
	w.logger.Info("controller initialized",
		zap.Stringer("preference", pref),
		zap.Stringer("status", status))

	w.appState.Clear()
	w.refreshState(ctx)
}

// refreshState updates rule metrics and re-reads watched packages.
func (w *Watcher) refreshState(ctx context.Context) {
	if w.rules != nil {
		packages, err := w.rules.Packages(ctx)
		if err != nil {
			w.logger.Warn("failed to list ifw rule files", zap.Error(err))
		} else if w.metrics != nil {
			w.metrics.RuleFiles.Set(float64(len(packages)))
		}
	}

	for _, pkg := range w.config.Packages {
		w.appState.Invalidate(pkg)
		status, err := w.appState.Get(ctx, pkg)
		if err != nil {
			w.logger.Warn("failed to refresh app state",
				zap.String("package", pkg),
				zap.Error(err))
			continue
		}
		w.logger.Debug("app state refreshed",
			zap.String("package", pkg),
			zap.Int("running", status.Running),
			zap.Int("blocked", status.Blocked),
			zap.Int("total", status.Total))
	}

	w.heartbeat()
}

func (w *Watcher) heartbeat() {
	if w.registry == nil || w.current == nil {
		return
	}
	if err := w.registry.Heartbeat(*w.current, w.status); err != nil {
		w.logger.Warn("failed to update heartbeat", zap.Error(err))
	}
}

func (w *Watcher) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", w.metrics.Handler())
	srv := &http.Server{
		Addr:              w.config.MetricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		w.logger.Info("serving metrics", zap.String("addr", w.config.MetricsListen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
