package daemon

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/config"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
)

type chanStore struct {
	prefs chan domain.Preference
}

func (s *chanStore) Get() (domain.Preference, error) { return domain.DefaultPreference, nil }
func (s *chanStore) Set(domain.Preference) error     { return nil }
func (s *chanStore) Close() error                    { return nil }

func (s *chanStore) Watch(ctx context.Context, interval time.Duration) <-chan domain.Preference {
	out := make(chan domain.Preference)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case pref := <-s.prefs:
				select {
				case out <- pref:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []domain.Preference
}

func (o *recordingObserver) Observe(pref domain.Preference) {
	o.mu.Lock()
	o.seen = append(o.seen, pref)
	o.mu.Unlock()
}

type stubGate struct {
	status domain.PermissionStatus
	err    error
}

func (g *stubGate) Ensure(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error) {
	return g.status, g.err
}

type stubAppState struct {
	cleared     int
	invalidated []string
	fetched     []string
}

func (s *stubAppState) Get(ctx context.Context, packageName string) (domain.AppServiceStatus, error) {
	s.fetched = append(s.fetched, packageName)
	if packageName == "com.missing" {
		return domain.AppServiceStatus{}, errors.New("not installed")
	}
	return domain.AppServiceStatus{PackageName: packageName, Total: 1}, nil
}

func (s *stubAppState) Invalidate(packageName string) {
	s.invalidated = append(s.invalidated, packageName)
}

func (s *stubAppState) Clear() { s.cleared++ }

type stubRules []string

func (r stubRules) Packages(ctx context.Context) ([]string, error) { return r, nil }

type memoryRegistry struct {
	mu         sync.Mutex
	state      *domain.DaemonState
	heartbeats int
	cleared    bool
}

func (r *memoryRegistry) Register(state domain.DaemonState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = &state
	return nil
}

func (r *memoryRegistry) Heartbeat(pref domain.Preference, status domain.PermissionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return errors.New("daemon not registered")
	}
	r.heartbeats++
	r.state.Preference = pref.String()
	r.state.Permission = status.String()
	return nil
}

func (r *memoryRegistry) Get() (*domain.DaemonState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, nil
	}
	state := *r.state
	return &state, nil
}

func (r *memoryRegistry) IsAlive() (bool, error) { return r.state != nil, nil }

func (r *memoryRegistry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = true
	return nil
}

type watcherFixture struct {
	watcher  *Watcher
	store    *chanStore
	observer *recordingObserver
	gate     *stubGate
	appState *stubAppState
	registry *memoryRegistry
	metrics  *metrics.Registry
}

func newWatcherFixture(cfg WatcherConfig) *watcherFixture {
	f := &watcherFixture{
		store:    &chanStore{prefs: make(chan domain.Preference, 1)},
		observer: &recordingObserver{},
		gate:     &stubGate{status: domain.RootUser},
		appState: &stubAppState{},
		registry: &memoryRegistry{},
		metrics:  metrics.New(),
	}
	f.watcher = NewWatcher(cfg, f.store, f.observer, f.gate, f.appState,
		stubRules{"com.a", "com.b"}, f.metrics, zap.NewNop()).WithRegistry(f.registry)
	return f
}

func TestDefaultWatcherConfig(t *testing.T) {
	cfg := DefaultWatcherConfig()

	assert.Equal(t, 5*time.Second, cfg.PreferencePoll)
	assert.Equal(t, 10*time.Minute, cfg.StateRefresh)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsListen)
	assert.Empty(t, cfg.Packages)
}

func TestWatcherConfigFrom(t *testing.T) {
	cfg, err := config.Parse("compctl.hcl", []byte(`
daemon {
  metrics_listen  = ""
  preference_poll = "2s"
  state_refresh   = "1m"
  packages        = ["com.example"]
}
`))
	require.NoError(t, err)

	wc := WatcherConfigFrom(cfg)
	assert.Equal(t, 2*time.Second, wc.PreferencePoll)
	assert.Equal(t, time.Minute, wc.StateRefresh)
	assert.Equal(t, []string{"com.example"}, wc.Packages)
}

func TestWatcher_HandlePreference(t *testing.T) {
	f := newWatcherFixture(WatcherConfig{Packages: []string{"com.example", "com.missing"}})
	require.NoError(t, f.registry.Register(domain.DaemonState{PID: 42}))
	ctx := context.Background()

	first := domain.Preference{Kind: domain.ControllerIFW}
	f.watcher.handlePreference(ctx, first)

	assert.Equal(t, []domain.Preference{first}, f.observer.seen)
	assert.Equal(t, 1, f.appState.cleared)
	assert.Equal(t, []string{"com.example", "com.missing"}, f.appState.fetched)

	var gauge dto.Metric
	require.NoError(t, f.metrics.RuleFiles.Write(&gauge))
	assert.Equal(t, float64(2), gauge.GetGauge().GetValue())

	var changes dto.Metric
	require.NoError(t, f.metrics.PreferenceChanges.Write(&changes))
	assert.Zero(t, changes.GetCounter().GetValue(), "first preference is not a change")

	second := domain.Preference{Kind: domain.ControllerShizuku}
	f.watcher.handlePreference(ctx, second)
	require.NoError(t, f.metrics.PreferenceChanges.Write(&changes))
	assert.Equal(t, float64(1), changes.GetCounter().GetValue())

	state, err := f.registry.Get()
	require.NoError(t, err)
	assert.Equal(t, "shizuku", state.Preference)
	assert.Equal(t, domain.RootUser.String(), state.Permission)
}

func TestWatcher_HandlePreferenceInterrupted(t *testing.T) {
	f := newWatcherFixture(WatcherConfig{Packages: []string{"com.example"}})
	f.gate.err = context.Canceled

	f.watcher.handlePreference(context.Background(), domain.Preference{Kind: domain.ControllerPM})

	assert.Len(t, f.observer.seen, 1, "observer still sees the preference")
	assert.Zero(t, f.appState.cleared)
	assert.Empty(t, f.appState.fetched)
}

func TestWatcher_HeartbeatWithoutPreference(t *testing.T) {
	f := newWatcherFixture(WatcherConfig{})
	require.NoError(t, f.registry.Register(domain.DaemonState{PID: 42}))

	f.watcher.refreshState(context.Background())
	assert.Zero(t, f.registry.heartbeats)
}

func TestWatcher_RunRegistersAndClears(t *testing.T) {
	f := newWatcherFixture(WatcherConfig{
		PreferencePoll: time.Millisecond,
		StateRefresh:   time.Hour,
		Version:        "test",
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	f.store.prefs <- domain.Preference{Kind: domain.ControllerPM, Combined: true}
	require.Eventually(t, func() bool {
		f.registry.mu.Lock()
		defer f.registry.mu.Unlock()
		return f.registry.heartbeats > 0
	}, 2*time.Second, 10*time.Millisecond)

	state, err := f.registry.Get()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), state.PID)
	assert.Equal(t, "test", state.Version)
	assert.Equal(t, "pm+combined", state.Preference)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, f.registry.cleared)
}
