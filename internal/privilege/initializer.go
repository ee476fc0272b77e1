// Package privilege acquires and caches the privilege each controller
// family needs before its controllers are used.
package privilege

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
)

// RequestCodePermission is the request code used for the broker prompt.
const RequestCodePermission = 101

// DefaultProbeTimeout bounds a probe once no caller is waiting on it. The
// broker prompt waits for the user, so it is generous.
const DefaultProbeTimeout = 2 * time.Minute

// Initializable is anything warmed up by the RootAPI family probe.
type Initializable interface {
	Init(ctx context.Context) error
}

// Initializer probes privilege once per controller family and caches the
// result. Concurrent callers for the same family share one probe.
type Initializer struct {
	broker  domain.Broker
	rootAPI []Initializable
	metrics *metrics.Registry
	logger  *zap.Logger

	probeTimeout time.Duration
	group        singleflight.Group

	mu     sync.RWMutex
	status map[domain.ControllerFamily]domain.PermissionStatus
}

// NewInitializer creates an initializer. rootAPI lists the root controllers
// that must all initialize for the RootAPI family to be granted.
func NewInitializer(broker domain.Broker, rootAPI []Initializable, m *metrics.Registry, logger *zap.Logger) *Initializer {
	return &Initializer{
		broker:  broker,
		rootAPI: rootAPI,
		metrics:      m,
		logger:       logger,
		probeTimeout: DefaultProbeTimeout,
		status:       make(map[domain.ControllerFamily]domain.PermissionStatus),
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func (i *Initializer) WithProbeTimeout(d time.Duration) *Initializer {
	i.probeTimeout = d
	return i
}

// Status returns the cached status of family without probing.
func (i *Initializer) Status(family domain.ControllerFamily) domain.PermissionStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status[family]
}

// Ensure makes sure the family serving kind has been probed. A cached
// grant returns immediately. The returned error is set when ctx ends before
// the probe resolves, or when the probe itself times out. The probe does not
// inherit ctx cancellation, so one caller giving up leaves the others waiting
// on the same probe.
func (i *Initializer) Ensure(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error) {
	family := domain.FamilyOf(kind)
	if status := i.Status(family); status.Granted() {
		i.logger.Debug("privilege already acquired",
			zap.String("family", string(family)),
			zap.Stringer("status", status))
		return status, nil
	}

	ch := i.group.DoChan(string(family), func() (interface{}, error) {
		if status := i.Status(family); status.Granted() {
			return status, nil
		}
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.probeTimeout)
		defer cancel()
		status, err := i.probe(probeCtx, family)
		if err != nil {
			return domain.NoPermission, err
		}
		i.mu.Lock()
		i.status[family] = status
		i.mu.Unlock()
		if i.metrics != nil {
			i.metrics.RecordProbe(string(family), status.String(), int(status))
		}
		return status, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.NoPermission, res.Err
		}
		return res.Val.(domain.PermissionStatus), nil
	case <-ctx.Done():
		return domain.NoPermission, ctx.Err()
	}
}

// Invalidate drops the cached status of family so the next Ensure probes.
func (i *Initializer) Invalidate(family domain.ControllerFamily) {
	i.mu.Lock()
	delete(i.status, family)
	i.mu.Unlock()
	i.group.Forget(string(family))
	i.logger.Debug("privilege status invalidated", zap.String("family", string(family)))
}

// Recheck invalidates and probes the family serving kind again.
func (i *Initializer) Recheck(ctx context.Context, kind domain.ControllerKind) (domain.PermissionStatus, error) {
	i.Invalidate(domain.FamilyOf(kind))
	return i.Ensure(ctx, kind)
}

func (i *Initializer) probe(ctx context.Context, family domain.ControllerFamily) (domain.PermissionStatus, error) {
	i.logger.Info("initialize controller family", zap.String("family", string(family)))
	if family == domain.FamilyBroker {
		return i.probeBroker(ctx)
	}
	return i.probeRootAPI(ctx), nil
}

func (i *Initializer) probeRootAPI(ctx context.Context) domain.PermissionStatus {
	for _, c := range i.rootAPI {
		if err := c.Init(ctx); err != nil {
			i.logger.Error("cannot initialize root api controller", zap.Error(err))
			return domain.NoPermission
		}
	}
	return domain.RootUser
}

func (i *Initializer) probeBroker(ctx context.Context) (domain.PermissionStatus, error) {
	if i.broker == nil {
		return domain.NoPermission, nil
	}
	if i.broker.IsPreV11() {
		i.logger.Error("broker pre-v11 is not supported")
		return domain.NoPermission, nil
	}
	if granted, err := i.broker.CheckSelfPermission(); err == nil && granted {
		return i.statusFromUID(), nil
	}
	return i.handshake(ctx)
}

// handshake waits for the binder and, if needed, the permission prompt.
// Whichever listener finishes first resolves the wait; later callbacks are
// ignored.
func (i *Initializer) handshake(ctx context.Context) (domain.PermissionStatus, error) {
	done := make(chan domain.PermissionStatus, 1)
	var once sync.Once
	finish := func(status domain.PermissionStatus) {
		once.Do(func() { done <- status })
	}

	removeDead := i.broker.AddBinderDeadListener(func() {
		i.logger.Error("broker binder dead")
		finish(domain.NoPermission)
	})
	defer removeDead()

	removeResult := i.broker.AddRequestPermissionResultListener(func(requestCode int, granted bool) {
		if requestCode != RequestCodePermission {
			return
		}
		if !granted {
			i.logger.Error("broker permission denied")
			finish(domain.NoPermission)
			return
		}
		finish(i.statusFromUID())
	})
	defer removeResult()

	removeReceived := i.broker.AddBinderReceivedListenerSticky(func() {
		i.logger.Debug("broker binder received")
		if i.broker.IsPreV11() {
			finish(domain.NoPermission)
			return
		}
		if granted, err := i.broker.CheckSelfPermission(); err == nil && granted {
			finish(i.statusFromUID())
			return
		}
		if i.broker.ShouldShowRequestPermissionRationale() {
			i.logger.Error("user denied broker permission")
			finish(domain.NoPermission)
			return
		}
		i.logger.Debug("request broker permission")
		if err := i.broker.RequestPermission(RequestCodePermission); err != nil {
			i.logger.Error("broker permission request failed", zap.Error(err))
			finish(domain.NoPermission)
		}
	})
	defer removeReceived()

	select {
	case status := <-done:
		return status, nil
	case <-ctx.Done():
		return domain.NoPermission, ctx.Err()
	}
}

func (i *Initializer) statusFromUID() domain.PermissionStatus {
	uid, err := i.broker.UID()
	if err != nil {
		if !errors.Is(err, domain.ErrBrokerNotRunning) {
			i.logger.Error("get broker uid failed", zap.Error(err))
		}
		return domain.NoPermission
	}
	status := domain.PermissionFromUID(uid)
	i.logger.Debug("broker uid", zap.Int("uid", uid), zap.Stringer("status", status))
	return status
}
