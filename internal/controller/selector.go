package controller

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// Controllers holds one live instance per backend.
type Controllers struct {
	IFW    domain.ComponentController
	Root   domain.ComponentController
	Broker domain.ComponentController
}

// Selector maps the user's preference to a live controller.
type Selector struct {
	controllers Controllers
	store       domain.PreferenceStore
	logger      *zap.Logger

	mu       sync.Mutex
	last     *domain.Preference
	combined map[domain.ControllerKind]*CombinedController
	onChange []func(prev, next domain.Preference)
}

// NewSelector creates a selector reading preferences from store.
func NewSelector(controllers Controllers, store domain.PreferenceStore, logger *zap.Logger) *Selector {
	return &Selector{
		controllers: controllers,
		store:       store,
		logger:      logger,
		combined:    make(map[domain.ControllerKind]*CombinedController),
	}
}

// OnChange registers fn to run when Current observes a different
// preference than the previous call. The first observation does not fire.
func (s *Selector) OnChange(fn func(prev, next domain.Preference)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Current reads the latest preference and returns its controller. A store
// error falls back to the default preference.
func (s *Selector) Current() (domain.ComponentController, domain.Preference) {
	pref, err := s.store.Get()
	if err != nil {
		s.logger.Warn("cannot read controller preference, using default", zap.Error(err))
		pref = domain.DefaultPreference
	}
	s.Observe(pref)
	return s.Select(pref), pref
}

// Observe records pref as the active preference and fires change hooks.
func (s *Selector) Observe(pref domain.Preference) {
	s.mu.Lock()
	prev := s.last
	s.last = &pref
	var hooks []func(prev, next domain.Preference)
	if prev != nil && *prev != pref {
		hooks = append(hooks, s.onChange...)
	}
	s.mu.Unlock()

	if len(hooks) == 0 {
		return
	}
	s.logger.Info("controller preference changed",
		zap.Stringer("from", *prev),
		zap.Stringer("to", pref))
	for _, fn := range hooks {
		fn(*prev, pref)
	}
}

// Select returns the controller for pref without touching the store.
// Combined with kind IFW pairs the firewall with the root backend.
func (s *Selector) Select(pref domain.Preference) domain.ComponentController {
	if pref.Combined {
		return s.combinedFor(pref.Kind)
	}
	return s.single(pref.Kind)
}

func (s *Selector) single(kind domain.ControllerKind) domain.ComponentController {
	switch kind {
	case domain.ControllerPM:
		return s.controllers.Root
	case domain.ControllerShizuku:
		return s.controllers.Broker
	default:
		return s.controllers.IFW
	}
}

func (s *Selector) combinedFor(kind domain.ControllerKind) *CombinedController {
	key, backend := domain.ControllerPM, s.controllers.Root
	if kind == domain.ControllerShizuku {
		key, backend = domain.ControllerShizuku, s.controllers.Broker
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.combined[key]; ok {
		return c
	}
	c := NewCombinedController(s.controllers.IFW, backend, s.logger)
	s.combined[key] = c
	return c
}
