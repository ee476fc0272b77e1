package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
)

type serviceFixture struct {
	service  *ComponentService
	ctrl     *fakeController
	gate     *fakeGate
	appState *appStateFixture
	metrics  *metrics.Registry
}

func newServiceFixture(pref domain.Preference) *serviceFixture {
	f := &serviceFixture{
		ctrl:     newFakeController(),
		gate:     &fakeGate{status: domain.RootUser},
		appState: newAppStateFixture(),
		metrics:  metrics.New(),
	}
	f.service = NewComponentService(&staticSource{ctrl: f.ctrl, pref: pref}, f.gate, f.appState.cache, f.metrics, zap.NewNop())
	return f
}

func descriptor(pkg, name string) domain.ComponentDescriptor {
	return domain.ComponentDescriptor{PackageName: pkg, Name: name}
}

func TestComponentService_Switch(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerPM})
	ctx := context.Background()

	_, err := f.service.AppState(ctx, "com.example")
	require.NoError(t, err)
	require.NotNil(t, f.appState.cache.GetOrNil("com.example"))

	ok, err := f.service.Switch(ctx, descriptor("com.example", ".Sync"), domain.StateDisabled)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []domain.ControllerKind{domain.ControllerPM, domain.ControllerPM}, f.gate.kinds)
	assert.Nil(t, f.appState.cache.GetOrNil("com.example"), "switch invalidates app state")

	var m dto.Metric
	require.NoError(t, f.metrics.ComponentSwitches.WithLabelValues("pm", "disabled", "success").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestComponentService_NoPrivilege(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerShizuku})
	f.gate.status = domain.NoPermission

	_, err := f.service.Switch(context.Background(), descriptor("com.example", ".Sync"), domain.StateDisabled)
	assert.ErrorIs(t, err, domain.ErrPrivilegeUnavailable)
	assert.Zero(t, f.ctrl.switches, "controller is not touched")

	_, err = f.service.Check(context.Background(), "com.example", ".Sync")
	assert.ErrorIs(t, err, domain.ErrPrivilegeUnavailable)
}

func TestComponentService_GateInterrupted(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerShizuku})
	f.gate.err = context.DeadlineExceeded

	_, err := f.service.Switch(context.Background(), descriptor("com.example", ".Sync"), domain.StateDisabled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComponentService_Batch(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerIFW, Combined: true})
	f.ctrl.reject["com.example/.Provider"] = true

	components := []domain.ComponentDescriptor{
		descriptor("com.example", ".Sync"),
		descriptor("com.example", ".Provider"),
		descriptor("org.other", ".Tracker"),
	}
	result, err := f.service.Batch(context.Background(), components, domain.StateDisabled)
	require.NoError(t, err)

	_, parseErr := uuid.Parse(result.ID)
	assert.NoError(t, parseErr, "batch id is a uuid")
	assert.Equal(t, "ifw+combined", result.Controller)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, []string{"com.example/.Sync", "org.other/.Tracker"}, result.Succeeded)
	assert.Equal(t, 1, result.Failed())
	assert.False(t, result.ExecutedAt.IsZero())

	var m dto.Metric
	require.NoError(t, f.metrics.ComponentSwitches.WithLabelValues("ifw+combined", "disabled", "failure").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestComponentService_BatchUnsupportedState(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerPM})

	result, err := f.service.Batch(context.Background(), []domain.ComponentDescriptor{descriptor("com.a", ".X")}, domain.StateDefault)
	assert.Error(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Succeeded)
}

func TestComponentService_BatchCanceled(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerPM})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.service.Batch(ctx, []domain.ComponentDescriptor{descriptor("com.a", ".X")}, domain.StateEnabled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, result.Succeeded)
}

func TestComponentService_Check(t *testing.T) {
	f := newServiceFixture(domain.Preference{Kind: domain.ControllerPM})
	f.ctrl.blocked["com.example/.Sync"] = true

	enabled, err := f.service.Check(context.Background(), "com.example", ".Sync")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestComponentService_AppStateWithoutCache(t *testing.T) {
	service := NewComponentService(&staticSource{ctrl: newFakeController()}, &fakeGate{status: domain.RootUser}, nil, nil, zap.NewNop())

	_, err := service.AppState(context.Background(), "com.example")
	assert.Error(t, err)

	ok, err := service.Switch(context.Background(), descriptor("com.example", ".A"), domain.StateDisabled)
	require.NoError(t, err)
	assert.True(t, ok, "nil metrics and cache are fine")
}
