package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

func newTestRegistry(t *testing.T) (*FileRegistry, *mockProcessManager) {
	t.Helper()
	pm := newMockProcessManager()
	return NewFileRegistryWithPath(filepath.Join(t.TempDir(), "daemon.json"), pm), pm
}

func TestFileRegistry_RegisterAndGet(t *testing.T) {
	registry, _ := newTestRegistry(t)

	err := registry.Register(domain.DaemonState{PID: 12345, Version: "1.2.3"})
	require.NoError(t, err)

	state, err := registry.Get()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 12345, state.PID)
	assert.Equal(t, "1.2.3", state.Version)
	assert.NotZero(t, state.StartedAt)
	assert.NotZero(t, state.LastHeartbeat)
}

func TestFileRegistry_GetMissing(t *testing.T) {
	registry, _ := newTestRegistry(t)

	state, err := registry.Get()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestFileRegistry_Heartbeat(t *testing.T) {
	registry, _ := newTestRegistry(t)

	require.NoError(t, registry.Register(domain.DaemonState{PID: 1, StartedAt: 100}))
	require.NoError(t, registry.Heartbeat(domain.Preference{Kind: domain.ControllerPM, Combined: true}, domain.RootUser))

	state, err := registry.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(100), state.StartedAt)
	assert.Equal(t, "pm+combined", state.Preference)
	assert.Equal(t, "root", state.Permission)
}

func TestFileRegistry_HeartbeatWithoutRegister(t *testing.T) {
	registry, _ := newTestRegistry(t)

	err := registry.Heartbeat(domain.DefaultPreference, domain.NoPermission)
	assert.Error(t, err)
}

func TestFileRegistry_IsAlive(t *testing.T) {
	registry, pm := newTestRegistry(t)

	alive, err := registry.IsAlive()
	require.NoError(t, err)
	assert.False(t, alive, "no record means not alive")

	require.NoError(t, registry.Register(domain.DaemonState{PID: 4242}))

	alive, err = registry.IsAlive()
	require.NoError(t, err)
	assert.False(t, alive)

	pm.SetRunning(4242, true)
	alive, err = registry.IsAlive()
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestFileRegistry_Clear(t *testing.T) {
	registry, _ := newTestRegistry(t)

	require.NoError(t, registry.Register(domain.DaemonState{PID: 1}))
	require.NoError(t, registry.Clear())

	_, err := os.Stat(registry.Path())
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine
	assert.NoError(t, registry.Clear())
}

func TestFileRegistry_CorruptFile(t *testing.T) {
	registry, _ := newTestRegistry(t)

	require.NoError(t, os.WriteFile(registry.Path(), []byte("{not json"), 0600))

	_, err := registry.Get()
	assert.Error(t, err)
}

func TestFileRegistry_NoTempFilesLeft(t *testing.T) {
	registry, _ := newTestRegistry(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, registry.Register(domain.DaemonState{PID: i + 1}))
	}

	entries, err := os.ReadDir(filepath.Dir(registry.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
