package ifw

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/test/fixtures"
)

func examplePackage() domain.PackageComponents {
	return domain.PackageComponents{
		PackageName: "com.example",
		Activities:  []string{".MainActivity"},
		Services:    []string{"com.example.sync.SyncService"},
		Receivers:   []string{".BootReceiver"},
		Providers:   []string{".data.Provider"},
	}
}

func TestPackageTypeResolver_Resolve(t *testing.T) {
	inspector := fixtures.NewFakeInspector().AddPackage(examplePackage())
	resolver := NewPackageTypeResolver(inspector, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		want domain.ComponentType
	}{
		{".MainActivity", domain.ComponentActivity},
		{"com.example.MainActivity", domain.ComponentActivity},
		{".sync.SyncService", domain.ComponentService},
		{".BootReceiver", domain.ComponentReceiver},
		{".data.Provider", domain.ComponentProvider},
		{".Missing", domain.ComponentUnknown},
	}
	for _, tt := range tests {
		kind, err := resolver.Resolve(ctx, "com.example", tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, kind, tt.name)
	}
	assert.Equal(t, 1, inspector.Lookups(), "package metadata is cached")

	resolver.Reset()
	_, err := resolver.Resolve(ctx, "com.example", ".MainActivity")
	require.NoError(t, err)
	assert.Equal(t, 2, inspector.Lookups())
}

func TestPackageTypeResolver_ErrorNotCached(t *testing.T) {
	inspector := fixtures.NewFakeInspector().AddPackage(examplePackage())
	inspector.Err = errors.New("dumpsys failed")
	resolver := NewPackageTypeResolver(inspector, zap.NewNop())
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "com.example", ".MainActivity")
	assert.Error(t, err)

	inspector.Err = nil
	kind, err := resolver.Resolve(ctx, "com.example", ".MainActivity")
	require.NoError(t, err)
	assert.Equal(t, domain.ComponentActivity, kind)
}
