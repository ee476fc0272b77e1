package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/ifw"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/infra"
	"github.com/eliteGoblin/focusd/comp_ctl/test/fixtures"
)

func newIfwController(dir string) *IfwController {
	logger := zap.NewNop()
	inspector := fixtures.NewFakeInspector().AddPackage(domain.PackageComponents{
		PackageName: "com.example",
		Activities:  []string{".MainActivity"},
	})
	storage := infra.NewIfwRuleStorageWithDir(dir, logger)
	return NewIfwController(ifw.NewIntentFirewall(storage, ifw.NewPackageTypeResolver(inspector, logger), logger), logger)
}

func TestIfwController_Init(t *testing.T) {
	c := newIfwController(filepath.Join(t.TempDir(), "ifw"))
	ctx := context.Background()

	require.NoError(t, c.Init(ctx))

	ok, err := c.Disable(ctx, component("com.example", ".MainActivity"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIfwController_InitUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	c := newIfwController(filepath.Join(blocker, "ifw"))

	err := c.Init(context.Background())
	assert.ErrorIs(t, err, domain.ErrPrivilegeUnavailable)
	var ce *domain.ControllerError
	assert.ErrorAs(t, err, &ce)
}
