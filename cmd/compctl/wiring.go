package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/config"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/controller"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/ifw"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/infra"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/metrics"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/privilege"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/usecase"
)

// app is the wired object graph shared by all commands.
type app struct {
	cfg      *config.Config
	execMode *infra.ExecModeConfig
	logger   *zap.Logger

	storage     *infra.IfwRuleStorage
	firewall    *ifw.IntentFirewall
	ifw         *controller.IfwController
	root        *controller.RootController
	apps        *controller.AppController
	services    *controller.ServiceController
	preferences *infra.EncryptedPreferenceStore
	registry    *infra.FileRegistry
	selector    *controller.Selector
	privileges  *privilege.Initializer
	appState    *usecase.AppStateCache
	components  *usecase.ComponentService
	metrics     *metrics.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	execMode := infra.DetectExecMode()
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = execMode.DataDir
	}

	executor := infra.NewShellExecutor(execMode, cfg.SuPath, logger)
	inspector := infra.NewDumpsysInspector(executor, cfg.UserID, logger)
	resolver := ifw.NewPackageTypeResolver(inspector, logger)
	storage := infra.NewIfwRuleStorage(ctx, executor, cfg.IFW.Dir, logger)
	firewall := ifw.NewIntentFirewall(storage, resolver, logger)

	ifwCtl := controller.NewIfwController(firewall, logger)
	rootCtl := controller.NewRootController(executor, inspector, cfg.UserID, logger)
	processes := infra.NewProcessManager()
	appCtl := controller.NewAppController(executor, processes, cfg.UserID, logger)
	serviceCtl := controller.NewServiceController(executor, logger)

	broker := infra.NewRishBroker(cfg.Broker.RishPath, logger)
	brokerCtl := controller.NewBrokerController(broker, inspector, cfg.UserID, logger)

	key, err := infra.NewFileKeyProvider(dataDir).Key()
	if err != nil {
		return nil, fmt.Errorf("failed to load preference key: %w", err)
	}
	prefs, err := infra.NewEncryptedPreferenceStore(dataDir, key, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.Get()
	privileges := privilege.NewInitializer(
		broker,
		[]privilege.Initializable{rootCtl, appCtl, serviceCtl, ifwCtl},
		m,
		logger,
	)

	selector := controller.NewSelector(controller.Controllers{
		IFW:    ifwCtl,
		Root:   rootCtl,
		Broker: brokerCtl,
	}, prefs, logger)
	selector.OnChange(func(prev, next domain.Preference) {
		privileges.Invalidate(domain.FamilyOf(next.Kind))
	})

	appState := usecase.NewAppStateCache(inspector, ifwCtl, rootCtl, serviceCtl, logger)
	components := usecase.NewComponentService(selector, privileges, appState, m, logger)

	return &app{
		cfg:         cfg,
		execMode:    execMode,
		logger:      logger,
		storage:     storage,
		firewall:    firewall,
		ifw:         ifwCtl,
		root:        rootCtl,
		apps:        appCtl,
		services:    serviceCtl,
		preferences: prefs,
		registry:    infra.NewFileRegistry(dataDir, processes),
		selector:    selector,
		privileges:  privileges,
		appState:    appState,
		components:  components,
		metrics:     m,
	}, nil
}

func (a *app) Close() {
	if err := a.preferences.Close(); err != nil {
		a.logger.Warn("failed to close preference store", zap.Error(err))
	}
}
