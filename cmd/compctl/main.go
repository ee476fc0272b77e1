// Package main is the CLI entry point for compctl.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/config"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/daemon"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
	"github.com/eliteGoblin/focusd/comp_ctl/internal/ifw"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "compctl",
	Short: "Android component control and Intent Firewall rule engine",
	Long: `compctl blocks and restores Android app components (activities,
services, receivers, providers) through the package manager, a Shizuku
broker, or Intent Firewall rule files, optionally combining IFW with a
package manager backend.

Run it on the device as root, e.g. su -c compctl disable com.example.app/.MainActivity`,
	Version:      Version,
	SilenceUsage: true,
}

var enableCmd = &cobra.Command{
	Use:   "enable <package/component>...",
	Short: "Enable components with the active controller",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args, domain.StateEnabled)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <package/component>...",
	Short: "Disable components with the active controller",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args, domain.StateDisabled)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <package/component>",
	Short: "Show whether a component is enabled, per blocking layer",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var batchCmd = &cobra.Command{
	Use:   "batch <enable|disable>",
	Short: "Switch components listed in a file (one package/component [type] per line)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var statusCmd = &cobra.Command{
	Use:   "status <package>",
	Short: "Show running and blocked service counts of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Show or change the blocking backend",
}

var controllerGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the active controller and its privilege",
	Args:  cobra.NoArgs,
	RunE:  runControllerGet,
}

var controllerSetCmd = &cobra.Command{
	Use:   "set <ifw|pm|shizuku>",
	Short: "Select the blocking backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runControllerSet,
}

var ifwCmd = &cobra.Command{
	Use:   "ifw",
	Short: "Inspect Intent Firewall rule files",
}

var ifwShowCmd = &cobra.Command{
	Use:   "show <package>",
	Short: "Print the rule file of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runIfwShow,
}

var ifwListCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages with rule files",
	Args:  cobra.NoArgs,
	RunE:  runIfwList,
}

var ifwDiffCmd = &cobra.Command{
	Use:   "diff <package>",
	Short: "Preview a rule change without writing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runIfwDiff,
}

var ifwClearCmd = &cobra.Command{
	Use:   "clear <package>",
	Short: "Delete the rule file of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runIfwClear,
}

var appCmd = &cobra.Command{
	Use:       "app <disable|enable|clear|uninstall|force-stop|running> <package>",
	Short:     "Package level operations",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"disable", "enable", "clear", "uninstall", "force-stop", "running"},
	RunE:      runApp,
}

var serviceCmd = &cobra.Command{
	Use:   "service <start|stop|running> <package/service>",
	Short: "Start, stop or query a service",
	Args:  cobra.ExactArgs(2),
	RunE:  runService,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Follow preference changes and serve metrics",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath    string
	verbose       bool
	jsonOutput    bool
	componentType string
	batchFile     string
	combined      bool
	diffBlock     []string
	diffUnblock   []string
	detach        bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the HCL config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	for _, c := range []*cobra.Command{enableCmd, disableCmd} {
		c.Flags().StringVarP(&componentType, "type", "t", "", "Component type (activity, service, receiver, provider)")
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output batch result as JSON")
	}
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "-", "Component list file, - for stdin")
	batchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output batch result as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	controllerSetCmd.Flags().BoolVar(&combined, "combined", false, "Also apply IFW rules alongside the backend")
	ifwDiffCmd.Flags().StringSliceVar(&diffBlock, "block", nil, "Components to block")
	ifwDiffCmd.Flags().StringSliceVar(&diffUnblock, "unblock", nil, "Components to unblock")
	ifwDiffCmd.Flags().StringVarP(&componentType, "type", "t", "", "Component type of the listed components")
	daemonCmd.Flags().BoolVar(&detach, "detach", false, "Start the daemon in the background and return")
	daemonStatusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output daemon state as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	controllerCmd.AddCommand(controllerGetCmd, controllerSetCmd)
	ifwCmd.AddCommand(ifwShowCmd, ifwListCmd, ifwDiffCmd, ifwClearCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	rootCmd.AddCommand(enableCmd, disableCmd, checkCmd, batchCmd, statusCmd)
	rootCmd.AddCommand(controllerCmd, ifwCmd, appCmd, serviceCmd)
	rootCmd.AddCommand(daemonCmd, versionCmd)
}

// setup loads config and wires the app for a command.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := createLogger(verbose)
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func runSwitch(cmd *cobra.Command, args []string, state domain.ComponentState) error {
	components, err := parseComponents(args, componentType)
	if err != nil {
		return err
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if len(components) > 1 {
		return runBatchWith(ctx, a, components, state)
	}

	ok, err := a.components.Switch(ctx, components[0], state)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to %s %s", verbFor(state), components[0])
	}
	fmt.Printf("%s: %s\n", components[0], state)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	components, err := parseComponents(args, "")
	if err != nil {
		return err
	}
	c := components[0]
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	enabled, err := a.components.Check(ctx, c.PackageName, c.Name)
	if err != nil {
		return err
	}
	_, pref := a.selector.Current()

	info := domain.ComponentInfo{ComponentDescriptor: c}
	if ifwEnabled, err := a.ifw.CheckComponentEnableState(ctx, c.PackageName, c.Name); err == nil {
		info.IFWBlocked = !ifwEnabled
	}
	if pmEnabled, err := a.root.CheckComponentEnableState(ctx, c.PackageName, c.Name); err == nil {
		info.PMBlocked = !pmEnabled
	}
	if err := a.services.Load(ctx, c.PackageName); err == nil {
		info.IsRunning = a.services.IsServiceRunning(c.PackageName, c.Name)
	}

	fmt.Printf("%s\n", c)
	fmt.Printf("  controller (%s): %s\n", pref, enabledString(enabled))
	fmt.Printf("  ifw:     %s\n", blockedString(info.IFWBlocked))
	fmt.Printf("  pm:      %s\n", blockedString(info.PMBlocked))
	fmt.Printf("  running: %t\n", info.IsRunning)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	var state domain.ComponentState
	switch args[0] {
	case "enable":
		state = domain.StateEnabled
	case "disable":
		state = domain.StateDisabled
	default:
		return fmt.Errorf("unknown batch action %q (want enable or disable)", args[0])
	}

	components, err := readComponentList(batchFile)
	if err != nil {
		return err
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return runBatchWith(cmd.Context(), a, components, state)
}

func runBatchWith(ctx context.Context, a *app, components []domain.ComponentDescriptor, state domain.ComponentState) error {
	result, err := a.components.Batch(ctx, components, state)
	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Batch %s (%s): %d/%d %s\n",
			result.ID, result.Controller, len(result.Succeeded), result.Requested, state)
		for _, name := range result.Succeeded {
			fmt.Printf("  ok  %s\n", name)
		}
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.components.AppState(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("=== %s ===\n", status.PackageName)
	fmt.Printf("Services: %d\n", status.Total)
	fmt.Printf("Running:  %d\n", status.Running)
	fmt.Printf("Blocked:  %d\n", status.Blocked)
	return nil
}

func runControllerGet(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	_, pref := a.selector.Current()
	status, err := a.privileges.Ensure(cmd.Context(), pref.Kind)
	if err != nil {
		return err
	}
	fmt.Printf("Controller: %s\n", pref)
	fmt.Printf("Privilege:  %s\n", status)
	fmt.Printf("Exec mode:  %s\n", a.execMode.Mode)
	fmt.Printf("IFW dir:    %s\n", a.storage.Dir())
	return nil
}

func runControllerSet(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseControllerKind(args[0])
	if err != nil {
		return err
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	_, previous := a.selector.Current()
	pref := domain.Preference{Kind: kind, Combined: combined}
	if err := a.preferences.Set(pref); err != nil {
		return err
	}
	a.selector.Observe(pref)

	status, err := a.privileges.Ensure(cmd.Context(), kind)
	if err != nil {
		return err
	}
	fmt.Printf("Controller: %s -> %s (privilege: %s)\n", previous, pref, status)
	if !status.Granted() {
		fmt.Println("Warning: the selected controller has no privilege yet")
	}
	return nil
}

func runIfwShow(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rules := a.firewall.Load(cmd.Context(), args[0])
	if rules.IsEmpty() {
		fmt.Printf("No rules for %s\n", args[0])
		return nil
	}
	data, err := ifw.Encode(rules)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runIfwList(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	packages, err := a.firewall.Packages(cmd.Context())
	if err != nil {
		return err
	}
	for _, pkg := range packages {
		rules := a.firewall.Load(cmd.Context(), pkg)
		fmt.Printf("%s\t%d\n", pkg, rules.Count())
	}
	return nil
}

func runIfwDiff(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	block, err := qualify(pkg, diffBlock)
	if err != nil {
		return err
	}
	unblock, err := qualify(pkg, diffUnblock)
	if err != nil {
		return err
	}
	kind := domain.ComponentActivity
	if componentType != "" {
		if kind, err = domain.ParseComponentType(componentType); err != nil {
			return err
		}
	}
	partition, err := ifw.PartitionFor(kind)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.firewall.Preview(cmd.Context(), pkg, func(rules *ifw.Rules) error {
		for _, name := range block {
			rules.Add(partition, ifw.FilterName(pkg, name))
		}
		for _, name := range unblock {
			rules.Remove(partition, ifw.FilterName(pkg, name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("No changes")
		return nil
	}
	fmt.Print(text)
	return nil
}

func runIfwClear(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.firewall.Clear(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Cleared rules for %s\n", args[0])
	return nil
}

func runApp(cmd *cobra.Command, args []string) error {
	action, pkg := args[0], args[1]
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if status, err := a.privileges.Ensure(ctx, domain.ControllerPM); err != nil {
		return err
	} else if !status.Granted() {
		return domain.ErrPrivilegeUnavailable
	}

	var ok bool
	switch action {
	case "disable":
		ok, err = a.apps.Disable(ctx, pkg)
	case "enable":
		ok, err = a.apps.Enable(ctx, pkg)
	case "clear":
		ok, err = a.apps.ClearData(ctx, pkg)
	case "uninstall":
		ok, err = a.apps.Uninstall(ctx, pkg)
	case "force-stop":
		ok, err = a.apps.ForceStop(ctx, pkg)
	case "running":
		if err := a.apps.RefreshRunningAppList(ctx); err != nil {
			return err
		}
		fmt.Printf("%s running: %t\n", pkg, a.apps.IsAppRunning(pkg))
		return nil
	default:
		return fmt.Errorf("unknown app action %q", action)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s failed", action, pkg)
	}
	a.appState.Invalidate(pkg)
	fmt.Printf("%s %s: ok\n", action, pkg)
	return nil
}

func runService(cmd *cobra.Command, args []string) error {
	action := args[0]
	components, err := parseComponents(args[1:], string(domain.ComponentService))
	if err != nil {
		return err
	}
	c := components[0]
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	var ok bool
	switch action {
	case "start":
		ok, err = a.services.StartService(ctx, c.PackageName, c.Name)
	case "stop":
		ok, err = a.services.StopService(ctx, c.PackageName, c.Name)
	case "running":
		if err := a.services.Load(ctx, c.PackageName); err != nil {
			return err
		}
		fmt.Printf("%s running: %t\n", c, a.services.IsServiceRunning(c.PackageName, c.Name))
		return nil
	default:
		return fmt.Errorf("unknown service action %q", action)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s failed", action, c)
	}
	a.appState.Invalidate(c.PackageName)
	fmt.Printf("%s %s: ok\n", action, c)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = a.logger.Sync() }()

	alive, err := a.registry.IsAlive()
	if err != nil {
		a.logger.Warn("failed to read daemon registry", zap.Error(err))
	}
	if alive {
		state, _ := a.registry.Get()
		return fmt.Errorf("daemon already running (pid %d)", state.PID)
	}

	if detach {
		logPath := a.execMode.LogPath
		pid, err := daemon.StartDetached(configPath, logPath, verbose)
		if err != nil {
			return err
		}
		fmt.Printf("compctl daemon started (pid %d, log %s)\n", pid, logPath)
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("received shutdown signal")
		cancel()
	}()

	watcherConfig := daemon.WatcherConfigFrom(a.cfg)
	watcherConfig.Version = Version
	watcher := daemon.NewWatcher(
		watcherConfig,
		a.preferences,
		a.selector,
		a.privileges,
		a.appState,
		a.firewall,
		a.metrics,
		a.logger,
	).WithRegistry(a.registry)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.registry.Get()
	if err != nil {
		return fmt.Errorf("failed to read daemon registry: %w", err)
	}
	alive, err := a.registry.IsAlive()
	if err != nil {
		return err
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(struct {
			Running bool                `json:"running"`
			State   *domain.DaemonState `json:"state,omitempty"`
		}{alive, state}, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	if state == nil || !alive {
		fmt.Println("Daemon: not running")
		return nil
	}
	fmt.Printf("Daemon:     running (pid %d, version %s)\n", state.PID, state.Version)
	fmt.Printf("Started:    %s\n", time.Unix(state.StartedAt, 0).Format(time.RFC3339))
	fmt.Printf("Heartbeat:  %s\n", time.Unix(state.LastHeartbeat, 0).Format(time.RFC3339))
	fmt.Printf("Controller: %s\n", state.Preference)
	fmt.Printf("Permission: %s\n", state.Permission)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("compctl %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// createLogger logs to stderr so command output stays parseable.
func createLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// parseComponents turns "pkg/name" arguments into descriptors.
func parseComponents(args []string, kind string) ([]domain.ComponentDescriptor, error) {
	var ct domain.ComponentType
	if kind != "" {
		var err error
		if ct, err = domain.ParseComponentType(kind); err != nil {
			return nil, err
		}
	}
	out := make([]domain.ComponentDescriptor, 0, len(args))
	for _, arg := range args {
		pkg, name, ok := strings.Cut(arg, "/")
		if !ok || pkg == "" || name == "" {
			return nil, fmt.Errorf("invalid component %q (want package/class)", arg)
		}
		out = append(out, domain.ComponentDescriptor{PackageName: pkg, Name: name, Type: ct})
	}
	return out, nil
}

// readComponentList reads "pkg/name [type]" lines. Blank lines and lines
// starting with # are skipped.
func readComponentList(path string) ([]domain.ComponentDescriptor, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("failed to open component list: %w", err)
		}
		defer f.Close()
	}

	var out []domain.ComponentDescriptor
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		kind := ""
		if len(fields) > 1 {
			kind = fields[1]
		}
		parsed, err := parseComponents(fields[:1], kind)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read component list: %w", err)
	}
	return out, nil
}

// qualify accepts bare class names or pkg/class for pkg.
func qualify(pkg string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if p, cls, ok := strings.Cut(n, "/"); ok {
			if p != pkg {
				return nil, fmt.Errorf("component %q is not in package %s", n, pkg)
			}
			n = cls
		}
		out = append(out, n)
	}
	return out, nil
}

func verbFor(state domain.ComponentState) string {
	if state == domain.StateEnabled {
		return "enable"
	}
	return "disable"
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func blockedString(blocked bool) string {
	if blocked {
		return "blocked"
	}
	return "allowed"
}
