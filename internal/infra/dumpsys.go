package infra

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// DumpsysInspector implements domain.PackageInspector by parsing
// `dumpsys package <pkg>`.
//
// Resolver tables only list components that declare intent filters, so a
// component without filters resolves to ComponentUnknown. Callers that know
// the kind should pass it in the descriptor.
type DumpsysInspector struct {
	executor domain.CommandExecutor
	userID   int
	logger   *zap.Logger
}

// NewDumpsysInspector creates a package inspector backed by dumpsys. Enabled
// state is read from the userID block of the package.
func NewDumpsysInspector(executor domain.CommandExecutor, userID int, logger *zap.Logger) *DumpsysInspector {
	return &DumpsysInspector{executor: executor, userID: userID, logger: logger}
}

// PackageDump is the parsed subset of `dumpsys package` we use.
type PackageDump struct {
	Components domain.PackageComponents
	Disabled   map[string]bool // fully qualified class names
}

var (
	componentRef  = regexp.MustCompile(`([A-Za-z0-9_.]+)/([A-Za-z0-9_.$]+)`)
	packageHeader = regexp.MustCompile(`^Package \[([^\]]+)\]`)
	userHeader    = regexp.MustCompile(`^User (\d+):`)
)

// Components returns the declared components of packageName.
func (d *DumpsysInspector) Components(ctx context.Context, packageName string) (domain.PackageComponents, error) {
	dump, err := d.dump(ctx, packageName)
	if err != nil {
		return domain.PackageComponents{PackageName: packageName}, err
	}
	return dump.Components, nil
}

// IsComponentEnabled reports false when the package manager lists the
// component under disabledComponents.
func (d *DumpsysInspector) IsComponentEnabled(ctx context.Context, packageName, componentName string) (bool, error) {
	dump, err := d.dump(ctx, packageName)
	if err != nil {
		return false, err
	}
	return !dump.Disabled[domain.ExpandClassName(packageName, componentName)], nil
}

func (d *DumpsysInspector) dump(ctx context.Context, packageName string) (*PackageDump, error) {
	result, err := d.executor.Exec(ctx, "dumpsys package "+packageName)
	if err != nil {
		return nil, fmt.Errorf("dumpsys package %s: %w", packageName, err)
	}
	if len(result.Out) == 0 {
		d.logger.Warn("empty dumpsys output", zap.String("package", packageName))
	}
	return ParsePackageDump(packageName, d.userID, result.Out), nil
}

// ParsePackageDump extracts components of packageName from dumpsys output
// lines, and the disabled component list of its `User <userID>:` block.
func ParsePackageDump(packageName string, userID int, lines []string) *PackageDump {
	dump := &PackageDump{
		Components: domain.PackageComponents{PackageName: packageName},
		Disabled:   make(map[string]bool),
	}
	seen := make(map[domain.ComponentType]map[string]bool)
	add := func(kind domain.ComponentType, name string) {
		if seen[kind] == nil {
			seen[kind] = make(map[string]bool)
		}
		if seen[kind][name] {
			return
		}
		seen[kind][name] = true
		switch kind {
		case domain.ComponentActivity:
			dump.Components.Activities = append(dump.Components.Activities, name)
		case domain.ComponentService:
			dump.Components.Services = append(dump.Components.Services, name)
		case domain.ComponentReceiver:
			dump.Components.Receivers = append(dump.Components.Receivers, name)
		case domain.ComponentProvider:
			dump.Components.Providers = append(dump.Components.Providers, name)
		}
	}

	section := domain.ComponentUnknown
	disabledIndent := -1
	inPackage, inUser := false, false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))

		if indent == 0 {
			section = sectionFor(trimmed)
			disabledIndent = -1
			inPackage, inUser = false, false
			continue
		}

		if m := packageHeader.FindStringSubmatch(trimmed); m != nil {
			inPackage = m[1] == packageName
			inUser = false
			disabledIndent = -1
			continue
		}
		if m := userHeader.FindStringSubmatch(trimmed); m != nil {
			inUser = inPackage && m[1] == strconv.Itoa(userID)
			disabledIndent = -1
			continue
		}

		if disabledIndent >= 0 {
			if indent > disabledIndent {
				dump.Disabled[domain.ExpandClassName(packageName, trimmed)] = true
				continue
			}
			disabledIndent = -1
		}
		if trimmed == "disabledComponents:" {
			if inUser {
				disabledIndent = indent
			}
			continue
		}

		if section == domain.ComponentUnknown {
			continue
		}
		for _, m := range componentRef.FindAllStringSubmatch(trimmed, -1) {
			if m[1] == packageName {
				add(section, m[2])
			}
		}
	}
	return dump
}

func sectionFor(header string) domain.ComponentType {
	switch header {
	case "Activity Resolver Table:":
		return domain.ComponentActivity
	case "Receiver Resolver Table:":
		return domain.ComponentReceiver
	case "Service Resolver Table:":
		return domain.ComponentService
	case "Provider Resolver Table:", "Registered ContentProviders:":
		return domain.ComponentProvider
	}
	return domain.ComponentUnknown
}

// Ensure DumpsysInspector implements domain.PackageInspector.
var _ domain.PackageInspector = (*DumpsysInspector)(nil)
