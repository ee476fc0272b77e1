package ifw

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/comp_ctl/internal/domain"
)

// IntentFirewall reads and mutates per-package rule files.
// It keeps no rule cache: every call reads the file it needs.
type IntentFirewall struct {
	storage  domain.RuleStorage
	resolver domain.ComponentTypeResolver
	logger   *zap.Logger
}

// NewIntentFirewall creates a firewall on top of storage.
func NewIntentFirewall(storage domain.RuleStorage, resolver domain.ComponentTypeResolver, logger *zap.Logger) *IntentFirewall {
	return &IntentFirewall{
		storage:  storage,
		resolver: resolver,
		logger:   logger,
	}
}

// Load returns the rules of packageName. A missing, unreadable or
// malformed file yields an empty rule set.
func (f *IntentFirewall) Load(ctx context.Context, packageName string) *Rules {
	data, err := f.storage.Read(ctx, packageName)
	if err != nil {
		if !errors.Is(err, domain.ErrRuleNotFound) {
			f.logger.Warn("cannot read ifw rules",
				zap.String("package", packageName),
				zap.Error(err))
		}
		return NewRules()
	}
	return f.decodeOrEmpty(packageName, data)
}

// Add blocks one component. Adding an existing filter succeeds without
// writing a duplicate.
func (f *IntentFirewall) Add(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return f.apply(ctx, component, true)
}

// Remove unblocks one component.
func (f *IntentFirewall) Remove(ctx context.Context, component domain.ComponentDescriptor) (bool, error) {
	return f.apply(ctx, component, false)
}

func (f *IntentFirewall) apply(ctx context.Context, component domain.ComponentDescriptor, block bool) (bool, error) {
	kind, err := resolveKind(ctx, f.resolver, component)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", component, err)
	}
	partition, err := PartitionFor(kind)
	if err != nil {
		f.logger.Debug("cannot filter component in ifw",
			zap.String("component", component.FlattenToString()),
			zap.String("type", string(kind)))
		return false, nil
	}

	name := component.FlattenToString()
	f.logger.Info("update ifw rule",
		zap.String("component", name),
		zap.Bool("block", block))

	err = f.Modify(ctx, component.PackageName, func(rules *Rules) error {
		if block {
			rules.Add(partition, name)
		} else {
			rules.Remove(partition, name)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddAll blocks components with one rule file rewrite per package.
// callback runs for each component once its package file is written.
func (f *IntentFirewall) AddAll(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return f.applyAll(ctx, components, callback, true)
}

// RemoveAll unblocks components with one rule file rewrite per package.
func (f *IntentFirewall) RemoveAll(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback) (int, error) {
	return f.applyAll(ctx, components, callback, false)
}

type resolvedFilter struct {
	component domain.ComponentDescriptor
	partition Partition
}

func (f *IntentFirewall) applyAll(ctx context.Context, components []domain.ComponentDescriptor, callback domain.ComponentCallback, block bool) (int, error) {
	f.logger.Info("update ifw rules",
		zap.Int("components", len(components)),
		zap.Bool("block", block))

	// The list may span packages; keep first-seen package order.
	var order []string
	grouped := make(map[string][]domain.ComponentDescriptor)
	for _, c := range components {
		if _, ok := grouped[c.PackageName]; !ok {
			order = append(order, c.PackageName)
		}
		grouped[c.PackageName] = append(grouped[c.PackageName], c)
	}

	succeeded := 0
	for _, packageName := range order {
		if err := ctx.Err(); err != nil {
			return succeeded, err
		}

		var filters []resolvedFilter
		for _, c := range grouped[packageName] {
			kind, err := resolveKind(ctx, f.resolver, c)
			if err != nil {
				f.logger.Warn("cannot resolve component type",
					zap.String("component", c.FlattenToString()),
					zap.Error(err))
				continue
			}
			partition, err := PartitionFor(kind)
			if err != nil {
				f.logger.Debug("cannot filter component in ifw",
					zap.String("component", c.FlattenToString()),
					zap.String("type", string(kind)))
				continue
			}
			filters = append(filters, resolvedFilter{component: c, partition: partition})
		}
		if len(filters) == 0 {
			continue
		}

		err := f.Modify(ctx, packageName, func(rules *Rules) error {
			for _, rf := range filters {
				name := rf.component.FlattenToString()
				if block {
					rules.Add(rf.partition, name)
				} else {
					rules.Remove(rf.partition, name)
				}
			}
			return nil
		})
		if err != nil {
			f.logger.Error("failed to save ifw rules",
				zap.String("package", packageName),
				zap.Error(err))
			continue
		}

		for _, rf := range filters {
			succeeded++
			if callback != nil {
				callback(rf.component)
			}
		}
	}
	return succeeded, nil
}

// GetComponentEnableState reports false when any partition filters the
// component. A package without a rule file has every component enabled.
func (f *IntentFirewall) GetComponentEnableState(ctx context.Context, packageName, componentName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rules := f.Load(ctx, packageName)
	return !rules.Contains(FilterName(packageName, componentName)), nil
}

// Modify runs fn on the current rules of packageName and saves the result
// atomically. An empty result deletes the rule file.
func (f *IntentFirewall) Modify(ctx context.Context, packageName string, fn func(rules *Rules) error) error {
	return f.storage.Update(ctx, packageName, func(current []byte) ([]byte, error) {
		rules := NewRules()
		if current != nil {
			rules = f.decodeOrEmpty(packageName, current)
		}
		if err := fn(rules); err != nil {
			return nil, err
		}
		if rules.IsEmpty() {
			f.logger.Debug("no ifw rules left, removing file", zap.String("package", packageName))
			return nil, nil
		}
		return Encode(rules)
	})
}

// Clear deletes the rule file of packageName.
func (f *IntentFirewall) Clear(ctx context.Context, packageName string) error {
	f.logger.Debug("clear ifw rules", zap.String("package", packageName))
	return f.storage.Delete(ctx, packageName)
}

// CheckWritable reports whether rule files can be written.
func (f *IntentFirewall) CheckWritable(ctx context.Context) error {
	return f.storage.CheckWritable(ctx)
}

// Packages lists packages that currently have rules.
func (f *IntentFirewall) Packages(ctx context.Context) ([]string, error) {
	return f.storage.List(ctx)
}

func (f *IntentFirewall) decodeOrEmpty(packageName string, data []byte) *Rules {
	rules, err := Decode(data)
	if err != nil {
		f.logger.Error("malformed ifw rule file, treating as empty",
			zap.String("package", packageName),
			zap.Error(err))
		return NewRules()
	}
	return rules
}
