package ifw

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between two encoded rule sets. A nil side is
// shown as an empty file.
func Diff(packageName string, from, to *Rules) (string, error) {
	a, err := encodeOrEmpty(from)
	if err != nil {
		return "", err
	}
	b, err := encodeOrEmpty(to)
	if err != nil {
		return "", err
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: packageName + ".xml (current)",
		ToFile:   packageName + ".xml (proposed)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff ifw rules: %w", err)
	}
	return text, nil
}

// Preview applies fn to a copy of the current rules and returns the diff
// without writing anything.
func (f *IntentFirewall) Preview(ctx context.Context, packageName string, fn func(rules *Rules) error) (string, error) {
	current := f.Load(ctx, packageName)

	// Round trip through the codec to get an independent copy.
	proposed := NewRules()
	if !current.IsEmpty() {
		data, err := Encode(current)
		if err != nil {
			return "", err
		}
		if proposed, err = Decode(data); err != nil {
			return "", err
		}
	}
	if err := fn(proposed); err != nil {
		return "", err
	}
	return Diff(packageName, current, proposed)
}

func encodeOrEmpty(r *Rules) (string, error) {
	if r == nil || r.IsEmpty() {
		return "", nil
	}
	data, err := Encode(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
