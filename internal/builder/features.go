// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pakforge/pakforge/internal/config"
)

// FeatureConflictError reports a feature declaration that cannot be
// resolved to a functional build: default features disabled, no explicit
// features enabled, and the package does not support a featureless build.
type FeatureConflictError struct {
	// Explicit is the explicit feature set from the configuration.
	Explicit []string
	// DefaultsDisabled is true when the configuration turned default
	// features off.
	DefaultsDisabled bool
}

func (e *FeatureConflictError) Error() string {
	return fmt.Sprintf(
		"feature conflict: default features disabled and explicit set %v is empty, which produces a non-functional build",
		e.Explicit)
}

// ResolveFeatures turns the raw feature declaration into the explicit,
// sorted set of enabled features. Every flag is resolved to an enabled or
// disabled state here, before compilation; ambiguity is a configuration
// error, never something the compiler gets to interpret.
func ResolveFeatures(f config.FeaturesConfig) ([]string, error) {
	var enabled []string
	if f.Default {
		enabled = append(enabled, f.DefaultSet...)
	}
	enabled = append(enabled, f.Enabled...)
	slices.Sort(enabled)
	enabled = slices.Compact(enabled)

	if len(enabled) == 0 && !f.AllowEmpty {
		return nil, &FeatureConflictError{
			Explicit:         slices.Clone(f.Enabled),
			DefaultsDisabled: !f.Default,
		}
	}
	return enabled, nil
}

// featureList formats the resolved set for a compiler --features argument.
func featureList(features []string) string {
	return strings.Join(features, ",")
}
