// SPDX-License-Identifier: MPL-2.0

// Package toolchain resolves the pinned compiler toolchain from a version
// descriptor file. The resulting Spec is immutable and shared read-only by
// every component that invokes the compiler; actual toolchain installation
// is delegated to an external provisioning collaborator.
package toolchain

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ComponentCompiler is the compiler driver. Every toolchain must
	// declare it.
	ComponentCompiler = "compiler"
	// ComponentStdlib is the standard library component. Every toolchain
	// must declare it.
	ComponentStdlib = "stdlib"
	// ComponentFormatter provides the source formatter used by the
	// formatting check.
	ComponentFormatter = "formatter"
	// ComponentLinter provides the static analyzer used by the lint check.
	ComponentLinter = "linter"
	// ComponentDocs provides offline documentation. Optional.
	ComponentDocs = "docs"
	// ComponentSources provides toolchain sources for debugging. Optional.
	ComponentSources = "sources"
)

type (
	// Spec is an immutable description of a pinned toolchain: one compiler
	// channel plus the set of installed components. Construct it only via
	// Resolve; never mutate a Spec after construction.
	Spec struct {
		// Channel is the pinned compiler channel or version, e.g. "1.82.0"
		// or "stable".
		Channel string
		// Components are the installed toolchain components, sorted
		// lexicographically for deterministic identity.
		Components []string
	}

	// ResolutionError reports a descriptor that could not be turned into a
	// Spec: the file is missing, malformed, or names an unknown channel or
	// component.
	ResolutionError struct {
		// Path is the descriptor file that failed to resolve.
		Path string
		// Reason is a short human-readable explanation.
		Reason string
		// Cause is the underlying error, if any.
		Cause error
	}

	// descriptor mirrors the on-disk TOML layout of the version descriptor.
	descriptor struct {
		Toolchain struct {
			Channel    string   `toml:"channel"`
			Components []string `toml:"components"`
		} `toml:"toolchain"`
	}
)

// channelPattern accepts either a named channel ("stable", "beta",
// "nightly", optionally date-suffixed) or a dotted version number.
var channelPattern = regexp.MustCompile(`^(stable|beta|nightly)(-\d{4}-\d{2}-\d{2})?$|^\d+\.\d+(\.\d+)?$`)

// knownComponents is the closed set of components the external provisioner
// can install. A descriptor naming anything else fails resolution.
var knownComponents = []string{
	ComponentCompiler,
	ComponentStdlib,
	ComponentFormatter,
	ComponentLinter,
	ComponentDocs,
	ComponentSources,
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("toolchain resolution failed for %s: %s", e.Path, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for use with errors.Is/As.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Resolve reads the version descriptor at path and returns the pinned Spec.
// Resolution is deterministic: the same descriptor file always yields the
// same Spec. The only side effect is reading the file.
func Resolve(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, &ResolutionError{Path: path, Reason: "descriptor not readable", Cause: err}
	}

	var desc descriptor
	if err := toml.Unmarshal(data, &desc); err != nil {
		return Spec{}, &ResolutionError{Path: path, Reason: "descriptor is not valid TOML", Cause: err}
	}

	channel := strings.TrimSpace(desc.Toolchain.Channel)
	if channel == "" {
		return Spec{}, &ResolutionError{Path: path, Reason: "descriptor does not pin a channel"}
	}
	if !channelPattern.MatchString(channel) {
		return Spec{}, &ResolutionError{Path: path, Reason: fmt.Sprintf("unknown channel %q", channel)}
	}

	components := slices.Clone(desc.Toolchain.Components)
	for _, c := range components {
		if !slices.Contains(knownComponents, c) {
			return Spec{}, &ResolutionError{Path: path, Reason: fmt.Sprintf("unavailable component %q", c)}
		}
	}
	for _, required := range []string{ComponentCompiler, ComponentStdlib} {
		if !slices.Contains(components, required) {
			return Spec{}, &ResolutionError{Path: path, Reason: fmt.Sprintf("descriptor must install the %q component", required)}
		}
	}

	slices.Sort(components)
	components = slices.Compact(components)

	return Spec{Channel: channel, Components: components}, nil
}

// Identity returns a stable string naming this toolchain for fingerprinting.
// Two Specs with the same identity are interchangeable for artifact reuse.
func (s Spec) Identity() string {
	return s.Channel + "+" + strings.Join(s.Components, ",")
}

// Has reports whether the toolchain installs the named component.
func (s Spec) Has(component string) bool {
	return slices.Contains(s.Components, component)
}
