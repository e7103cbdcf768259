// SPDX-License-Identifier: MPL-2.0

// Package config loads the declarative pipeline descriptor. The descriptor
// is a CUE document validated against an embedded schema, merged through
// viper so environment variables (PAKFORGE_*) can override individual
// fields, and decoded into an immutable Config.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pakforge/pakforge/internal/cueparse"
	"github.com/pakforge/pakforge/internal/issue"
	"github.com/pakforge/pakforge/internal/toolexec"

	"github.com/spf13/viper"
)

// DescriptorFileName is the default pipeline descriptor filename, looked up
// in the package root when no explicit path is given.
const DescriptorFileName = "pakforge.cue"

// envPrefix namespaces environment overrides, e.g.
// PAKFORGE_PACKAGE_VERSION overrides package.version.
const envPrefix = "PAKFORGE"

//go:embed descriptor_schema.cue
var descriptorSchema []byte

// Load reads, validates, and decodes the descriptor at path. An empty path
// loads DescriptorFileName from the current directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DescriptorFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.NewContext().
			Operation("load pipeline descriptor").
			Resource(path).
			Suggest("Create a " + DescriptorFileName + " naming the package").
			Suggest("Or point --descriptor at an existing descriptor file").
			Wrap(err)
	}

	settings, err := cueparse.Decode[map[string]any](descriptorSchema, data, "#Descriptor", path)
	if err != nil {
		return nil, issue.NewContext().
			Operation("validate pipeline descriptor").
			Resource(path).
			Suggest("Check the descriptor against the schema fields").
			Suggest("All fields except package.name have defaults and may be omitted").
			Wrap(err)
	}

	v := viper.New()
	if err := v.MergeConfigMap(*settings); err != nil {
		return nil, fmt.Errorf("failed to merge descriptor settings: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	if err := validateSteps(cfg.Steps); err != nil {
		return nil, issue.NewContext().
			Operation("validate pipeline descriptor").
			Resource(path).
			Suggest("Each step needs exactly one of run (script) or argv (tool invocation)").
			Wrap(err)
	}
	return &cfg, nil
}

// validateSteps enforces what the CUE schema cannot: run/argv exclusivity,
// unique step names, and script syntax.
func validateSteps(steps []StepConfig) error {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		seen[s.Name] = true

		hasRun := s.Run != ""
		hasArgv := len(s.Argv) > 0
		if hasRun == hasArgv {
			return fmt.Errorf("step %q must set exactly one of run or argv", s.Name)
		}
		if hasRun {
			if err := toolexec.ValidateScript(s.Run); err != nil {
				return fmt.Errorf("step %q: %w", s.Name, err)
			}
		}
	}
	return nil
}
