// SPDX-License-Identifier: MPL-2.0

package config

import "slices"

type (
	// Config is the decoded pipeline descriptor. It is supplied once per
	// build invocation and treated as immutable thereafter.
	Config struct {
		Package        PackageConfig  `mapstructure:"package"`
		ToolchainFile  string         `mapstructure:"toolchain_file"`
		Manifest       string         `mapstructure:"manifest"`
		Lockfile       string         `mapstructure:"lockfile"`
		SourceExts     []string       `mapstructure:"source_exts"`
		ManDir         string         `mapstructure:"man_dir"`
		CompletionsDir string         `mapstructure:"completions_dir"`
		Shells         []string       `mapstructure:"shells"`
		Features       FeaturesConfig `mapstructure:"features"`
		Platform       PlatformConfig `mapstructure:"platform"`
		Tools          ToolsConfig    `mapstructure:"tools"`
		Checks         ChecksConfig   `mapstructure:"checks"`
		Steps          []StepConfig   `mapstructure:"steps"`
	}

	// PackageConfig names the single package this pipeline builds.
	PackageConfig struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
	}

	// FeaturesConfig is the raw feature-flag declaration before resolution.
	// DefaultSet is a deliberate fixed default (see the descriptor schema);
	// it applies only while Default is true.
	FeaturesConfig struct {
		Default    bool     `mapstructure:"default"`
		Enabled    []string `mapstructure:"enabled"`
		DefaultSet []string `mapstructure:"default_set"`
		AllowEmpty bool     `mapstructure:"allow_empty"`
	}

	// PlatformConfig carries per-platform build inputs, keyed by host
	// platform name.
	PlatformConfig struct {
		ExtraLinkInputs map[string][]string `mapstructure:"extra_link_inputs"`
	}

	// ToolsConfig names the external tool executables the pipeline invokes.
	ToolsConfig struct {
		Compiler  string `mapstructure:"compiler"`
		Formatter string `mapstructure:"formatter"`
		Auditor   string `mapstructure:"auditor"`
		Linter    string `mapstructure:"linter"`
		Tester    string `mapstructure:"tester"`
	}

	// ChecksConfig tunes the check runner.
	ChecksConfig struct {
		TestPartitions int `mapstructure:"test_partitions"`
	}

	// StepConfig declares one post-install step: either a shell script
	// (Run) or a templated external-tool invocation (Argv). The schema
	// enforces the field shapes; Load enforces that exactly one is set.
	StepConfig struct {
		Name string   `mapstructure:"name"`
		Run  string   `mapstructure:"run"`
		Argv []string `mapstructure:"argv"`
	}

	// Resolved is the immutable per-invocation view of the configuration:
	// the descriptor plus everything that depends on the host platform.
	// Build it once with Config.Resolve and pass it by value; never mutate
	// it mid-build.
	Resolved struct {
		Config
		// HostPlatform is the platform this invocation targets.
		HostPlatform string
		// LinkInputs are the extra link inputs selected for HostPlatform,
		// sorted for stable fingerprinting.
		LinkInputs []string
	}
)

// Resolve freezes the platform-dependent parts of the configuration for one
// build invocation.
func (c Config) Resolve(hostPlatform string) Resolved {
	inputs := slices.Clone(c.Platform.ExtraLinkInputs[hostPlatform])
	slices.Sort(inputs)
	return Resolved{
		Config:       c,
		HostPlatform: hostPlatform,
		LinkInputs:   inputs,
	}
}
