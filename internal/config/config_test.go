// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pakforge/pakforge/internal/issue"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DescriptorFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func TestLoad_MinimalDescriptorGetsDefaults(t *testing.T) {
	t.Parallel()
	path := writeDescriptor(t, `package: name: "demo"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Package.Name != "demo" {
		t.Errorf("package name = %q", cfg.Package.Name)
	}
	if cfg.Package.Version != "0.0.0" {
		t.Errorf("default version = %q", cfg.Package.Version)
	}
	if cfg.ToolchainFile != "toolchain.toml" || cfg.Manifest != "package.toml" || cfg.Lockfile != "package.lock" {
		t.Errorf("file defaults = %q %q %q", cfg.ToolchainFile, cfg.Manifest, cfg.Lockfile)
	}
	if !cfg.Features.Default {
		t.Error("features.default should default to true")
	}
	if !slices.Equal(cfg.Features.DefaultSet, []string{"git"}) {
		t.Errorf("features.default_set = %v, want [git]", cfg.Features.DefaultSet)
	}
	if !slices.Equal(cfg.Shells, []string{"bash", "zsh", "fish", "nushell"}) {
		t.Errorf("shells = %v", cfg.Shells)
	}
	if cfg.Tools.Compiler != "packc" {
		t.Errorf("tools.compiler = %q", cfg.Tools.Compiler)
	}
	if cfg.Checks.TestPartitions != 1 {
		t.Errorf("checks.test_partitions = %d, want 1", cfg.Checks.TestPartitions)
	}
}

func TestLoad_FullDescriptor(t *testing.T) {
	t.Parallel()
	path := writeDescriptor(t, `
package: {
	name:    "demo"
	version: "0.23.4"
}
features: {
	default: false
	enabled: ["git", "hyperlinks"]
	allow_empty: true
}
platform: extra_link_inputs: {
	darwin: ["libiconv"]
}
shells: ["bash", "fish"]
checks: test_partitions: 4
steps: [
	{name: "manpages", argv: ["manconv", "--version", "${version}"]},
	{name: "completions", run: "cp -r completions $outdir/"},
]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Package.Version != "0.23.4" {
		t.Errorf("version = %q", cfg.Package.Version)
	}
	if cfg.Features.Default || !slices.Equal(cfg.Features.Enabled, []string{"git", "hyperlinks"}) {
		t.Errorf("features = %+v", cfg.Features)
	}
	if len(cfg.Steps) != 2 || cfg.Steps[0].Name != "manpages" || cfg.Steps[1].Run == "" {
		t.Errorf("steps = %+v", cfg.Steps)
	}
	if cfg.Checks.TestPartitions != 4 {
		t.Errorf("test_partitions = %d", cfg.Checks.TestPartitions)
	}

	resolved := cfg.Resolve("darwin")
	if !slices.Equal(resolved.LinkInputs, []string{"libiconv"}) {
		t.Errorf("darwin link inputs = %v", resolved.LinkInputs)
	}
	if inputs := cfg.Resolve("linux").LinkInputs; len(inputs) != 0 {
		t.Errorf("linux link inputs = %v, want none", inputs)
	}
}

func TestLoad_RejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		descriptor string
		wantErr    string
	}{
		{
			name:       "missing package name",
			descriptor: `package: version: "1.0.0"`,
			wantErr:    "validate pipeline descriptor",
		},
		{
			name:       "unknown shell",
			descriptor: "package: name: \"demo\"\nshells: [\"tcsh\"]",
			wantErr:    "validate pipeline descriptor",
		},
		{
			name:       "zero partitions",
			descriptor: "package: name: \"demo\"\nchecks: test_partitions: 0",
			wantErr:    "validate pipeline descriptor",
		},
		{
			name:       "step with both run and argv",
			descriptor: "package: name: \"demo\"\nsteps: [{name: \"x\", run: \"echo\", argv: [\"a\"]}]",
			wantErr:    "exactly one of run or argv",
		},
		{
			name:       "step with neither run nor argv",
			descriptor: "package: name: \"demo\"\nsteps: [{name: \"x\"}]",
			wantErr:    "exactly one of run or argv",
		},
		{
			name:       "duplicate step names",
			descriptor: "package: name: \"demo\"\nsteps: [{name: \"x\", run: \"echo a\"}, {name: \"x\", run: \"echo b\"}]",
			wantErr:    "duplicate step name",
		},
		{
			name:       "step script with syntax error",
			descriptor: "package: name: \"demo\"\nsteps: [{name: \"x\", run: \"if then fi (((\"}]",
			wantErr:    "syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeDescriptor(t, tt.descriptor)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	// No t.Parallel: t.Setenv forbids it.
	t.Setenv("PAKFORGE_PACKAGE_VERSION", "9.9.9")
	path := writeDescriptor(t, `package: name: "demo"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Package.Version != "9.9.9" {
		t.Errorf("version = %q, want env override 9.9.9", cfg.Package.Version)
	}
}

func TestLoad_MissingDescriptorIsActionable(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	if err == nil {
		t.Fatal("expected error")
	}
	ae, ok := issue.AsActionable(err)
	if !ok {
		t.Fatalf("expected ActionableError, got %T", err)
	}
	if len(ae.Suggestions) == 0 {
		t.Error("expected suggestions on missing-descriptor error")
	}
}
