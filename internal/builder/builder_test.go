// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pakforge/pakforge/internal/config"
	"github.com/pakforge/pakforge/internal/srcview"
	"github.com/pakforge/pakforge/internal/store"
	"github.com/pakforge/pakforge/internal/testutil"
	"github.com/pakforge/pakforge/internal/toolchain"
	"github.com/pakforge/pakforge/internal/toolexec"
)

const goodManPage = "# demo(1) — list files with style\n\n## DESCRIPTION\n\nVersion $version.\n"

func packageView(t *testing.T, extra map[string]string) *srcview.View {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.toml":            "[package]\nname = \"demo\"\n",
		"package.lock":            "lock",
		"src/main.src":            "entry",
		"man/demo.1.md":           goodManPage,
		"completions/bash/demo":   "complete -F _demo demo",
		"completions/zsh/_demo":   "#compdef demo",
		"completions/fish/demo":   "complete demo",
		"completions/nushell/d.n": "export extern demo []",
	}
	for k, v := range extra {
		files[k] = v
	}
	testutil.WriteTree(t, root, files)
	view, err := srcview.Build(root, srcview.ModePackage, srcview.Options{})
	if err != nil {
		t.Fatalf("build view: %v", err)
	}
	return view
}

func buildConfig() config.Resolved {
	return config.Config{
		Package:        config.PackageConfig{Name: "demo", Version: "0.23.4"},
		Manifest:       "package.toml",
		Lockfile:       "package.lock",
		ManDir:         "man",
		CompletionsDir: "completions",
		Shells:         []string{"bash", "zsh", "fish", "nushell"},
		Features: config.FeaturesConfig{
			Default:    true,
			DefaultSet: []string{"git"},
		},
		Tools: config.ToolsConfig{Compiler: "packc"},
	}.Resolve("linux")
}

func testToolchain() toolchain.Spec {
	return toolchain.Spec{Channel: "stable", Components: []string{"compiler", "stdlib"}}
}

func depArtifacts() *store.Artifacts {
	return &store.Artifacts{
		Fingerprint: store.NewFingerprint([]byte("deps")),
		Products:    []store.Product{{Name: "libs/dep.o", Contents: []byte("object")}},
	}
}

// fakeCompiler writes a binary whose bytes depend only on stable inputs,
// so reproducibility assertions hold across invocations.
func fakeCompiler() *testutil.FakeInvoker {
	return &testutil.FakeInvoker{
		Handler: func(_ context.Context, inv toolexec.Invocation) (*toolexec.Output, error) {
			if inv.Tool != "packc" {
				return &toolexec.Output{}, nil
			}
			outDir := testutil.ArgValue(inv.Args, "--out-dir")
			name := testutil.ArgValue(inv.Args, "--bin")
			content := "compiled:" + testutil.ArgValue(inv.Args, "--toolchain") +
				":" + testutil.ArgValue(inv.Args, "--features")
			if err := os.WriteFile(filepath.Join(outDir, name), []byte(content), 0o755); err != nil {
				return nil, err
			}
			return &toolexec.Output{}, nil
		},
	}
}

func TestBuild_AssemblesFullBundle(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: fakeCompiler()}
	view := packageView(t, nil)

	artifact, err := b.Build(context.Background(), view, depArtifacts(), testToolchain(), buildConfig(), DefaultSteps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if artifact.BinaryName != "demo" || len(artifact.Binary) == 0 {
		t.Errorf("binary = %q (%d bytes)", artifact.BinaryName, len(artifact.Binary))
	}
	if len(artifact.ManPages) != 1 || artifact.ManPages[0].Path != "man/demo.1" {
		t.Errorf("man pages = %+v", artifact.ManPages)
	}
	if !bytes.Contains(artifact.ManPages[0].Contents, []byte("0.23.4")) {
		t.Error("man page missing substituted version")
	}

	var shells []string
	for _, c := range artifact.Completions {
		shells = append(shells, strings.Split(c.Path, "/")[1])
	}
	slices.Sort(shells)
	if !slices.Equal(shells, []string{"bash", "fish", "nushell", "zsh"}) {
		t.Errorf("completion shells = %v", shells)
	}
}

func TestBuild_FeatureFlagsReachCompiler(t *testing.T) {
	t.Parallel()
	invoker := fakeCompiler()
	b := &Builder{Invoker: invoker}
	cfg := buildConfig()
	cfg.Features.Enabled = []string{"hyperlinks"}

	if _, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := invoker.CallsTo("packc")
	if len(calls) != 1 {
		t.Fatalf("compiler calls = %d", len(calls))
	}
	if got := testutil.ArgValue(calls[0].Args, "--features"); got != "git,hyperlinks" {
		t.Errorf("--features = %q, want git,hyperlinks", got)
	}
}

func TestBuild_FeatureConflict(t *testing.T) {
	t.Parallel()
	invoker := fakeCompiler()
	b := &Builder{Invoker: invoker}
	cfg := buildConfig()
	cfg.Features.Default = false
	cfg.Features.Enabled = nil

	_, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), cfg, nil)
	var conflict *FeatureConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected FeatureConflictError, got %v", err)
	}
	if !conflict.DefaultsDisabled {
		t.Error("conflict should record that defaults were disabled")
	}
	if len(invoker.Calls()) != 0 {
		t.Error("compiler invoked despite feature conflict")
	}
}

func TestBuild_EmptyFeaturesAllowed(t *testing.T) {
	t.Parallel()
	invoker := fakeCompiler()
	b := &Builder{Invoker: invoker}
	cfg := buildConfig()
	cfg.Features.Default = false
	cfg.Features.AllowEmpty = true

	if _, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := invoker.CallsTo("packc")
	if !slices.Contains(calls[0].Args, "--no-default-features") {
		t.Errorf("expected --no-default-features in %v", calls[0].Args)
	}
}

func TestBuild_CompileFailure(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: &testutil.FakeInvoker{
		Handler: func(context.Context, toolexec.Invocation) (*toolexec.Output, error) {
			return &toolexec.Output{ExitCode: 1, Stderr: []byte("error[E0432]: unresolved import\n")}, nil
		},
	}}

	artifact, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), buildConfig(), DefaultSteps())
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if artifact != nil {
		t.Error("failed build returned an artifact")
	}
	if !strings.Contains(compileErr.Diagnostic, "E0432") {
		t.Errorf("diagnostic = %q", compileErr.Diagnostic)
	}
	if !slices.Equal(compileErr.Features, []string{"git"}) {
		t.Errorf("failing features = %v", compileErr.Features)
	}
}

func TestBuild_PostInstallFailureNamesStepAndReturnsNoArtifact(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: fakeCompiler()}
	// Man page without the required title section.
	view := packageView(t, map[string]string{
		"man/broken.1.md": "just a paragraph, no title heading\n",
	})

	artifact, err := b.Build(context.Background(), view, depArtifacts(), testToolchain(), buildConfig(), DefaultSteps())
	var postErr *PostInstallError
	if !errors.As(err, &postErr) {
		t.Fatalf("expected PostInstallError, got %v", err)
	}
	if postErr.Step != "manpages" {
		t.Errorf("failing step = %q, want manpages", postErr.Step)
	}
	if !strings.Contains(postErr.Error(), "man/broken.1.md") {
		t.Errorf("error should name the failing page: %v", postErr)
	}
	if artifact != nil {
		t.Error("failed build returned an artifact")
	}
}

func TestBuild_MissingCompletionForDeclaredShell(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: fakeCompiler()}
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"package.toml":          "[package]",
		"package.lock":          "lock",
		"src/main.src":          "entry",
		"man/demo.1.md":         goodManPage,
		"completions/bash/demo": "complete",
	})
	view, err := srcview.Build(root, srcview.ModePackage, srcview.Options{})
	if err != nil {
		t.Fatalf("build view: %v", err)
	}

	_, err = b.Build(context.Background(), view, depArtifacts(), testToolchain(), buildConfig(), DefaultSteps())
	var postErr *PostInstallError
	if !errors.As(err, &postErr) {
		t.Fatalf("expected PostInstallError, got %v", err)
	}
	if postErr.Step != "completions" {
		t.Errorf("failing step = %q, want completions", postErr.Step)
	}
	if !strings.Contains(err.Error(), "zsh") {
		t.Errorf("error should name the missing shell: %v", err)
	}
}

func TestBuild_DeclaredStepsRunInOrderAndFailFast(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: fakeCompiler()}
	steps := append(DefaultSteps(), StepsFromConfig([]config.StepConfig{
		{Name: "stamp", Run: "printf '%s' \"$VERSION\" > \"$OUTDIR/stamp.txt\""},
		{Name: "explode", Run: "echo failing >&2; exit 7"},
		{Name: "never", Run: "touch \"$OUTDIR/never.txt\""},
	})...)

	artifact, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), buildConfig(), steps)
	var postErr *PostInstallError
	if !errors.As(err, &postErr) {
		t.Fatalf("expected PostInstallError, got %v", err)
	}
	if postErr.Step != "explode" {
		t.Errorf("failing step = %q, want explode", postErr.Step)
	}
	if artifact != nil {
		t.Error("failed build returned an artifact")
	}
}

func TestBuild_DeclaredCommandStepIsTemplated(t *testing.T) {
	t.Parallel()
	invoker := fakeCompiler()
	b := &Builder{Invoker: invoker}
	steps := append(DefaultSteps(), StepsFromConfig([]config.StepConfig{
		{Name: "notify", Argv: []string{"notifier", "--built", "${name}", "--version", "${version}"}},
	})...)

	if _, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), buildConfig(), steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := invoker.CallsTo("notifier")
	if len(calls) != 1 {
		t.Fatalf("notifier calls = %d", len(calls))
	}
	want := []string{"--built", "demo", "--version", "0.23.4"}
	if !slices.Equal(calls[0].Args, want) {
		t.Errorf("notifier args = %v, want %v", calls[0].Args, want)
	}
}

func TestBuild_Reproducible(t *testing.T) {
	t.Parallel()
	view := packageView(t, nil)
	deps := depArtifacts()
	tc := testToolchain()

	buildOnce := func(version string) *Artifact {
		t.Helper()
		cfg := buildConfig()
		cfg.Package.Version = version
		artifact, err := (&Builder{Invoker: fakeCompiler()}).Build(
			context.Background(), view, deps, tc, cfg, DefaultSteps())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return artifact
	}

	a := buildOnce("1.0.0")
	b := buildOnce("1.0.0")
	if !bytes.Equal(a.Binary, b.Binary) {
		t.Error("identical inputs produced different binaries")
	}
	if !bytes.Equal(a.ManPages[0].Contents, b.ManPages[0].Contents) {
		t.Error("identical inputs produced different manual pages")
	}

	c := buildOnce("2.0.0")
	if !bytes.Equal(a.Binary, c.Binary) {
		t.Error("version change altered the binary")
	}
	if bytes.Equal(a.ManPages[0].Contents, c.ManPages[0].Contents) {
		t.Error("version change did not alter manual pages")
	}
}

func TestArtifact_Install(t *testing.T) {
	t.Parallel()
	b := &Builder{Invoker: fakeCompiler()}
	artifact, err := b.Build(context.Background(), packageView(t, nil), depArtifacts(), testToolchain(), buildConfig(), DefaultSteps())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dir := t.TempDir()
	if err := artifact.Install(dir); err != nil {
		t.Fatalf("install: %v", err)
	}

	binPath := filepath.Join(dir, "bin", "demo")
	info, err := os.Stat(binPath)
	if err != nil {
		t.Fatalf("installed binary missing: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Error("installed binary is not executable")
	}
	if _, err := os.Stat(filepath.Join(dir, "man", "demo.1")); err != nil {
		t.Errorf("installed man page missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "completions", "zsh", "_demo")); err != nil {
		t.Errorf("installed zsh completion missing: %v", err)
	}
}

func TestResolveFeatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.FeaturesConfig
		want    []string
		wantErr bool
	}{
		{
			name: "defaults only",
			cfg:  config.FeaturesConfig{Default: true, DefaultSet: []string{"git"}},
			want: []string{"git"},
		},
		{
			name: "defaults plus explicit, deduplicated and sorted",
			cfg: config.FeaturesConfig{
				Default:    true,
				DefaultSet: []string{"git"},
				Enabled:    []string{"hyperlinks", "git"},
			},
			want: []string{"git", "hyperlinks"},
		},
		{
			name: "explicit only with defaults off",
			cfg:  config.FeaturesConfig{Default: false, DefaultSet: []string{"git"}, Enabled: []string{"minimal"}},
			want: []string{"minimal"},
		},
		{
			name:    "empty set rejected by default",
			cfg:     config.FeaturesConfig{Default: false, DefaultSet: []string{"git"}},
			wantErr: true,
		},
		{
			name: "empty set allowed when opted in",
			cfg:  config.FeaturesConfig{Default: false, AllowEmpty: true},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveFeatures(tt.cfg)
			if tt.wantErr {
				var conflict *FeatureConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected FeatureConflictError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("features = %v, want %v", got, tt.want)
			}
		})
	}
}
