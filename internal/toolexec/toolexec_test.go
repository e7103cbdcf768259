// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestEnvToSlice_SortedAndFormatted(t *testing.T) {
	t.Parallel()
	got := EnvToSlice(map[string]string{"ZULU": "1", "ALPHA": "2", "MIKE": "3"})
	want := []string{"ALPHA=2", "MIKE=3", "ZULU=1"}
	if !slices.Equal(got, want) {
		t.Errorf("EnvToSlice = %v, want %v", got, want)
	}
	if EnvToSlice(nil) != nil {
		t.Error("EnvToSlice(nil) should be nil")
	}
}

func TestExpandArgs(t *testing.T) {
	t.Parallel()
	vars := map[string]string{"version": "0.3.1", "outdir": "/tmp/out"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "braced placeholders",
			args: []string{"--version", "${version}", "--out", "${outdir}/man"},
			want: []string{"--version", "0.3.1", "--out", "/tmp/out/man"},
		},
		{
			name: "bare placeholder",
			args: []string{"$version"},
			want: []string{"0.3.1"},
		},
		{
			name: "unknown placeholder expands empty",
			args: []string{"${missing}"},
			want: []string{""},
		},
		{
			name: "no placeholders untouched",
			args: []string{"build", "--release"},
			want: []string{"build", "--release"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExpandArgs(tt.args, vars); !slices.Equal(got, tt.want) {
				t.Errorf("ExpandArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	t.Parallel()
	if got := FirstLine("\n\n  error: dep `zlib` failed\nmore context\n"); got != "error: dep `zlib` failed" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := FirstLine("   \n\t\n"); got != "" {
		t.Errorf("FirstLine of blank text = %q", got)
	}
}

func TestExecInvoker_Run(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := ExecInvoker{}.Run(context.Background(), Invocation{
		Tool: "sh",
		Args: []string{"-c", "echo stdout-text; echo stderr-text >&2; exit 2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", out.ExitCode)
	}
	if !strings.Contains(string(out.Stdout), "stdout-text") {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if !strings.Contains(string(out.Stderr), "stderr-text") {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if !strings.Contains(out.Combined(), "stderr-text") {
		t.Errorf("Combined() should prefer stderr, got %q", out.Combined())
	}
}

func TestExecInvoker_MissingTool(t *testing.T) {
	t.Parallel()
	_, err := ExecInvoker{}.Run(context.Background(), Invocation{Tool: "definitely-not-a-real-tool-9f2c"})
	if err == nil {
		t.Fatal("expected start failure for missing tool")
	}
}

func TestValidateScript(t *testing.T) {
	t.Parallel()
	if err := ValidateScript("echo hello && exit 0"); err != nil {
		t.Errorf("valid script rejected: %v", err)
	}
	if err := ValidateScript("if then fi ((("); err == nil {
		t.Error("expected syntax error")
	}
	if err := ValidateScript("   "); err == nil {
		t.Error("expected empty-script error")
	}
}

func TestRunScript_WritesToWorkDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	err := RunScript(context.Background(),
		`printf '%s' "$GREETING" > greeting.txt; echo done`,
		dir, map[string]string{"GREETING": "hello"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	if err != nil {
		t.Fatalf("script output missing: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("greeting.txt = %q, want hello", content)
	}
	if !strings.Contains(stdout.String(), "done") {
		t.Errorf("stdout = %q, want to contain done", stdout.String())
	}
}

func TestRunScript_NonZeroExit(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	err := RunScript(context.Background(), "exit 3", t.TempDir(), nil, &out, &out)
	if err == nil {
		t.Fatal("expected error for exit 3")
	}
	if !strings.Contains(err.Error(), "status 3") {
		t.Errorf("error = %v, want exit status 3", err)
	}
}
