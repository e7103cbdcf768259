// SPDX-License-Identifier: MPL-2.0

// Package testutil provides shared test helpers: a scripted fake tool
// invoker and filesystem scaffolding for package trees.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pakforge/pakforge/internal/toolexec"
)

// FakeInvoker is a scripted toolexec.Invoker. Handler decides each
// invocation's outcome; a nil Handler returns success with empty output.
// Calls are recorded in order and safe to inspect after concurrent use.
type FakeInvoker struct {
	Handler func(ctx context.Context, inv toolexec.Invocation) (*toolexec.Output, error)

	mu    sync.Mutex
	calls []toolexec.Invocation
}

// Run implements toolexec.Invoker.
func (f *FakeInvoker) Run(ctx context.Context, inv toolexec.Invocation) (*toolexec.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.Handler == nil {
		return &toolexec.Output{}, nil
	}
	return f.Handler(ctx, inv)
}

// Calls returns a snapshot of all recorded invocations.
func (f *FakeInvoker) Calls() []toolexec.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolexec.Invocation(nil), f.calls...)
}

// CallsTo returns the recorded invocations of one tool.
func (f *FakeInvoker) CallsTo(tool string) []toolexec.Invocation {
	var matched []toolexec.Invocation
	for _, c := range f.Calls() {
		if c.Tool == tool {
			matched = append(matched, c)
		}
	}
	return matched
}

// ArgValue returns the argument following flag in args, or "" if absent.
func ArgValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// WriteTree writes files (relative slash paths to contents) under root,
// creating directories as needed.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}
