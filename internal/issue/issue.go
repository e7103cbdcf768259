// SPDX-License-Identifier: MPL-2.0

// Package issue builds user-facing errors with enough context to act on:
// the operation that failed, the resource involved, and concrete
// suggestions. Pipeline packages return their own typed errors; the CLI
// layer wraps them through this package before display.
package issue

import (
	"errors"
	"strings"
)

type (
	// ActionableError is an error with context for user-facing messages.
	//
	// Use the Context builder for construction:
	//
	//	err := issue.NewContext().
	//		Operation("resolve toolchain").
	//		Resource("toolchain.toml").
	//		Suggest("Pin a channel under [toolchain]").
	//		Wrap(cause)
	ActionableError struct {
		// Op describes what was being attempted.
		Op string
		// Resource identifies the file, fingerprint, or entity involved.
		Resource string
		// Suggestions are hints on how to fix the problem.
		Suggestions []string
		// Cause is the underlying error.
		Cause error
	}

	// Context is a fluent builder for ActionableError values. It can be
	// prepared ahead of time and finished with Wrap when a call fails.
	Context struct {
		op          string
		resource    string
		suggestions []string
	}
)

// NewContext creates an empty builder.
func NewContext() *Context {
	return &Context{}
}

// Operation records what was being attempted.
func (c *Context) Operation(op string) *Context {
	c.op = op
	return c
}

// Resource records the file, fingerprint, or entity involved.
func (c *Context) Resource(resource string) *Context {
	c.resource = resource
	return c
}

// Suggest appends one fix-it hint.
func (c *Context) Suggest(s string) *Context {
	c.suggestions = append(c.suggestions, s)
	return c
}

// Wrap finishes the builder around a cause. Returns nil when cause is nil
// so call sites can wrap unconditionally.
func (c *Context) Wrap(cause error) error {
	if cause == nil {
		return nil
	}
	return &ActionableError{
		Op:          c.op,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Cause:       cause,
	}
}

// Error returns the concise single-line message used in non-verbose output.
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Op)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

// Unwrap returns the underlying cause for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Markdown renders the error as a markdown document for verbose display.
func (e *ActionableError) Markdown() string {
	var md strings.Builder
	md.WriteString("**Failed to " + e.Op + "**\n\n")
	if e.Resource != "" {
		md.WriteString("Resource: `" + e.Resource + "`\n\n")
	}
	if e.Cause != nil {
		md.WriteString("```\n" + e.Cause.Error() + "\n```\n\n")
	}
	if len(e.Suggestions) > 0 {
		md.WriteString("Suggestions:\n")
		for _, s := range e.Suggestions {
			md.WriteString("- " + s + "\n")
		}
	}
	return md.String()
}

// AsActionable extracts an ActionableError from err's chain, if present.
func AsActionable(err error) (*ActionableError, bool) {
	var ae *ActionableError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
