// SPDX-License-Identifier: MPL-2.0

// Package cueparse holds the shared CUE parsing flow for descriptor files:
// compile the embedded schema, unify it with the user document, validate,
// and decode into a Go value.
package cueparse

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// maxDescriptorSize bounds descriptor files. Pipeline descriptors are a few
// hundred lines at most; anything larger is a mistake, not a descriptor.
const maxDescriptorSize = 1 << 20

// Decode unifies data with the schema definition at schemaPath (e.g.
// "#Descriptor") and decodes the result into T. Validation requires all
// fields to be concrete after defaults apply.
func Decode[T any](schema, data []byte, schemaPath, filename string) (*T, error) {
	if len(data) > maxDescriptorSize {
		return nil, fmt.Errorf("%s: descriptor exceeds %d bytes", filename, maxDescriptorSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(filename))
	if userValue.Err() != nil {
		return nil, formatError(userValue.Err(), filename)
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if schemaRoot.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatError(err, filename)
	}

	var result T
	if err := unified.Decode(&result); err != nil {
		return nil, formatError(err, filename)
	}
	return &result, nil
}

// formatError flattens CUE's multi-error into one message with positions,
// which reads far better in CLI diagnostics than the default rendering.
func formatError(err error, filename string) error {
	return fmt.Errorf("%s: %s", filename, errors.Details(err, nil))
}
