// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Render renders markdown for terminal display. Falls back to the raw
// markdown when the renderer cannot be constructed (e.g. no usable TERM).
func Render(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// SortedKeys returns the map's keys in sorted order. Small helper shared by
// display code that iterates diagnostics maps deterministically.
func SortedKeys[K ~string, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
