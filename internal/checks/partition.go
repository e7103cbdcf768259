// SPDX-License-Identifier: MPL-2.0

package checks

import "sort"

// Partition splits test names into n disjoint shards whose union is the
// full input set. Names are sorted first, so the assignment depends only
// on the set of names and the shard count, never on enumeration order.
// Shard counts below 1 collapse to a single shard; empty shards are kept
// so shard indices stay stable.
func Partition(names []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	shards := make([][]string, n)
	for i, name := range sorted {
		shards[i%n] = append(shards[i%n], name)
	}
	return shards
}
