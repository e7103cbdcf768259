// SPDX-License-Identifier: MPL-2.0

package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a 32-byte BLAKE3 digest identifying one set of compiled
// dependency artifacts. Identical fingerprints mean the stored artifacts are
// reusable without recompilation.
type Fingerprint [32]byte

// depsDomainKey is the 32-byte key for BLAKE3 keyed hashing of dependency
// inputs. Domain separation keeps dependency fingerprints from colliding
// with any other hash the tool might compute over the same bytes. The key
// is the ASCII domain name zero-padded to 32 bytes so it stays readable in
// hex dumps; changing it invalidates every cached entry.
var depsDomainKey = [32]byte{
	'p', 'a', 'k', 'f', 'o', 'r', 'g', 'e', '.', 'd', 'e', 'p', 's', 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// NewFingerprint computes the dependency-domain fingerprint over the given
// input sections. Each section is length-prefixed before hashing so that
// ("ab","c") and ("a","bc") cannot produce the same digest.
func NewFingerprint(sections ...[]byte) Fingerprint {
	h, err := blake3.NewKeyed(depsDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a key of the wrong length, which the
		// fixed-size array rules out.
		panic("store: blake3 keyed hasher: " + err.Error())
	}
	var prefix [8]byte
	for _, section := range sections {
		n := len(section)
		for i := 0; i < 8; i++ {
			prefix[i] = byte(n >> (8 * i))
		}
		_, _ = h.Write(prefix[:])
		_, _ = h.Write(section)
	}
	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// String returns the lowercase hex encoding, used as the store key.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
