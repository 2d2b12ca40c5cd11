// Package rollhash implements the deterministic 32-bit polynomial rolling
// hash used for bloom filter probing and short content digests. Seeding the
// initial state yields a family of independent hash functions over the same
// input, which is what the bloom filter needs for its k probes.
package rollhash

import "fmt"

const (
	offset32 = 2166136261
	prime32  = 16777619
)

// Sum32 returns the rolling hash of s with seed zero.
func Sum32(s string) uint32 {
	return Seeded(s, 0)
}

// Seeded returns the rolling hash of s mixed with seed. Equal inputs and
// equal seeds always produce equal outputs; distinct seeds decorrelate the
// outputs enough to act as separate hash functions.
func Seeded(s string, seed uint32) uint32 {
	h := uint32(offset32) ^ (seed+1)*prime32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Digest returns an 8-character hex digest of s, suitable for short
// human-readable identifiers.
func Digest(s string) string {
	return fmt.Sprintf("%08x", Sum32(s))
}
