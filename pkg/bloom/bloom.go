// Package bloom implements a fixed-size bloom filter used to summarize a
// store's event-id set during sync inventory exchange. The filter has no
// false negatives: if Add(x) was called, MightContain(x) is always true.
package bloom

import (
	"encoding/base64"
	"fmt"

	"github.com/substratelabs/substrate/pkg/rollhash"
)

const (
	// DefaultSizeBits is the protocol-fixed bit-array size.
	DefaultSizeBits = 1024
	// DefaultHashCount is the protocol-fixed number of probes per item.
	DefaultHashCount = 3
)

// Filter is a probabilistic set-membership summary over strings.
type Filter struct {
	bits     []byte
	sizeBits uint32
	k        int
	count    int
}

// New creates a filter with the protocol defaults.
func New() *Filter {
	return NewWithParams(DefaultSizeBits, DefaultHashCount)
}

// NewWithParams creates a filter with sizeBits bits (rounded up to a whole
// byte) and k probes per item.
func NewWithParams(sizeBits uint32, k int) *Filter {
	if sizeBits == 0 {
		sizeBits = DefaultSizeBits
	}
	if k <= 0 {
		k = DefaultHashCount
	}
	return &Filter{
		bits:     make([]byte, (sizeBits+7)/8),
		sizeBits: sizeBits,
		k:        k,
	}
}

// Add inserts item into the filter.
func (f *Filter) Add(item string) {
	for i := 0; i < f.k; i++ {
		pos := rollhash.Seeded(item, uint32(i)) % f.sizeBits
		f.bits[pos/8] |= 1 << (pos % 8)
	}
	f.count++
}

// MightContain reports whether item may be in the set. False means
// definitely absent.
func (f *Filter) MightContain(item string) bool {
	for i := 0; i < f.k; i++ {
		pos := rollhash.Seeded(item, uint32(i)) % f.sizeBits
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls.
func (f *Filter) Count() int {
	return f.count
}

// ToBase64 serializes the bit array for wire transfer.
func (f *Filter) ToBase64() string {
	return base64.StdEncoding.EncodeToString(f.bits)
}

// FromBase64 reconstructs a filter from its wire form. Both sides of the
// protocol use the fixed probe count, so only the bit array travels.
func FromBase64(s string) (*Filter, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bloom: decode filter: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("bloom: empty filter payload")
	}
	return &Filter{
		bits:     raw,
		sizeBits: uint32(len(raw)) * 8,
		k:        DefaultHashCount,
	}, nil
}
