// Package bloomfilter implements a probabilistic membership filter.
//
// A Bloom filter answers "definitely not present" exactly and "present"
// probabilistically. Vigil puts one in front of the block store so the
// overwhelmingly common case, an identifier that was never blocked, is
// answered without touching the authoritative set.
//
// Thread Safety: all methods are safe for concurrent access.
package bloomfilter

import (
	"hash/maphash"
	"math"
	"math/bits"
	"sync"
)

var seed = maphash.MakeSeed()

// Filter is a fixed-size Bloom filter keyed by string identifiers.
// It cannot be resized; rebuild a fresh one when the tracked set churns.
type Filter struct {
	mu     sync.RWMutex
	words  []uint64
	nbits  uint64
	hashes uint64
	added  uint64
}

// New sizes a filter for the expected number of identifiers at the given
// false positive rate. Zero or invalid arguments fall back to 1000 items
// at 1%.
func New(expected uint, fpRate float64) *Filter {
	if expected == 0 {
		expected = 1000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	nbits := uint64(math.Ceil(-float64(expected) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	hashes := uint64(math.Ceil(float64(nbits) / float64(expected) * math.Ln2))

	return &Filter{
		words:  make([]uint64, (nbits+63)/64),
		nbits:  nbits,
		hashes: hashes,
	}
}

// Add marks an identifier as present.
func (f *Filter) Add(identifier string) {
	h1, h2 := split(maphash.String(seed, identifier))

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < f.hashes; i++ {
		pos := (h1 + h2*i) % f.nbits
		f.words[pos/64] |= 1 << (pos % 64)
	}
	f.added++
}

// MayContain reports whether the identifier might have been added. A false
// result is definitive; a true result must be confirmed against the
// authoritative set.
func (f *Filter) MayContain(identifier string) bool {
	h1, h2 := split(maphash.String(seed, identifier))

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < f.hashes; i++ {
		pos := (h1 + h2*i) % f.nbits
		if f.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Added returns the number of Add calls.
func (f *Filter) Added() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.added
}

// FillRatio returns the fraction of bits set. Above roughly 0.5 the false
// positive rate degrades and the filter should be rebuilt.
func (f *Filter) FillRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var set int
	for _, w := range f.words {
		set += bits.OnesCount64(w)
	}
	return float64(set) / float64(f.nbits)
}

// split derives two hash streams for double hashing from one 64-bit sum.
// The step is forced odd so it never collapses to a single probe position.
func split(sum uint64) (uint64, uint64) {
	return sum >> 32, (sum & 0xffffffff) | 1
}
