// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package phash

import (
	"errors"
	"fmt"
)

// ErrNoMultiplier reports that no candidate multiplier within the
// search budget maps the key set onto distinct slots. For the
// single-level encoding this is an expected outcome, recovered by
// falling back to the next encoding tier.
var ErrNoMultiplier = errors.New("no collision-free multiplier within budget")

// DefaultMultiplierBudget is the number of candidate multipliers a
// search examines before giving up.
const DefaultMultiplierBudget = 2048

// Candidate multipliers are a fixed Weyl sequence so that the same key
// set always selects the same multiplier, keeping generated images
// reproducible. Both constants are odd, so every candidate is odd and
// key*m is a bijection on 64-bit keys.
const (
	multiplierSeed = 0x9E3779B97F4A7C15
	multiplierStep = 0x6A09E667F3BCC909
)

func multiplier(i int) uint64 {
	return (multiplierSeed + uint64(i)*multiplierStep) | 1
}

// maxBucketBits caps the first-level table of the nested encoding.
// Key sets are bounded by interrupt-controller capacity (a few
// hundred), so a table this large always has room to separate them.
const maxBucketBits = 16

// A Builder holds the construction parameters shared by the hashed
// encodings. The zero value is ready to use.
type Builder struct {
	// MultiplierBudget caps how many candidate multipliers each
	// search examines. Zero means DefaultMultiplierBudget. A
	// negative budget examines none, so every hashed construction
	// reports ErrNoMultiplier.
	MultiplierBudget int
}

func (b Builder) budget() int {
	if b.MultiplierBudget == 0 {
		return DefaultMultiplierBudget
	}
	if b.MultiplierBudget < 0 {
		return 0
	}

	return b.MultiplierBudget
}

func checkUnique[V any](entries []Entry[V]) error {
	seen := make(map[uint64]bool, len(entries))
	for _, e := range entries {
		if seen[e.Key] {
			return fmt.Errorf("duplicate key %#x", e.Key)
		}

		seen[e.Key] = true
	}

	return nil
}

// searchMultiplier finds the first candidate multiplier that places
// every key in a distinct slot of a table with 1<<bits slots.
func searchMultiplier[V any](b Builder, entries []Entry[V], bits uint) (uint64, []*Entry[V], error) {
	slots := make([]*Entry[V], 1<<bits)

search:
	for i := 0; i < b.budget(); i++ {
		m := multiplier(i)
		for j := range slots {
			slots[j] = nil
		}

		for k := range entries {
			e := &entries[k]
			s := hashSlot(e.Key, m, bits)
			if slots[s] != nil {
				continue search
			}

			slots[s] = e
		}

		return m, slots, nil
	}

	return 0, nil, ErrNoMultiplier
}

// BuildPerfectHashMap searches for a single multiplier that places
// every key in a distinct slot of a table sized to the next power of
// two at or above the key count. Exhausting the budget returns
// ErrNoMultiplier; that is the signal to fall back to BuildNested, not
// a build failure.
func BuildPerfectHashMap[V any](b Builder, entries []Entry[V]) (*PerfectHashMap[V], error) {
	if err := checkUnique(entries); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return &PerfectHashMap[V]{M: multiplier(0)}, nil
	}

	own := make([]Entry[V], len(entries))
	copy(own, entries)

	bits := tableBits(len(own))
	m, slots, err := searchMultiplier(b, own, bits)
	if err != nil {
		return nil, err
	}

	return &PerfectHashMap[V]{M: m, Bits: bits, Slots: slots}, nil
}

// BuildNested partitions the keys into buckets with a first-level
// hash and solves each bucket independently, growing a failing
// bucket's sub-table up to four times its minimum size before doubling
// the bucket count and starting over. Distinct keys always separate
// once the first level is wide enough, so construction fails only if
// the key set needs more than 1<<maxBucketBits buckets; there is no
// further fallback tier, so callers must treat that as fatal.
func BuildNested[V any](b Builder, entries []Entry[V]) (*NestedPerfectHashMap[V], error) {
	if err := checkUnique(entries); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return &NestedPerfectHashMap[V]{M: multiplier(0)}, nil
	}

	own := make([]Entry[V], len(entries))
	copy(own, entries)

	// Aim for about four keys per bucket to start.
	gbits := tableBits((len(own) + 3) / 4)

	for ; gbits <= maxBucketBits; gbits++ {
		m := multiplier(0)
		nested, ok := buildBuckets(b, own, m, gbits)
		if ok {
			return nested, nil
		}
	}

	return nil, fmt.Errorf("nested construction failed: key set needs more than %d buckets", 1<<maxBucketBits)
}

func buildBuckets[V any](b Builder, entries []Entry[V], m uint64, gbits uint) (*NestedPerfectHashMap[V], bool) {
	groups := make([][]Entry[V], 1<<gbits)
	for _, e := range entries {
		s := hashSlot(e.Key, m, gbits)
		groups[s] = append(groups[s], e)
	}

	nested := &NestedPerfectHashMap[V]{
		M:       m,
		G:       make([]uint64, 1<<gbits),
		Buckets: make([][]*Entry[V], 1<<gbits),
	}

	for i, group := range groups {
		if len(group) == 0 {
			nested.G[i] = multiplier(0)
			continue
		}

		// Grow the sub-table up to 4x before giving up on this
		// bucket layout.
		bits := tableBits(len(group))
		solved := false
		for extra := uint(0); extra <= 2; extra++ {
			gm, slots, err := searchMultiplier(b, group, bits+extra)
			if err == nil {
				nested.G[i] = gm
				nested.Buckets[i] = slots
				solved = true
				break
			}
		}

		if !solved {
			return nil, false
		}
	}

	return nested, true
}

// A Strategy is one ranked construction attempt. Attempt either
// returns a finished table or an error describing why this tier could
// not encode the key set.
type Strategy[V any] struct {
	Name    string
	Attempt func(entries []Entry[V]) (Table[V], error)
}

// BuildRanked tries each strategy in order, falling through on
// failure. Only if every tier fails does it return an error, wrapping
// the last tier's cause; a table from any earlier tier is final.
func BuildRanked[V any](strategies []Strategy[V], entries []Entry[V]) (Table[V], error) {
	if len(strategies) == 0 {
		return nil, errors.New("no construction strategies")
	}

	var lastErr error
	for _, s := range strategies {
		table, err := s.Attempt(entries)
		if err == nil {
			return table, nil
		}

		lastErr = fmt.Errorf("%s: %w", s.Name, err)
	}

	return nil, lastErr
}
