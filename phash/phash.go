// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package phash builds the static lookup tables the kernel uses to
// dispatch interrupts in bounded time.
//
// A table is built once, at build time, from a fixed set of unique
// 64-bit keys. Three encodings exist, from cheapest to most capable:
//
//   - SortedList: keys in ascending order, binary-search lookup.
//     Always constructible.
//   - PerfectHashMap: a single multiplicative hash with a multiplier
//     chosen so that the known keys occupy distinct slots. Construction
//     can fail; lookup is O(1).
//   - NestedPerfectHashMap: a first-level hash partitions the keys
//     into buckets, each with its own collision-free multiplier.
//     Lookup pays one extra indirection.
//
// The hash is perfect only over the known key set. A query for an
// absent key may land in an occupied slot, so every lookup verifies
// the stored key against the query key before returning a value.
package phash

import (
	"fmt"
	"sort"
)

// Entry is one key/value pair in a table. Keys are canonical 64-bit
// codes; callers must map their domain keys to codes injectively.
type Entry[V any] struct {
	Key   uint64
	Value V
}

// Table is a built lookup structure. All implementations are immutable
// once built.
type Table[V any] interface {
	// Lookup returns the value stored for key, or false if the key
	// was not part of the set the table was built from.
	Lookup(key uint64) (V, bool)
}

// hashSlot evaluates the multiplicative hash: the top bits of key*m
// select a slot in a table of size 1<<bits. A shift of 64 (bits == 0)
// yields slot 0.
func hashSlot(key, m uint64, bits uint) uint32 {
	return uint32((key * m) >> (64 - bits))
}

// tableBits returns the smallest b with 1<<b >= n.
func tableBits(n int) uint {
	bits := uint(0)
	for 1<<bits < n {
		bits++
	}

	return bits
}

// SortedList is the fallback encoding: entries in ascending key order,
// looked up by binary search. It exists for targets whose cores cannot
// afford the multiply in the hash evaluation.
type SortedList[V any] struct {
	Entries []Entry[V]
}

// BuildSortedList sorts entries by key. It fails only if two entries
// share a key, which indicates a bug in the caller; any duplicate-free
// set, including the empty set, is constructible.
func BuildSortedList[V any](entries []Entry[V]) (*SortedList[V], error) {
	out := make([]Entry[V], len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	for i := 1; i < len(out); i++ {
		if out[i].Key == out[i-1].Key {
			return nil, fmt.Errorf("duplicate key %#x", out[i].Key)
		}
	}

	return &SortedList[V]{Entries: out}, nil
}

// Lookup finds key by binary search in O(log n).
func (l *SortedList[V]) Lookup(key uint64) (V, bool) {
	i := sort.Search(len(l.Entries), func(i int) bool { return l.Entries[i].Key >= key })
	if i < len(l.Entries) && l.Entries[i].Key == key {
		return l.Entries[i].Value, true
	}

	var zero V
	return zero, false
}

// PerfectHashMap is the single-level encoding. Slot i holds the entry
// whose key hashes to i under multiplier M, or nil if no known key
// does. The slot count is the next power of two at or above the key
// count.
type PerfectHashMap[V any] struct {
	M     uint64
	Bits  uint
	Slots []*Entry[V]
}

// Lookup recomputes the hash and verifies the stored key. The
// verification is mandatory: an absent key may alias a slot holding an
// unrelated entry.
func (m *PerfectHashMap[V]) Lookup(key uint64) (V, bool) {
	if len(m.Slots) > 0 {
		if e := m.Slots[hashSlot(key, m.M, m.Bits)]; e != nil && e.Key == key {
			return e.Value, true
		}
	}

	var zero V
	return zero, false
}

// NestedPerfectHashMap is the two-level encoding, used when no single
// multiplier separates the whole key set. The first-level hash under M
// selects a bucket; the bucket's own multiplier G[i] selects a slot in
// its sub-table. Bucket and sub-table sizes are powers of two.
type NestedPerfectHashMap[V any] struct {
	M       uint64
	G       []uint64
	Buckets [][]*Entry[V]
}

// Lookup pays one extra indirection over PerfectHashMap and performs
// the same key verification.
func (m *NestedPerfectHashMap[V]) Lookup(key uint64) (V, bool) {
	var zero V
	if len(m.Buckets) == 0 {
		return zero, false
	}

	b := hashSlot(key, m.M, tableBits(len(m.Buckets)))
	sub := m.Buckets[b]
	if len(sub) == 0 {
		return zero, false
	}

	if e := sub[hashSlot(key, m.G[b], tableBits(len(sub)))]; e != nil && e.Key == key {
		return e.Value, true
	}

	return zero, false
}
