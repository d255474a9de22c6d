// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gen

import (
	"fmt"
	"strings"

	"github.com/mharsch/hubris/abi"
	"github.com/mharsch/hubris/phash"
)

// strategiesFor returns the ranked construction strategies for a
// target triple.
//
// Cortex-M0 class cores (thumbv6m) have no cheap 32x32 multiply, so
// the hash evaluation is off the table and they always get the binary
// search encoding, which cannot fail. Everything with a usable
// multiplier (thumbv7m, thumbv7em, thumbv8m) tries the single-level
// hash first and falls back to the nested encoding; the nested tier is
// the last, so its failure fails the build.
func strategiesFor[V any](b phash.Builder, target string) ([]phash.Strategy[V], error) {
	sorted := phash.Strategy[V]{
		Name: "sorted list",
		Attempt: func(entries []phash.Entry[V]) (phash.Table[V], error) {
			return phash.BuildSortedList(entries)
		},
	}
	single := phash.Strategy[V]{
		Name: "perfect hash",
		Attempt: func(entries []phash.Entry[V]) (phash.Table[V], error) {
			return phash.BuildPerfectHashMap(b, entries)
		},
	}
	nested := phash.Strategy[V]{
		Name: "nested perfect hash",
		Attempt: func(entries []phash.Entry[V]) (phash.Table[V], error) {
			return phash.BuildNested(b, entries)
		},
	}

	switch {
	case strings.HasPrefix(target, "thumbv6m"):
		return []phash.Strategy[V]{sorted}, nil
	case strings.HasPrefix(target, "thumbv7m"),
		strings.HasPrefix(target, "thumbv7em"),
		strings.HasPrefix(target, "thumbv8m"):
		return []phash.Strategy[V]{single, nested}, nil
	default:
		return nil, &UnsupportedTargetError{Target: target}
	}
}

func buildLookup[V any](b phash.Builder, target string, entries []phash.Entry[V]) (phash.Table[V], error) {
	strategies, err := strategiesFor[V](b, target)
	if err != nil {
		return nil, err
	}

	return phash.BuildRanked(strategies, entries)
}

// fmtIRQTask renders one slot of the interrupt-to-owner table. A nil
// slot gets the invalid sentinels, which no real assignment can match.
func fmtIRQTask(e *phash.Entry[abi.InterruptOwner]) string {
	if e == nil {
		return "(abi::InterruptNum::invalid(), abi::InterruptOwner::invalid()),"
	}

	return fmt.Sprintf("(abi::InterruptNum(%d), abi::InterruptOwner { task: %d, notification: 0b%b }),",
		uint32(e.Key), e.Value.Task, e.Value.Notification)
}

// fmtTaskIRQ renders one slot of the owner-to-interrupt-set table.
func fmtTaskIRQ(e *phash.Entry[[]abi.InterruptNum]) string {
	if e == nil {
		return "(abi::InterruptOwner::invalid(), &[]),"
	}

	owner := abi.OwnerFromCode(e.Key)
	irqs := make([]string, len(e.Value))
	for i, irq := range e.Value {
		irqs[i] = fmt.Sprintf("abi::InterruptNum(%d)", irq)
	}

	return fmt.Sprintf("(abi::InterruptOwner { task: %d, notification: 0b%b }, &[%s]),",
		owner.Task, owner.Notification, strings.Join(irqs, ", "))
}

// renderTable renders one lookup table as a Rust const, dispatching on
// the encoding that construction settled on. It returns the phash type
// the declaration needs imported alongside the declaration itself, so
// the kernel's query routine can see which evaluation scheme to use
// straight from the type.
func renderTable[V any](name, keyType, valueType string, table phash.Table[V], fmtEntry func(*phash.Entry[V]) string) (use, block string, err error) {
	var b strings.Builder

	switch t := table.(type) {
	case *phash.SortedList[V]:
		use = "SortedList"
		fmt.Fprintf(&b, "pub const %s: SortedList::<%s, %s> = SortedList {\n", name, keyType, valueType)
		b.WriteString("    values: &[\n")
		for i := range t.Entries {
			fmt.Fprintf(&b, "        %s\n", fmtEntry(&t.Entries[i]))
		}
		b.WriteString("    ],\n};")

	case *phash.PerfectHashMap[V]:
		use = "PerfectHashMap"
		fmt.Fprintf(&b, "pub const %s: PerfectHashMap::<'_, %s, %s> = PerfectHashMap {\n", name, keyType, valueType)
		fmt.Fprintf(&b, "    m: %#x,\n", t.M)
		b.WriteString("    values: &[\n")
		for _, slot := range t.Slots {
			fmt.Fprintf(&b, "        %s\n", fmtEntry(slot))
		}
		b.WriteString("    ],\n};")

	case *phash.NestedPerfectHashMap[V]:
		use = "NestedPerfectHashMap"
		g := make([]string, len(t.G))
		for i, m := range t.G {
			g[i] = fmt.Sprintf("%#x", m)
		}
		fmt.Fprintf(&b, "pub const %s: NestedPerfectHashMap::<%s, %s> = NestedPerfectHashMap {\n", name, keyType, valueType)
		fmt.Fprintf(&b, "    m: %#x,\n", t.M)
		fmt.Fprintf(&b, "    g: &[%s],\n", strings.Join(g, ", "))
		b.WriteString("    values: &[\n")
		for _, bucket := range t.Buckets {
			if len(bucket) == 0 {
				b.WriteString("        &[],\n")
				continue
			}

			b.WriteString("        &[\n")
			for _, slot := range bucket {
				fmt.Fprintf(&b, "            %s\n", fmtEntry(slot))
			}
			b.WriteString("        ],\n")
		}
		b.WriteString("    ],\n};")

	default:
		return "", "", fmt.Errorf("unknown table encoding %T", table)
	}

	return use, b.String(), nil
}
