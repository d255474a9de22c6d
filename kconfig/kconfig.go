// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package kconfig ingests the kernel configuration document that
// drives table generation.
//
// The document is TOML, which permits the hex and binary integer
// literals that addresses, attribute bitsets, and notification masks
// are naturally written in:
//
//	[[tasks]]
//	regions = [0, 1]
//	entry_point = 0x08000000
//	initial_stack = 0x20000400
//	priority = 1
//	index = 0
//	flags = 0b1
//
//	[[regions]]
//	base = 0x08000000
//	size = 0x00010000
//	attributes = 0b101
//
//	[[irqs]]
//	irq = 5
//	owner = { task = 0, notification = 0b1 }
//
// A config is parsed exactly once per build and is read-only
// afterwards.
package kconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/mharsch/hubris/abi"
)

// KernelConfig is the root build input: the ordered task list, the
// ordered region list, and the unordered interrupt assignments.
type KernelConfig struct {
	Tasks   []abi.TaskDesc
	Regions []abi.RegionDesc
	IRQs    []abi.Interrupt
}

type document struct {
	Tasks   []taskEntry   `toml:"tasks"`
	Regions []regionEntry `toml:"regions"`
	IRQs    []irqEntry    `toml:"irqs"`
}

type taskEntry struct {
	Regions      []uint32 `toml:"regions"`
	EntryPoint   uint32   `toml:"entry_point"`
	InitialStack uint32   `toml:"initial_stack"`
	Priority     uint32   `toml:"priority"`
	Index        uint32   `toml:"index"`
	Flags        uint32   `toml:"flags"`
}

type regionEntry struct {
	Base       uint32 `toml:"base"`
	Size       uint32 `toml:"size"`
	Attributes uint32 `toml:"attributes"`
}

type irqEntry struct {
	IRQ   uint32     `toml:"irq"`
	Owner ownerEntry `toml:"owner"`
}

type ownerEntry struct {
	Task         uint32 `toml:"task"`
	Notification uint32 `toml:"notification"`
}

// Parse decodes and validates a kernel configuration document. Any
// structural defect is fatal to the build: a malformed descriptor
// compiled into the image is a safety hazard, so nothing is silently
// defaulted or masked.
func Parse(data []byte) (*KernelConfig, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse kernel config: %v", err)
	}

	config := &KernelConfig{
		Tasks:   make([]abi.TaskDesc, len(doc.Tasks)),
		Regions: make([]abi.RegionDesc, len(doc.Regions)),
		IRQs:    make([]abi.Interrupt, len(doc.IRQs)),
	}

	for i, region := range doc.Regions {
		attributes, err := abi.ValidateRegionAttributes(region.Attributes)
		if err != nil {
			return nil, fmt.Errorf("region %d: %v", i, err)
		}

		config.Regions[i] = abi.RegionDesc{
			Base:       region.Base,
			Size:       region.Size,
			Attributes: attributes,
		}
	}

	if len(doc.Tasks) > 0 && len(doc.Regions) == 0 {
		return nil, fmt.Errorf("region table is empty: region 0 (the null region) is required to pad task region lists")
	}

	for i, task := range doc.Tasks {
		if task.Index != uint32(i) {
			return nil, fmt.Errorf("task %d: declared index %d does not match position", i, task.Index)
		}

		if len(task.Regions) > abi.RegionsPerTask {
			return nil, fmt.Errorf("task %d: %d region references exceeds the %d allowed", i, len(task.Regions), abi.RegionsPerTask)
		}

		for _, ref := range task.Regions {
			if int(ref) >= len(doc.Regions) {
				return nil, fmt.Errorf("task %d: region reference %d is out of range (have %d regions)", i, ref, len(doc.Regions))
			}
		}

		flags, err := abi.ValidateTaskFlags(task.Flags)
		if err != nil {
			return nil, fmt.Errorf("task %d: %v", i, err)
		}

		config.Tasks[i] = abi.TaskDesc{
			Regions:      task.Regions,
			EntryPoint:   task.EntryPoint,
			InitialStack: task.InitialStack,
			Priority:     task.Priority,
			Index:        task.Index,
			Flags:        flags,
		}
	}

	// Several interrupts may share an owner, but each interrupt
	// has at most one.
	seen := make(map[uint32]bool, len(doc.IRQs))
	for i, irq := range doc.IRQs {
		if seen[irq.IRQ] {
			return nil, fmt.Errorf("interrupt %d is assigned more than once", irq.IRQ)
		}

		seen[irq.IRQ] = true
		config.IRQs[i] = abi.Interrupt{
			IRQ: abi.InterruptNum(irq.IRQ),
			Owner: abi.InterruptOwner{
				Task:         irq.Owner.Task,
				Notification: irq.Owner.Notification,
			},
		}
	}

	return config, nil
}
