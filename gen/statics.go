// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/mharsch/hubris/abi"
	"github.com/mharsch/hubris/kconfig"
	"github.com/mharsch/hubris/phash"
)

type taskData struct {
	Regions      []string
	EntryPoint   string
	InitialStack string
	Priority     uint32
	Index        uint32
	Flags        uint32
}

type regionData struct {
	Base       string
	Size       string
	Attributes uint32
}

type kconfigData struct {
	ImageID     uint64
	TaskCount   int
	Tasks       []taskData
	RegionCount int
	Regions     []regionData
	Uses        []string
	Tables      []string
}

// renderKConfig renders kconfig.rs: the image id, the task and region
// descriptor tables sized exactly to their counts, the uninitialized
// table space the kernel claims at boot, and the two interrupt lookup
// tables in whichever encoding the target's policy settled on.
func renderKConfig(imageID uint64, target string, config *kconfig.KernelConfig) ([]byte, error) {
	data := kconfigData{
		ImageID:     imageID,
		TaskCount:   len(config.Tasks),
		Tasks:       make([]taskData, len(config.Tasks)),
		RegionCount: len(config.Regions),
		Regions:     make([]regionData, len(config.Regions)),
	}

	for i, task := range config.Tasks {
		// Region references are resolved here so the kernel never
		// re-resolves an index at runtime. Short lists pad with
		// region 0, the null region.
		refs := make([]string, abi.RegionsPerTask)
		for j := range refs {
			ref := uint32(0)
			if j < len(task.Regions) {
				ref = task.Regions[j]
			}

			refs[j] = fmt.Sprintf("&HUBRIS_REGION_DESCS[%d]", ref)
		}

		data.Tasks[i] = taskData{
			Regions:      refs,
			EntryPoint:   fmt.Sprintf("0x%08x", task.EntryPoint),
			InitialStack: fmt.Sprintf("0x%08x", task.InitialStack),
			Priority:     task.Priority,
			Index:        task.Index,
			Flags:        uint32(task.Flags),
		}
	}

	for i, region := range config.Regions {
		data.Regions[i] = regionData{
			Base:       fmt.Sprintf("0x%08x", region.Base),
			Size:       fmt.Sprintf("0x%08x", region.Size),
			Attributes: uint32(region.Attributes),
		}
	}

	// The first table answers "which task owns this interrupt" in
	// the default interrupt handler; the second answers "which
	// interrupts does this notification mask control" in
	// irq_control. Both are built from the same assignments, keyed
	// in opposite directions.
	irqTask, taskIRQ := deriveEntries(config)

	builder := phash.Builder{}
	taskIRQTable, err := buildLookup(builder, target, taskIRQ)
	if err != nil {
		return nil, fmt.Errorf("failed to build task-to-IRQ map: %w", err)
	}

	irqTaskTable, err := buildLookup(builder, target, irqTask)
	if err != nil {
		return nil, fmt.Errorf("failed to build IRQ-to-task map: %w", err)
	}

	use1, block1, err := renderTable("HUBRIS_TASK_IRQ_LOOKUP", "abi::InterruptOwner", "&'static [abi::InterruptNum]", taskIRQTable, fmtTaskIRQ)
	if err != nil {
		return nil, err
	}

	use2, block2, err := renderTable("HUBRIS_IRQ_TASK_LOOKUP", "abi::InterruptNum", "abi::InterruptOwner", irqTaskTable, fmtIRQTask)
	if err != nil {
		return nil, err
	}

	data.Uses = []string{use1}
	if use2 != use1 {
		data.Uses = append(data.Uses, use2)
	}
	sort.Strings(data.Uses)

	// Sorted-list targets list the IRQ-to-task map first; the
	// hashed targets list the task-to-IRQ map first.
	data.Tables = []string{block1, block2}
	if strings.HasPrefix(target, "thumbv6m") {
		data.Tables = []string{block2, block1}
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "kconfig_rs.txt", data); err != nil {
		return nil, fmt.Errorf("failed to render kconfig.rs: %v", err)
	}

	return buf.Bytes(), nil
}

// deriveEntries turns the interrupt assignments into the two key sets:
// interrupt number to owner, and owner to the sorted set of interrupts
// it owns. Owners are visited in first-appearance order and their
// interrupt lists sorted, so the derived entries are the same on every
// build.
func deriveEntries(config *kconfig.KernelConfig) ([]phash.Entry[abi.InterruptOwner], []phash.Entry[[]abi.InterruptNum]) {
	irqTask := make([]phash.Entry[abi.InterruptOwner], len(config.IRQs))
	for i, irq := range config.IRQs {
		irqTask[i] = phash.Entry[abi.InterruptOwner]{Key: irq.IRQ.Code(), Value: irq.Owner}
	}

	perOwner := make(map[abi.InterruptOwner][]abi.InterruptNum)
	var owners []abi.InterruptOwner
	for _, irq := range config.IRQs {
		if _, ok := perOwner[irq.Owner]; !ok {
			owners = append(owners, irq.Owner)
		}

		perOwner[irq.Owner] = append(perOwner[irq.Owner], irq.IRQ)
	}

	taskIRQ := make([]phash.Entry[[]abi.InterruptNum], len(owners))
	for i, owner := range owners {
		irqs := perOwner[owner]
		sort.Slice(irqs, func(a, b int) bool { return irqs[a] < irqs[b] })
		taskIRQ[i] = phash.Entry[[]abi.InterruptNum]{Key: owner.Code(), Value: irqs}
	}

	return irqTask, taskIRQ
}
