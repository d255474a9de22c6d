// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package abi mirrors the kernel ABI types that the generated tables
// compile against, along with the bit-pattern validation the generator
// performs before embedding them into the image.
package abi

import "fmt"

// RegionsPerTask is the fixed number of region references in a task
// descriptor. Shorter region lists are padded with region 0, the null
// region.
const RegionsPerTask = 8

// TaskFlags is the bitset of per-task flags.
type TaskFlags uint32

const (
	// TaskFlagStartAtBoot marks a task that the kernel starts
	// without waiting for a supervisor.
	TaskFlagStartAtBoot TaskFlags = 1 << 0

	taskFlagsMask = TaskFlagStartAtBoot
)

// ValidateTaskFlags checks that bits describes only known task flags.
// A flag word with unknown bits set must not be compiled into the
// image, so this is checked before any output is written.
func ValidateTaskFlags(bits uint32) (TaskFlags, error) {
	if bits&^uint32(taskFlagsMask) != 0 {
		return 0, fmt.Errorf("invalid task flags %#x: unknown bits %#x", bits, bits&^uint32(taskFlagsMask))
	}

	return TaskFlags(bits), nil
}

// RegionAttributes is the bitset of memory region permissions and
// memory-type attributes.
type RegionAttributes uint32

const (
	RegionRead    RegionAttributes = 1 << 0
	RegionWrite   RegionAttributes = 1 << 1
	RegionExecute RegionAttributes = 1 << 2
	RegionDevice  RegionAttributes = 1 << 3
	RegionDMA     RegionAttributes = 1 << 4

	regionAttributesMask = RegionRead | RegionWrite | RegionExecute | RegionDevice | RegionDMA
)

// ValidateRegionAttributes checks that bits describes only known
// region attributes.
func ValidateRegionAttributes(bits uint32) (RegionAttributes, error) {
	if bits&^uint32(regionAttributesMask) != 0 {
		return 0, fmt.Errorf("invalid region attributes %#x: unknown bits %#x", bits, bits&^uint32(regionAttributesMask))
	}

	return RegionAttributes(bits), nil
}

// TaskDesc describes one task in the build configuration. Regions
// holds indexes into the region table; the generator resolves them to
// references when it emits the descriptor.
type TaskDesc struct {
	Regions      []uint32
	EntryPoint   uint32
	InitialStack uint32
	Priority     uint32
	Index        uint32
	Flags        TaskFlags
}

// RegionDesc describes one memory protection region.
type RegionDesc struct {
	Base       uint32
	Size       uint32
	Attributes RegionAttributes
}

// InterruptNum identifies a hardware interrupt.
type InterruptNum uint32

// InterruptOwner is the task and notification mask to post when an
// owned interrupt fires. Several interrupts may share one owner; each
// interrupt has at most one.
type InterruptOwner struct {
	Task         uint32
	Notification uint32
}

// Interrupt is one interrupt ownership assignment.
type Interrupt struct {
	IRQ   InterruptNum
	Owner InterruptOwner
}

// Code returns the canonical 64-bit hash code for the interrupt
// number. Codes feed the phash builders, which operate on uint64 keys;
// distinct interrupt numbers always produce distinct codes.
func (n InterruptNum) Code() uint64 {
	return uint64(n)
}

// Code returns the canonical 64-bit hash code for an owner. The task
// index occupies the high word and the notification mask the low word,
// so distinct owners always produce distinct codes.
func (o InterruptOwner) Code() uint64 {
	return uint64(o.Task)<<32 | uint64(o.Notification)
}

// OwnerFromCode inverts InterruptOwner.Code.
func OwnerFromCode(code uint64) InterruptOwner {
	return InterruptOwner{
		Task:         uint32(code >> 32),
		Notification: uint32(code),
	}
}
