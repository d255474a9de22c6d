// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gen

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"rsc.io/diff"

	"github.com/mharsch/hubris/abi"
	"github.com/mharsch/hubris/kconfig"
	"github.com/mharsch/hubris/phash"
)

func TestExcReturn(t *testing.T) {
	tests := []struct {
		Name   string
		Secure string
		Want   uint32
	}{
		{Name: "absent", Secure: "", Want: ExcReturnSecure},
		{Name: "zero", Secure: "0", Want: ExcReturnNonSecure},
		{Name: "one", Secure: "1", Want: ExcReturnSecure},
		{Name: "other", Secure: "banana", Want: ExcReturnSecure},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got := ExcReturn(test.Secure)
			if got != test.Want {
				t.Errorf("ExcReturn(%q) = %#x, want %#x", test.Secure, got, test.Want)
			}

			if got != ExcReturnSecure && got != ExcReturnNonSecure {
				t.Errorf("ExcReturn(%q) = %#x: not one of the two valid constants", test.Secure, got)
			}
		})
	}
}

const scenarioConfig = `
[[tasks]]
regions = [0, 1]
entry_point = 0x08000100
initial_stack = 0x20000400
priority = 1
index = 0
flags = 0b1

[[tasks]]
regions = [0]
entry_point = 0x08004000
initial_stack = 0x20001400
priority = 2
index = 1
flags = 0

[[tasks]]
regions = [0]
entry_point = 0x08008000
initial_stack = 0x20002400
priority = 2
index = 2
flags = 0

[[regions]]
base = 0x00000000
size = 0x00000020
attributes = 0b11

[[regions]]
base = 0x08000000
size = 0x00010000
attributes = 0b101

[[irqs]]
irq = 5
owner = { task = 0, notification = 0b01 }

[[irqs]]
irq = 6
owner = { task = 0, notification = 0b10 }

[[irqs]]
irq = 40
owner = { task = 2, notification = 0b1 }
`

// TestScenario drives the documented example: three tasks, two
// regions, interrupts 5 and 6 owned by task 0 under different masks
// and 40 by task 2, on a single-level-capable target.
func TestScenario(t *testing.T) {
	config, err := kconfig.Parse([]byte(scenarioConfig))
	if err != nil {
		t.Fatalf("Parse(): %v", err)
	}

	irqTask, taskIRQ := deriveEntries(config)

	irqTable, err := buildLookup(phash.Builder{}, "thumbv7em-none-eabihf", irqTask)
	if err != nil {
		t.Fatalf("buildLookup(irq to task): %v", err)
	}

	if _, ok := irqTable.(*phash.PerfectHashMap[abi.InterruptOwner]); !ok {
		t.Errorf("irq-to-task table is %T, want single-level *phash.PerfectHashMap", irqTable)
	}

	ownerTable, err := buildLookup(phash.Builder{}, "thumbv7em-none-eabihf", taskIRQ)
	if err != nil {
		t.Fatalf("buildLookup(task to irq): %v", err)
	}

	wantOwners := map[abi.InterruptNum]abi.InterruptOwner{
		5:  {Task: 0, Notification: 0b01},
		6:  {Task: 0, Notification: 0b10},
		40: {Task: 2, Notification: 0b1},
	}
	for irq, want := range wantOwners {
		got, ok := irqTable.Lookup(irq.Code())
		if !ok {
			t.Errorf("lookup(%d): absent, want %v", irq, want)
			continue
		}

		if got != want {
			t.Errorf("lookup(%d) = %v, want %v", irq, got, want)
		}
	}

	if got, ok := irqTable.Lookup(abi.InterruptNum(7).Code()); ok {
		t.Errorf("lookup(7) = %v, want absent", got)
	}

	// Task 0 owns {5, 6} across its two notification masks.
	var task0 []abi.InterruptNum
	for _, owner := range []abi.InterruptOwner{{Task: 0, Notification: 0b01}, {Task: 0, Notification: 0b10}} {
		irqs, ok := ownerTable.Lookup(owner.Code())
		if !ok {
			t.Errorf("owner(%v): absent", owner)
			continue
		}

		task0 = append(task0, irqs...)
	}

	if diff := cmp.Diff([]abi.InterruptNum{5, 6}, task0); diff != "" {
		t.Errorf("task 0 interrupt set mismatch (-want +got):\n%s", diff)
	}

	// Task 1 owns nothing: any probe for it must resolve to the
	// defined empty result.
	for _, notification := range []uint32{0b1, 0b10, 0} {
		owner := abi.InterruptOwner{Task: 1, Notification: notification}
		if irqs, ok := ownerTable.Lookup(owner.Code()); ok {
			t.Errorf("owner(%v) = %v, want absent", owner, irqs)
		}
	}
}

const goldenConfig = `
[[tasks]]
regions = [0]
entry_point = 0x08000100
initial_stack = 0x20000400
priority = 1
index = 0
flags = 0b1

[[regions]]
base = 0x08000000
size = 0x00010000
attributes = 0b111

[[irqs]]
irq = 9
owner = { task = 0, notification = 0b1 }

[[irqs]]
irq = 3
owner = { task = 0, notification = 0b10 }
`

const goldenConsts = `// See the kbuild command for an explanation of this constant
pub const EXC_RETURN_CONST : u32 = 0xFFFFFFED;
`

const goldenKConfig = `// See the kbuild command for details
#[no_mangle]
pub static HUBRIS_IMAGE_ID: u64 = 12345;
const HUBRIS_TASK_COUNT: usize = 1;
static HUBRIS_TASK_DESCS: [abi::TaskDesc; HUBRIS_TASK_COUNT] = [
    abi::TaskDesc {
        regions: [
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
            &HUBRIS_REGION_DESCS[0],
        ],
        entry_point: 0x08000100,
        initial_stack: 0x20000400,
        priority: 1,
        index: 0,
        flags: unsafe { abi::TaskFlags::from_bits_unchecked(1) },
    },
];

static mut HUBRIS_TASK_TABLE_SPACE: core::mem::MaybeUninit<[crate::task::Task; HUBRIS_TASK_COUNT]> = core::mem::MaybeUninit::uninit();

static mut HUBRIS_REGION_TABLE_SPACE: core::mem::MaybeUninit<[[&'static abi::RegionDesc; abi::REGIONS_PER_TASK]; HUBRIS_TASK_COUNT]> = core::mem::MaybeUninit::uninit();

static HUBRIS_REGION_DESCS: [abi::RegionDesc; 1] = [
    abi::RegionDesc {
        base: 0x08000000,
        size: 0x00010000,
        attributes: unsafe { abi::RegionAttributes::from_bits_unchecked(7) },
    },
];

use phash::SortedList;
pub const HUBRIS_IRQ_TASK_LOOKUP: SortedList::<abi::InterruptNum, abi::InterruptOwner> = SortedList {
    values: &[
        (abi::InterruptNum(3), abi::InterruptOwner { task: 0, notification: 0b10 }),
        (abi::InterruptNum(9), abi::InterruptOwner { task: 0, notification: 0b1 }),
    ],
};

pub const HUBRIS_TASK_IRQ_LOOKUP: SortedList::<abi::InterruptOwner, &'static [abi::InterruptNum]> = SortedList {
    values: &[
        (abi::InterruptOwner { task: 0, notification: 0b1 }, &[abi::InterruptNum(9)]),
        (abi::InterruptOwner { task: 0, notification: 0b10 }, &[abi::InterruptNum(3)]),
    ],
};

`

// TestGenerateGolden pins the exact output for a sorted-list target,
// where every byte is predictable.
func TestGenerateGolden(t *testing.T) {
	out := t.TempDir()
	env := BuildEnv{
		ImageID: "12345",
		Secure:  "",
		Target:  "thumbv6m-none-eabi",
		KConfig: goldenConfig,
	}

	if err := Generate(env, out); err != nil {
		t.Fatalf("Generate(): %v", err)
	}

	consts, err := os.ReadFile(filepath.Join(out, "consts.rs"))
	if err != nil {
		t.Fatalf("failed to read consts.rs: %v", err)
	}

	if string(consts) != goldenConsts {
		t.Errorf("consts.rs mismatch:\n%s", diff.Format(string(consts), goldenConsts))
	}

	statics, err := os.ReadFile(filepath.Join(out, "kconfig.rs"))
	if err != nil {
		t.Fatalf("failed to read kconfig.rs: %v", err)
	}

	if string(statics) != goldenKConfig {
		t.Errorf("kconfig.rs mismatch:\n%s", diff.Format(string(statics), goldenKConfig))
	}
}

func TestGenerateDeterminism(t *testing.T) {
	env := BuildEnv{
		ImageID: "987654321",
		Secure:  "0",
		Target:  "thumbv8m.main-none-eabihf",
		KConfig: scenarioConfig,
	}

	first := t.TempDir()
	if err := Generate(env, first); err != nil {
		t.Fatalf("Generate(): %v", err)
	}

	second := t.TempDir()
	if err := Generate(env, second); err != nil {
		t.Fatalf("Generate(): %v", err)
	}

	for _, name := range []string{"consts.rs", "kconfig.rs"} {
		a, err := os.ReadFile(filepath.Join(first, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}

		b, err := os.ReadFile(filepath.Join(second, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}

		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between builds:\n%s", name, diff.Format(string(a), string(b)))
		}
	}
}

func TestGenerateSingleLevel(t *testing.T) {
	out := t.TempDir()
	env := BuildEnv{
		ImageID: "1",
		Secure:  "",
		Target:  "thumbv7em-none-eabihf",
		KConfig: scenarioConfig,
	}

	if err := Generate(env, out); err != nil {
		t.Fatalf("Generate(): %v", err)
	}

	statics, err := os.ReadFile(filepath.Join(out, "kconfig.rs"))
	if err != nil {
		t.Fatalf("failed to read kconfig.rs: %v", err)
	}

	text := string(statics)
	for _, want := range []string{
		"use phash::PerfectHashMap;",
		"pub const HUBRIS_IRQ_TASK_LOOKUP: PerfectHashMap::<'_, abi::InterruptNum, abi::InterruptOwner> = PerfectHashMap {",
		"pub const HUBRIS_TASK_IRQ_LOOKUP: PerfectHashMap::<'_, abi::InterruptOwner, &'static [abi::InterruptNum]> = PerfectHashMap {",
		"(abi::InterruptNum(40), abi::InterruptOwner { task: 2, notification: 0b1 }),",
		"(abi::InterruptOwner { task: 0, notification: 0b1 }, &[abi::InterruptNum(5)]),",
		"(abi::InterruptNum::invalid(), abi::InterruptOwner::invalid()),",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("kconfig.rs missing %q:\n%s", want, text)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		Name string
		Env  BuildEnv
		Want string
	}{
		{
			Name: "missing image id",
			Env:  BuildEnv{ImageID: "", Target: "thumbv7m-none-eabi", KConfig: goldenConfig},
			Want: "failed to parse image id",
		},
		{
			Name: "non-numeric image id",
			Env:  BuildEnv{ImageID: "0x12", Target: "thumbv7m-none-eabi", KConfig: goldenConfig},
			Want: "failed to parse image id",
		},
		{
			Name: "malformed config",
			Env:  BuildEnv{ImageID: "1", Target: "thumbv7m-none-eabi", KConfig: "[[tasks\n"},
			Want: "failed to parse kernel config",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			err := Generate(test.Env, t.TempDir())
			if err == nil {
				t.Fatalf("Generate(): no error, want %q", test.Want)
			}

			if !strings.Contains(err.Error(), test.Want) {
				t.Fatalf("Generate(): got %q, want it to contain %q", err.Error(), test.Want)
			}
		})
	}
}

func TestUnsupportedTarget(t *testing.T) {
	env := BuildEnv{
		ImageID: "1",
		Secure:  "",
		Target:  "riscv32imac-unknown-none-elf",
		KConfig: goldenConfig,
	}

	err := Generate(env, t.TempDir())
	if err == nil {
		t.Fatalf("Generate(): no error for unknown target")
	}

	var unsupported *UnsupportedTargetError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Generate(): got %v, want UnsupportedTargetError", err)
	}

	if unsupported.Target != env.Target {
		t.Errorf("UnsupportedTargetError.Target = %q, want %q", unsupported.Target, env.Target)
	}
}
