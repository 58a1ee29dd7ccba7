// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sequence applies bring-up recipes, ordered lists of register
// steps, to a register target.
package sequence

import (
	"context"
	"fmt"
	"time"
)

// Op selects what a Step does.
type Op string

const (
	// OpWrite is a masked read-modify-write of Value under Mask.
	OpWrite Op = "write"
	// OpOut stores Value as is.
	OpOut Op = "out"
	// OpProg programs the field Mask with Value shifted left by Shift.
	OpProg Op = "prog"
	// OpPoll waits for any bit of Mask.
	OpPoll Op = "poll"
	// OpPollEquals waits for the bits under Mask to equal Expected.
	OpPollEquals Op = "poll_equals"
	// OpDelay waits DelayUs microseconds.
	OpDelay Op = "delay"
	// OpRead issues Count dummy reads, at least one.
	OpRead Op = "read"
	// OpSave stores (read & Mask) >> Shift in scratch slot Slot. A zero
	// Mask saves the whole register.
	OpSave Op = "save"
	// OpRestore stores scratch slot Slot as is or, with a Mask, programs
	// it into that field like OpProg.
	OpRestore Op = "restore"
	// OpCall runs the named Action.
	OpCall Op = "call"
)

// Ops lists every known Op.
var Ops = []Op{OpWrite, OpOut, OpProg, OpPoll, OpPollEquals, OpDelay, OpRead, OpSave, OpRestore, OpCall}

// Valid reports whether o is a known Op.
func (o Op) Valid() bool {
	for _, k := range Ops {
		if o == k {
			return true
		}
	}
	return false
}

// Step is one register operation. Which fields matter depends on Op.
type Step struct {
	Name     string
	Op       Op
	Addr     uintptr
	Mask     uint32
	Value    uint32
	Expected uint32
	Shift    uint
	Count    int
	DelayUs  uint32
	Slot     string
	Action   string
	// Unit names the instance an Action works on, e.g. a PLL.
	Unit string
	Args map[string]uint32
}

// Label names the step in logs and errors.
func (s Step) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Op == OpCall:
		return "call " + s.Action
	case s.Op == OpDelay:
		return fmt.Sprintf("delay %dus", s.DelayUs)
	}
	return fmt.Sprintf("%s@%08x", s.Op, s.Addr)
}

// Sequence is a named, ordered list of steps.
type Sequence struct {
	Name  string
	Steps []Step
}

// Target is the register space a sequence runs against. *zynqmp.Psu
// implements it.
type Target interface {
	Read32(address uintptr) uint32
	Write32(address uintptr, data uint32)
	MaskWrite(address uintptr, mask uint32, value uint32)
	ProgReg(address uintptr, mask uint32, shift uint, value uint32)
	MaskPoll(ctx context.Context, address uintptr, mask uint32) error
	MaskPollOnValue(ctx context.Context, address uintptr, mask uint32, expected uint32) error
	MaskDelay(ctx context.Context, us uint32) error
	// Now reads the clock polls and delays run on.
	Now() time.Time
}
