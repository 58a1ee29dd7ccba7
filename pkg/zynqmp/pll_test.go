// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
)

func TestProgramPll(t *testing.T) {
	sim := mmio.NewSim()
	p := OpenWithMemory(sim, spinPolicy(10))
	sim.Set(RPLL.Status, RPLL.LockBit)

	err := p.ProgramPll(context.Background(), RPLL, PllSettings{
		Cfg:   0x7E672C6C,
		Ctrl:  0x00012C00,
		Cross: 0x00000400,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []mmio.Access{
		{Write: true, Address: RPLL.Cfg, Value: 0x7E672C6C},
		{Write: true, Address: RPLL.Ctrl, Value: 0x00012C00},
		{Write: true, Address: RPLL.Ctrl, Value: 0x00012C08},
		{Write: true, Address: RPLL.Ctrl, Value: 0x00012C09},
		{Write: true, Address: RPLL.Ctrl, Value: 0x00012C08},
		{Write: true, Address: RPLL.Ctrl, Value: 0x00012C00},
		{Write: true, Address: RPLL.Cross, Value: 0x00000400},
	}
	if diff := cmp.Diff(want, sim.Writes()); diff != "" {
		t.Errorf("PLL write sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramPllNoLock(t *testing.T) {
	sim := mmio.NewSim()
	p := OpenWithMemory(sim, spinPolicy(3))

	err := p.ProgramPll(context.Background(), APLL, PllSettings{Ctrl: 0x00014200})
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Expected a lock timeout, got %v", err)
	}
	// Still bypassed, the cross divider is never touched.
	if got := sim.Get(APLL.Ctrl); got&PLL_CTRL_BYPASS == 0 {
		t.Errorf("Expected APLL to stay bypassed, CTRL %08x", got)
	}
	if n := sim.Reads(APLL.Cross); n != 0 {
		t.Errorf("Expected no access to the cross divider, got %d reads", n)
	}
}

func TestPllByName(t *testing.T) {
	p, ok := PllByName("dpll")
	if !ok || p != DPLL {
		t.Errorf("Expected DPLL, got %+v", p)
	}
	if _, ok := PllByName("XPLL"); ok {
		t.Error("Expected XPLL to be unknown")
	}
}

func TestDdrPllProg(t *testing.T) {
	sim := mmio.NewSim()
	p := OpenWithMemory(sim, spinPolicy(10))
	sim.Set(DPLL.Status, DPLL.LockBit)

	err := p.DdrPllProg(context.Background(), DpllParams{
		Div2:    1,
		Fbdiv:   0x48,
		LockDly: 0x3F,
		LockCnt: 0x2EE,
		Lfhf:    3,
		Cp:      3,
		Res:     2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := sim.Get(DPLL.Ctrl); got != 0x00014800 {
		t.Errorf("DPLL_CTRL expected %08x, got %08x", 0x00014800, got)
	}
	if got := sim.Get(DPLL.Cfg); got != 0x7E5DCC62 {
		t.Errorf("DPLL_CFG expected %08x, got %08x", 0x7E5DCC62, got)
	}
	div2, fbdiv := p.DdrPllSettings()
	if div2 != 1 || fbdiv != 0x48 {
		t.Errorf("Expected div2 1 fbdiv 0x48, got %d %#x", div2, fbdiv)
	}
}
