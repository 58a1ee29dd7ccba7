// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
)

func steps(lo, hi uint32) func(uint32) bool {
	return func(s uint32) bool {
		return s >= lo && s <= hi
	}
}

func TestIllWindow(t *testing.T) {
	for _, tc := range []struct {
		name    string
		pass    func(uint32) bool
		want    uint32
		anyPass bool
	}{
		{"wide window", steps(10, 19), 14, true},
		{"first wide window wins", func(s uint32) bool { return steps(10, 19)(s) || steps(30, 50)(s) }, 14, true},
		{"short window", steps(30, 32), 31, true},
		{"widest short window", func(s uint32) bool { return steps(5, 6)(s) || steps(40, 42)(s) }, 41, true},
		{"window up to the last step", steps(55, 63), 58, true},
		{"always passing", steps(0, 63), 30, true},
		{"never passing", steps(1, 0), 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var w illWindow
			for s := uint32(0); s < illIterations; s++ {
				w.add(s, tc.pass(s))
			}
			if got := w.center(); got != tc.want {
				t.Errorf("Expected center %d, got %d", tc.want, got)
			}
			if w.passed != tc.anyPass {
				t.Errorf("Expected passed %v, got %v", tc.anyPass, w.passed)
			}
		})
	}
}

func TestIllSetting(t *testing.T) {
	for _, tc := range []struct {
		step       uint32
		gen2       bool
		ill, ill12 uint32
	}{
		{0, false, 0x04, 0x00},
		{31, false, 0xFC, 0x00},
		{32, false, 0x04, 0x10},
		{0, true, 0x04, 0x01},
		{31, true, 0xFC, 0x01},
		{32, true, 0x04, 0x02},
	} {
		ill, ill12 := illSetting(tc.step, tc.gen2)
		if ill != tc.ill || ill12 != tc.ill12 {
			t.Errorf("Step %d gen2 %v: expected %#x/%#x, got %#x/%#x", tc.step, tc.gen2, tc.ill, tc.ill12, ill, ill12)
		}
	}
}

func TestBistStaticSettings(t *testing.T) {
	m := fakeMemory(t)
	p := OpenWithMemory(m)

	m.FakeRead32(0xFD407004, 0xFF)
	m.ExpectWrite32(0xFD407004, 0x1F)
	m.ExpectWrite32(0xFD407068, 0x1)
	m.ExpectWrite32(0xFD40706C, 0x1)
	m.ExpectWrite32(0xFD4050AC, 0x20)
	for i, v := range bistPattern {
		m.ExpectWrite32(0xFD407008+uintptr(i)*4, v)
	}
	m.FakeRead32(0xFD407004, 0xE1)
	m.ExpectWrite32(0xFD407004, 0x01)

	if err := p.BistStaticSettings(1); err != nil {
		t.Fatal(err)
	}
	m.Done()
	if len(bistPattern) != 17 {
		t.Errorf("Expected 17 pattern registers up to 0x3048, got %d", len(bistPattern))
	}
	if err := p.BistStaticSettings(SERDES_LANES); err == nil {
		t.Error("Expected lane 4 to be rejected")
	}
}

// illStep recovers the sweep step from the gen1 ILL registers of lane.
func illStep(sim *mmio.Sim, lane int) uint32 {
	v := sim.Get(serdesLane(lane, laneIllE1))
	if sim.Get(serdesLane(lane, laneIll12))&0xF0 == 0x10 {
		v += 0x100
	}
	return (v - 4) / 8
}

// passOn makes the BIST of lane report one good packet whenever pass
// accepts the current sweep step.
func passOn(sim *mmio.Sim, lane int, pass func(uint32) bool) {
	sim.OnRead(serdesLane(lane, 0x304C), func(n int, v uint32) uint32 {
		if pass(illStep(sim, lane)) {
			return 1
		}
		return 0
	})
}

func illPsu() (*mmio.Sim, *Psu) {
	sim := NewSimulator()
	return sim, OpenWithMemory(sim, WithClock(&recClock{}), spinPolicy(3))
}

func TestIllSweep(t *testing.T) {
	sim, p := illPsu()
	passOn(sim, 0, steps(10, 19))
	passOn(sim, 2, steps(30, 32))
	sim.Set(serdesLane(1, laneIllE1), 0x5A)

	centers, err := p.IllSweep(context.Background(), 0, [SERDES_LANES]bool{true, false, true, false}, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([SERDES_LANES]uint32{14, 0, 31, 0}, centers); diff != "" {
		t.Errorf("Centers mismatch (-want +got):\n%s", diff)
	}
	for _, tc := range []struct {
		reg  uintptr
		want uint32
	}{
		{serdesLane(0, laneIllE1), 0x74},
		{serdesLane(2, laneIllE1), 0xFC},
		{serdesLane(1, laneIllE1), 0x5A},
		{serdesLane(0, laneIllForce), 0},
		{serdesLane(0, 0x3068), 1},
		{serdesLane(2, laneBistGen), 0},
		{SERDES_PLL_RST_CTRL, 0},
	} {
		if got := sim.Get(tc.reg); got != tc.want {
			t.Errorf("Register %08x expected %08x, got %08x", tc.reg, tc.want, got)
		}
	}
	if n := sim.Reads(serdesLane(0, 0x23E4)); n != illIterations {
		t.Errorf("Expected %d lane resets, got %d", illIterations, n)
	}
	if n := sim.Reads(serdesLane(1, 0x304C)); n != 0 {
		t.Errorf("Inactive lane 1 ran BIST %d times", n)
	}
}

func TestIllSweepBadPll(t *testing.T) {
	_, p := illPsu()
	if _, err := p.IllSweep(context.Background(), 4, [SERDES_LANES]bool{true}, 0, false); err == nil {
		t.Error("Expected pll select 4 to be rejected")
	}
}

func TestIllCalib(t *testing.T) {
	for _, tc := range []struct {
		name   string
		lanes  [SERDES_LANES]LaneConfig
		setup  func(sim *mmio.Sim)
		want   map[uintptr]uint32
		resets map[int]int
	}{
		{
			name:  "sata lane 1 at rate 3",
			lanes: [SERDES_LANES]LaneConfig{1: {ProtoSATA, 3}},
			setup: func(sim *mmio.Sim) {
				passOn(sim, 1, steps(40, 49))
				sim.Set(serdesLane(1, laneFracMsb), 0x55)
				sim.Set(SERDES_BASE+0x10004, 0xE3)
				sim.Set(serdesLane(1, laneIqIll1), 0x11)
				sim.Set(serdesLane(1, laneIllE1), 0x22)
				sim.Set(serdesLane(1, laneTxDig61), 0x0F)
				sim.Set(serdesLane(1, laneTmDig6), 0x0F)
				sim.Set(serdesLane(1, laneIll12), 0xA0)
			},
			want: map[uintptr]uint32{
				serdesLane(1, 0x1910):      0xF3,
				serdesLane(1, 0x1940):      0xF3,
				serdesLane(1, laneFracMsb): 0x55,
				SERDES_BASE + 0x10004:      0xE3,
				serdesLane(1, laneIqIll1):  0x11,
				serdesLane(1, laneTxDig61): 0x0F,
				serdesLane(1, laneTmDig6):  0x0F,
				// Step 44 carried over to the gen2 register.
				serdesLane(1, laneIllE2): 0x64,
				serdesLane(1, laneIllE1): 0x22,
				serdesLane(1, laneIll12): 0xA1,
				serdesLane(1, 0x198C):    0x20,
				serdesLane(1, 0x192C):    0x94,
			},
			resets: map[int]int{1: illIterations, 0: 0},
		},
		{
			name:  "pcie gen2 on lane 0 and usb on lane 3",
			lanes: [SERDES_LANES]LaneConfig{0: {ProtoPCIe, 1}, 3: {ProtoUSB, 0}},
			setup: func(sim *mmio.Sim) {
				passOn(sim, 0, steps(0, 63))
			},
			want: map[uintptr]uint32{
				serdesLane(0, 0x1914):    0xF3,
				serdesLane(0, laneIllE1): 0xF4,
				serdesLane(0, laneIllE2): 0xF4,
				serdesLane(0, laneIll12): 0x01,
				serdesLane(3, 0x1914):    0xF3,
				serdesLane(3, 0x1940):    0xF3,
				serdesLane(3, laneIll12): 0x20,
				serdesLane(3, laneIllE1): 0x37,
			},
			resets: map[int]int{0: 2 * illIterations},
		},
		{
			name:  "no calibrated lanes",
			lanes: [SERDES_LANES]LaneConfig{0: {ProtoDP, 0}, 2: {ProtoSGMII, 0}},
			want: map[uintptr]uint32{
				serdesLane(0, 0x1910): 0,
				serdesLane(2, 0x1910): 0,
			},
			resets: map[int]int{0: 0, 2: 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sim, p := illPsu()
			if tc.setup != nil {
				tc.setup(sim)
			}
			if err := p.IllCalib(context.Background(), tc.lanes); err != nil {
				t.Fatal(err)
			}
			for reg, want := range tc.want {
				if got := sim.Get(reg); got != want {
					t.Errorf("Register %08x expected %08x, got %08x", reg, want, got)
				}
			}
			for lane, want := range tc.resets {
				if n := sim.Reads(serdesLane(lane, 0x23E4)); n != want {
					t.Errorf("Expected %d resets locked on lane %d, got %d", want, lane, n)
				}
			}
		})
	}
}
