// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psuinit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jmhodges/clock"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
	"github.com/u-root/psuinit/pkg/sequence"
	"github.com/u-root/psuinit/pkg/zynqmp"
)

func dx(lane int, off uintptr) uintptr {
	return zynqmp.DDR_PHY_BASE + 0x700 + uintptr(lane)*0x100 + off
}

func serdesReg(l int, off uintptr) uintptr {
	return zynqmp.SERDES_BASE + uintptr(l)*0x4000 + off
}

func actionPsu() (*mmio.Sim, *zynqmp.Psu) {
	sim := zynqmp.NewSimulator()
	return sim, zynqmp.OpenWithMemory(sim,
		zynqmp.WithClock(clock.NewFake()),
		zynqmp.WithPollPolicy(zynqmp.PollPolicy{MaxAttempts: 5}))
}

// callStep runs action as the only step of a sequence, the way a profile
// reaches it.
func callStep(psu *zynqmp.Psu, action, unit string, args map[string]uint32) error {
	r := sequence.NewRunner(psu, Actions(psu))
	return r.Run(context.Background(), sequence.Sequence{Name: "actions", Steps: []sequence.Step{
		{Op: sequence.OpCall, Action: action, Unit: unit, Args: args},
	}})
}

func TestActions(t *testing.T) {
	for _, tc := range []struct {
		name     string
		action   string
		unit     string
		args     map[string]uint32
		setup    func(sim *mmio.Sim)
		want     map[uintptr]uint32
		reads    map[uintptr]int
		wantErr  string
		required []string
	}{
		{
			name:   "pll-program",
			action: "pll-program",
			unit:   "RPLL",
			args:   map[string]uint32{"cfg": 0x7E672C6C, "ctrl": 0x00012C00, "cross": 0x400},
			want: map[uintptr]uint32{
				zynqmp.RPLL.Ctrl: 0x00012C00,
			},
			required: []string{"cfg", "ctrl", "cross"},
		},
		{
			name:    "pll-program on an unknown pll",
			action:  "pll-program",
			unit:    "XPLL",
			args:    map[string]uint32{"cfg": 0, "ctrl": 0, "cross": 0},
			wantErr: `unknown PLL "XPLL"`,
		},
		{
			name:   "ddr-pll-prog",
			action: "ddr-pll-prog",
			args: map[string]uint32{
				"div2": 1, "fbdiv": 0x30, "lock_dly": 0x3F, "lock_cnt": 0x258,
				"lfhf": 0x3, "cp": 0x3, "res": 0xC,
			},
			want: map[uintptr]uint32{
				zynqmp.DPLL.Ctrl: 0x00013000,
				zynqmp.DPLL.Cfg:  0x7E4B0C6C,
			},
			required: []string{"div2", "fbdiv", "lock_dly", "lock_cnt", "lfhf", "cp", "res"},
		},
		{
			name:   "ddr-phy-pll-lock",
			action: "ddr-phy-pll-lock",
			args:   map[string]uint32{"retries": 3},
			want: map[uintptr]uint32{
				zynqmp.DDR_PHY_GPR1: 2 << 16,
				zynqmp.DDR_PHY_PIR:  zynqmp.PIR_PLL_INIT_START,
			},
		},
		{
			name:   "ddr-phy-pll-lock with the default retries",
			action: "ddr-phy-pll-lock",
			want: map[uintptr]uint32{
				zynqmp.DDR_PHY_GPR1: 9 << 16,
			},
		},
		{
			name:   "ddr-phy-pll-lock without a byte lane lock",
			action: "ddr-phy-pll-lock",
			args:   map[string]uint32{"retries": 3},
			setup: func(sim *mmio.Sim) {
				sim.Set(zynqmp.DDR_PHY_DX2GSR0, 0)
			},
			reads:   map[uintptr]int{zynqmp.DDR_PHY_DX2GSR0: 3},
			wantErr: "not locked after 3 tries",
		},
		{
			name:   "ddr-training-check",
			action: "ddr-training-check",
		},
		{
			name:   "ddr-training-check with a training error",
			action: "ddr-training-check",
			setup: func(sim *mmio.Sim) {
				sim.Set(zynqmp.DDR_PHY_PGSR0, zynqmp.PGSR0_IDONE|1<<20)
			},
			wantErr: "ddr training error",
		},
		{
			name:   "ddr-mode-register",
			action: "ddr-mode-register",
			args:   map[string]uint32{"ctrl": 0x80000010, "data": 0x0000ABCD},
			want: map[uintptr]uint32{
				zynqmp.DDRC_MRCTRL0: 0x80000010,
				zynqmp.DDRC_MRCTRL1: 0x0000ABCD,
			},
			required: []string{"ctrl", "data"},
		},
		{
			name:   "ddr-mode-register never completing",
			action: "ddr-mode-register",
			args:   map[string]uint32{"ctrl": 0x80000010, "data": 0x0000ABCD},
			setup: func(sim *mmio.Sim) {
				sim.Set(zynqmp.DDRC_MRSTAT, 0x1)
			},
			wantErr: "mode register write 0000abcd",
		},
		{
			name:   "ddr-wdqs-average",
			action: "ddr-wdqs-average",
			args:   map[string]uint32{"a": 2, "b": 3, "t0": 0, "t1": 1},
			setup: func(sim *mmio.Sim) {
				// 2*32+50 and 3*32+10 ticks.
				sim.Set(dx(2, 0xC0), 2<<24)
				sim.Set(dx(2, 0x84), 50)
				sim.Set(dx(2, 0xA0), 32)
				sim.Set(dx(3, 0xC0), 3<<24)
				sim.Set(dx(3, 0x84), 10)
				sim.Set(dx(3, 0xA0), 32)
				sim.Set(dx(0, 0xC0), 0x05000000)
				sim.Set(dx(1, 0x84), 0xFFFFFE00)
			},
			want: map[uintptr]uint32{
				dx(0, 0xC0): 0,
				dx(0, 0x84): 110,
				dx(1, 0x84): 0xFFFFFE00 | 110,
				dx(2, 0x84): 50,
				dx(3, 0x84): 10,
			},
			required: []string{"a", "b", "t0", "t1"},
		},
		{
			name:    "ddr-wdqs-average onto a lane that does not exist",
			action:  "ddr-wdqs-average",
			args:    map[string]uint32{"a": 2, "b": 3, "t0": 0, "t1": 9},
			want:    map[uintptr]uint32{dx(0, 0x84): 0},
			wantErr: "ddr phy lane 9 out of range",
		},
		{
			name:   "serdes-fixcal",
			action: "serdes-fixcal",
			want: map[uintptr]uint32{
				zynqmp.SERDES_PLL_DIG_37:  0x1,
				zynqmp.SERDES_CALIB_DIG20: 0xF,
			},
			reads: map[uintptr]int{zynqmp.SERDES_CALIB_DONE: 11},
		},
		{
			name:   "serdes-fixcal without the calibration clock",
			action: "serdes-fixcal",
			setup: func(sim *mmio.Sim) {
				sim.Set(zynqmp.SERDES_ANA_BYP_15, 0)
			},
			wantErr: "serdes calibration clock",
		},
		{
			name:   "serdes-coarse-saturation",
			action: "serdes-coarse-saturation",
			want: map[uintptr]uint32{
				serdesReg(0, 0x2094): 0x10,
				serdesReg(1, 0x2094): 0x10,
				serdesReg(2, 0x2094): 0x10,
				serdesReg(3, 0x2094): 0x10,
			},
		},
		{
			name:   "serdes-bist-static",
			action: "serdes-bist-static",
			args:   map[string]uint32{"lane": 3},
			setup: func(sim *mmio.Sim) {
				sim.Set(serdesReg(3, 0x3004), 0xFF)
			},
			want: map[uintptr]uint32{
				serdesReg(3, 0x3004): 0x1F,
				serdesReg(3, 0x3068): 0x1,
				serdesReg(3, 0x306C): 0x1,
				serdesReg(3, 0x10AC): 0x20,
				serdesReg(3, 0x300C): 0xF4,
				serdesReg(3, 0x3048): 0x02,
				serdesReg(2, 0x3068): 0,
			},
			required: []string{"lane"},
		},
		{
			name:   "serdes-bist-run",
			action: "serdes-bist-run",
			args:   map[string]uint32{"lane": 2},
			setup: func(sim *mmio.Sim) {
				sim.Set(zynqmp.SERDES_BASE+0x10040, 0xFF)
			},
			want: map[uintptr]uint32{
				serdesReg(2, 0x10AC):         0x20,
				serdesReg(2, 0x3004):         0x1,
				zynqmp.SERDES_BASE + 0x1003C: 0x01,
				zynqmp.SERDES_BASE + 0x10040: 0xCF,
				serdesReg(1, 0x3004):         0,
			},
			required: []string{"lane"},
		},
		{
			name:    "serdes-bist-run on lane 4",
			action:  "serdes-bist-run",
			args:    map[string]uint32{"lane": 4},
			wantErr: "serdes lane 4 out of range",
		},
		{
			name:   "serdes-bist-result",
			action: "serdes-bist-result",
			args:   map[string]uint32{"lane": 1},
			setup: func(sim *mmio.Sim) {
				sim.Set(serdesReg(1, 0x3004), 0x1)
				sim.Set(serdesReg(1, 0x304C), 5)
			},
			want:     map[uintptr]uint32{serdesReg(1, 0x3004): 0},
			reads:    map[uintptr]int{serdesReg(1, 0x3058): 1, serdesReg(0, 0x304C): 0},
			required: []string{"lane"},
		},
		{
			name:   "serdes-bist-result with errors",
			action: "serdes-bist-result",
			args:   map[string]uint32{"lane": 1},
			setup: func(sim *mmio.Sim) {
				sim.Set(serdesReg(1, 0x304C), 5)
				sim.Set(serdesReg(1, 0x3054), 2)
			},
			wantErr: "serdes lane 1 bist failed: 5 packets, 2 errors",
		},
		{
			name:   "serdes-reset",
			action: "serdes-reset",
			args:   map[string]uint32{"pllsel": 2, "lane0_rate": 0},
			want: map[uintptr]uint32{
				zynqmp.SERDES_PLL_RST_CTRL: 0x6,
				serdesReg(0, 0x1010):       0,
				serdesReg(3, 0x2084):       0,
				serdesReg(0, 0x000C):       0,
			},
			reads:    map[uintptr]int{serdesReg(2, 0x23E4): 1, serdesReg(0, 0x23E4): 0},
			required: []string{"pllsel", "lane0_rate"},
		},
		{
			name:   "serdes-reset at lane 0 rate 1",
			action: "serdes-reset",
			args:   map[string]uint32{"pllsel": 0, "lane0_rate": 1},
			want: map[uintptr]uint32{
				zynqmp.SERDES_PLL_RST_CTRL: 0xF,
				serdesReg(1, 0x000C):       0xC,
			},
			reads: map[uintptr]int{serdesReg(0, 0x23E4): 1},
		},
		{
			name:    "serdes-reset on pll 4",
			action:  "serdes-reset",
			args:    map[string]uint32{"pllsel": 4, "lane0_rate": 0},
			want:    map[uintptr]uint32{zynqmp.SERDES_PLL_RST_CTRL: 0},
			wantErr: "pll select",
		},
		{
			name:   "serdes-illcalib",
			action: "serdes-illcalib",
			args:   map[string]uint32{"lane0_protocol": 1, "lane3_protocol": 3},
			want: map[uintptr]uint32{
				serdesReg(0, 0x1910): 0xF3,
				serdesReg(0, 0x1924): 0x04,
				serdesReg(1, 0x1910): 0,
				serdesReg(3, 0x1910): 0,
				serdesReg(3, 0x1924): 0x37,
				serdesReg(3, 0x1990): 0x20,
			},
			reads: map[uintptr]int{serdesReg(0, 0x304C): 64, serdesReg(3, 0x304C): 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sim, psu := actionPsu()
			if tc.setup != nil {
				tc.setup(sim)
			}
			err := callStep(psu, tc.action, tc.unit, tc.args)
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("Expected %s to succeed, got %v", tc.action, err)
			case tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)):
				t.Errorf("Expected an error containing %q, got %v", tc.wantErr, err)
			}
			for reg, want := range tc.want {
				if got := sim.Get(reg); got != want {
					t.Errorf("Register %08x expected %08x, got %08x", reg, want, got)
				}
			}
			for reg, want := range tc.reads {
				if got := sim.Reads(reg); got != want {
					t.Errorf("Expected %d reads of %08x, got %d", want, reg, got)
				}
			}
		})

		for _, name := range tc.required {
			t.Run(fmt.Sprintf("%s without %s", tc.name, name), func(t *testing.T) {
				args := make(map[string]uint32)
				for k, v := range tc.args {
					if k != name {
						args[k] = v
					}
				}
				sim, psu := actionPsu()
				err := callStep(psu, tc.action, tc.unit, args)
				want := fmt.Sprintf("%s: missing argument %q", tc.action, name)
				if err == nil || !strings.Contains(err.Error(), want) {
					t.Errorf("Expected %q, got %v", want, err)
				}
				if n := len(sim.Writes()); n != 0 {
					t.Errorf("Expected nothing written, got %d writes", n)
				}
			})
		}
	}
}

func TestActionsFromScratch(t *testing.T) {
	sim, psu := actionPsu()
	r := sequence.NewRunner(psu, Actions(psu))
	r.Scratch["lane"] = 2

	if err := r.Run(context.Background(), sequence.Sequence{Name: "bist", Steps: []sequence.Step{
		{Op: sequence.OpCall, Action: "serdes-bist-run"},
	}}); err != nil {
		t.Fatal(err)
	}
	if got := sim.Get(serdesReg(2, 0x10AC)); got != 0x20 {
		t.Errorf("Expected the lane saved in scratch to run BIST, 0x10AC %08x", got)
	}
}
