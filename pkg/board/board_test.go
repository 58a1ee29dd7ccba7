// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/u-root/psuinit/pkg/sequence"
	"github.com/u-root/psuinit/pkg/zynqmp"
	"go.uber.org/multierr"
)

var testOpts = CompileOptions{
	Registers: zynqmp.RegisterByName,
	Actions:   []string{"pll-program"},
	Stages:    []string{"mio", "pll", "ddr"},
}

func TestLoadFile(t *testing.T) {
	p, err := LoadFile("testdata/good.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "test-board" {
		t.Errorf("Expected test-board, got %q", p.Name)
	}
	if diff := cmp.Diff([]string{"mio", "pll"}, p.StageNames()); diff != "" {
		t.Errorf("Stage names mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.Stage("ddr"); ok {
		t.Error("Expected no ddr stage")
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/boards/min.yaml", []byte("name: min\nstages: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(fs, "/boards/min.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "min" {
		t.Errorf("Expected min, got %q", p.Name)
	}
	if _, err := Load(fs, "/boards/missing.yaml"); err == nil {
		t.Error("Expected a missing file to fail")
	}
}

func TestParseStrict(t *testing.T) {
	for _, data := range []string{
		"name: x\nstages:\n  - name: mio\n    stepz: []\n",
		"stages: []\n",
		"name: [unterminated\n",
	} {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("Expected %q to be rejected", data)
		}
	}
}

func TestCompile(t *testing.T) {
	p, err := LoadFile("testdata/good.yaml")
	if err != nil {
		t.Fatal(err)
	}
	seqs, err := Compile(p, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	want := []sequence.Sequence{
		{Name: "mio", Steps: []sequence.Step{
			{Name: "MIO pin 0 mux", Op: sequence.OpWrite, Addr: 0xFF180000, Mask: 0xFE, Value: 0x2},
			{Name: "out IOU_SLCR.MIO_PIN_1", Op: sequence.OpOut, Addr: 0xFF180004, Value: 0x4},
		}},
		{Name: "pll", Steps: []sequence.Step{
			{Name: "save CRF_APB.DPLL_CTRL", Op: sequence.OpSave, Addr: zynqmp.DPLL.Ctrl, Mask: 0x7F00, Shift: 8, Slot: "fbdiv"},
			{Name: "prog CRF_APB.DPLL_CTRL", Op: sequence.OpProg, Addr: zynqmp.DPLL.Ctrl, Mask: 0x10000, Shift: 16, Value: 1},
			{Name: "poll CRF_APB.PLL_STATUS", Op: sequence.OpPoll, Addr: zynqmp.DPLL.Status, Mask: 0x2},
			{Op: sequence.OpDelay, DelayUs: 5},
			{Op: sequence.OpCall, Action: "pll-program", Unit: "RPLL", Args: map[string]uint32{
				"cfg":   0x7E672C6C,
				"ctrl":  0x00012C00,
				"cross": 0x00000400,
			}},
		}},
	}
	if diff := cmp.Diff(want, seqs); diff != "" {
		t.Errorf("Compiled sequences mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileErrors(t *testing.T) {
	p, err := LoadFile("testdata/bad.yaml")
	if err != nil {
		t.Fatal(err)
	}
	seqs, err := Compile(p, testOpts)
	if seqs != nil {
		t.Errorf("Expected no sequences, got %d", len(seqs))
	}
	errs := multierr.Errors(err)
	if len(errs) != 10 {
		t.Errorf("Expected 10 problems, got %d: %v", len(errs), err)
	}
	for _, want := range []string{
		"write needs a mask",
		"unknown op \"twiddle\"",
		"both addr",
		"unknown register NOPE.NOTHING",
		"unknown action \"frobnicate\"",
		"stage \"mio\" defined twice",
		"unknown stage \"warp_drive\"",
		"before any save",
		"zero delay",
		"outside mask",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q among the problems", want)
		}
	}
}

func TestCompileStrictMasks(t *testing.T) {
	p, err := Parse([]byte(`
name: masks
stages:
  - name: mio
    steps:
      - op: write
        addr: 0xFF180000
        mask: 0x2
        value: 0x3
      - op: prog
        addr: 0xFF180004
        mask: 0xF0
        shift: 4
        value: 0x1F
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(p, CompileOptions{}); err != nil {
		t.Errorf("Stray bits should only warn, got %v", err)
	}
	_, err = Compile(p, CompileOptions{Strict: true})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Expected 2 strict mask errors, got %d: %v", n, err)
	}
}

func TestCompileRunOrder(t *testing.T) {
	opts := CompileOptions{Stages: []string{"ddr", "ddr_phybringup"}}
	for _, tc := range []struct {
		name    string
		profile string
		wantErr string
	}{
		{
			name: "restore before the save runs",
			profile: `
name: late-save
stages:
  - name: ddr_phybringup
    steps:
      - {op: save, addr: 0xFD080018, slot: x}
  - name: ddr
    steps:
      - {op: restore, addr: 0xFD080018, slot: x}
`,
			wantErr: `restore of slot "x" before any save`,
		},
		{
			name: "save runs first though listed last",
			profile: `
name: early-save
stages:
  - name: ddr_phybringup
    steps:
      - {op: restore, addr: 0xFD080018, slot: y}
  - name: ddr
    steps:
      - {op: save, addr: 0xFD080018, slot: y}
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse([]byte(tc.profile))
			if err != nil {
				t.Fatal(err)
			}
			seqs, err := Compile(p, opts)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected the profile to compile, got %v", err)
				}
				// Sequences keep profile order.
				if seqs[0].Name != "ddr_phybringup" {
					t.Errorf("Expected ddr_phybringup first, got %q", seqs[0].Name)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected %q, got %v", tc.wantErr, err)
			}
		})
	}
}
