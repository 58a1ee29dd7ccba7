// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"errors"
	"fmt"
)

// LaneProtocol is the protocol a SERDES lane is configured for.
type LaneProtocol uint32

const (
	ProtoNone LaneProtocol = iota
	ProtoPCIe
	ProtoSATA
	ProtoUSB
	ProtoDP
	ProtoSGMII
)

// LaneConfig is the protocol and rate of one SERDES lane.
type LaneConfig struct {
	Protocol LaneProtocol
	Rate     uint32
}

// Per lane offsets, relative to serdesLane.
const (
	laneIllForce  uintptr = 0x1018
	laneTmDig6    uintptr = 0x106C
	laneBistGen   uintptr = 0x10AC
	laneIqIll1    uintptr = 0x18F8
	laneIllE1     uintptr = 0x1924
	laneIllE2     uintptr = 0x1928
	laneIll12     uintptr = 0x1990
	laneFracMsb   uintptr = 0x2360
	laneTxDig61   uintptr = 0x00F4
	laneBistCtrl  uintptr = 0x3004
	laneBistStart uintptr = 0x3008

	illIterations = 64
)

// bistPattern fills the BIST pattern and count registers from laneBistStart
// on.
var bistPattern = []uint32{
	0x00, 0xF4, 0x00, 0x00, 0x00, 0xFB, 0xFF, 0x00, 0x00,
	0x00, 0x4A, 0x4A, 0x4A, 0x4A, 0x00, 0x14, 0x02,
}

// BistStaticSettings loads the BIST pattern of lane with the test stopped.
func (p *Psu) BistStaticSettings(lane int) error {
	if err := checkSerdesLane(lane); err != nil {
		return err
	}
	ctrl := serdesLane(lane, laneBistCtrl)
	p.Write32(ctrl, p.Read32(ctrl)&0xFFFFFF1F)
	p.Write32(serdesLane(lane, 0x3068), 0x1)
	p.Write32(serdesLane(lane, 0x306C), 0x1)
	p.Write32(serdesLane(lane, laneBistGen), 0x0020)
	for i, v := range bistPattern {
		p.Write32(serdesLane(lane, laneBistStart+uintptr(i)*4), v)
	}
	p.Write32(ctrl, p.Read32(ctrl)&0xFFFFFF1F)
	return nil
}

// bistClear undoes BistStaticSettings and hands the lane back to its
// protocol.
func (p *Psu) bistClear(lane int) {
	for off := laneBistCtrl; off <= 0x3058; off += 4 {
		p.Write32(serdesLane(lane, off), 0)
	}
	p.Write32(serdesLane(lane, 0x3068), 1)
	p.Write32(serdesLane(lane, 0x306C), 0)
	p.Write32(serdesLane(lane, laneBistGen), 0)
	l := bistLanes[lane]
	p.MaskWrite(SERDES_BASE+0x10044, l.fieldMask, l.fieldMask&0x55)
	p.MaskWrite(SERDES_BASE+0x10040, l.fieldMask, l.fieldMask&0x55)
	p.MaskWrite(l.selectReg, l.selectMask, 0)
}

// illSetting returns the ILL value and the ILL12 bits for one step of the
// sweep. Gen2 sweeps the second ILL register, starting 0x100 higher.
func illSetting(step uint32, gen2 bool) (ill, ill12 uint32) {
	if gen2 {
		v := 0x104 + step*8
		ill12 = 0x1
		if v >= 0x200 {
			ill12 = 0x2
		}
		return v % 0x100, ill12
	}
	v := 0x04 + step*8
	if v >= 0x100 {
		ill12 = 0x10
	}
	return v % 0x100, ill12
}

func (p *Psu) setIll(lane int, step uint32, gen2 bool) {
	ill, ill12 := illSetting(step, gen2)
	if gen2 {
		p.Write32(serdesLane(lane, laneIllE2), ill)
		p.MaskWrite(serdesLane(lane, laneIll12), 0x0F, ill12)
		return
	}
	p.Write32(serdesLane(lane, laneIllE1), ill)
	p.MaskWrite(serdesLane(lane, laneIll12), 0xF0, ill12)
}

// illWindow follows the BIST results of one lane across the sweep.
type illWindow struct {
	prev      bool
	passed    bool
	passes    uint32
	mean      uint32
	alt       uint32
	altPasses uint32
}

func (w *illWindow) add(step uint32, pass bool) {
	w.passed = w.passed || pass
	if pass && w.prev {
		w.passes++
	}
	// Runs shorter than 4 only count if nothing wider shows up.
	if w.passes < 4 && !pass && step > 2 {
		if w.altPasses < w.passes {
			w.altPasses = w.passes
			w.alt = step - 1 - (w.passes+1)/2
		}
		w.passes = 0
	}
	if w.mean == 0 && w.passes >= 4 && (!pass || step == illIterations-1) && w.prev {
		w.mean = step - 1 - (w.passes+1)/2
	}
	w.prev = pass
}

// center is the step in the middle of the first pass window of at least
// 4 steps, or of the widest shorter one.
func (w *illWindow) center() uint32 {
	if w.mean != 0 {
		return w.mean
	}
	return w.alt
}

// IllSweep calibrates the ILL setting of the active lanes. It steps
// through 64 settings, resetting the lanes and running BIST at each, and
// leaves every lane at the center of its pass window. The chosen step of
// each lane is returned.
func (p *Psu) IllSweep(ctx context.Context, pllsel int, active [SERDES_LANES]bool, lane0Rate uint32, gen2 bool) ([SERDES_LANES]uint32, error) {
	var centers [SERDES_LANES]uint32
	var windows [SERDES_LANES]illWindow
	if err := checkSerdesLane(pllsel); err != nil {
		return centers, fmt.Errorf("pll select: %w", err)
	}
	for lane, on := range active {
		if on {
			p.BistStaticSettings(lane)
		}
	}

	for step := uint32(0); step < illIterations; step++ {
		for lane, on := range active {
			if on {
				p.setIll(lane, step, gen2)
			}
		}
		for lane, on := range active {
			if on {
				p.MaskWrite(serdesLane(lane, laneIllForce), 0x30, 0x10)
			}
		}
		if err := p.ResetSequence(ctx, pllsel, lane0Rate); err != nil {
			return centers, fmt.Errorf("ill step %d: %w", step, err)
		}
		for lane := SERDES_LANES - 1; lane >= 0; lane-- {
			if !active[lane] {
				continue
			}
			if err := p.BistRun(ctx, lane); err != nil {
				return centers, fmt.Errorf("ill step %d: %w", step, err)
			}
		}
		var pass [SERDES_LANES]bool
		for lane := SERDES_LANES - 1; lane >= 0; lane-- {
			if !active[lane] {
				continue
			}
			var be *BistError
			switch err := p.BistResult(lane); {
			case err == nil:
				pass[lane] = true
			case !errors.As(err, &be):
				return centers, fmt.Errorf("ill step %d: %w", step, err)
			}
		}
		p.Write32(SERDES_PLL_RST_CTRL, 0x0)
		p.Write32(SERDES_PLL_RST_CTRL, 0x2)
		for lane := range windows {
			windows[lane].add(step, pass[lane])
		}
	}

	for lane, on := range active {
		if !on {
			continue
		}
		if !windows[lane].passed {
			log.Warnf("SERDES lane %d never passed BIST during ILL calibration", lane)
		}
		centers[lane] = windows[lane].center()
		p.setIll(lane, centers[lane], gen2)
	}
	for lane, on := range active {
		if on {
			p.MaskWrite(serdesLane(lane, laneIllForce), 0x30, 0)
		}
	}
	p.Write32(SERDES_PLL_RST_CTRL, 0)
	for lane, on := range active {
		if on {
			p.bistClear(lane)
		}
	}
	log.Debugf("SERDES ILL calibration (gen2 %v) settled on %v", gen2, centers)
	return centers, nil
}

// sataIllCalib runs the gen1 sweep on a SATA lane with the PLL in its
// calibration setup, then carries the result over to the gen2 ILL register.
func (p *Psu) sataIllCalib(ctx context.Context, lane int) error {
	fracMsb := serdesLane(lane, laneFracMsb)
	refSel := SERDES_BASE + 0x10000 + uintptr(lane)*4
	iqIll1 := serdesLane(lane, laneIqIll1)
	eIll1 := serdesLane(lane, laneIllE1)
	txDig61 := serdesLane(lane, laneTxDig61)
	tmDig6 := serdesLane(lane, laneTmDig6)
	ill12 := serdesLane(lane, laneIll12)

	savedFrac := p.Read32(fracMsb)
	p.Write32(fracMsb, 0)
	savedRef := p.Read32(refSel)
	p.MaskWrite(refSel, 0x1F, 0xD)
	savedIq := p.Read32(iqIll1)
	savedE := p.Read32(eIll1)
	p.Write32(iqIll1, 0x78)
	savedTx := p.Read32(txDig61)
	savedDig6 := p.Read32(tmDig6)
	p.MaskWrite(txDig61, 0xB, 0)
	p.MaskWrite(tmDig6, 0xF, 0)
	hi := p.Read32(ill12) & 0xF0

	var active [SERDES_LANES]bool
	active[lane] = true
	if _, err := p.IllSweep(ctx, lane, active, 0, false); err != nil {
		return fmt.Errorf("sata lane %d ill calibration: %w", lane, err)
	}

	p.Write32(fracMsb, savedFrac)
	p.Write32(refSel, savedRef)
	p.Write32(iqIll1, savedIq)
	p.Write32(txDig61, savedTx)
	p.Write32(tmDig6, savedDig6)
	p.Write32(serdesLane(lane, laneIllE2), p.Read32(eIll1))
	p.Write32(ill12, hi|(p.Read32(ill12)>>4)&0xF)
	p.Write32(eIll1, savedE)
	return nil
}

// IllCalib calibrates the ILL settings of all lanes for their protocols:
// SATA lanes are swept one by one, PCIe lanes together through lane 0's
// PLL and again at gen2 if lane 0 runs faster than gen1. USB lanes get
// fixed settings.
func (p *Psu) IllCalib(ctx context.Context, lanes [SERDES_LANES]LaneConfig) error {
	for lane, l := range lanes {
		if l.Protocol == ProtoPCIe || l.Protocol == ProtoSATA {
			for _, off := range []uintptr{0x1910, 0x193C, 0x1914, 0x1940} {
				p.Write32(serdesLane(lane, off), 0xF3)
			}
		}
	}
	for lane, l := range lanes {
		if l.Protocol == ProtoSATA {
			if err := p.sataIllCalib(ctx, lane); err != nil {
				return err
			}
		}
	}
	p.Write32(SERDES_PLL_RST_CTRL, p.Read32(SERDES_PLL_RST_CTRL)&0xDF)

	for lane, l := range lanes {
		if l.Protocol == ProtoSATA && l.Rate == 3 {
			p.MaskWrite(serdesLane(lane, 0x198C), 0xF0, 0x20)
			p.MaskWrite(serdesLane(lane, 0x192C), 0xFF, 0x94)
		}
	}

	if lanes[0].Protocol == ProtoPCIe {
		var active [SERDES_LANES]bool
		for lane, l := range lanes {
			active[lane] = l.Protocol == ProtoPCIe
		}
		if _, err := p.IllSweep(ctx, 0, active, 0, false); err != nil {
			return fmt.Errorf("pcie gen1 ill calibration: %w", err)
		}
		if lanes[0].Rate != 0 {
			if _, err := p.IllSweep(ctx, 0, active, lanes[0].Rate, true); err != nil {
				return fmt.Errorf("pcie gen2 ill calibration: %w", err)
			}
		}
	}

	for lane, l := range lanes {
		if l.Protocol == ProtoUSB {
			p.Write32(serdesLane(lane, 0x1914), 0xF3)
			p.Write32(serdesLane(lane, 0x1940), 0xF3)
			p.Write32(serdesLane(lane, laneIll12), 0x20)
			p.Write32(serdesLane(lane, laneIllE1), 0x37)
		}
	}
	return nil
}
