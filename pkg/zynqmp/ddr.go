// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"fmt"
)

const (
	DDRC_STAT    = DDRC_BASE + 0x004
	DDRC_MRCTRL0 = DDRC_BASE + 0x010
	DDRC_MRCTRL1 = DDRC_BASE + 0x014
	DDRC_MRSTAT  = DDRC_BASE + 0x018

	DDR_PHY_PIR     = DDR_PHY_BASE + 0x004
	DDR_PHY_PGSR0   = DDR_PHY_BASE + 0x030
	DDR_PHY_GPR1    = DDR_PHY_BASE + 0x0C4
	DDR_PHY_DX0GSR0 = DDR_PHY_BASE + 0x7E0
	DDR_PHY_DX2GSR0 = DDR_PHY_BASE + 0x9E0

	// PIR: PLL init, then the same with INIT set to kick it off.
	PIR_PLL_INIT       uint32 = 0x00040010
	PIR_PLL_INIT_START uint32 = 0x00040011

	PGSR0_IDONE   uint32 = 1 << 0
	PGSR0_APLOCK  uint32 = 1 << 31
	DXGSR0_DPLOCK uint32 = 1 << 16
	// Training error flags live in PGSR0[28:18].
	PGSR0_ERR_MASK  uint32 = 0x1FFF0000
	PGSR0_ERR_SHIFT        = 18

	DDR_PHY_LANES = 9
)

// DdrPhyPllLock initializes the PHY PLLs and retries until the PHY and the
// byte lane PLLs report lock. The retries left are recorded in GPR1[31:16]
// for later inspection.
func (p *Psu) DdrPhyPllLock(ctx context.Context, retries int) error {
	left := retries
	locked := false
	for left > 0 && !locked {
		p.Write32(DDR_PHY_PIR, PIR_PLL_INIT)
		p.Write32(DDR_PHY_PIR, PIR_PLL_INIT_START)
		if err := p.MaskPoll(ctx, DDR_PHY_PGSR0, PGSR0_IDONE); err != nil {
			return fmt.Errorf("ddr phy pll init: %w", err)
		}
		// All three are read on every try.
		pgsr0 := p.Read32(DDR_PHY_PGSR0)
		dx0 := p.Read32(DDR_PHY_DX0GSR0)
		dx2 := p.Read32(DDR_PHY_DX2GSR0)
		locked = pgsr0&PGSR0_APLOCK != 0 && dx0&DXGSR0_DPLOCK != 0 && dx2&DXGSR0_DPLOCK != 0
		left--
	}
	p.Write32(DDR_PHY_GPR1, p.Read32(DDR_PHY_GPR1)|uint32(left)<<16)
	if !locked {
		return fmt.Errorf("ddr phy pll not locked after %d tries", retries)
	}
	log.Debugf("DDR PHY PLL locked with %d retries left", left)
	return nil
}

// TrainingError is a DDR PHY training failure reported in PGSR0.
type TrainingError struct {
	PGSR0 uint32
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("ddr training error, PGSR0 %08x", e.PGSR0)
}

// DdrTrainingCheck fails if PGSR0 reports any training error.
func (p *Psu) DdrTrainingCheck() error {
	v := p.Read32(DDR_PHY_PGSR0)
	if (v&PGSR0_ERR_MASK)>>PGSR0_ERR_SHIFT != 0 {
		return &TrainingError{v}
	}
	return nil
}

// DdrModeRegisterWrite issues one mode register write through the
// controller and waits for it to complete.
func (p *Psu) DdrModeRegisterWrite(ctx context.Context, ctrl uint32, data uint32) error {
	p.Write32(DDRC_MRCTRL1, data)
	p.Write32(DDRC_MRCTRL0, ctrl)
	if err := p.MaskPollOnValue(ctx, DDRC_MRSTAT, 0x1, 0); err != nil {
		return fmt.Errorf("mode register write %08x: %w", data, err)
	}
	return nil
}

// LaneDelay is the write DQS calibration result of one byte lane.
type LaneDelay struct {
	// Wdqsl is the coarse delay in units of Iprd.
	Wdqsl uint32
	// Lcdl is the fine delay line setting.
	Lcdl uint32
	// Iprd is the measured period of one coarse step.
	Iprd uint32
}

// Absolute returns the delay in delay line ticks.
func (l LaneDelay) Absolute() int {
	return int(l.Wdqsl)*int(l.Iprd) + int(l.Lcdl)
}

func dxBase(lane int) uintptr {
	return DDR_PHY_BASE + 0x700 + uintptr(lane)*0x100
}

const (
	dxGTR0   = 0xC0
	dxLCDLR1 = 0x84
	dxMDLR0  = 0xA0

	GTR0_WDQSL_MASK   uint32 = 0x07000000
	GTR0_WDQSL_SHIFT         = 24
	LCDLR1_WDQD_MASK  uint32 = 0x000001FF
	MDLR0_IPRD_MASK   uint32 = 0x000001FF
)

func checkLane(lane int) error {
	if lane < 0 || lane >= DDR_PHY_LANES {
		return fmt.Errorf("ddr phy lane %d out of range", lane)
	}
	return nil
}

// ReadLaneDelay reads the calibrated write DQS delay of a byte lane.
func (p *Psu) ReadLaneDelay(lane int) (LaneDelay, error) {
	if err := checkLane(lane); err != nil {
		return LaneDelay{}, err
	}
	b := dxBase(lane)
	return LaneDelay{
		Wdqsl: p.MaskRead(b+dxGTR0, GTR0_WDQSL_MASK) >> GTR0_WDQSL_SHIFT,
		Lcdl:  p.MaskRead(b+dxLCDLR1, LCDLR1_WDQD_MASK),
		Iprd:  p.MaskRead(b+dxMDLR0, MDLR0_IPRD_MASK),
	}, nil
}

// AverageDelay returns the mean absolute delay of two lanes. The halving
// truncates toward zero.
func AverageDelay(a, b LaneDelay) int {
	absA := a.Absolute()
	absB := b.Absolute()
	return (absB-absA)/2 + absA
}

// WdqsAverage works around LPDDR4 write DQS calibration: the targets get
// the mean delay of the two reference lanes, as a pure fine delay.
// Nothing is written if the mean does not fit the fine delay line.
func (p *Psu) WdqsAverage(refA, refB int, targets ...int) (int, error) {
	a, err := p.ReadLaneDelay(refA)
	if err != nil {
		return 0, err
	}
	b, err := p.ReadLaneDelay(refB)
	if err != nil {
		return 0, err
	}
	for _, t := range targets {
		if err := checkLane(t); err != nil {
			return 0, err
		}
	}
	mean := AverageDelay(a, b)
	if mean < 0 || uint32(mean) > LCDLR1_WDQD_MASK {
		return mean, fmt.Errorf("mean write dqs delay %d of lanes %d and %d does not fit the delay line", mean, refA, refB)
	}
	for _, t := range targets {
		base := dxBase(t)
		p.MaskWrite(base+dxGTR0, GTR0_WDQSL_MASK, 0)
		p.MaskWrite(base+dxLCDLR1, LCDLR1_WDQD_MASK, uint32(mean))
	}
	log.Debugf("WDQS lanes %d/%d averaged to %d ticks, applied to %v", refA, refB, mean, targets)
	return mean, nil
}
