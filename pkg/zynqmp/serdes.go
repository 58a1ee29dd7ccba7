// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"fmt"
)

const (
	SERDES_LANES = 4
	// Per lane register blocks repeat every 16 KiB.
	serdesLaneStride uintptr = 0x4000

	SERDES_PLL_DIG_37      = SERDES_BASE + 0x289C
	SERDES_ANA_BYP_15      = SERDES_BASE + 0x2B1C
	SERDES_UPHY_SPARE0     = SERDES_BASE + 0x10010
	SERDES_UPHY_SPARE1     = SERDES_BASE + 0x10014
	SERDES_PLL_RST_CTRL    = SERDES_BASE + 0x10098
	SERDES_CALIB_DONE      = SERDES_BASE + 0xEF14
	SERDES_CALIB_PMOS_CODE = SERDES_BASE + 0xEF18
	SERDES_CALIB_NMOS_CODE = SERDES_BASE + 0xEF1C
	SERDES_CALIB_ICAL_CODE = SERDES_BASE + 0xEF24
	SERDES_CALIB_RCAL_CODE = SERDES_BASE + 0xEF28
	SERDES_CALIB_DIG14     = SERDES_BASE + 0xEC38
	SERDES_CALIB_DIG15     = SERDES_BASE + 0xEC3C
	SERDES_CALIB_DIG16     = SERDES_BASE + 0xEC40
	SERDES_CALIB_DIG18     = SERDES_BASE + 0xEC48
	SERDES_CALIB_DIG19     = SERDES_BASE + 0xEC4C
	SERDES_CALIB_DIG20     = SERDES_BASE + 0xEC50

	fixcalSamples = 11
)

func serdesLane(lane int, offset uintptr) uintptr {
	return SERDES_BASE + uintptr(lane)*serdesLaneStride + offset
}

func checkSerdesLane(lane int) error {
	if lane < 0 || lane >= SERDES_LANES {
		return fmt.Errorf("serdes lane %d out of range", lane)
	}
	return nil
}

// codeRange is a histogram over the calibration codes lo..hi.
type codeRange struct {
	lo, hi uint32
	hits   []int
}

func newCodeRange(lo, hi uint32) *codeRange {
	return &codeRange{lo, hi, make([]int, hi-lo+1)}
}

func (c *codeRange) add(code uint32) {
	if code >= c.lo && code <= c.hi {
		c.hits[code-c.lo]++
	}
}

// vote returns the most frequent code. Ties go to the higher code, and an
// empty histogram votes for hi.
func (c *codeRange) vote() uint32 {
	best := 0
	code := c.lo
	for i, n := range c.hits {
		if n >= best {
			best = n
			code = c.lo + uint32(i)
		}
	}
	return code
}

// CalibCodes are the SERDES impedance calibration results.
type CalibCodes struct {
	Pmos, Nmos, Ical, Rcal uint32
}

// FixcalCode runs the SERDES impedance calibration a number of times, takes
// a majority vote per code and pins the winners so the hardware calibration
// is bypassed.
func (p *Psu) FixcalCode(ctx context.Context) (CalibCodes, error) {
	p.Write32(SERDES_PLL_DIG_37, p.Read32(SERDES_PLL_DIG_37)&^0x3|0x1)
	if err := p.MaskPollOnValue(ctx, SERDES_ANA_BYP_15, 0xE, 0xE); err != nil {
		return CalibCodes{}, fmt.Errorf("serdes calibration clock: %w", err)
	}

	pmos := newCodeRange(0x26, 0x3C)
	nmos := newCodeRange(0x26, 0x3C)
	ical := newCodeRange(0xC, 0x12)
	rcal := newCodeRange(0x6, 0xC)
	for i := 0; i < fixcalSamples; i++ {
		p.Write32(SERDES_UPHY_SPARE0, 0)
		p.Write32(SERDES_UPHY_SPARE1, 0)
		p.Write32(SERDES_UPHY_SPARE0, 1)
		p.Write32(SERDES_UPHY_SPARE1, 0)
		if err := p.MaskPoll(ctx, SERDES_CALIB_DONE, 0x2); err != nil {
			log.Errorf("SERDES initialization timed out")
			return CalibCodes{}, fmt.Errorf("serdes calibration sample %d: %w", i, err)
		}
		pmos.add(p.Read32(SERDES_CALIB_PMOS_CODE))
		nmos.add(p.Read32(SERDES_CALIB_NMOS_CODE))
		ical.add(p.Read32(SERDES_CALIB_ICAL_CODE))
		rcal.add(p.Read32(SERDES_CALIB_RCAL_CODE))
	}

	c := CalibCodes{pmos.vote(), nmos.vote(), ical.vote(), rcal.vote()}
	dig20 := p.MaskRead(SERDES_CALIB_DIG20, 0xFFFFFFF0) | 0x8 | (c.Pmos>>2)&0x7
	dig19 := p.MaskRead(SERDES_CALIB_DIG19, 0xFFFFFF18) | (c.Pmos&0x3)<<6 | 0x20 | 0x4 | (c.Nmos>>3)&0x3
	dig18 := p.MaskRead(SERDES_CALIB_DIG18, 0xFFFFFF0F) | (c.Nmos&0x7)<<5 | 0x10
	dig16 := p.MaskRead(SERDES_CALIB_DIG16, 0xFFFFFFF8) | (c.Rcal>>1)&0x7
	dig15 := p.MaskRead(SERDES_CALIB_DIG15, 0xFFFFFF30) | (c.Rcal&0x1)<<7 | 0x40 | 0x8 | (c.Ical>>1)&0x7
	dig14 := p.MaskRead(SERDES_CALIB_DIG14, 0xFFFFFF3F) | (c.Ical&0x1)<<7 | 0x40

	p.Write32(SERDES_CALIB_DIG20, dig20)
	p.Write32(SERDES_CALIB_DIG19, dig19)
	p.Write32(SERDES_CALIB_DIG18, dig18)
	p.Write32(SERDES_CALIB_DIG16, dig16)
	p.Write32(SERDES_CALIB_DIG15, dig15)
	p.Write32(SERDES_CALIB_DIG14, dig14)
	log.Debugf("SERDES calibration codes %+v", c)
	return c, nil
}

// EnableCoarseSaturation sets the coarse code saturation of every lane PLL.
func (p *Psu) EnableCoarseSaturation() {
	for lane := 0; lane < SERDES_LANES; lane++ {
		p.Write32(serdesLane(lane, 0x2094), 0x10)
	}
}

// bistLane holds the per lane BIST settings. Lanes share the enable
// registers, each owning one bit field.
type bistLane struct {
	fieldMask  uint32
	selectReg  uintptr
	selectMask uint32
	selectVal  uint32
}

var bistLanes = [SERDES_LANES]bistLane{
	{0x03, SERDES_BASE + 0x10038, 0x07, 0x01},
	{0x0C, SERDES_BASE + 0x10038, 0x70, 0x10},
	{0x30, SERDES_BASE + 0x1003C, 0x07, 0x01},
	{0xC0, SERDES_BASE + 0x1003C, 0x70, 0x10},
}

// BistRun starts the built-in PRBS self test on lane.
func (p *Psu) BistRun(ctx context.Context, lane int) error {
	if err := checkSerdesLane(lane); err != nil {
		return err
	}
	l := bistLanes[lane]
	p.MaskWrite(SERDES_BASE+0x10044, l.fieldMask, 0)
	p.MaskWrite(SERDES_BASE+0x10040, l.fieldMask, 0)
	p.MaskWrite(l.selectReg, l.selectMask, l.selectVal)
	p.Write32(serdesLane(lane, 0x10AC), 0x0020)
	ctrl := serdesLane(lane, 0x3004)
	p.Write32(ctrl, p.Read32(ctrl)|0x1)
	return p.MaskDelay(ctx, 100)
}

// BistError is a failed SERDES self test.
type BistError struct {
	Lane    int
	Packets uint64
	Errors  uint64
}

func (e *BistError) Error() string {
	return fmt.Sprintf("serdes lane %d bist failed: %d packets, %d errors", e.Lane, e.Packets, e.Errors)
}

// BistResult reads the self test counters of lane and stops the test. The
// test fails on any error or if no packet went through.
func (p *Psu) BistResult(lane int) error {
	if err := checkSerdesLane(lane); err != nil {
		return err
	}
	base := serdesLane(lane, 0x304C)
	pktL := p.Read32(base)
	pktH := p.Read32(base + 0x4)
	errL := p.Read32(base + 0x8)
	errH := p.Read32(base + 0xC)
	p.Write32(serdesLane(lane, 0x3004), 0)

	if errL > 0 || errH > 0 || (pktL == 0 && pktH == 0) {
		return &BistError{
			Lane:    lane,
			Packets: uint64(pktH)<<32 | uint64(pktL),
			Errors:  uint64(errH)<<32 | uint64(errL),
		}
	}
	return nil
}

// ResetSequence cycles the SERDES PLLs and lane resets, waiting on the lock
// of the PLL selected by pllsel. lane0Rate 1 selects the slow reference
// clock recovery path.
func (p *Psu) ResetSequence(ctx context.Context, pllsel int, lane0Rate uint32) error {
	if err := checkSerdesLane(pllsel); err != nil {
		return fmt.Errorf("pll select: %w", err)
	}
	eachLane := func(offset uintptr, v uint32) {
		for lane := 0; lane < SERDES_LANES; lane++ {
			p.Write32(serdesLane(lane, offset), v)
		}
	}
	delay := func(us uint32) error {
		return p.MaskDelay(ctx, us)
	}

	p.Write32(SERDES_PLL_RST_CTRL, 0x0)
	eachLane(0x1010, 0x40)
	eachLane(0x2084, 0x80)
	p.Write32(SERDES_PLL_RST_CTRL, 0x4)
	if err := delay(50); err != nil {
		return err
	}
	if lane0Rate == 1 {
		p.Write32(SERDES_PLL_RST_CTRL, 0xE)
	}
	p.Write32(SERDES_PLL_RST_CTRL, 0x6)
	if lane0Rate == 1 {
		eachLane(0x000C, 0x4)
		p.Write32(SERDES_PLL_RST_CTRL, 0x7)
		if err := delay(400); err != nil {
			return err
		}
		eachLane(0x000C, 0xC)
		if err := delay(15); err != nil {
			return err
		}
		p.Write32(SERDES_PLL_RST_CTRL, 0xF)
		if err := delay(100); err != nil {
			return err
		}
	}
	if err := p.MaskPoll(ctx, serdesLane(pllsel, 0x23E4), 0x10); err != nil {
		return fmt.Errorf("serdes pll %d lock: %w", pllsel, err)
	}
	if err := delay(50); err != nil {
		return err
	}
	eachLane(0x1010, 0xC0)
	eachLane(0x1010, 0x80)
	eachLane(0x2084, 0xC0)
	if err := delay(50); err != nil {
		return err
	}
	eachLane(0x2084, 0x80)
	if err := delay(50); err != nil {
		return err
	}
	eachLane(0x1010, 0x0)
	eachLane(0x2084, 0x0)
	return delay(500)
}
