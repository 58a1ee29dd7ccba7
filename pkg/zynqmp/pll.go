// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"fmt"
	"strings"
)

// Pll describes where one PLL's registers live.
type Pll struct {
	Name string
	Ctrl uintptr
	Cfg  uintptr
	// Status holds the lock bit, one status register per power domain.
	Status  uintptr
	LockBit uint32
	// Cross is the divider feeding the other power domain.
	Cross uintptr
}

var (
	IOPLL = Pll{"IOPLL", CRL_APB_BASE + 0x20, CRL_APB_BASE + 0x24, CRL_APB_BASE + 0x40, 1 << 0, CRL_APB_BASE + 0x44}
	RPLL  = Pll{"RPLL", CRL_APB_BASE + 0x30, CRL_APB_BASE + 0x34, CRL_APB_BASE + 0x40, 1 << 1, CRL_APB_BASE + 0x48}
	APLL  = Pll{"APLL", CRF_APB_BASE + 0x20, CRF_APB_BASE + 0x24, CRF_APB_BASE + 0x44, 1 << 0, CRF_APB_BASE + 0x48}
	DPLL  = Pll{"DPLL", CRF_APB_BASE + 0x2C, CRF_APB_BASE + 0x30, CRF_APB_BASE + 0x44, 1 << 1, CRF_APB_BASE + 0x4C}
	VPLL  = Pll{"VPLL", CRF_APB_BASE + 0x38, CRF_APB_BASE + 0x3C, CRF_APB_BASE + 0x44, 1 << 2, CRF_APB_BASE + 0x50}
)

var plls = map[string]Pll{
	"IOPLL": IOPLL,
	"RPLL":  RPLL,
	"APLL":  APLL,
	"DPLL":  DPLL,
	"VPLL":  VPLL,
}

// PllByName resolves IOPLL, RPLL, APLL, DPLL or VPLL.
func PllByName(name string) (Pll, bool) {
	p, ok := plls[strings.ToUpper(name)]
	return p, ok
}

const (
	PLL_CTRL_RESET  uint32 = 1 << 0
	PLL_CTRL_BYPASS uint32 = 1 << 3
	// FBDIV [14:8], DIV2 [16], PRE_SRC [22:20]
	PLL_CTRL_DIV_MASK uint32 = 0x00717F00
	PLL_CFG_MASK      uint32 = 0xFE7FEDEF
	PLL_CROSS_MASK    uint32 = 0x00003F00
)

// PllSettings are the generated per-board values for one PLL.
type PllSettings struct {
	Cfg   uint32
	Ctrl  uint32
	Cross uint32
}

// ProgramPll walks the lock sequence of the generated code: program the
// loop filter, set the dividers, bypass, pulse reset, wait for lock, leave
// bypass, set the cross domain divider.
func (p *Psu) ProgramPll(ctx context.Context, pll Pll, s PllSettings) error {
	p.MaskWrite(pll.Cfg, PLL_CFG_MASK, s.Cfg)
	p.MaskWrite(pll.Ctrl, PLL_CTRL_DIV_MASK, s.Ctrl)
	p.MaskWrite(pll.Ctrl, PLL_CTRL_BYPASS, PLL_CTRL_BYPASS)
	p.MaskWrite(pll.Ctrl, PLL_CTRL_RESET, PLL_CTRL_RESET)
	p.MaskWrite(pll.Ctrl, PLL_CTRL_RESET, 0)
	if err := p.MaskPoll(ctx, pll.Status, pll.LockBit); err != nil {
		return fmt.Errorf("%s lock: %w", pll.Name, err)
	}
	p.MaskWrite(pll.Ctrl, PLL_CTRL_BYPASS, 0)
	p.MaskWrite(pll.Cross, PLL_CROSS_MASK, s.Cross)
	log.Debugf("%s locked", pll.Name)
	return nil
}

// DpllParams are the arguments of the DDR PLL reprogramming done during
// PHY bring-up.
type DpllParams struct {
	Div2    uint32
	Fbdiv   uint32
	LockDly uint32
	LockCnt uint32
	Lfhf    uint32
	Cp      uint32
	Res     uint32
}

// DdrPllProg reprograms the DDR PLL field by field and waits for lock.
func (p *Psu) DdrPllProg(ctx context.Context, d DpllParams) error {
	p.ProgReg(DPLL.Ctrl, 0x00010000, 16, d.Div2)
	p.ProgReg(DPLL.Cfg, 0xFE000000, 25, d.LockDly)
	p.ProgReg(DPLL.Cfg, 0x007FE000, 13, d.LockCnt)
	p.ProgReg(DPLL.Cfg, 0x00000C00, 10, d.Lfhf)
	p.ProgReg(DPLL.Cfg, 0x000001E0, 5, d.Cp)
	p.ProgReg(DPLL.Cfg, 0x0000000F, 0, d.Res)
	p.ProgReg(DPLL.Ctrl, 0x00007F00, 8, d.Fbdiv)
	p.ProgReg(DPLL.Ctrl, PLL_CTRL_BYPASS, 3, 1)
	p.ProgReg(DPLL.Ctrl, PLL_CTRL_RESET, 0, 1)
	p.ProgReg(DPLL.Ctrl, PLL_CTRL_RESET, 0, 0)
	if err := p.MaskPoll(ctx, DPLL.Status, DPLL.LockBit); err != nil {
		return fmt.Errorf("DPLL lock: %w", err)
	}
	p.ProgReg(DPLL.Ctrl, PLL_CTRL_BYPASS, 3, 0)
	return nil
}

// DdrPllSettings reads back the current DIV2 and FBDIV of the DDR PLL.
func (p *Psu) DdrPllSettings() (div2, fbdiv uint32) {
	v := p.Read32(DPLL.Ctrl)
	return (v & 0x00010000) >> 16, (v & 0x00007F00) >> 8
}
