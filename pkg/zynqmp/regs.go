// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"fmt"
	"sort"
	"strings"
)

const (
	CRL_APB_BASE  uintptr = 0xFF5E0000
	CRF_APB_BASE  uintptr = 0xFD1A0000
	IOU_SLCR_BASE uintptr = 0xFF180000
	DDRC_BASE     uintptr = 0xFD070000
	DDR_PHY_BASE  uintptr = 0xFD080000
	SERDES_BASE   uintptr = 0xFD400000
	SIOU_BASE     uintptr = 0xFD3D0000
	LPD_XPPU_BASE uintptr = 0xFF980000
	CSU_BASE      uintptr = 0xFFCA0000
	PMU_GLOBAL    uintptr = 0xFFD80000
)

// Blocks are named the way the TRM names them. Register names are
// BLOCK.REGISTER, e.g. CRF_APB.DPLL_CTRL.
var blocks = map[string]uintptr{
	"CRL_APB":    CRL_APB_BASE,
	"CRF_APB":    CRF_APB_BASE,
	"IOU_SLCR":   IOU_SLCR_BASE,
	"DDRC":       DDRC_BASE,
	"DDR_PHY":    DDR_PHY_BASE,
	"SERDES":     SERDES_BASE,
	"SIOU":       SIOU_BASE,
	"LPD_XPPU":   LPD_XPPU_BASE,
	"CSU":        CSU_BASE,
	"PMU_GLOBAL": PMU_GLOBAL,
}

var regs = map[string]map[uintptr]string{
	"CRL_APB": {
		0x020: "IOPLL_CTRL",
		0x024: "IOPLL_CFG",
		0x028: "IOPLL_FRAC_CFG",
		0x030: "RPLL_CTRL",
		0x034: "RPLL_CFG",
		0x038: "RPLL_FRAC_CFG",
		0x040: "PLL_STATUS",
		0x044: "IOPLL_TO_FPD_CTRL",
		0x048: "RPLL_TO_FPD_CTRL",
		0x230: "RST_LPD_IOU0",
		0x238: "RST_LPD_IOU2",
		0x23C: "RST_LPD_TOP",
		0x250: "BOOT_PIN_CTRL",
	},
	"CRF_APB": {
		0x020: "APLL_CTRL",
		0x024: "APLL_CFG",
		0x028: "APLL_FRAC_CFG",
		0x02C: "DPLL_CTRL",
		0x030: "DPLL_CFG",
		0x034: "DPLL_FRAC_CFG",
		0x038: "VPLL_CTRL",
		0x03C: "VPLL_CFG",
		0x040: "VPLL_FRAC_CFG",
		0x044: "PLL_STATUS",
		0x048: "APLL_TO_LPD_CTRL",
		0x04C: "DPLL_TO_LPD_CTRL",
		0x050: "VPLL_TO_LPD_CTRL",
		0x100: "RST_FPD_TOP",
		0x108: "RST_DDR_SS",
	},
	"IOU_SLCR": {
		0x204: "MIO_MST_TRI0",
		0x208: "MIO_MST_TRI1",
		0x20C: "MIO_MST_TRI2",
		0x300: "WDT_CLK_SEL",
	},
	"DDRC": {
		0x000: "MSTR",
		0x004: "STAT",
		0x010: "MRCTRL0",
		0x014: "MRCTRL1",
		0x018: "MRSTAT",
		0x1B0: "DFIMISC",
		0x320: "SWCTL",
	},
	"DDR_PHY": {
		0x004: "PIR",
		0x010: "PGCR0",
		0x018: "PGCR2",
		0x030: "PGSR0",
		0x068: "PLLCR0",
		0x0C0: "GPR0",
		0x0C4: "GPR1",
		0x200: "DTCR0",
		0x7E0: "DX0GSR0",
		0x9E0: "DX2GSR0",
	},
	"SERDES": {
		0x23E4: "L0_PLL_STATUS_READ_1",
		0x63E4: "L1_PLL_STATUS_READ_1",
		0xA3E4: "L2_PLL_STATUS_READ_1",
		0xE3E4: "L3_PLL_STATUS_READ_1",
		0x289C: "L0_TM_PLL_DIG_37",
		0x2B1C: "L0_TM_ANA_BYP_15",
		0xEC38: "L3_TM_CALIB_DIG14",
		0xEC3C: "L3_TM_CALIB_DIG15",
		0xEC40: "L3_TM_CALIB_DIG16",
		0xEC48: "L3_TM_CALIB_DIG18",
		0xEC4C: "L3_TM_CALIB_DIG19",
		0xEC50: "L3_TM_CALIB_DIG20",
		0xEF14: "L3_CALIB_DONE_STATUS",
		0xEF18: "L3_CALIB_PMOS_CODE",
		0xEF1C: "L3_CALIB_NMOS_CODE",
		0xEF24: "L3_CALIB_ICAL_CODE",
		0xEF28: "L3_CALIB_RCAL_CODE",
		0x10010: "UPHY_SPARE0",
		0x10014: "UPHY_SPARE1",
	},
	"LPD_XPPU": {
		0x000: "CTRL",
		0x020: "POISON",
	},
	"CSU": {
		0x040: "IDCODE",
		0x044: "VERSION",
	},
	"PMU_GLOBAL": {
		0x110: "REQ_PWRUP_STATUS",
		0x118: "REQ_PWRUP_INT_EN",
		0x120: "REQ_PWRUP_TRIG",
		0x300: "REQ_ISO_STATUS",
		0x318: "REQ_ISO_TRIG",
		0xC00: "PS_PL_ISO_CTRL",
	},
}

var (
	regNames  = make(map[uintptr]string)
	regByName = make(map[string]uintptr)
)

// MIO_PIN_0..77 sit at the bottom of IOU_SLCR, one word each.
const mioPins = 78

func init() {
	for pin := 0; pin < mioPins; pin++ {
		regs["IOU_SLCR"][uintptr(pin)*4] = fmt.Sprintf("MIO_PIN_%d", pin)
	}
	for block, offsets := range regs {
		base := blocks[block]
		for off, name := range offsets {
			full := block + "." + name
			regNames[base+off] = full
			regByName[full] = base + off
		}
	}
}

// RegisterName returns the BLOCK.REGISTER name of address, or "" if the
// address is not a known register.
func RegisterName(address uintptr) string {
	return regNames[address]
}

// RegisterByName resolves BLOCK.REGISTER, case insensitive.
func RegisterByName(name string) (uintptr, bool) {
	a, ok := regByName[strings.ToUpper(name)]
	return a, ok
}

// RegisterNames lists every known register name, sorted.
func RegisterNames() []string {
	n := make([]string, 0, len(regByName))
	for name := range regByName {
		n = append(n, name)
	}
	sort.Strings(n)
	return n
}

// CSU IDCODE device values, revision nibble masked off.
var idcodes = map[uint32]string{
	0x04688093: "XCZU1",
	0x04711093: "XCZU2",
	0x04710093: "XCZU3",
	0x04721093: "XCZU4",
	0x04720093: "XCZU5",
	0x04739093: "XCZU6",
	0x04730093: "XCZU7",
	0x04738093: "XCZU9",
	0x04740093: "XCZU11",
	0x04750093: "XCZU15",
	0x04759093: "XCZU17",
	0x04758093: "XCZU19",
	0x047E1093: "XCZU21DR",
	0x047E5093: "XCZU25DR",
	0x047E4093: "XCZU27DR",
	0x047E0093: "XCZU28DR",
	0x047E2093: "XCZU29DR",
}

func (p *Psu) IDCode() uint32 {
	// CSU IDCODE: [31:28] revision, [27:0] device
	return p.mem.MustRead32(CSU_BASE + 0x40)
}

// ModelName returns the device family name, or "" for an unknown IDCODE.
func (p *Psu) ModelName() string {
	return idcodes[p.IDCode()&0x0FFFFFFF]
}
