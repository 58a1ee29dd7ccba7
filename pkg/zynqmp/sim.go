// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"github.com/u-root/psuinit/pkg/hardware/mmio"
)

// SimIDCode is what NewSimulator reports in CSU.IDCODE, an XCZU3 rev 1.
const SimIDCode uint32 = 0x14710093

// NewSimulator returns a simulated register space of a healthy device: all
// PLLs locked, the DDR PHY initialized with its PLLs locked and SERDES
// calibration done. Together with WithDryRun it walks a whole board profile
// without real hardware.
func NewSimulator() *mmio.Sim {
	s := mmio.NewSim()
	s.Set(CSU_BASE+0x40, SimIDCode)
	s.Set(CRL_APB_BASE+0x40, IOPLL.LockBit|RPLL.LockBit)
	s.Set(CRF_APB_BASE+0x44, APLL.LockBit|DPLL.LockBit|VPLL.LockBit)
	s.Set(DDR_PHY_PGSR0, PGSR0_APLOCK|PGSR0_IDONE)
	s.Set(DDR_PHY_DX0GSR0, DXGSR0_DPLOCK)
	s.Set(DDR_PHY_DX2GSR0, DXGSR0_DPLOCK)
	s.Set(SERDES_CALIB_DONE, 0x2)
	s.Set(SERDES_ANA_BYP_15, 0xE)
	for lane := 0; lane < SERDES_LANES; lane++ {
		s.Set(serdesLane(lane, 0x23E4), 0x10)
	}
	return s
}
