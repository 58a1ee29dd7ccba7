// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

func (p *Psu) Read32(address uintptr) uint32 {
	return p.mem.MustRead32(address)
}

func (p *Psu) Write32(address uintptr, data uint32) {
	p.mem.MustWrite32(address, data)
}

// MaskRead returns the bits of address selected by mask.
func (p *Psu) MaskRead(address uintptr, mask uint32) uint32 {
	return p.mem.MustRead32(address) & mask
}

// MaskWrite replaces the bits selected by mask with the same bits of value.
// Bits outside mask are left alone, even if value sets them.
func (p *Psu) MaskWrite(address uintptr, mask uint32, value uint32) {
	v := p.mem.MustRead32(address)
	v &= ^mask
	v |= value & mask
	p.mem.MustWrite32(address, v)
}

// ProgReg programs a field: value is shifted into place and clipped to mask.
func (p *Psu) ProgReg(address uintptr, mask uint32, shift uint, value uint32) {
	p.MaskWrite(address, mask, value<<shift)
}
