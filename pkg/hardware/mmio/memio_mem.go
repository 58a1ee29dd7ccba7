// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package mmio

import (
	"fmt"

	"github.com/u-root/u-root/pkg/memio"
)

// memioMem goes through u-root's memio for every access. It is slower than
// hostMem but does not keep any mapping alive, which some kernels with
// CONFIG_STRICT_DEVMEM prefer.
type memioMem struct{}

func openMemio() (Memory, error) {
	return memioMem{}, nil
}

func (memioMem) MustRead32(address uintptr) uint32 {
	checkAligned(address)
	var v memio.Uint32
	if err := memio.Read(int64(address), &v); err != nil {
		panic(fmt.Sprintf("memio read of %08x failed: %v", address, err))
	}
	return uint32(v)
}

func (memioMem) MustWrite32(address uintptr, data uint32) {
	checkAligned(address)
	v := memio.Uint32(data)
	if err := memio.Write(int64(address), &v); err != nil {
		panic(fmt.Sprintf("memio write of %08x failed: %v", address, err))
	}
}

func (memioMem) Close() error {
	return nil
}
