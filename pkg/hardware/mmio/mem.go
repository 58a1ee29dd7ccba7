// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmio provides handles to a physical 32-bit register space.
//
// A Memory is the only way bring-up code reaches hardware. Real boards use
// the /dev/mem backends, tests and dry runs use Sim.
package mmio

import (
	"fmt"
)

// Memory is a 32-bit register space. Accessors panic on mapping faults,
// there is no recoverable error at the level of a single load or store.
type Memory interface {
	MustRead32(uintptr) uint32
	MustWrite32(uintptr, uint32)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMmap  = "mmap"
	BackendMemio = "memio"
	BackendSim   = "sim"
)

// DevMem is the physical memory device used by the hardware backends.
const DevMem = "/dev/mem"

// Open returns the register space for the named backend.
func Open(backend string) (Memory, error) {
	switch backend {
	case BackendMmap, "":
		return OpenHostMemory(DevMem)
	case BackendMemio:
		return openMemio()
	case BackendSim:
		return NewSim(), nil
	}
	return nil, fmt.Errorf("unknown memory backend %q", backend)
}

// FaultError is a register access that faulted, e.g. an unmapped address.
type FaultError struct {
	Value interface{}
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("register access fault: %v", e.Value)
}

// Guard runs f and turns a panicking access into a *FaultError.
func Guard(f func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &FaultError{v}
		}
	}()
	f()
	return nil
}

func checkAligned(address uintptr) {
	if address&3 != 0 {
		panic(fmt.Sprintf("unaligned 32 bit access at %08x", address))
	}
}
