// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"
	"sync"
)

// ReadHook models hardware updating a register behind the CPU's back.
// n counts the reads of that address, starting at 1. The returned value is
// stored and handed to the reader.
type ReadHook func(n int, v uint32) uint32

// Access is one recorded load or store.
type Access struct {
	Write   bool
	Address uintptr
	Value   uint32
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("write %08x = %08x", a.Address, a.Value)
	}
	return fmt.Sprintf("read  %08x = %08x", a.Address, a.Value)
}

// Sim is a simulated register space. Registers never written read as zero.
type Sim struct {
	mu       sync.Mutex
	regs     map[uintptr]uint32
	hooks    map[uintptr]ReadHook
	reads    map[uintptr]int
	accesses []Access
}

func NewSim() *Sim {
	return &Sim{
		regs:  make(map[uintptr]uint32),
		hooks: make(map[uintptr]ReadHook),
		reads: make(map[uintptr]int),
	}
}

// Set presets a register without recording an access.
func (s *Sim) Set(address uintptr, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[address] = v
}

// Get returns a register without recording an access.
func (s *Sim) Get(address uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[address]
}

// OnRead installs a hook run on every read of address.
func (s *Sim) OnRead(address uintptr, h ReadHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[address] = h
}

// Reads returns how often address has been read.
func (s *Sim) Reads(address uintptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[address]
}

// Accesses returns a copy of the access log.
func (s *Sim) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Access(nil), s.accesses...)
}

// Writes returns the logged stores only.
func (s *Sim) Writes() []Access {
	var w []Access
	for _, a := range s.Accesses() {
		if a.Write {
			w = append(w, a)
		}
	}
	return w
}

func (s *Sim) MustRead32(address uintptr) uint32 {
	checkAligned(address)
	s.mu.Lock()
	s.reads[address]++
	n := s.reads[address]
	v := s.regs[address]
	h := s.hooks[address]
	s.mu.Unlock()

	if h != nil {
		v = h(n, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[address] = v
	s.accesses = append(s.accesses, Access{false, address, v})
	return v
}

func (s *Sim) MustWrite32(address uintptr, data uint32) {
	checkAligned(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[address] = data
	s.accesses = append(s.accesses, Access{true, address, data})
}

func (s *Sim) Close() error {
	return nil
}
