// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Library for bringing up the processing system (PSU) of Xilinx Zynq
// UltraScale+ MPSoC devices.
//
// As with any library that pokes clock, reset and DDR PHY registers directly:
// a wrong value can hang the interconnect. Run against the simulated backend
// first.
//
// Call zynqmp.Open() and Close() as the first and last thing around any
// library calls. Tests and dry runs inject a register space with
// OpenWithMemory().

package zynqmp

import (
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
	"github.com/u-root/psuinit/pkg/logger"
)

var log = logger.LogContainer.GetSimpleLogger()

// Clock is the time source of polls and delays. clock.Clock satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type Psu struct {
	mem    mmio.Memory
	clk    Clock
	policy PollPolicy
	dryRun bool
}

type Option func(*Psu)

// WithClock replaces the monotonic system clock.
func WithClock(c Clock) Option {
	return func(p *Psu) {
		p.clk = c
	}
}

// WithPollPolicy replaces DefaultPollPolicy.
func WithPollPolicy(pp PollPolicy) Option {
	return func(p *Psu) {
		p.policy = pp
	}
}

// WithDryRun makes polls that do not match on their first read count as
// matched, and delays return at once. Only useful on a simulated register
// space.
func WithDryRun() Option {
	return func(p *Psu) {
		p.dryRun = true
	}
}

// Open opens the named register space backend and checks that it talks to
// a known ZynqMP device. The simulated backend is a dry run on NewSimulator
// and skips the check.
func Open(backend string, opts ...Option) (*Psu, error) {
	if backend == mmio.BackendSim {
		return OpenWithMemory(NewSimulator(), append([]Option{WithDryRun()}, opts...)...), nil
	}
	mem, err := mmio.Open(backend)
	if err != nil {
		return nil, fmt.Errorf("open %s register space: %w", backend, err)
	}
	p := OpenWithMemory(mem, opts...)
	if err := p.checkDevice(); err != nil {
		mem.Close()
		return nil, err
	}
	return p, nil
}

func (p *Psu) checkDevice() error {
	id, model, err := p.Identify()
	if err != nil {
		return fmt.Errorf("read IDCODE: %w", err)
	}
	if model == "" {
		return fmt.Errorf("could not detect supported SoC, IDCODE %08x", id)
	}
	return nil
}

// Identify reads the IDCODE and the model it names. A register space that
// faults on the read yields a *mmio.FaultError instead of a panic.
func (p *Psu) Identify() (id uint32, model string, err error) {
	err = mmio.Guard(func() {
		id = p.IDCode()
		model = p.ModelName()
	})
	return id, model, err
}

func OpenWithMemory(mem mmio.Memory, opts ...Option) *Psu {
	p := &Psu{
		mem:    mem,
		clk:    clock.New(),
		policy: DefaultPollPolicy,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Psu) Close() error {
	return p.mem.Close()
}

func (p *Psu) Mem() mmio.Memory {
	return p.mem
}

// Now reads the clock polls and delays run on.
func (p *Psu) Now() time.Time {
	return p.clk.Now()
}

// PollPolicy returns the bounds applied to every poll.
func (p *Psu) PollPolicy() PollPolicy {
	return p.policy
}
