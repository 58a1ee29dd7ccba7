// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package mmio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// hostMem maps /dev/mem one page at a time and keeps the mappings until
// Close. Bring-up touches a few hundred distinct pages at most.
type hostMem struct {
	mu    sync.Mutex
	mf    *os.File
	pages map[uintptr][]byte
}

// OpenHostMemory opens the physical memory device at path.
func OpenHostMemory(path string) (Memory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0600)
	if err != nil {
		return nil, err
	}
	return &hostMem{mf: f, pages: make(map[uintptr][]byte)}, nil
}

func (m *hostMem) word(address uintptr) *uint32 {
	checkAligned(address)
	ps := uintptr(unix.Getpagesize())
	page := address &^ (ps - 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.pages[page]
	if !ok {
		var err error
		mem, err = unix.Mmap(int(m.mf.Fd()), int64(page), int(ps), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			panic(fmt.Sprintf("mmap of page %08x failed: %v", page, err))
		}
		m.pages[page] = mem
	}
	return (*uint32)(unsafe.Pointer(&mem[address-page]))
}

func (m *hostMem) MustRead32(address uintptr) uint32 {
	return atomic.LoadUint32(m.word(address))
}

func (m *hostMem) MustWrite32(address uintptr, data uint32) {
	atomic.StoreUint32(m.word(address), data)
}

func (m *hostMem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for page, mem := range m.pages {
		err = multierr.Append(err, unix.Munmap(mem))
		delete(m.pages, page)
	}
	return multierr.Append(err, m.mf.Close())
}
