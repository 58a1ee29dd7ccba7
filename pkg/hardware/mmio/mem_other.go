// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package mmio

import (
	"errors"
)

var errNoDevMem = errors.New("physical memory access is only supported on linux")

// OpenHostMemory opens the physical memory device at path.
func OpenHostMemory(path string) (Memory, error) {
	return nil, errNoDevMem
}

func openMemio() (Memory, error) {
	return nil, errNoDevMem
}
