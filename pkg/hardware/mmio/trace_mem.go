// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"

	"go.uber.org/zap"
)

type traceMem struct {
	Memory
	log   *zap.SugaredLogger
	names func(uintptr) string
}

// Trace wraps m and logs every access at debug level. names may be nil,
// otherwise it labels addresses with register names.
func Trace(m Memory, log *zap.SugaredLogger, names func(uintptr) string) Memory {
	return &traceMem{m, log, names}
}

func (t *traceMem) name(address uintptr) string {
	if t.names == nil {
		return ""
	}
	return t.names(address)
}

func (t *traceMem) MustRead32(address uintptr) uint32 {
	v := t.Memory.MustRead32(address)
	t.log.Debugw("read", "addr", fmt.Sprintf("%08x", address), "reg", t.name(address), "value", fmt.Sprintf("%08x", v))
	return v
}

func (t *traceMem) MustWrite32(address uintptr, data uint32) {
	t.log.Debugw("write", "addr", fmt.Sprintf("%08x", address), "reg", t.name(address), "value", fmt.Sprintf("%08x", data))
	t.Memory.MustWrite32(address, data)
}
