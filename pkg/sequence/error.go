// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sequence

import (
	"fmt"

	"github.com/u-root/psuinit/pkg/hardware/mmio"
)

// StepError is the first failing step of a sequence.
type StepError struct {
	Sequence string
	Index    int
	Step     string
	Op       Op
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %d (%s): %v", e.Sequence, e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FaultError is a register access that faulted, e.g. an unmapped address.
type FaultError = mmio.FaultError
