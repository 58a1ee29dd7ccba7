// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	_ "embed"

	"github.com/u-root/psuinit/pkg/board"
)

// Name is the builtin board name of this platform.
const Name = "zynqmp-sm-k24-reva"

//go:embed board.yaml
var profile []byte

type platform struct{}

// Profile parses the PS configuration of the SM-K24 SOM. Each call returns
// a fresh copy.
func (p *platform) Profile() (*board.Profile, error) {
	return board.Parse(profile)
}

// The SOM console is UART1 routed to MIO 36/37.
func (p *platform) ConsoleUart() (string, int) {
	return "/dev/ttyPS1", 115200
}

func Platform() *platform {
	return &platform{}
}
