// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"time"

	"github.com/u-root/psuinit/pkg/zynqmp"
)

// Set at link time with -X.
var (
	gitVersion = "dev"
	gitHash    = ""
)

type Version struct {
	Version string
	GitHash string
}

type Poll struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// Policy converts the settings for zynqmp.WithPollPolicy.
func (p Poll) Policy() zynqmp.PollPolicy {
	return zynqmp.PollPolicy{
		Timeout:     p.Timeout,
		MaxAttempts: p.MaxAttempts,
		MinInterval: p.MinInterval,
		MaxInterval: p.MaxInterval,
	}
}

type Console struct {
	Device string `mapstructure:"device"`
	Baud   int    `mapstructure:"baud"`
}

type Config struct {
	// Board is a builtin board name or a profile path.
	Board string `mapstructure:"board"`
	// Backend selects the register space: mmap, memio or sim.
	Backend string `mapstructure:"backend"`
	// Phases run at boot, in order.
	Phases      []string `mapstructure:"phases"`
	Poll        Poll     `mapstructure:"poll"`
	StrictMasks bool     `mapstructure:"strict_masks"`
	// LogFile gets a JSON copy of the log when set.
	LogFile string  `mapstructure:"log_file"`
	Console Console `mapstructure:"console"`
	// MetricsTextfile is written after a run for the node exporter
	// textfile collector.
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
	Version         Version `mapstructure:"-"`
}

var DefaultConfig = &Config{
	Board:   "zynqmp-sm-k24-reva",
	Backend: "mmap",
	// post_config and protection are left to whoever loads the PL
	// bitstream.
	Phases: []string{"init"},

	// Polls are bounded in time rather than in reads, so the bound does
	// not depend on the CPU clock. The vendor code gave up after 1100001
	// reads.
	Poll: Poll{
		Timeout:     time.Second,
		MinInterval: time.Microsecond,
		MaxInterval: time.Millisecond,
	},

	// No device keeps the console UART of the platform.
	Console: Console{
		Baud: 115200,
	},

	Version: Version{
		Version: gitVersion,
		GitHash: gitHash,
	},
}
