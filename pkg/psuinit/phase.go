// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psuinit

import (
	"fmt"
)

type Phase string

const (
	// PhaseInit is the boot time bring-up: pins, clocks, DDR, SERDES.
	PhaseInit Phase = "init"
	// PhasePostConfig removes the PS-PL isolation once the PL is up.
	PhasePostConfig Phase = "post_config"
	// PhaseProtection programs and locks the peripheral firewalls.
	PhaseProtection Phase = "protection"
)

var phaseStages = map[Phase][]string{
	PhaseInit: {
		"mio",
		"peripherals_pre",
		"pll",
		"clock",
		"ddr",
		"ddr_phybringup",
		"peripherals",
		"resetin",
		"serdes",
		"resetout",
		"init_peripheral",
		"afi_config",
		"ddr_qos",
	},
	PhasePostConfig: {"ps_pl_isolation_removal"},
	PhaseProtection: {"lpd_xppu", "protection_lock"},
}

// Phases lists the phases in the order a boot runs them.
var Phases = []Phase{PhaseInit, PhasePostConfig, PhaseProtection}

// Stages returns the stage order of phase.
func Stages(phase Phase) ([]string, error) {
	s, ok := phaseStages[phase]
	if !ok {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	return s, nil
}

// AllStages lists every known stage, phase by phase.
func AllStages() []string {
	var all []string
	for _, p := range Phases {
		all = append(all, phaseStages[p]...)
	}
	return all
}

// PhaseOf returns the phase a stage belongs to.
func PhaseOf(stage string) (Phase, bool) {
	for _, p := range Phases {
		for _, s := range phaseStages[p] {
			if s == stage {
				return p, true
			}
		}
	}
	return "", false
}
