// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board reads board profiles: the per-board register recipes of
// PSU bring-up written as YAML, one list of steps per stage.
package board

import (
	"fmt"
	"sort"

	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/sequence"
	"go.uber.org/multierr"
)

var log = logger.LogContainer.GetSimpleLogger()

type Profile struct {
	Name string `yaml:"name"`
	// Silicon lists the device names (XCZU9 and so on) the profile was
	// generated for. Empty matches anything.
	Silicon []string `yaml:"silicon"`
	Stages  []Stage  `yaml:"stages"`
}

type Stage struct {
	Name  string     `yaml:"name"`
	Steps []StepSpec `yaml:"steps"`
}

// StepSpec is a step as written in a profile. The target register is
// either a numeric addr or a reg name, never both.
type StepSpec struct {
	Name     string            `yaml:"name"`
	Op       sequence.Op       `yaml:"op"`
	Addr     *uint32           `yaml:"addr"`
	Reg      string            `yaml:"reg"`
	Mask     *uint32           `yaml:"mask"`
	Value    uint32            `yaml:"value"`
	Expected uint32            `yaml:"expected"`
	Shift    uint              `yaml:"shift"`
	Count    int               `yaml:"count"`
	DelayUs  uint32            `yaml:"delay_us"`
	Slot     string            `yaml:"slot"`
	Action   string            `yaml:"action"`
	Unit     string            `yaml:"unit"`
	Args     map[string]uint32 `yaml:"args"`
}

// Stage returns the named stage, if the profile has it.
func (p *Profile) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// StageNames lists the stages in profile order.
func (p *Profile) StageNames() []string {
	n := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		n = append(n, s.Name)
	}
	return n
}

// CompileOptions control how a profile is checked and resolved.
type CompileOptions struct {
	// Registers resolves reg names. Nil rejects every reg.
	Registers func(name string) (uintptr, bool)
	// Actions lists the action names call steps may use. Nil accepts any.
	Actions []string
	// Stages lists the allowed stage names in the order they run, which
	// is also the order save and restore slots are checked in. Nil accepts
	// any stage and checks in profile order.
	Stages []string
	// Strict turns value bits outside the mask into errors instead of
	// warnings.
	Strict bool
}

// Compile checks p and turns every stage into a sequence, in profile order.
// All problems found are returned together.
func Compile(p *Profile, opts CompileOptions) ([]sequence.Sequence, error) {
	var errs error
	seen := make(map[string]bool)
	var seqs []sequence.Sequence
	for _, st := range p.Stages {
		if seen[st.Name] {
			errs = multierr.Append(errs, fmt.Errorf("stage %q defined twice", st.Name))
			continue
		}
		seen[st.Name] = true
		if opts.Stages != nil && !contains(opts.Stages, st.Name) {
			errs = multierr.Append(errs, fmt.Errorf("unknown stage %q", st.Name))
			continue
		}
		seq := sequence.Sequence{Name: st.Name}
		for i, spec := range st.Steps {
			s, err := compileStep(spec, opts)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s step %d: %w", st.Name, i, err))
				continue
			}
			seq.Steps = append(seq.Steps, s)
		}
		seqs = append(seqs, seq)
	}
	errs = multierr.Append(errs, sequence.Validate(nil, runOrder(seqs, opts.Stages)...))
	if errs != nil {
		return nil, errs
	}
	return seqs, nil
}

// runOrder returns seqs sorted by the position of their name in order.
func runOrder(seqs []sequence.Sequence, order []string) []sequence.Sequence {
	if order == nil {
		return seqs
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	sorted := append([]sequence.Sequence(nil), seqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pos[sorted[i].Name] < pos[sorted[j].Name]
	})
	return sorted
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func compileStep(spec StepSpec, opts CompileOptions) (sequence.Step, error) {
	s := sequence.Step{
		Name:     spec.Name,
		Op:       spec.Op,
		Value:    spec.Value,
		Expected: spec.Expected,
		Shift:    spec.Shift,
		Count:    spec.Count,
		DelayUs:  spec.DelayUs,
		Slot:     spec.Slot,
		Action:   spec.Action,
		Unit:     spec.Unit,
		Args:     spec.Args,
	}
	if !spec.Op.Valid() {
		return s, fmt.Errorf("unknown op %q", spec.Op)
	}

	needAddr := spec.Op != sequence.OpDelay && spec.Op != sequence.OpCall
	needMask := false
	switch spec.Op {
	case sequence.OpWrite, sequence.OpProg, sequence.OpPoll, sequence.OpPollEquals:
		needMask = true
	case sequence.OpSave, sequence.OpRestore:
		if spec.Slot == "" {
			return s, fmt.Errorf("%s needs a slot", spec.Op)
		}
	case sequence.OpCall:
		if spec.Action == "" {
			return s, fmt.Errorf("call needs an action")
		}
		if opts.Actions != nil && !contains(opts.Actions, spec.Action) {
			return s, fmt.Errorf("unknown action %q", spec.Action)
		}
	}

	switch {
	case spec.Addr != nil && spec.Reg != "":
		return s, fmt.Errorf("both addr %08x and reg %s given", *spec.Addr, spec.Reg)
	case spec.Reg != "":
		if opts.Registers == nil {
			return s, fmt.Errorf("unknown register %s", spec.Reg)
		}
		a, ok := opts.Registers(spec.Reg)
		if !ok {
			return s, fmt.Errorf("unknown register %s", spec.Reg)
		}
		s.Addr = a
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s %s", spec.Op, spec.Reg)
		}
	case spec.Addr != nil:
		s.Addr = uintptr(*spec.Addr)
	case needAddr:
		return s, fmt.Errorf("%s needs addr or reg", spec.Op)
	}

	if spec.Mask != nil {
		s.Mask = *spec.Mask
	} else if needMask {
		return s, fmt.Errorf("%s needs a mask", spec.Op)
	}

	var stray uint32
	switch spec.Op {
	case sequence.OpWrite:
		stray = s.Value &^ s.Mask
	case sequence.OpProg:
		stray = (s.Value << s.Shift) &^ s.Mask
	}
	if stray != 0 {
		if opts.Strict {
			return s, fmt.Errorf("value %08x sets bits %08x outside mask %08x", s.Value, stray, s.Mask)
		}
		log.Warnf("%s: value %08x sets bits %08x outside mask %08x, they are dropped", s.Label(), s.Value, stray, s.Mask)
	}
	return s, nil
}
