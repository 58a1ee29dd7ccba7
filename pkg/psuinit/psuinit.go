// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package psuinit brings up the PSU of a Zynq UltraScale+ MPSoC from a
// board profile, stage by stage.
package psuinit

import (
	"context"
	"fmt"
	"strings"

	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/metric"
	"github.com/u-root/psuinit/pkg/sequence"
	"github.com/u-root/psuinit/pkg/zynqmp"
)

var log = logger.LogContainer.GetSimpleLogger()

var (
	stageDone = metric.Gauge(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "stage",
		Name:      "completed",
		Help:      "1 once a stage has been applied without error.",
	}, []string{"stage"})
	stageFailures = metric.Counter(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "stage",
		Name:      "failures_total",
		Help:      "Stages that failed.",
	}, []string{"stage"})
	stageSeconds = metric.Gauge(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Time the last run of a stage took.",
	}, []string{"stage"})
)

type Options struct {
	// Strict rejects profiles with value bits outside their masks.
	Strict bool
	// SkipSiliconCheck runs a profile regardless of the detected device.
	SkipSiliconCheck bool
}

// Bringup applies one compiled profile to one PSU. Scratch slots saved by
// a stage stay visible to the stages after it.
type Bringup struct {
	psu     *zynqmp.Psu
	profile *board.Profile
	opts    Options
	stages  map[string]sequence.Sequence
	runner  *sequence.Runner
}

// CompileOptions are the checks every profile run by Bringup has to pass.
func CompileOptions(strict bool) board.CompileOptions {
	return board.CompileOptions{
		Registers: zynqmp.RegisterByName,
		Actions:   ActionNames(),
		Stages:    AllStages(),
		Strict:    strict,
	}
}

func New(psu *zynqmp.Psu, prof *board.Profile, opts Options) (*Bringup, error) {
	seqs, err := board.Compile(prof, CompileOptions(opts.Strict))
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", prof.Name, err)
	}
	b := &Bringup{
		psu:     psu,
		profile: prof,
		opts:    opts,
		stages:  make(map[string]sequence.Sequence),
		runner:  sequence.NewRunner(psu, Actions(psu)),
	}
	for _, s := range seqs {
		b.stages[s.Name] = s
	}
	return b, nil
}

// CheckSilicon fails if the profile was made for other devices than the
// one found.
func (b *Bringup) CheckSilicon() error {
	if b.opts.SkipSiliconCheck || len(b.profile.Silicon) == 0 {
		return nil
	}
	id, model, err := b.psu.Identify()
	if err != nil {
		return fmt.Errorf("identify silicon: %w", err)
	}
	for _, s := range b.profile.Silicon {
		if strings.EqualFold(s, model) {
			return nil
		}
	}
	return fmt.Errorf("board %s is for %s, found %q (IDCODE %08x)",
		b.profile.Name, strings.Join(b.profile.Silicon, ", "), model, id)
}

// RunStage applies one stage. A stage the profile does not have is skipped.
func (b *Bringup) RunStage(ctx context.Context, name string) error {
	if _, ok := PhaseOf(name); !ok {
		return fmt.Errorf("unknown stage %q", name)
	}
	seq, ok := b.stages[name]
	if !ok {
		log.Debugf("Board %s has no %s stage, skipping", b.profile.Name, name)
		return nil
	}

	log.Infof("Running stage %s (%d steps)", name, len(seq.Steps))
	start := b.psu.Now()
	err := b.runner.Run(ctx, seq)
	stageSeconds.WithLabelValues(name).Set(b.psu.Now().Sub(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues(name).Inc()
		stageDone.WithLabelValues(name).Set(0)
		return fmt.Errorf("stage %s: %w", name, err)
	}
	stageDone.WithLabelValues(name).Set(1)
	return nil
}

// RunPhase applies the stages of phase in order, stopping at the first
// failure.
func (b *Bringup) RunPhase(ctx context.Context, phase Phase) error {
	stages, err := Stages(phase)
	if err != nil {
		return err
	}
	log.Infof("Running %s phase of board %s", phase, b.profile.Name)
	for _, s := range stages {
		if err := b.RunStage(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Init is psu_init: check the device, then run the init phase.
func Init(ctx context.Context, psu *zynqmp.Psu, prof *board.Profile, opts Options) error {
	b, err := New(psu, prof, opts)
	if err != nil {
		return err
	}
	if err := b.CheckSilicon(); err != nil {
		return err
	}
	return b.RunPhase(ctx, PhaseInit)
}

// Status maps the outcome of a bring-up to the psu_init return code, 0 for
// success and 1 for failure.
func Status(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
