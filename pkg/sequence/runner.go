// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/metric"
	"go.uber.org/multierr"
)

var log = logger.LogContainer.GetSimpleLogger()

var (
	stepsTotal = metric.Counter(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "sequence",
		Name:      "steps_total",
		Help:      "Register steps applied.",
	}, []string{"op"})
	sequenceDuration = metric.Histogram(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "sequence",
		Name:      "duration_seconds",
		Help:      "Time spent applying a sequence.",
	}, []string{"sequence"}, []float64{.0001, .001, .01, .1, .5, 1, 5})
	sequenceFailures = metric.Counter(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "sequence",
		Name:      "failures_total",
		Help:      "Sequences that stopped on a failing step.",
	}, []string{"sequence"})
)

// Call is what an Action gets to work with.
type Call struct {
	Step    Step
	Scratch map[string]uint32
}

// Uint returns the named argument, falling back to the scratch slot of the
// same name.
func (c Call) Uint(name string) (uint32, bool) {
	if v, ok := c.Step.Args[name]; ok {
		return v, true
	}
	v, ok := c.Scratch[name]
	return v, ok
}

// UintOr is Uint with a default.
func (c Call) UintOr(name string, def uint32) uint32 {
	if v, ok := c.Uint(name); ok {
		return v
	}
	return def
}

// MustUint is Uint for required arguments.
func (c Call) MustUint(name string) (uint32, error) {
	if v, ok := c.Uint(name); ok {
		return v, nil
	}
	return 0, fmt.Errorf("%s: missing argument %q", c.Step.Action, name)
}

// Action is a named routine that cannot be written as plain register
// steps, e.g. a calibration with a computed result.
type Action func(ctx context.Context, c Call) error

// Runner applies sequences, stopping at the first failing step.
type Runner struct {
	Target  Target
	Actions map[string]Action
	// Scratch holds saved register values. It persists across sequences
	// so a later stage can restore what an earlier one saved.
	Scratch map[string]uint32
}

func NewRunner(t Target, actions map[string]Action) *Runner {
	return &Runner{
		Target:  t,
		Actions: actions,
		Scratch: make(map[string]uint32),
	}
}

// Run applies seq to t without actions.
func Run(ctx context.Context, t Target, seq Sequence) error {
	return NewRunner(t, nil).Run(ctx, seq)
}

// Run applies the steps of seq in order. The first failure stops the
// sequence and is returned as a *StepError.
func (r *Runner) Run(ctx context.Context, seq Sequence) error {
	start := r.Target.Now()
	defer func() {
		sequenceDuration.WithLabelValues(seq.Name).Observe(r.Target.Now().Sub(start).Seconds())
	}()
	if r.Scratch == nil {
		r.Scratch = make(map[string]uint32)
	}

	log.Debugf("Applying %s, %d steps", seq.Name, len(seq.Steps))
	for i, s := range seq.Steps {
		if err := ctx.Err(); err != nil {
			return r.fail(seq, i, s, err)
		}
		if err := r.apply(ctx, s); err != nil {
			return r.fail(seq, i, s, err)
		}
		stepsTotal.WithLabelValues(string(s.Op)).Inc()
	}
	return nil
}

func (r *Runner) fail(seq Sequence, i int, s Step, err error) error {
	sequenceFailures.WithLabelValues(seq.Name).Inc()
	log.Errorf("%s: step %d (%s) failed: %v", seq.Name, i, s.Label(), err)
	return &StepError{
		Sequence: seq.Name,
		Index:    i,
		Step:     s.Label(),
		Op:       s.Op,
		Err:      err,
	}
}

func (r *Runner) apply(ctx context.Context, s Step) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &FaultError{Value: v}
		}
	}()

	t := r.Target
	switch s.Op {
	case OpWrite:
		t.MaskWrite(s.Addr, s.Mask, s.Value)
	case OpOut:
		t.Write32(s.Addr, s.Value)
	case OpProg:
		t.ProgReg(s.Addr, s.Mask, s.Shift, s.Value)
	case OpPoll:
		return t.MaskPoll(ctx, s.Addr, s.Mask)
	case OpPollEquals:
		return t.MaskPollOnValue(ctx, s.Addr, s.Mask, s.Expected)
	case OpDelay:
		return t.MaskDelay(ctx, s.DelayUs)
	case OpRead:
		n := s.Count
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			t.Read32(s.Addr)
		}
	case OpSave:
		mask := s.Mask
		if mask == 0 {
			mask = 0xFFFFFFFF
		}
		r.Scratch[s.Slot] = (t.Read32(s.Addr) & mask) >> s.Shift
	case OpRestore:
		v, ok := r.Scratch[s.Slot]
		if !ok {
			return fmt.Errorf("restore of empty slot %q", s.Slot)
		}
		if s.Mask != 0 {
			t.ProgReg(s.Addr, s.Mask, s.Shift, v)
		} else {
			t.Write32(s.Addr, v)
		}
	case OpCall:
		a, ok := r.Actions[s.Action]
		if !ok {
			return fmt.Errorf("unknown action %q", s.Action)
		}
		return a(ctx, Call{Step: s, Scratch: r.Scratch})
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

// Validate checks seqs for steps that cannot succeed. Every problem is
// reported. A slot saved by one sequence can be restored by the ones after
// it, the way a Runner keeps its scratch. A nil actions map skips the
// action name check.
func Validate(actions map[string]Action, seqs ...Sequence) error {
	var errs error
	saved := make(map[string]bool)
	for _, seq := range seqs {
		for i, s := range seq.Steps {
			if err := checkStep(s, saved, actions); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s step %d (%s): %w", seq.Name, i, s.Label(), err))
			}
		}
	}
	return errs
}

func checkStep(s Step, saved map[string]bool, actions map[string]Action) error {
	switch s.Op {
	case OpPoll:
		if s.Mask == 0 {
			return errors.New("poll with an empty mask never matches")
		}
	case OpPollEquals:
		if s.Expected&^s.Mask != 0 {
			return fmt.Errorf("expected %08x has bits outside mask %08x", s.Expected, s.Mask)
		}
	case OpDelay:
		if s.DelayUs == 0 {
			return errors.New("zero delay")
		}
	case OpSave:
		if s.Slot == "" {
			return errors.New("save without a slot")
		}
		saved[s.Slot] = true
	case OpRestore:
		if !saved[s.Slot] {
			return fmt.Errorf("restore of slot %q before any save", s.Slot)
		}
	case OpCall:
		if actions == nil {
			return nil
		}
		if _, ok := actions[s.Action]; !ok {
			return fmt.Errorf("unknown action %q", s.Action)
		}
	case OpWrite, OpOut, OpProg, OpRead:
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}
