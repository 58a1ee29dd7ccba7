// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zynqmp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/u-root/psuinit/pkg/metric"
)

// ErrPollTimeout is matched by every *PollError.
var ErrPollTimeout = errors.New("poll timed out")

// LegacyAttempts is the read budget of the generated psu_init code. Its
// loop checks the counter against 1100000 after each read, so the last
// read is number 1100001.
const LegacyAttempts = 1100001

// PollPolicy bounds a poll. A poll gives up on whichever bound is hit first.
type PollPolicy struct {
	// Timeout is measured from the first read on the Psu clock. Zero
	// disables the deadline.
	Timeout time.Duration
	// MaxAttempts caps the number of reads. Zero disables the cap.
	MaxAttempts int
	// MinInterval and MaxInterval bound the exponential backoff between
	// reads. A zero MinInterval spins without sleeping.
	MinInterval time.Duration
	MaxInterval time.Duration
}

var (
	DefaultPollPolicy = PollPolicy{
		Timeout:     time.Second,
		MinInterval: time.Microsecond,
		MaxInterval: time.Millisecond,
	}
	// LegacyPollPolicy reproduces the iteration bound of the vendor code.
	// Its wall clock duration depends on CPU speed.
	LegacyPollPolicy = PollPolicy{
		MaxAttempts: LegacyAttempts,
	}
)

func (pp PollPolicy) bounded() bool {
	return pp.Timeout > 0 || pp.MaxAttempts > 0
}

type PollError struct {
	Address  uintptr
	Mask     uint32
	Expected uint32
	// Equals is set for MaskPollOnValue.
	Equals   bool
	Last     uint32
	Attempts int
	Elapsed  time.Duration
}

func (e *PollError) Error() string {
	want := fmt.Sprintf("any of %08x", e.Mask)
	if e.Equals {
		want = fmt.Sprintf("%08x under mask %08x", e.Expected, e.Mask)
	}
	reg := ""
	if n := RegisterName(e.Address); n != "" {
		reg = " (" + n + ")"
	}
	return fmt.Sprintf("poll of %08x%s for %s gave up after %d reads in %v, last masked value %08x",
		e.Address, reg, want, e.Attempts, e.Elapsed, e.Last)
}

func (e *PollError) Is(target error) bool {
	return target == ErrPollTimeout
}

var (
	pollReads = metric.Histogram(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "poll",
		Name:      "reads",
		Help:      "Register reads needed until a poll matched.",
	}, []string{"kind"}, []float64{1, 2, 5, 10, 100, 1000, 10000, 100000, 1000000})
	pollTimeouts = metric.Counter(metric.MetricOpts{
		Namespace: metric.Namespace,
		Subsystem: "poll",
		Name:      "timeouts_total",
		Help:      "Polls that gave up.",
	}, []string{"kind"})
)

// MaskPoll waits until any bit of mask is set at address.
func (p *Psu) MaskPoll(ctx context.Context, address uintptr, mask uint32) error {
	return p.poll(ctx, address, mask, 0, false)
}

// MaskPollOnValue waits until the bits of address under mask equal expected.
func (p *Psu) MaskPollOnValue(ctx context.Context, address uintptr, mask uint32, expected uint32) error {
	return p.poll(ctx, address, mask, expected, true)
}

// MaskDelay blocks for at least us microseconds.
func (p *Psu) MaskDelay(ctx context.Context, us uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.dryRun {
		p.clk.Sleep(time.Duration(us) * time.Microsecond)
	}
	return nil
}

func (p *Psu) poll(ctx context.Context, address uintptr, mask uint32, expected uint32, equals bool) error {
	kind := "any"
	if equals {
		kind = "equals"
	}
	pp := p.policy
	if !pp.bounded() {
		pp.Timeout = DefaultPollPolicy.Timeout
	}
	start := p.clk.Now()
	var deadline time.Time
	if pp.Timeout > 0 {
		deadline = start.Add(pp.Timeout)
	}
	if pp.MaxInterval < pp.MinInterval {
		pp.MaxInterval = pp.MinInterval
	}
	b := &backoff.Backoff{
		Min:    pp.MinInterval,
		Max:    pp.MaxInterval,
		Factor: 2,
	}

	for attempt := 1; ; attempt++ {
		v := p.mem.MustRead32(address) & mask
		if (!equals && v != 0) || (equals && v == expected) {
			pollReads.WithLabelValues(kind).Observe(float64(attempt))
			return nil
		}
		if p.dryRun {
			log.Debugf("Dry run: poll of %08x assumed to match, read %08x", address, v)
			return nil
		}
		now := p.clk.Now()
		if (pp.MaxAttempts > 0 && attempt >= pp.MaxAttempts) || (!deadline.IsZero() && !now.Before(deadline)) {
			pollTimeouts.WithLabelValues(kind).Inc()
			return &PollError{
				Address:  address,
				Mask:     mask,
				Expected: expected,
				Equals:   equals,
				Last:     v,
				Attempts: attempt,
				Elapsed:  now.Sub(start),
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("poll of %08x: %w", address, err)
		}
		if pp.MinInterval > 0 {
			p.clk.Sleep(b.Duration())
		}
	}
}
