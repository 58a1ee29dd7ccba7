// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psuinit

import (
	"context"
	"fmt"
	"sort"

	"github.com/u-root/psuinit/pkg/sequence"
	"github.com/u-root/psuinit/pkg/zynqmp"
)

// Actions binds the routines of psu that profiles reach with call steps.
func Actions(psu *zynqmp.Psu) map[string]sequence.Action {
	return map[string]sequence.Action{
		"pll-program": func(ctx context.Context, c sequence.Call) error {
			pll, ok := zynqmp.PllByName(c.Step.Unit)
			if !ok {
				return fmt.Errorf("unknown PLL %q", c.Step.Unit)
			}
			s, err := uints(c, "cfg", "ctrl", "cross")
			if err != nil {
				return err
			}
			return psu.ProgramPll(ctx, pll, zynqmp.PllSettings{Cfg: s[0], Ctrl: s[1], Cross: s[2]})
		},
		"ddr-pll-prog": func(ctx context.Context, c sequence.Call) error {
			s, err := uints(c, "div2", "fbdiv", "lock_dly", "lock_cnt", "lfhf", "cp", "res")
			if err != nil {
				return err
			}
			return psu.DdrPllProg(ctx, zynqmp.DpllParams{
				Div2:    s[0],
				Fbdiv:   s[1],
				LockDly: s[2],
				LockCnt: s[3],
				Lfhf:    s[4],
				Cp:      s[5],
				Res:     s[6],
			})
		},
		"ddr-phy-pll-lock": func(ctx context.Context, c sequence.Call) error {
			return psu.DdrPhyPllLock(ctx, int(c.UintOr("retries", 10)))
		},
		"ddr-training-check": func(ctx context.Context, c sequence.Call) error {
			return psu.DdrTrainingCheck()
		},
		"ddr-mode-register": func(ctx context.Context, c sequence.Call) error {
			s, err := uints(c, "ctrl", "data")
			if err != nil {
				return err
			}
			return psu.DdrModeRegisterWrite(ctx, s[0], s[1])
		},
		"ddr-wdqs-average": func(ctx context.Context, c sequence.Call) error {
			s, err := uints(c, "a", "b", "t0", "t1")
			if err != nil {
				return err
			}
			_, err = psu.WdqsAverage(int(s[0]), int(s[1]), int(s[2]), int(s[3]))
			return err
		},
		"serdes-fixcal": func(ctx context.Context, c sequence.Call) error {
			_, err := psu.FixcalCode(ctx)
			return err
		},
		"serdes-coarse-saturation": func(ctx context.Context, c sequence.Call) error {
			psu.EnableCoarseSaturation()
			return nil
		},
		"serdes-bist-run": func(ctx context.Context, c sequence.Call) error {
			lane, err := c.MustUint("lane")
			if err != nil {
				return err
			}
			return psu.BistRun(ctx, int(lane))
		},
		"serdes-bist-result": func(ctx context.Context, c sequence.Call) error {
			lane, err := c.MustUint("lane")
			if err != nil {
				return err
			}
			return psu.BistResult(int(lane))
		},
		"serdes-bist-static": func(ctx context.Context, c sequence.Call) error {
			lane, err := c.MustUint("lane")
			if err != nil {
				return err
			}
			return psu.BistStaticSettings(int(lane))
		},
		"serdes-illcalib": func(ctx context.Context, c sequence.Call) error {
			var lanes [zynqmp.SERDES_LANES]zynqmp.LaneConfig
			for i := range lanes {
				lanes[i] = zynqmp.LaneConfig{
					Protocol: zynqmp.LaneProtocol(c.UintOr(fmt.Sprintf("lane%d_protocol", i), 0)),
					Rate:     c.UintOr(fmt.Sprintf("lane%d_rate", i), 0),
				}
			}
			return psu.IllCalib(ctx, lanes)
		},
		"serdes-reset": func(ctx context.Context, c sequence.Call) error {
			s, err := uints(c, "pllsel", "lane0_rate")
			if err != nil {
				return err
			}
			return psu.ResetSequence(ctx, int(s[0]), s[1])
		},
	}
}

func uints(c sequence.Call, names ...string) ([]uint32, error) {
	v := make([]uint32, len(names))
	for i, n := range names {
		u, err := c.MustUint(n)
		if err != nil {
			return nil, err
		}
		v[i] = u
	}
	return v, nil
}

// ActionNames lists the actions a profile may call, sorted.
func ActionNames() []string {
	a := Actions(nil)
	n := make([]string, 0, len(a))
	for name := range a {
		n = append(n, name)
	}
	sort.Strings(n)
	return n
}
