// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/psuinit"
	"github.com/u-root/psuinit/pkg/sequence"
)

var showCmd = &cobra.Command{
	Use:   "show [PROFILE]",
	Short: "Print the resolved steps of a board profile",
	Long: `Prints every stage of a board profile with its steps resolved to
addresses and register names. Without an argument the configured board is
shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	name := conf.Board
	if len(args) == 1 {
		name = args[0]
	}
	prof, err := loadProfile(name)
	if err != nil {
		return err
	}
	seqs, err := board.Compile(prof, psuinit.CompileOptions(conf.StrictMasks))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "board %s", prof.Name)
	if len(prof.Silicon) > 0 {
		fmt.Fprintf(w, " for %s", strings.Join(prof.Silicon, ", "))
	}
	fmt.Fprintln(w)
	for _, seq := range seqs {
		phase, _ := psuinit.PhaseOf(seq.Name)
		fmt.Fprintf(w, "\n%s (%s, %d steps)\n", seq.Name, phase, len(seq.Steps))
		for i, s := range seq.Steps {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i, s.Op, describe(s))
		}
	}
	return w.Flush()
}

func describe(s sequence.Step) string {
	switch s.Op {
	case sequence.OpDelay:
		return fmt.Sprintf("%dus", s.DelayUs)
	case sequence.OpCall:
		d := s.Action
		if s.Unit != "" {
			d += " " + s.Unit
		}
		names := make([]string, 0, len(s.Args))
		for n := range s.Args {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			d += fmt.Sprintf(" %s=%#x", n, s.Args[n])
		}
		return d
	}

	reg := regLabel(s.Addr)
	switch s.Op {
	case sequence.OpWrite:
		return fmt.Sprintf("%s\tmask %08x value %08x", reg, s.Mask, s.Value)
	case sequence.OpOut:
		return fmt.Sprintf("%s\tvalue %08x", reg, s.Value)
	case sequence.OpProg:
		return fmt.Sprintf("%s\tmask %08x value %#x << %d", reg, s.Mask, s.Value, s.Shift)
	case sequence.OpPoll:
		return fmt.Sprintf("%s\tany of %08x", reg, s.Mask)
	case sequence.OpPollEquals:
		return fmt.Sprintf("%s\tmask %08x equals %08x", reg, s.Mask, s.Expected)
	case sequence.OpRead:
		return fmt.Sprintf("%s\t%d times", reg, s.Count)
	case sequence.OpSave:
		return fmt.Sprintf("%s\tmask %08x >> %d into %s", reg, s.Mask, s.Shift, s.Slot)
	case sequence.OpRestore:
		return fmt.Sprintf("%s\tfrom %s", reg, s.Slot)
	}
	return reg
}
