// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/psuinit"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var lintCmd = &cobra.Command{
	Use:   "lint PROFILE...",
	Short: "Check board profiles",
	Long: `Checks board profiles for unknown ops, registers, stages and actions,
missing fields and restores without a save. Every problem is reported, not
only the first. Builtin board names are accepted as well as files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	results := make([]error, len(args))
	var g errgroup.Group
	for i, name := range args {
		i, name := i, name
		g.Go(func() error {
			results[i] = lintProfile(name)
			return results[i]
		})
	}
	if g.Wait() == nil {
		for _, name := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		}
		return nil
	}

	failed := 0
	for i, name := range args {
		if results[i] == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			continue
		}
		failed++
		for _, err := range multierr.Errors(results[i]) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", name, err)
		}
	}
	return fmt.Errorf("%d of %d profiles failed", failed, len(args))
}

func lintProfile(name string) error {
	prof, err := loadProfile(name)
	if err != nil {
		return err
	}
	_, err = board.Compile(prof, psuinit.CompileOptions(conf.StrictMasks))
	return err
}
