// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/u-root/psuinit/config"
	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/psuinit"
	"github.com/u-root/psuinit/pkg/zynqmp"
	"github.com/u-root/psuinit/platform/zynqmp-sm-k24-reva/pkg/platform"
	"go.uber.org/zap/zapcore"
)

var log = logger.LogContainer.GetSimpleLogger()

var (
	cfgFile string
	verbose bool
	// conf is loaded before any command runs, flags applied on top.
	conf *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "psuinit",
	Short: "Zynq UltraScale+ PSU bring-up",
	Long: `psuinit applies board profiles to the processing system of a Zynq
UltraScale+ MPSoC: pin muxing, PLLs, clocks, DDR and SERDES. It also reads
and writes single PS registers by address or name.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default $PSUINIT_CONFIG_DIR/psuinit.yaml)")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every step and register access")
	f.String("backend", "", "register space: mmap, memio or sim")
	f.String("board", "", "builtin board name or profile path")
	f.String("console", "", "mirror the log to this UART")
	f.Bool("strict", false, "reject write values with bits outside their mask")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(afero.NewOsFs(), cfgFile)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("backend") {
		c.Backend, _ = f.GetString("backend")
	}
	if f.Changed("board") {
		c.Board, _ = f.GetString("board")
	}
	if f.Changed("console") {
		c.Console.Device, _ = f.GetString("console")
	}
	if f.Changed("strict") {
		c.StrictMasks, _ = f.GetBool("strict")
	}
	conf = c

	if verbose {
		logger.LogContainer.SetLevel(zapcore.DebugLevel)
	}
	if conf.LogFile != "" {
		if err := logger.LogContainer.AttachFile(conf.LogFile); err != nil {
			return err
		}
	}
	if conf.Console.Device != "" {
		if err := psuinit.AttachConsole(conf.Console.Device, conf.Console.Baud); err != nil {
			log.Warnf("AttachConsole failed: %v", err)
		}
	}
	return nil
}

// loadProfile resolves a builtin board name or reads a profile file.
func loadProfile(name string) (*board.Profile, error) {
	if name == platform.Name {
		return platform.Platform().Profile()
	}
	return board.LoadFile(name)
}

// openPsu opens the configured backend. A dry run traces every access to a
// simulated device instead.
func openPsu(dryRun bool) (*zynqmp.Psu, error) {
	opts := []zynqmp.Option{zynqmp.WithPollPolicy(conf.Poll.Policy())}
	if dryRun {
		mem := mmio.Trace(zynqmp.NewSimulator(), log, zynqmp.RegisterName)
		return zynqmp.OpenWithMemory(mem, append(opts, zynqmp.WithDryRun())...), nil
	}
	return zynqmp.Open(conf.Backend, opts...)
}

// parseAddr takes a register name or a word aligned address.
func parseAddr(s string) (uintptr, error) {
	if a, ok := zynqmp.RegisterByName(s); ok {
		return a, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a register name nor an address", s)
	}
	if v&3 != 0 {
		return 0, fmt.Errorf("address %08x is not word aligned", v)
	}
	return uintptr(v), nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad value %q: %v", s, err)
	}
	return uint32(v), nil
}

// access runs f and turns a mapping fault into an error.
func access(f func()) error {
	if err := mmio.Guard(f); err != nil {
		return fmt.Errorf("register access failed: %w", err)
	}
	return nil
}

func regLabel(a uintptr) string {
	if n := zynqmp.RegisterName(a); n != "" {
		return fmt.Sprintf("%08x %s", a, n)
	}
	return fmt.Sprintf("%08x", a)
}
