// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var peekCmd = &cobra.Command{
	Use:   "peek ADDR|REG",
	Short: "Read a PS register",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeek,
}

var pokeCmd = &cobra.Command{
	Use:   "poke ADDR|REG MASK VALUE",
	Short: "Masked write of a PS register",
	Long: `Replaces the bits of a PS register selected by MASK with VALUE and
prints the register before and after.`,
	Args: cobra.ExactArgs(3),
	RunE: runPoke,
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Identify the device from the CSU IDCODE",
	Args:  cobra.NoArgs,
	RunE:  runModel,
}

func init() {
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(pokeCmd)
	rootCmd.AddCommand(modelCmd)
}

func runPeek(cmd *cobra.Command, args []string) error {
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	psu, err := openPsu(false)
	if err != nil {
		return err
	}
	defer psu.Close()

	var v uint32
	if err := access(func() { v = psu.Read32(a) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %08x\n", regLabel(a), v)
	return nil
}

func runPoke(cmd *cobra.Command, args []string) error {
	a, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	mask, err := parseUint32(args[1])
	if err != nil {
		return err
	}
	value, err := parseUint32(args[2])
	if err != nil {
		return err
	}
	if stray := value &^ mask; stray != 0 {
		if conf.StrictMasks {
			return fmt.Errorf("value %08x sets bits %08x outside mask %08x", value, stray, mask)
		}
		log.Warnf("Value %08x sets bits %08x outside mask %08x, they are dropped", value, stray, mask)
	}
	psu, err := openPsu(false)
	if err != nil {
		return err
	}
	defer psu.Close()

	var old, cur uint32
	err = access(func() {
		old = psu.Read32(a)
		psu.MaskWrite(a, mask, value)
		cur = psu.Read32(a)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %08x -> %08x\n", regLabel(a), old, cur)
	return nil
}

func runModel(cmd *cobra.Command, args []string) error {
	psu, err := openPsu(false)
	if err != nil {
		return err
	}
	defer psu.Close()

	var id uint32
	var model string
	if err := access(func() {
		id = psu.IDCode()
		model = psu.ModelName()
	}); err != nil {
		return err
	}
	if model == "" {
		return fmt.Errorf("unknown device, IDCODE %08x", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s rev %d (IDCODE %08x)\n", model, id>>28, id)
	return nil
}
