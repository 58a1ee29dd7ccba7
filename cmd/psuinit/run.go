// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
	"github.com/u-root/psuinit/pkg/metric"
	"github.com/u-root/psuinit/pkg/psuinit"
	"github.com/u-root/psuinit/pkg/zynqmp"
)

var (
	runPhases  []string
	runStages  []string
	runDryRun  bool
	runMetrics string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply the board profile",
	Long: `Applies the configured phases of the board profile, or only the stages
given with --stage. With --dry-run the profile runs against a simulated
device on which every poll matches, -v logs each register access.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runPhases, "phase", nil, "phases to run: init, post_config, protection (default from config)")
	f.StringSliceVar(&runStages, "stage", nil, "run only these stages, in this order")
	f.BoolVar(&runDryRun, "dry-run", false, "run against a simulated device")
	f.StringVar(&runMetrics, "serve-metrics", "", "after the run, serve /metrics on this address until interrupted")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prof, err := loadProfile(conf.Board)
	if err != nil {
		return err
	}
	if len(runPhases) > 0 {
		conf.Phases = runPhases
	}
	if runDryRun {
		conf.Backend = mmio.BackendSim
	}
	psu, err := openPsu(runDryRun)
	if err != nil {
		return err
	}
	defer psu.Close()

	if len(runStages) > 0 {
		err = runStagesOnly(ctx, psu, prof)
	} else {
		err = psuinit.Run(ctx, psu, prof, conf)
	}

	if conf.MetricsTextfile != "" {
		if werr := metric.WriteTextfile(conf.MetricsTextfile); werr != nil {
			log.Warnf("Writing metrics to %s failed: %v", conf.MetricsTextfile, werr)
		}
	}
	if runMetrics != "" {
		if serr := serveMetrics(ctx, runMetrics); serr != nil {
			log.Errorf("Serving metrics failed: %v", serr)
		}
	}
	return err
}

func runStagesOnly(ctx context.Context, psu *zynqmp.Psu, prof *board.Profile) error {
	b, err := psuinit.New(psu, prof, psuinit.Options{
		Strict:           conf.StrictMasks,
		SkipSiliconCheck: conf.Backend == mmio.BackendSim,
	})
	if err != nil {
		return err
	}
	if err := b.CheckSilicon(); err != nil {
		return err
	}
	for _, s := range runStages {
		if err := b.RunStage(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	metric.StartMetrics(mux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
