// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psuinit

import (
	"context"
	"fmt"

	"github.com/u-root/psuinit/config"
	"github.com/u-root/psuinit/pkg/board"
	"github.com/u-root/psuinit/pkg/hardware/mmio"
	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/metric"
	"github.com/u-root/psuinit/pkg/zynqmp"
)

const banner = `
 ____  ____  _   _   _       _ _
|  _ \/ ___|| | | | (_)_ __ (_) |_
| |_) \___ \| | | | | | '_ \| | __|
|  __/ ___) | |_| | | | | | | | |_
|_|   |____/ \___/  |_|_| |_|_|\__|
`

var systemVersion = metric.Gauge(metric.MetricOpts{
	Namespace: metric.Namespace,
	Subsystem: "system",
	Name:      "version",
}, []string{"version"})

// Platform is what a board package provides to bring itself up.
type Platform interface {
	Profile() (*board.Profile, error)
	ConsoleUart() (string, int)
}

func Startup(ctx context.Context, plat Platform) error {
	return StartupWithConfig(ctx, plat, config.DefaultConfig)
}

// StartupWithConfig runs the configured phases of the platform's profile
// and leaves the metrics behind in the textfile, if one is configured.
func StartupWithConfig(ctx context.Context, plat Platform, conf *config.Config) error {
	fmt.Print(banner)
	fmt.Printf("psuinit version %s\n\n", conf.Version.Version)
	systemVersion.WithLabelValues(conf.Version.Version).Set(1)

	if conf.LogFile != "" {
		if err := logger.LogContainer.AttachFile(conf.LogFile); err != nil {
			log.Warnf("Logging to %s failed: %v", conf.LogFile, err)
		}
	}
	tty, baud := plat.ConsoleUart()
	if conf.Console.Device != "" {
		tty, baud = conf.Console.Device, conf.Console.Baud
	}
	log.Infof("Configuring console %s @ %d baud", tty, baud)
	if err := AttachConsole(tty, baud); err != nil {
		log.Warnf("AttachConsole failed: %v", err)
	}

	if conf.MetricsTextfile != "" {
		defer func() {
			if err := metric.WriteTextfile(conf.MetricsTextfile); err != nil {
				log.Warnf("Writing metrics to %s failed: %v", conf.MetricsTextfile, err)
			}
		}()
	}

	prof, err := plat.Profile()
	if err != nil {
		log.Errorf("platform.Profile: %v", err)
		return err
	}

	log.Infof("Initialize system hardware")
	psu, err := zynqmp.Open(conf.Backend, zynqmp.WithPollPolicy(conf.Poll.Policy()))
	if err != nil {
		log.Errorf("zynqmp.Open: %v", err)
		return err
	}
	defer psu.Close()

	return Run(ctx, psu, prof, conf)
}

// Run applies the phases listed in conf to psu.
func Run(ctx context.Context, psu *zynqmp.Psu, prof *board.Profile, conf *config.Config) error {
	b, err := New(psu, prof, Options{
		Strict:           conf.StrictMasks,
		SkipSiliconCheck: conf.Backend == mmio.BackendSim,
	})
	if err != nil {
		log.Errorf("Loading board failed: %v", err)
		return err
	}
	if err := b.CheckSilicon(); err != nil {
		log.Errorf("%v", err)
		return err
	}
	_, model, err := b.psu.Identify()
	if err != nil {
		log.Errorf("Reading IDCODE failed: %v", err)
		return err
	}
	if model != "" {
		log.Infof("Found %s, bringing up %s", model, prof.Name)
	}
	for _, p := range conf.Phases {
		if err := b.RunPhase(ctx, Phase(p)); err != nil {
			log.Errorf("Bring-up failed: %v", err)
			return err
		}
	}
	log.Infof("PSU bring-up of %s done", prof.Name)
	return nil
}
