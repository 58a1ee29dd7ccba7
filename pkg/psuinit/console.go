// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psuinit

import (
	"fmt"

	"github.com/tarm/serial"
	"github.com/u-root/psuinit/pkg/logger"
	"go.uber.org/zap/zapcore"
)

// AttachConsole opens the UART at f and mirrors the log to it. The port
// stays open for the life of the process.
func AttachConsole(f string, baud int) error {
	c := &serial.Config{Name: f, Baud: baud}
	s, err := serial.OpenPort(c)
	if err != nil {
		return fmt.Errorf("serial.OpenPort: %v", err)
	}
	logger.LogContainer.AttachConsole(zapcore.AddSync(s))
	return nil
}
