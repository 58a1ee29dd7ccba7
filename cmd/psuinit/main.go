// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// psuinit applies Zynq UltraScale+ board profiles from a running system and
// inspects PS registers.
package main

import (
	"os"

	"github.com/u-root/psuinit/pkg/logger"
	"github.com/u-root/psuinit/pkg/psuinit"
)

func main() {
	err := rootCmd.Execute()
	logger.LogContainer.Sync()
	os.Exit(psuinit.Status(err))
}
