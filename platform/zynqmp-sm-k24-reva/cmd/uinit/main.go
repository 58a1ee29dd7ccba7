// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/u-root/psuinit/pkg/psuinit"
	"github.com/u-root/psuinit/platform/zynqmp-sm-k24-reva/pkg/platform"
)

func main() {
	p := platform.Platform()
	err := psuinit.Startup(context.Background(), p)
	os.Exit(psuinit.Status(err))
}
