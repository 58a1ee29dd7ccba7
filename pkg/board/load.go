// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Parse decodes a profile. Unknown keys are errors.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.UnmarshalStrict(data, p); err != nil {
		return nil, fmt.Errorf("parse board profile: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("board profile has no name")
	}
	return p, nil
}

func Load(fs afero.Fs, path string) (*Profile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadFile reads a profile from the host filesystem.
func LoadFile(path string) (*Profile, error) {
	return Load(afero.NewOsFs(), path)
}
