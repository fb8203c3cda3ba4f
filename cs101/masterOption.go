// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"github.com/riclolsen/cs101master/asdu"
)

// Option holds the master (primary station) configuration.
type Option struct {
	config Config
	params asdu.Params
}

// NewOption creates a new Option with the default balanced config and standard CS101 ASDU params.
func NewOption() *Option {
	return &Option{
		config: DefaultConfig(),
		params: *asdu.ParamsStandard101,
	}
}

// SetConfig sets the link configuration. Uses DefaultConfig() if the provided cfg is invalid.
func (sf *Option) SetConfig(cfg Config) *Option {
	if err := cfg.Valid(); err != nil {
		sf.config = DefaultConfig()
	} else {
		sf.config = cfg
	}
	return sf
}

// SetParams sets the ASDU parameters. Uses asdu.ParamsStandard101 if the provided p is invalid.
func (sf *Option) SetParams(p *asdu.Params) *Option {
	if err := p.Valid(); err != nil {
		sf.params = *asdu.ParamsStandard101
	} else {
		sf.params = *p
	}
	return sf
}

// SetMode selects balanced or unbalanced transmission.
func (sf *Option) SetMode(m TransmissionMode) *Option {
	sf.config.Mode = m
	return sf
}

// SetLinkAddresses sets the own and the remote link address.
func (sf *Option) SetLinkAddresses(own, remote uint16) *Option {
	sf.config.LinkAddress = own
	sf.config.RemoteLinkAddress = remote
	return sf
}

// Config returns a copy of the link configuration.
func (sf *Option) Config() Config {
	return sf.config
}

// Params returns a copy of the ASDU parameters.
func (sf *Option) Params() asdu.Params {
	return sf.params
}
