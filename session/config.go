// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"strconv"
	"strings"

	"github.com/riclolsen/cs101master/cs101"
)

// Default station addresses.
const (
	DefaultLocalAddress  = 2
	DefaultRemoteAddress = 1
)

// Config describes one connection to a remote station.
type Config struct {
	Serial cs101.SerialConfig
	// LocalAddress is the link address of this master.
	LocalAddress uint16
	// RemoteAddress is the link address of the remote station. It is also
	// the common address of every command.
	RemoteAddress uint16
}

// DefaultConfig returns 9600 8E1 with local address 2 and remote address 1.
func DefaultConfig(port string) Config {
	return Config{
		Serial:        cs101.DefaultSerialConfig(port),
		LocalAddress:  DefaultLocalAddress,
		RemoteAddress: DefaultRemoteAddress,
	}
}

// Validate checks the configuration. Errors match ErrConfigInvalid.
func (sf Config) Validate() error {
	if err := sf.Serial.Valid(); err != nil {
		return &ConfigError{Field: "serial", Value: sf.Serial.Address, Msg: "invalid line parameters", Err: err}
	}
	if sf.LocalAddress > 0xFF {
		return &ConfigError{Field: "local address", Value: sf.LocalAddress, Msg: "exceeds one octet link address"}
	}
	if sf.RemoteAddress > 0xFF {
		return &ConfigError{Field: "remote address", Value: sf.RemoteAddress, Msg: "exceeds one octet link address"}
	}
	return nil
}

// engineOption binds the link layer to the configured addresses in balanced mode.
func (sf Config) engineOption() *cs101.Option {
	return cs101.NewOption().
		SetMode(cs101.ModeBalanced).
		SetLinkAddresses(sf.LocalAddress, sf.RemoteAddress)
}

// RawConfig holds connection settings as an operator typed them.
type RawConfig struct {
	Port          string
	BaudRate      string
	DataBits      string
	Parity        string
	StopBits      string
	LocalAddress  string
	RemoteAddress string
}

// ParseConfig converts r and validates the result.
func ParseConfig(r RawConfig) (Config, error) {
	cfg := DefaultConfig(strings.TrimSpace(r.Port))
	var err error

	if cfg.Serial.BaudRate, err = parseInt("baud rate", r.BaudRate); err != nil {
		return Config{}, err
	}
	if cfg.Serial.DataBits, err = parseInt("data bits", r.DataBits); err != nil {
		return Config{}, err
	}
	if cfg.Serial.Parity, err = cs101.ParseParity(r.Parity); err != nil {
		return Config{}, &ConfigError{Field: "parity", Value: r.Parity, Msg: "expected N, O, E, M or S", Err: err}
	}
	if cfg.Serial.StopBits, err = cs101.ParseStopBits(r.StopBits); err != nil {
		return Config{}, &ConfigError{Field: "stop bits", Value: r.StopBits, Msg: "expected 1, 1.5 or 2", Err: err}
	}
	if cfg.LocalAddress, err = parseAddress("local address", r.LocalAddress); err != nil {
		return Config{}, err
	}
	if cfg.RemoteAddress, err = parseAddress("remote address", r.RemoteAddress); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseInt(field, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ConfigError{Field: field, Value: s, Msg: "not a number", Err: err}
	}
	return v, nil
}

func parseAddress(field, s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, &ConfigError{Field: field, Value: s, Msg: "not an address", Err: err}
	}
	return uint16(v), nil
}
