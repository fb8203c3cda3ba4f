// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/riclolsen/cs101master/session"
)

// options are the connect settings after defaults, file and flags.
type options struct {
	Port         string
	Baud         int
	DataBits     int
	Parity       string
	StopBits     string
	MasterAddr   uint16
	SlaveAddr    uint16
	ConfigPath   string
	LogLevel     string
	LogFormat    string
	PollInterval time.Duration
}

func defaultOptions() options {
	return options{
		Baud:         9600,
		DataBits:     8,
		Parity:       "E",
		StopBits:     "1",
		MasterAddr:   session.DefaultLocalAddress,
		SlaveAddr:    session.DefaultRemoteAddress,
		LogLevel:     "info",
		PollInterval: session.DefaultPollInterval,
	}
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "p", o.Port, "Serial port, e.g. COM5 or /dev/ttyUSB0")
	fs.IntVarP(&o.Baud, "baud", "b", o.Baud, "Baud rate")
	fs.IntVar(&o.DataBits, "databits", o.DataBits, "Data bits (5-8)")
	fs.StringVar(&o.Parity, "parity", o.Parity, "Parity: N, O, E, M or S")
	fs.StringVar(&o.StopBits, "stopbits", o.StopBits, "Stop bits: 1, 1.5 or 2")
	fs.Uint16Var(&o.MasterAddr, "master-addr", o.MasterAddr, "Link address of this master")
	fs.Uint16Var(&o.SlaveAddr, "slave-addr", o.SlaveAddr, "Link and common address of the remote station")
	fs.StringVar(&o.ConfigPath, "config", "", "Settings file (.toml, .yaml or .yml)")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format: console or json")
	fs.DurationVar(&o.PollInterval, "poll-interval", o.PollInterval, "Pause between protocol steps")
}

// sessionConfig converts the line settings.
func (o options) sessionConfig() (session.Config, error) {
	return session.ParseConfig(session.RawConfig{
		Port:          o.Port,
		BaudRate:      strconv.Itoa(o.Baud),
		DataBits:      strconv.Itoa(o.DataBits),
		Parity:        o.Parity,
		StopBits:      o.StopBits,
		LocalAddress:  strconv.FormatUint(uint64(o.MasterAddr), 10),
		RemoteAddress: strconv.FormatUint(uint64(o.SlaveAddr), 10),
	})
}

// fileConfig is the settings file. Absent keys leave the setting alone.
type fileConfig struct {
	Port         *string `toml:"port" yaml:"port"`
	Baud         *int    `toml:"baud" yaml:"baud"`
	DataBits     *int    `toml:"data_bits" yaml:"data_bits"`
	Parity       *string `toml:"parity" yaml:"parity"`
	StopBits     *string `toml:"stop_bits" yaml:"stop_bits"`
	MasterAddr   *uint16 `toml:"master_addr" yaml:"master_addr"`
	SlaveAddr    *uint16 `toml:"slave_addr" yaml:"slave_addr"`
	LogLevel     *string `toml:"log_level" yaml:"log_level"`
	LogFormat    *string `toml:"log_format" yaml:"log_format"`
	PollInterval *string `toml:"poll_interval" yaml:"poll_interval"`
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &fc)
		if err != nil {
			return fileConfig{}, fmt.Errorf("load %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fileConfig{}, fmt.Errorf("load %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fileConfig{}, fmt.Errorf("load %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil {
			return fileConfig{}, fmt.Errorf("load %s: %w", path, err)
		}
	default:
		return fileConfig{}, fmt.Errorf("load %s: unsupported settings file type", path)
	}
	return fc, nil
}

// apply copies file settings into o, skipping those set by a flag.
func (fc fileConfig) apply(o *options, fs *flag.FlagSet) error {
	set := func(name string) bool { return !fs.Changed(name) }
	if fc.Port != nil && set("port") {
		o.Port = strings.TrimSpace(*fc.Port)
	}
	if fc.Baud != nil && set("baud") {
		o.Baud = *fc.Baud
	}
	if fc.DataBits != nil && set("databits") {
		o.DataBits = *fc.DataBits
	}
	if fc.Parity != nil && set("parity") {
		o.Parity = *fc.Parity
	}
	if fc.StopBits != nil && set("stopbits") {
		o.StopBits = *fc.StopBits
	}
	if fc.MasterAddr != nil && set("master-addr") {
		o.MasterAddr = *fc.MasterAddr
	}
	if fc.SlaveAddr != nil && set("slave-addr") {
		o.SlaveAddr = *fc.SlaveAddr
	}
	if fc.LogLevel != nil && set("log-level") {
		o.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil && set("log-format") {
		o.LogFormat = *fc.LogFormat
	}
	if fc.PollInterval != nil && set("poll-interval") {
		d, err := time.ParseDuration(strings.TrimSpace(*fc.PollInterval))
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		o.PollInterval = d
	}
	return nil
}

// parseConnectFlags resolves the connect options from args and the
// optional settings file.
func parseConnectFlags(args []string) (options, error) {
	o := defaultOptions()
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	o.bind(fs)
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	if o.ConfigPath != "" {
		fc, err := loadFile(o.ConfigPath)
		if err != nil {
			return options{}, err
		}
		if err := fc.apply(&o, fs); err != nil {
			return options{}, err
		}
	}
	return o, nil
}
