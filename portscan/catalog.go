// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package portscan lists the serial ports a master can be connected to.
package portscan

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/riclolsen/cs101master/clog"
	"github.com/riclolsen/cs101master/event"
)

// Source tells which discovery tier produced a port.
type Source int

const (
	// SourceDetailed ports come from device enumeration.
	SourceDetailed Source = iota
	// SourceMapping ports come from the system port name table.
	SourceMapping
	// SourceProbe ports are synthesized names that may not exist.
	SourceProbe
)

func (s Source) String() string {
	switch s {
	case SourceDetailed:
		return "detailed"
	case SourceMapping:
		return "mapping"
	case SourceProbe:
		return "probe"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Fallback reports whether s is one of the fallback tiers.
func (s Source) Fallback() bool {
	return s != SourceDetailed
}

// PortDescriptor is one candidate port.
type PortDescriptor struct {
	Name   string
	Source Source
	// Detail describes USB adapters found by device enumeration.
	Detail string
}

func (sf PortDescriptor) String() string {
	if sf.Detail == "" {
		return fmt.Sprintf("%s [%s]", sf.Name, sf.Source)
	}
	return fmt.Sprintf("%s [%s] %s", sf.Name, sf.Source, sf.Detail)
}

// ProbeCount is the number of names synthesized by the probe tier.
const ProbeCount = 256

// DetailedLister enumerates devices with their USB details.
type DetailedLister func() ([]*enumerator.PortDetails, error)

// MappingLister returns the names in the system port table.
type MappingLister func() ([]string, error)

// Catalog discovers serial ports. The zero value is not usable; use New.
type Catalog struct {
	clog.Clog

	detailed     DetailedLister
	mapping      MappingLister
	namePattern  *regexp.Regexp
	probePattern string
	sink         event.Sink
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithDetailedLister replaces the device enumeration tier.
func WithDetailedLister(l DetailedLister) Option {
	return func(c *Catalog) { c.detailed = l }
}

// WithMappingLister replaces the port table tier.
func WithMappingLister(l MappingLister) Option {
	return func(c *Catalog) { c.mapping = l }
}

// WithProbePattern sets the printf pattern of synthesized names, e.g. "COM%d".
func WithProbePattern(pattern string) Option {
	return func(c *Catalog) { c.probePattern = pattern }
}

// WithNamePattern sets which enumerated device names count as serial ports.
func WithNamePattern(re *regexp.Regexp) Option {
	return func(c *Catalog) { c.namePattern = re }
}

// WithSink publishes discovery progress to s.
func WithSink(s event.Sink) Option {
	return func(c *Catalog) { c.sink = s }
}

// platform naming conventions
var (
	windowsPorts = regexp.MustCompile(`^(\\\\\.\\)?COM[0-9]+$`)
	darwinPorts  = regexp.MustCompile(`^/dev/(tty|cu)\..+$`)
	linuxPorts   = regexp.MustCompile(`^/dev/tty(S|USB|ACM|AMA|XRUSB|mxc|O)[0-9]+$`)
)

func platformDefaults(goos string) (*regexp.Regexp, string) {
	switch goos {
	case "windows":
		return windowsPorts, "COM%d"
	case "darwin":
		return darwinPorts, "/dev/tty.serial%d"
	default:
		return linuxPorts, "/dev/ttyS%d"
	}
}

// New returns a Catalog for the running platform.
func New(opts ...Option) *Catalog {
	re, pattern := platformDefaults(runtime.GOOS)
	c := &Catalog{
		Clog:         clog.NewLogger("portscan"),
		detailed:     enumerator.GetDetailedPortsList,
		mapping:      serial.GetPortsList,
		namePattern:  re,
		probePattern: pattern,
		sink:         event.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = event.Discard
	}
	c.LogMode(true)
	return c
}

func (sf *Catalog) report(format string, v ...interface{}) {
	sf.Info(format, v...)
	sf.sink.Publish(event.Log(event.DirNone, format, v...))
}

// Discover runs the tiers in order and returns the first non-empty result.
// The result is never empty: when no port is found the probe tier
// synthesizes ProbeCount names without checking them.
func (sf *Catalog) Discover() []PortDescriptor {
	sf.report("Scanning for available serial ports...")

	ports := sf.discoverDetailed()
	if len(ports) == 0 {
		sf.report("No ports found via device enumeration, trying port table...")
		ports = sf.discoverMapping()
	}
	if len(ports) > 0 {
		sf.report("Total serial ports found: %d", len(ports))
		return ports
	}

	first, last := fmt.Sprintf(sf.probePattern, 1), fmt.Sprintf(sf.probePattern, ProbeCount)
	sf.report("No serial ports found, synthesizing %s-%s...", first, last)
	ports = make([]PortDescriptor, 0, ProbeCount)
	for i := 1; i <= ProbeCount; i++ {
		ports = append(ports, PortDescriptor{Name: fmt.Sprintf(sf.probePattern, i), Source: SourceProbe})
	}
	sf.report("Total serial ports found: 0")
	return ports
}

func (sf *Catalog) discoverDetailed() []PortDescriptor {
	if sf.detailed == nil {
		return nil
	}
	list, err := sf.detailed()
	if err != nil {
		sf.Warn("Device enumeration failed: %v", err)
		return nil
	}
	var ports []PortDescriptor
	for _, p := range list {
		if p == nil || !sf.namePattern.MatchString(p.Name) {
			continue
		}
		ports = append(ports, PortDescriptor{Name: p.Name, Source: SourceDetailed, Detail: describe(p)})
		sf.report("Found port: %s", p.Name)
	}
	return ports
}

func (sf *Catalog) discoverMapping() []PortDescriptor {
	if sf.mapping == nil {
		return nil
	}
	names, err := sf.mapping()
	if err != nil {
		sf.Warn("Port table lookup failed: %v", err)
		return nil
	}
	ports := make([]PortDescriptor, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		ports = append(ports, PortDescriptor{Name: name, Source: SourceMapping})
	}
	return ports
}

func describe(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return ""
	}
	parts := []string{fmt.Sprintf("USB VID:PID=%s:%s", p.VID, p.PID)}
	if p.SerialNumber != "" {
		parts = append(parts, "SN="+p.SerialNumber)
	}
	if p.Product != "" {
		parts = append(parts, p.Product)
	}
	return strings.Join(parts, " ")
}
