// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package portscan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/riclolsen/cs101master/event"
)

type listers struct {
	detailedCalls int
	mappingCalls  int
	detailed      []*enumerator.PortDetails
	detailedErr   error
	mapping       []string
	mappingErr    error
}

func (l *listers) options() []Option {
	return []Option{
		WithDetailedLister(func() ([]*enumerator.PortDetails, error) {
			l.detailedCalls++
			return l.detailed, l.detailedErr
		}),
		WithMappingLister(func() ([]string, error) {
			l.mappingCalls++
			return l.mapping, l.mappingErr
		}),
		WithNamePattern(windowsPorts),
		WithProbePattern("COM%d"),
	}
}

func newCatalog(l *listers, sink event.Sink) *Catalog {
	c := New(append(l.options(), WithSink(sink))...)
	c.LogMode(false)
	return c
}

type texts []string

func (t *texts) Publish(ev event.Event) { *t = append(*t, ev.Text) }

func TestDiscoverDetailed(t *testing.T) {
	require := require.New(t)
	l := &listers{detailed: []*enumerator.PortDetails{
		{Name: "COM5", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A50285BI", Product: "FT232R USB UART"},
		{Name: "LPT1"},
		{Name: "COM3"},
	}}
	var log texts
	ports := newCatalog(l, &log).Discover()

	require.Equal([]PortDescriptor{
		{Name: "COM5", Source: SourceDetailed, Detail: "USB VID:PID=0403:6001 SN=A50285BI FT232R USB UART"},
		{Name: "COM3", Source: SourceDetailed},
	}, ports)
	require.Equal(1, l.detailedCalls)
	require.Zero(l.mappingCalls, "fallback not consulted")
	require.Equal(texts{
		"Scanning for available serial ports...",
		"Found port: COM5",
		"Found port: COM3",
		"Total serial ports found: 2",
	}, log)
	require.False(ports[0].Source.Fallback())
}

func TestDiscoverMapping(t *testing.T) {
	require := require.New(t)
	l := &listers{
		detailedErr: errors.New("setupapi unavailable"),
		mapping:     []string{"COM7", "", "COM2"},
	}
	var log texts
	ports := newCatalog(l, &log).Discover()

	require.Equal([]PortDescriptor{
		{Name: "COM7", Source: SourceMapping},
		{Name: "COM2", Source: SourceMapping},
	}, ports, "table order kept")
	require.Equal(1, l.detailedCalls)
	require.Equal(1, l.mappingCalls)
	require.Contains(log, "No ports found via device enumeration, trying port table...")
	require.Contains(log, "Total serial ports found: 2")
	require.True(ports[0].Source.Fallback())
}

func TestDiscoverProbe(t *testing.T) {
	require := require.New(t)
	l := &listers{mappingErr: errors.New("registry key missing")}
	var log texts
	ports := newCatalog(l, &log).Discover()

	require.Len(ports, ProbeCount)
	require.Equal(PortDescriptor{Name: "COM1", Source: SourceProbe}, ports[0])
	require.Equal(PortDescriptor{Name: "COM256", Source: SourceProbe}, ports[ProbeCount-1])
	require.Equal(1, l.detailedCalls)
	require.Equal(1, l.mappingCalls)
	require.Contains(log, "No serial ports found, synthesizing COM1-COM256...")
	require.Contains(log, "Total serial ports found: 0")
}

func TestDiscoverWithoutSink(t *testing.T) {
	c := New(WithDetailedLister(nil), WithMappingLister(func() ([]string, error) {
		return []string{"/dev/ttyUSB0"}, nil
	}), WithSink(nil))
	c.LogMode(false)
	require.Equal(t, []PortDescriptor{{Name: "/dev/ttyUSB0", Source: SourceMapping}}, c.Discover())
}

func TestPlatformDefaults(t *testing.T) {
	require := require.New(t)

	re, pattern := platformDefaults("windows")
	require.Equal("COM%d", pattern)
	require.True(re.MatchString("COM12"))
	require.True(re.MatchString(`\\.\COM12`))
	require.False(re.MatchString("LPT1"))

	re, pattern = platformDefaults("linux")
	require.Equal("/dev/ttyS%d", pattern)
	for _, name := range []string{"/dev/ttyS0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyAMA0", "/dev/ttymxc2"} {
		require.True(re.MatchString(name), name)
	}
	require.False(re.MatchString("/dev/tty1"))

	re, pattern = platformDefaults("darwin")
	require.Equal("/dev/tty.serial%d", pattern)
	require.True(re.MatchString("/dev/cu.usbserial-1420"))
	require.False(re.MatchString("/dev/ttys000"))
}
