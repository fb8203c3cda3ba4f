// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riclolsen/cs101master/event"
	"github.com/riclolsen/cs101master/session"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConnectFlagsDefaults(t *testing.T) {
	require := require.New(t)
	o, err := parseConnectFlags([]string{"-p", "COM5"})
	require.NoError(err)

	cfg, err := o.sessionConfig()
	require.NoError(err)
	require.Equal("COM5 (9600,8,E,1)", cfg.Serial.String())
	require.Equal(uint16(2), cfg.LocalAddress)
	require.Equal(uint16(1), cfg.RemoteAddress)
	require.Equal(10*time.Millisecond, o.PollInterval)
}

func TestConnectFlagsTOML(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "master.toml", `
port = "/dev/ttyUSB0"
baud = 19200
parity = "N"
slave_addr = 7
poll_interval = "20ms"
`)
	o, err := parseConnectFlags([]string{"--config", path, "--baud", "4800"})
	require.NoError(err)
	require.Equal("/dev/ttyUSB0", o.Port)
	require.Equal(4800, o.Baud, "flag wins over file")
	require.Equal("N", o.Parity)
	require.Equal(uint16(7), o.SlaveAddr)
	require.Equal(uint16(2), o.MasterAddr, "absent key keeps default")
	require.Equal(20*time.Millisecond, o.PollInterval)

	bad := writeFile(t, "bad.toml", "prt = \"COM1\"\n")
	_, err = parseConnectFlags([]string{"--config", bad})
	require.ErrorContains(err, "unknown keys")
}

func TestConnectFlagsYAML(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, "master.yaml", "port: COM3\ndata_bits: 7\nstop_bits: \"2\"\nmaster_addr: 4\n")
	o, err := parseConnectFlags([]string{"--config", path})
	require.NoError(err)
	require.Equal("COM3", o.Port)
	require.Equal(7, o.DataBits)
	require.Equal("2", o.StopBits)
	require.Equal(uint16(4), o.MasterAddr)

	bad := writeFile(t, "bad.yml", "baudrate: 9600\n")
	_, err = parseConnectFlags([]string{"--config", bad})
	require.Error(err)

	_, err = parseConnectFlags([]string{"--config", writeFile(t, "x.json", "{}")})
	require.ErrorContains(err, "unsupported")
}

func TestConnectFlagsInvalid(t *testing.T) {
	require := require.New(t)

	o, err := parseConnectFlags([]string{"--port", "COM1", "--parity", "Q"})
	require.NoError(err)
	_, err = o.sessionConfig()
	require.ErrorIs(err, session.ErrConfigInvalid)

	_, err = parseConnectFlags([]string{"--baud", "fast"})
	require.Error(err)

	_, err = parseConnectFlags([]string{"COM1"})
	require.Error(err)
}

type fakeMaster struct {
	calls []string
	err   error
}

func (m *fakeMaster) SendInterrogation() error {
	m.calls = append(m.calls, "gi")
	return m.err
}

func (m *fakeMaster) SendCommand(ioa int, value bool) error {
	m.calls = append(m.calls, fmt.Sprintf("cmd %d %t", ioa, value))
	return m.err
}

func (m *fakeMaster) SendTimeSync() error {
	m.calls = append(m.calls, "sync")
	return m.err
}

func (m *fakeMaster) State() session.State             { return session.Connected }
func (m *fakeMaster) ConnID() string                   { return "id-1" }
func (m *fakeMaster) Metrics() session.MetricsSnapshot { return session.MetricsSnapshot{Connects: 1} }

func TestShell(t *testing.T) {
	require := require.New(t)
	m := &fakeMaster{}
	var out bytes.Buffer
	h := event.NewHistory(10)
	sh := &shell{
		master:  m,
		history: h,
		link:    func() event.LinkState { return event.LinkAvailable },
		out:     &out,
	}

	require.NoError(sh.exec("gi"))
	require.NoError(sh.exec("cmd"))
	require.NoError(sh.exec("cmd 100 0"))
	require.NoError(sh.exec("  SYNC "))
	require.NoError(sh.exec(""))
	require.Equal([]string{"gi", "cmd 5000 true", "cmd 100 false", "sync"}, m.calls)

	require.Error(sh.exec("cmd abc"))
	require.Error(sh.exec("cmd 1 2"))
	require.Error(sh.exec("cmd 1 1 1"))
	require.Error(sh.exec("bogus"))
	require.Error(sh.exec("ports"), "no catalog")
	require.ErrorIs(sh.exec("quit"), errQuit)

	require.NoError(sh.exec("status"))
	require.Contains(out.String(), "Session: Connected id-1")
	require.Contains(out.String(), "Link Layer: AVAILABLE")

	h.Add("[12:00:00.000] SEND: E5")
	out.Reset()
	require.NoError(sh.exec("history"))
	require.Equal("[12:00:00.000] SEND: E5\n", out.String())
	require.NoError(sh.exec("clear"))
	require.Zero(h.Len())
}

func TestRenderer(t *testing.T) {
	require := require.New(t)
	var out bytes.Buffer
	r := newRenderer(&out, false)

	ev := event.LinkStateChanged(1, event.LinkError)
	ev.Time = time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)
	r.handle(ev)
	require.Equal(event.LinkError, r.linkState())
	require.Contains(out.String(), "WRN")
	require.Contains(out.String(), "[09:30:00.000] STATUS: Link Layer: ERROR")
}
