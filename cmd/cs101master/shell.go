// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/riclolsen/cs101master/event"
	"github.com/riclolsen/cs101master/portscan"
	"github.com/riclolsen/cs101master/session"
)

// Defaults of the single command.
const (
	defaultIOA   = 5000
	defaultValue = true
)

var errQuit = errors.New("quit")

// master is the part of session.Session the shell drives.
type master interface {
	SendInterrogation() error
	SendCommand(ioa int, value bool) error
	SendTimeSync() error
	State() session.State
	ConnID() string
	Metrics() session.MetricsSnapshot
}

type shell struct {
	master  master
	history *event.History
	catalog *portscan.Catalog
	link    func() event.LinkState
	out     io.Writer
}

const shellHelp = `Commands:
  gi                  station interrogation
  cmd [ioa] [0|1]     single command (default IOA 5000, value 1)
  sync                clock synchronization
  status              connection state and counters
  history             print the traffic log
  clear               clear the traffic log
  ports               list serial ports
  quit                disconnect and exit`

// exec runs one command line. It returns errQuit on quit.
func (sf *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "gi":
		return sf.master.SendInterrogation()

	case "cmd":
		ioa, value, err := parseCommandArgs(fields[1:])
		if err != nil {
			return err
		}
		return sf.master.SendCommand(ioa, value)

	case "sync":
		return sf.master.SendTimeSync()

	case "status":
		m := sf.master.Metrics()
		fmt.Fprintf(sf.out, "Session: %s %s\n", sf.master.State(), sf.master.ConnID())
		if sf.link != nil {
			fmt.Fprintf(sf.out, "Link Layer: %s\n", sf.link())
		}
		fmt.Fprintf(sf.out, "Connects: %d Disconnects: %d Join timeouts: %d Commands: %d\n",
			m.Connects, m.Disconnects, m.JoinTimeouts, m.CommandsSent)
		return nil

	case "history":
		for _, l := range sf.history.Lines() {
			fmt.Fprintln(sf.out, l)
		}
		return nil

	case "clear":
		sf.history.Clear()
		return nil

	case "ports":
		if sf.catalog == nil {
			return errors.New("port discovery not available")
		}
		for _, p := range sf.catalog.Discover() {
			fmt.Fprintln(sf.out, p)
		}
		return nil

	case "help", "?":
		fmt.Fprintln(sf.out, shellHelp)
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

func parseCommandArgs(args []string) (int, bool, error) {
	ioa, value := defaultIOA, defaultValue
	if len(args) > 2 {
		return 0, false, errors.New("usage: cmd [ioa] [0|1]")
	}
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, false, fmt.Errorf("invalid IOA %q", args[0])
		}
		ioa = v
	}
	if len(args) > 1 {
		switch args[1] {
		case "0", "off", "OFF":
			value = false
		case "1", "on", "ON":
			value = true
		default:
			return 0, false, fmt.Errorf("invalid value %q, expected 0 or 1", args[1])
		}
	}
	return ioa, value, nil
}
