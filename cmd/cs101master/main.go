// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Command cs101master is an interactive IEC 60870-5-101 master for one
// remote station on a serial line.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/riclolsen/cs101master/clog"
	"github.com/riclolsen/cs101master/event"
	"github.com/riclolsen/cs101master/portscan"
	"github.com/riclolsen/cs101master/session"
)

const usage = `Usage:
  cs101master ports [--log-level L] [--log-format F]
  cs101master connect --port NAME [flags]

Run "cs101master connect --help" for the connect flags.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "cs101master: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "ports":
		return runPorts(args[1:])
	case "connect":
		return runConnect(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func setupLogging(w io.Writer, level, format string) error {
	lvl, err := clog.ParseLevel(level)
	if err != nil {
		return err
	}
	f, err := clog.ParseFormat(format)
	if err != nil {
		return err
	}
	clog.SetDefault(slog.New(clog.NewHandler(w, lvl, f)))
	return nil
}

func runPorts(args []string) error {
	o := defaultOptions()
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	fs.StringVar(&o.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	fs.StringVar(&o.LogFormat, "log-format", "", "Log format: console or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := setupLogging(os.Stderr, o.LogLevel, o.LogFormat); err != nil {
		return err
	}
	for _, p := range portscan.New().Discover() {
		fmt.Println(p)
	}
	return nil
}

func runConnect(ctx context.Context, args []string) error {
	o, err := parseConnectFlags(args)
	if err != nil {
		return err
	}
	cfg, err := o.sessionConfig()
	if err != nil {
		return err
	}

	var (
		out      io.Writer = os.Stdout
		readLine func() (string, error)
	)
	stdin := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdin) && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		state, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		defer term.Restore(stdin, state)
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "cs101> ")
		out, readLine = t, t.ReadLine
	} else {
		sc := bufio.NewScanner(os.Stdin)
		readLine = func() (string, error) {
			if sc.Scan() {
				return sc.Text(), nil
			}
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
	}
	logOut := out
	if !interactive {
		logOut = os.Stderr
	}
	if err := setupLogging(logOut, o.LogLevel, o.LogFormat); err != nil {
		return err
	}

	bus := event.NewBus()
	defer bus.Close()
	history := event.NewHistory(event.DefaultHistorySize)
	bus.Subscribe(history.Record)
	r := newRenderer(out, interactive)
	bus.Subscribe(r.handle)

	s := session.New(session.WithSink(bus), session.WithPollInterval(o.PollInterval))
	if err := s.Connect(cfg); err != nil {
		return err
	}
	defer func() {
		if res, err := s.Disconnect(); err == nil && res.Outcome == session.JoinTimedOut {
			fmt.Fprintln(out, "Polling worker did not stop in time")
		}
	}()

	sh := &shell{
		master:  s,
		history: history,
		catalog: portscan.New(portscan.WithSink(bus)),
		link:    r.linkState,
		out:     out,
	}
	fmt.Fprintln(out, `Type "help" for commands.`)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := readLine()
			if err != nil {
				readErr <- err
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lines:
			err := sh.exec(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}
