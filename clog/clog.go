// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package clog provides the printf-style component logger embedded by the
// protocol and session types. Output goes through log/slog.
package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	console "github.com/phsym/console-slog"
)

// LogProvider receives formatted log records from a Clog.
type LogProvider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Clog is a logger that can be switched on and off at runtime.
// The zero value is silent until a provider is set and LogMode(true) is called.
type Clog struct {
	provider LogProvider
	// enabled is 1 when output is on
	enabled uint32
}

// NewLogger creates a Clog writing to the package default slog.Logger,
// tagged with the given component name. Logging starts disabled.
func NewLogger(component string) Clog {
	return Clog{provider: slogProvider{component: strings.TrimSpace(component)}}
}

// LogMode enables or disables log output.
func (sf *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&sf.enabled, 1)
	} else {
		atomic.StoreUint32(&sf.enabled, 0)
	}
}

// SetLogProvider replaces the output provider. A nil provider is ignored.
func (sf *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		sf.provider = p
	}
}

func (sf *Clog) on() bool {
	return sf.provider != nil && atomic.LoadUint32(&sf.enabled) == 1
}

// Critical logs a critical message.
func (sf *Clog) Critical(format string, v ...interface{}) {
	if sf.on() {
		sf.provider.Critical(format, v...)
	}
}

// Error logs an error message.
func (sf *Clog) Error(format string, v ...interface{}) {
	if sf.on() {
		sf.provider.Error(format, v...)
	}
}

// Warn logs a warning message.
func (sf *Clog) Warn(format string, v ...interface{}) {
	if sf.on() {
		sf.provider.Warn(format, v...)
	}
}

// Info logs an informational message.
func (sf *Clog) Info(format string, v ...interface{}) {
	if sf.on() {
		sf.provider.Info(format, v...)
	}
}

// Debug logs a debug message.
func (sf *Clog) Debug(format string, v ...interface{}) {
	if sf.on() {
		sf.provider.Debug(format, v...)
	}
}

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

// Format selects the slog handler used by NewHandler.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// ParseFormat maps a flag value to a Format. Empty selects console output
// when ENV=development and JSON otherwise.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if os.Getenv("ENV") == "development" {
			return FormatConsole, nil
		}
		return FormatJSON, nil
	case "console", "text":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("clog: unknown log format %q", s)
	}
}

// ParseLevel maps a flag value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("clog: unknown log level %q", s)
	}
}

// NewHandler builds a console or JSON slog handler writing to w.
func NewHandler(w io.Writer, level slog.Leveler, format Format) slog.Handler {
	if format == FormatConsole {
		return console.NewHandler(w, &console.HandlerOptions{
			AddSource: false,
			Level:     level,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv >= LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	})
}

var root atomic.Pointer[slog.Logger]

func init() {
	format, _ := ParseFormat("")
	root.Store(slog.New(NewHandler(os.Stderr, slog.LevelInfo, format)))
}

// SetDefault replaces the slog.Logger used by every Clog created with NewLogger,
// including those created before the call.
func SetDefault(l *slog.Logger) {
	if l != nil {
		root.Store(l)
	}
}

// Default returns the current package logger.
func Default() *slog.Logger {
	return root.Load()
}

type slogProvider struct {
	component string
}

func (p slogProvider) log(level slog.Level, format string, v ...interface{}) {
	l := root.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	if p.component != "" {
		l.Log(ctx, level, fmt.Sprintf(format, v...), slog.String("component", p.component))
		return
	}
	l.Log(ctx, level, fmt.Sprintf(format, v...))
}

func (p slogProvider) Critical(format string, v ...interface{}) { p.log(LevelCritical, format, v...) }
func (p slogProvider) Error(format string, v ...interface{}) { p.log(slog.LevelError, format, v...) }
func (p slogProvider) Warn(format string, v ...interface{}) { p.log(slog.LevelWarn, format, v...) }
func (p slogProvider) Info(format string, v ...interface{}) { p.log(slog.LevelInfo, format, v...) }
func (p slogProvider) Debug(format string, v ...interface{}) { p.log(slog.LevelDebug, format, v...) }
