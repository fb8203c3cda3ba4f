// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package serialport provides the serial line a cs101 master runs over.
package serialport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/riclolsen/cs101master/clog"
	"github.com/riclolsen/cs101master/cs101"
)

// error defined
var (
	ErrPortClosed = errors.New("serialport: port is not open")
	ErrPortOpen   = errors.New("serialport: port is already open")
)

// portHandle is the part of serial.Port used here.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// tests replace the driver
var openPort = func(name string, mode *serial.Mode) (portHandle, error) {
	return serial.Open(name, mode)
}

// Port is a serial line described by a cs101.SerialConfig. It is created
// closed; Open acquires the device.
type Port struct {
	cfg cs101.SerialConfig
	clog.Clog

	mu          sync.Mutex
	handle      portHandle
	readTimeout time.Duration
}

var _ cs101.Port = (*Port)(nil)

// New checks cfg and returns a closed port.
func New(cfg cs101.SerialConfig) (*Port, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	p := &Port{
		cfg:         cfg,
		Clog:        clog.NewLogger("serialport " + cfg.Address),
		readTimeout: cfg.Timeout,
	}
	p.LogMode(true)
	return p, nil
}

// Config returns the line parameters.
func (sf *Port) Config() cs101.SerialConfig {
	return sf.cfg
}

// Open opens the device with the configured line parameters.
func (sf *Port) Open() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.handle != nil {
		return ErrPortOpen
	}
	h, err := openPort(sf.cfg.Address, sf.cfg.Mode())
	if err != nil {
		return fmt.Errorf("open %s: %w", sf.cfg.Address, err)
	}
	if sf.readTimeout > 0 {
		if err := h.SetReadTimeout(sf.readTimeout); err != nil {
			h.Close()
			return fmt.Errorf("set read timeout on %s: %w", sf.cfg.Address, err)
		}
	}
	if err := h.ResetInputBuffer(); err != nil {
		sf.Warn("Failed to flush input buffer: %v", err)
	}
	sf.handle = h
	sf.Info("Opened %s", sf.cfg)
	return nil
}

// IsOpen reports whether the device is held.
func (sf *Port) IsOpen() bool {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.handle != nil
}

func (sf *Port) current() (portHandle, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.handle == nil {
		return nil, ErrPortClosed
	}
	return sf.handle, nil
}

// Read reads what the line has within the read timeout. It returns (0, nil)
// when the timeout expires without data.
func (sf *Port) Read(b []byte) (int, error) {
	h, err := sf.current()
	if err != nil {
		return 0, err
	}
	return h.Read(b)
}

// Write writes b to the line.
func (sf *Port) Write(b []byte) (int, error) {
	h, err := sf.current()
	if err != nil {
		return 0, err
	}
	return h.Write(b)
}

// SetReadTimeout sets the read timeout. On a closed port it is kept and
// applied by Open.
func (sf *Port) SetReadTimeout(t time.Duration) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.readTimeout = t
	if sf.handle == nil {
		return nil
	}
	if t <= 0 {
		t = serial.NoTimeout
	}
	return sf.handle.SetReadTimeout(t)
}

// Close releases the device. Closing a closed port is a no-op.
func (sf *Port) Close() error {
	sf.mu.Lock()
	h := sf.handle
	sf.handle = nil
	sf.mu.Unlock()
	if h == nil {
		return nil
	}
	sf.Info("Closing %s", sf.cfg.Address)
	return h.Close()
}
