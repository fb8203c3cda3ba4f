// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"time"

	"github.com/riclolsen/cs101master/asdu"
	"github.com/riclolsen/cs101master/cs101"
	"github.com/riclolsen/cs101master/serialport"
)

// Engine is the protocol engine a session drives. Run is called from the
// worker goroutine; the other methods from the caller of Session.
type Engine interface {
	Run()
	Destroy()

	SetASDUReceivedHandler(h cs101.ASDUReceivedHandler)
	SetRawMessageHandler(h cs101.RawMessageHandler)
	SetLinkLayerStateChanged(h cs101.LinkLayerStateChangedHandler)

	SendInterrogationCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, qoi asdu.QualifierOfInterrogation) error
	SendProcessCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, cmd asdu.CommandObject) error
	SendClockSyncCommand(ca asdu.CommonAddr, t time.Time) error
}

// Transport is the line an engine runs over.
type Transport interface {
	cs101.Port
	Open() error
	Close() error
}

// EngineFactory creates an engine on port.
type EngineFactory func(port cs101.Port, opt *cs101.Option) (Engine, error)

// TransportFactory creates a closed transport for cfg.
type TransportFactory func(cfg cs101.SerialConfig) (Transport, error)

// NewMasterEngine creates a cs101 master.
func NewMasterEngine(port cs101.Port, opt *cs101.Option) (Engine, error) {
	m, err := cs101.NewMaster(port, opt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewSerialTransport creates a serial port.
func NewSerialTransport(cfg cs101.SerialConfig) (Transport, error) {
	p, err := serialport.New(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

var (
	_ Engine    = (*cs101.Master)(nil)
	_ Transport = (*serialport.Port)(nil)
)
