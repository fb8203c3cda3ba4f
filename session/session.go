// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package session manages the connection of a master to one remote station:
// acquiring the serial transport and the protocol engine, running the
// polling worker and issuing commands.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riclolsen/cs101master/asdu"
	"github.com/riclolsen/cs101master/clog"
	"github.com/riclolsen/cs101master/cs101"
	"github.com/riclolsen/cs101master/event"
)

// DefaultJoinTimeout bounds how long Disconnect waits for the worker.
const DefaultJoinTimeout = 2 * time.Second

// State of a Session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// JoinOutcome tells how the worker ended on Disconnect.
type JoinOutcome int

const (
	// JoinNotRunning means there was no connection.
	JoinNotRunning JoinOutcome = iota
	// JoinClean means the worker stopped within the join timeout.
	JoinClean
	// JoinTimedOut means the worker was still running at the deadline. It
	// releases the engine and the transport itself when it stops.
	JoinTimedOut
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinNotRunning:
		return "not running"
	case JoinClean:
		return "clean"
	case JoinTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("JoinOutcome(%d)", int(o))
	}
}

// DisconnectResult reports the outcome of Disconnect.
type DisconnectResult struct {
	Outcome JoinOutcome
}

// Option configures a Session.
type Option func(*Session)

// WithSink publishes session events to s.
func WithSink(s event.Sink) Option {
	return func(sf *Session) {
		if s != nil {
			sf.sink = s
		}
	}
}

// WithEngineFactory replaces the cs101 master engine.
func WithEngineFactory(f EngineFactory) Option {
	return func(sf *Session) {
		if f != nil {
			sf.newEngine = f
		}
	}
}

// WithTransportFactory replaces the serial transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(sf *Session) {
		if f != nil {
			sf.newTransport = f
		}
	}
}

// WithJoinTimeout sets how long Disconnect waits for the worker.
func WithJoinTimeout(d time.Duration) Option {
	return func(sf *Session) {
		if d > 0 {
			sf.joinTimeout = d
		}
	}
}

// WithPollInterval sets the pause between engine steps.
func WithPollInterval(d time.Duration) Option {
	return func(sf *Session) {
		if d > 0 {
			sf.pollInterval = d
		}
	}
}

// Session is one master connection. It is created Idle and can be
// connected again after Disconnect. Methods are safe for concurrent use.
type Session struct {
	clog.Clog

	sink         event.Sink
	newEngine    EngineFactory
	newTransport TransportFactory
	joinTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time

	metrics Metrics

	mu        sync.Mutex
	state     State
	cfg       Config
	transport Transport
	engine    Engine
	worker    *worker
	connID    uuid.UUID
	// done channel of a worker that missed its join deadline. It closes
	// once that worker has released its engine and transport.
	abandoned chan struct{}
}

// New creates an Idle session.
func New(opts ...Option) *Session {
	sf := &Session{
		Clog:         clog.NewLogger("session"),
		sink:         event.Discard,
		newEngine:    NewMasterEngine,
		newTransport: NewSerialTransport,
		joinTimeout:  DefaultJoinTimeout,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(sf)
	}
	sf.LogMode(true)
	return sf
}

// State returns the lifecycle state.
func (sf *Session) State() State {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.state
}

// Config returns the configuration of the current connection.
func (sf *Session) Config() (Config, bool) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.state != Connected {
		return Config{}, false
	}
	return sf.cfg, true
}

// ConnID identifies the current connection in logs. It is empty when not connected.
func (sf *Session) ConnID() string {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.state != Connected {
		return ""
	}
	return sf.connID.String()
}

// Metrics returns a snapshot of the lifecycle counters.
func (sf *Session) Metrics() MetricsSnapshot {
	return sf.metrics.Snapshot()
}

func (sf *Session) log(dir event.Direction, format string, v ...interface{}) {
	sf.sink.Publish(event.Log(dir, format, v...))
}

// Connect acquires the transport and the engine for cfg and starts polling.
// On failure everything acquired so far is released and the session stays Idle.
func (sf *Session) Connect(cfg Config) error {
	sf.mu.Lock()
	if sf.state != Idle {
		st := sf.state
		sf.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, st)
	}
	if sf.abandoned != nil {
		select {
		case <-sf.abandoned:
			sf.abandoned = nil
		default:
			sf.mu.Unlock()
			return ErrWorkerJoinTimeout
		}
	}
	if err := cfg.Validate(); err != nil {
		sf.mu.Unlock()
		return err
	}
	sf.state = Connecting
	sf.mu.Unlock()

	tr, eng, err := sf.acquire(cfg)
	if err != nil {
		sf.mu.Lock()
		sf.state = Idle
		sf.mu.Unlock()
		sf.Error("Connect to %s failed: %v", cfg.Serial.Address, err)
		sf.log(event.DirNone, "%v", err)
		return err
	}

	sink := sf.sink
	eng.SetRawMessageHandler(func(msg []byte, sent bool) {
		sink.Publish(event.RawFrame(msg, sent))
	})
	eng.SetASDUReceivedHandler(func(address uint16, a *asdu.ASDU) bool {
		r := event.NewReceived(a)
		r.LinkAddress = address
		sink.Publish(event.ReceivedASDU(r))
		return true
	})
	eng.SetLinkLayerStateChanged(func(address uint16, s cs101.LinkLayerState) {
		sink.Publish(event.LinkStateChanged(address, linkState(s)))
	})

	sf.mu.Lock()
	sf.cfg = cfg
	sf.transport = tr
	sf.engine = eng
	sf.connID = uuid.New()
	sf.worker = startWorker(eng, sf.pollInterval, sf.workerPanic)
	sf.state = Connected
	id := sf.connID
	sf.mu.Unlock()

	sf.metrics.Connects.Add(1)
	text := "Connected to " + cfg.Serial.String()
	sf.Info("%s, connection %s", text, id)
	sf.sink.Publish(event.Status(text))
	sf.log(event.DirNone, "%s", text)
	return nil
}

// acquire creates the transport, creates the engine and opens the
// transport, rolling back on failure.
func (sf *Session) acquire(cfg Config) (Transport, Engine, error) {
	tr, err := sf.newTransport(cfg.Serial)
	if err != nil {
		return nil, nil, &TransportError{Op: "create", Port: cfg.Serial.Address, Err: err}
	}
	sf.metrics.TransportsAcquired.Add(1)

	eng, err := sf.newEngine(tr, cfg.engineOption())
	if err != nil {
		sf.releaseTransport(tr)
		return nil, nil, fmt.Errorf("%w: %v", ErrEngineCreateFailed, err)
	}
	sf.metrics.EnginesCreated.Add(1)

	if err := tr.Open(); err != nil {
		sf.destroyEngine(eng)
		sf.releaseTransport(tr)
		return nil, nil, &TransportError{Op: "open", Port: cfg.Serial.Address, Err: err}
	}
	return tr, eng, nil
}

func (sf *Session) destroyEngine(eng Engine) {
	eng.Destroy()
	sf.metrics.EnginesDestroyed.Add(1)
}

func (sf *Session) releaseTransport(tr Transport) {
	if err := tr.Close(); err != nil {
		sf.Warn("Failed to close transport: %v", err)
	}
	sf.metrics.TransportsReleased.Add(1)
}

func (sf *Session) workerPanic(r interface{}) {
	sf.Critical("Polling worker stopped by panic: %v", r)
	sf.sink.Publish(event.LinkStateChanged(0, event.LinkError))
	sf.log(event.DirNone, "Polling stopped: %v", r)
}

// Disconnect stops the worker and releases the engine and the transport.
// Disconnecting an Idle session does nothing. When the worker does not stop
// within the join timeout the session still returns to Idle and the worker
// releases the resources once it stops.
func (sf *Session) Disconnect() (DisconnectResult, error) {
	sf.mu.Lock()
	switch sf.state {
	case Idle:
		sf.mu.Unlock()
		return DisconnectResult{Outcome: JoinNotRunning}, nil
	case Connected:
	default:
		st := sf.state
		sf.mu.Unlock()
		return DisconnectResult{}, fmt.Errorf("%w: disconnect while %s", ErrInvalidState, st)
	}
	sf.state = Disconnecting
	w, eng, tr, id := sf.worker, sf.engine, sf.transport, sf.connID
	sf.mu.Unlock()

	release := func() {
		sf.destroyEngine(eng)
		sf.releaseTransport(tr)
	}
	outcome := JoinClean
	if w.stop(sf.joinTimeout) || !w.abandon(release) {
		release()
	} else {
		outcome = JoinTimedOut
		sf.metrics.JoinTimeouts.Add(1)
		sf.Warn("Connection %s: %v after %v", id, ErrWorkerJoinTimeout, sf.joinTimeout)
	}

	sf.mu.Lock()
	if outcome == JoinTimedOut {
		sf.abandoned = w.done
	}
	sf.worker = nil
	sf.engine = nil
	sf.transport = nil
	sf.cfg = Config{}
	sf.connID = uuid.Nil
	sf.state = Idle
	sf.mu.Unlock()

	sf.metrics.Disconnects.Add(1)
	sf.Info("Disconnected, connection %s, join %s", id, outcome)
	sf.sink.Publish(event.Status("Disconnected"))
	sf.log(event.DirNone, "Disconnected")
	return DisconnectResult{Outcome: outcome}, nil
}

// Close disconnects when connected. It is meant for process shutdown.
// A Connect still in progress is not interrupted: Close then returns
// ErrInvalidState and the session ends up Connected.
func (sf *Session) Close() error {
	_, err := sf.Disconnect()
	return err
}

// connected returns the engine and the common address of commands.
// Callers hold sf.mu.
func (sf *Session) connected() (Engine, asdu.CommonAddr, error) {
	if sf.state != Connected {
		return nil, 0, ErrNotConnected
	}
	return sf.engine, asdu.CommonAddr(sf.cfg.RemoteAddress), nil
}

var activation = asdu.CauseOfTransmission{Cause: asdu.Activation}

// SendInterrogation requests a station interrogation.
func (sf *Session) SendInterrogation() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	eng, ca, err := sf.connected()
	if err != nil {
		return err
	}
	if err := eng.SendInterrogationCommand(activation, ca, asdu.QOIStation); err != nil {
		sf.Warn("Interrogation failed: %v", err)
		return err
	}
	sf.metrics.CommandsSent.Add(1)
	sf.log(event.DirSend, "Interrogation: CA=%d QOI=%d (Station)", ca, asdu.QOIStation)
	return nil
}

// SendCommand sends a single command (C_SC_NA_1) to ioa.
func (sf *Session) SendCommand(ioa int, value bool) error {
	if ioa < 0 || ioa > int(asdu.InfoObjAddrMax) {
		return &ConfigError{Field: "ioa", Value: ioa, Msg: fmt.Sprintf("out of range [0, %d]", asdu.InfoObjAddrMax)}
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	eng, ca, err := sf.connected()
	if err != nil {
		return err
	}
	cmd := asdu.SingleCommandInfo{Ioa: asdu.InfoObjAddr(ioa), Value: value}
	if err := eng.SendProcessCommand(activation, ca, cmd); err != nil {
		sf.Warn("Single command failed: %v", err)
		return err
	}
	sf.metrics.CommandsSent.Add(1)
	state := "OFF"
	if value {
		state = "ON"
	}
	sf.log(event.DirSend, "Single Command: CA=%d IOA=%d Value=%s", ca, ioa, state)
	return nil
}

// SendTimeSync sends a clock synchronization with the current time.
func (sf *Session) SendTimeSync() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	eng, ca, err := sf.connected()
	if err != nil {
		return err
	}
	if err := eng.SendClockSyncCommand(ca, sf.now()); err != nil {
		sf.Warn("Time sync failed: %v", err)
		return err
	}
	sf.metrics.CommandsSent.Add(1)
	sf.log(event.DirSend, "Time Sync: CA=%d", ca)
	return nil
}

func linkState(s cs101.LinkLayerState) event.LinkState {
	switch s {
	case cs101.LinkStateError:
		return event.LinkError
	case cs101.LinkStateBusy:
		return event.LinkBusy
	case cs101.LinkStateAvailable:
		return event.LinkAvailable
	default:
		return event.LinkIdle
	}
}
