// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riclolsen/cs101master/asdu"
	"github.com/riclolsen/cs101master/cs101"
	"github.com/riclolsen/cs101master/event"
)

// mockEngine records commands through testify/mock. Run, Destroy and the
// handler setters are tracked by hand since they run on the worker.
type mockEngine struct {
	mock.Mock

	runs      atomic.Int64
	destroyed atomic.Int64
	entered   chan struct{}
	block     chan struct{}
	panicRun  bool

	mu     sync.Mutex
	onASDU cs101.ASDUReceivedHandler
	onRaw  cs101.RawMessageHandler
	onLink cs101.LinkLayerStateChangedHandler
}

func newMockEngine() *mockEngine {
	return &mockEngine{entered: make(chan struct{}, 1)}
}

func (m *mockEngine) Run() {
	m.runs.Add(1)
	select {
	case m.entered <- struct{}{}:
	default:
	}
	if m.panicRun {
		panic("engine step failed")
	}
	if m.block != nil {
		<-m.block
	}
}

func (m *mockEngine) Destroy() { m.destroyed.Add(1) }

func (m *mockEngine) SetASDUReceivedHandler(h cs101.ASDUReceivedHandler) {
	m.mu.Lock()
	m.onASDU = h
	m.mu.Unlock()
}

func (m *mockEngine) SetRawMessageHandler(h cs101.RawMessageHandler) {
	m.mu.Lock()
	m.onRaw = h
	m.mu.Unlock()
}

func (m *mockEngine) SetLinkLayerStateChanged(h cs101.LinkLayerStateChangedHandler) {
	m.mu.Lock()
	m.onLink = h
	m.mu.Unlock()
}

func (m *mockEngine) SendInterrogationCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, qoi asdu.QualifierOfInterrogation) error {
	return m.Called(coa, ca, qoi).Error(0)
}

func (m *mockEngine) SendProcessCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, cmd asdu.CommandObject) error {
	return m.Called(coa, ca, cmd).Error(0)
}

func (m *mockEngine) SendClockSyncCommand(ca asdu.CommonAddr, t time.Time) error {
	return m.Called(ca, t).Error(0)
}

type fakeTransport struct {
	cfg     cs101.SerialConfig
	openErr error
	// Close waits on closeGate when set
	closeGate chan struct{}
	opened    atomic.Int64
	closed    atomic.Int64
}

func (t *fakeTransport) Read(b []byte) (int, error)           { return 0, nil }
func (t *fakeTransport) Write(b []byte) (int, error)          { return len(b), nil }
func (t *fakeTransport) SetReadTimeout(d time.Duration) error { return nil }

func (t *fakeTransport) Open() error {
	if t.openErr != nil {
		return t.openErr
	}
	t.opened.Add(1)
	return nil
}

func (t *fakeTransport) Close() error {
	if t.closeGate != nil {
		<-t.closeGate
	}
	t.closed.Add(1)
	return nil
}

type recordSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordSink) Publish(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordSink) texts(kind event.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (r *recordSink) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// fixture wires a Session to fake factories.
type fixture struct {
	session *Session
	sink    *recordSink

	mu          sync.Mutex
	engines     []*mockEngine
	transports  []*fakeTransport
	options     []*cs101.Option
	engineErr   error
	transErr    error
	openErr     error
	closeGate   chan struct{}
	nextEngine  func() *mockEngine
	engineCalls atomic.Int64
	transCalls  atomic.Int64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{sink: &recordSink{}, nextEngine: newMockEngine}
	base := []Option{
		WithSink(f.sink),
		WithPollInterval(time.Millisecond),
		WithTransportFactory(func(cfg cs101.SerialConfig) (Transport, error) {
			f.transCalls.Add(1)
			if f.transErr != nil {
				return nil, f.transErr
			}
			f.mu.Lock()
			tr := &fakeTransport{cfg: cfg, openErr: f.openErr, closeGate: f.closeGate}
			f.transports = append(f.transports, tr)
			f.mu.Unlock()
			return tr, nil
		}),
		WithEngineFactory(func(port cs101.Port, opt *cs101.Option) (Engine, error) {
			f.engineCalls.Add(1)
			if f.engineErr != nil {
				return nil, f.engineErr
			}
			e := f.nextEngine()
			f.mu.Lock()
			f.engines = append(f.engines, e)
			f.options = append(f.options, opt)
			f.mu.Unlock()
			return e, nil
		}),
	}
	f.session = New(append(base, opts...)...)
	f.session.LogMode(false)
	t.Cleanup(func() { f.session.Close() })
	return f
}

func (f *fixture) engine(i int) *mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fixture) transport(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[i]
}

var com5 = Config{
	Serial: cs101.SerialConfig{
		Address:  "COM5",
		BaudRate: 9600,
		DataBits: 8,
		Parity:   cs101.DefaultParity,
		StopBits: cs101.DefaultStopBits,
	},
	LocalAddress:  2,
	RemoteAddress: 1,
}

func TestConnectInterrogateDisconnect(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	s := f.session

	require.Equal(Idle, s.State())
	require.Empty(s.ConnID())
	require.NoError(s.Connect(com5))
	require.Equal(Connected, s.State())
	require.NotEmpty(s.ConnID())
	cfg, ok := s.Config()
	require.True(ok)
	require.Equal(com5, cfg)

	eng, tr := f.engine(0), f.transport(0)
	require.Equal(int64(1), tr.opened.Load())
	require.Equal("COM5", tr.cfg.Address)

	link := f.options[0].Config()
	require.Equal(cs101.ModeBalanced, link.Mode)
	require.Equal(uint16(2), link.LinkAddress)
	require.Equal(uint16(1), link.RemoteLinkAddress)

	require.Eventually(func() bool { return eng.runs.Load() > 2 }, time.Second, time.Millisecond)

	eng.On("SendInterrogationCommand", asdu.CauseOfTransmission{Cause: asdu.Activation}, asdu.CommonAddr(1), asdu.QOIStation).
		Return(nil).Once()
	require.NoError(s.SendInterrogation())
	eng.AssertNumberOfCalls(t, "SendInterrogationCommand", 1)
	eng.AssertExpectations(t)

	res, err := s.Disconnect()
	require.NoError(err)
	require.Equal(JoinClean, res.Outcome)
	require.Equal(Idle, s.State())
	require.Equal(int64(1), eng.destroyed.Load())
	require.Equal(int64(1), tr.closed.Load())
	_, ok = s.Config()
	require.False(ok)

	runs := eng.runs.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(runs, eng.runs.Load(), "no step after disconnect")

	require.Equal([]string{"Connected to COM5 (9600,8,E,1)", "Disconnected"}, f.sink.texts(event.KindStatus))
	require.Contains(f.sink.texts(event.KindLog), "Interrogation: CA=1 QOI=20 (Station)")

	res, err = s.Disconnect()
	require.NoError(err)
	require.Equal(JoinNotRunning, res.Outcome)

	require.Equal(MetricsSnapshot{
		TransportsAcquired: 1, TransportsReleased: 1,
		EnginesCreated: 1, EnginesDestroyed: 1,
		Connects: 1, Disconnects: 1, CommandsSent: 1,
	}, s.Metrics())
}

func TestCommands(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	s := f.session
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return ts }

	require.NoError(s.Connect(com5))
	eng := f.engine(0)
	act := asdu.CauseOfTransmission{Cause: asdu.Activation}

	eng.On("SendProcessCommand", act, asdu.CommonAddr(1), asdu.SingleCommandInfo{Ioa: 5000, Value: true}).Return(nil).Once()
	require.NoError(s.SendCommand(5000, true))

	eng.On("SendProcessCommand", act, asdu.CommonAddr(1), asdu.SingleCommandInfo{Ioa: 16777215, Value: false}).Return(nil).Once()
	require.NoError(s.SendCommand(16777215, false))

	eng.On("SendClockSyncCommand", asdu.CommonAddr(1), ts).Return(nil).Once()
	require.NoError(s.SendTimeSync())

	require.ErrorIs(s.SendCommand(-1, true), ErrConfigInvalid)
	require.ErrorIs(s.SendCommand(16777216, true), ErrConfigInvalid)

	full := cs101.ErrSendQueueFull
	eng.On("SendInterrogationCommand", act, asdu.CommonAddr(1), asdu.QOIStation).Return(full).Once()
	require.ErrorIs(s.SendInterrogation(), full)

	eng.AssertExpectations(t)
	require.Equal([]string{
		"Connected to COM5 (9600,8,E,1)",
		"Single Command: CA=1 IOA=5000 Value=ON",
		"Single Command: CA=1 IOA=16777215 Value=OFF",
		"Time Sync: CA=1",
	}, f.sink.texts(event.KindLog))
	require.Equal(uint64(3), s.Metrics().CommandsSent)
}

func TestCommandsRequireConnection(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	s := f.session

	require.ErrorIs(s.SendInterrogation(), ErrNotConnected)
	require.ErrorIs(s.SendCommand(5000, true), ErrNotConnected)
	require.ErrorIs(s.SendTimeSync(), ErrNotConnected)
	require.Zero(f.engineCalls.Load())

	require.NoError(s.Connect(com5))
	_, err := s.Disconnect()
	require.NoError(err)
	require.ErrorIs(s.SendInterrogation(), ErrNotConnected)
	f.engine(0).AssertNotCalled(t, "SendInterrogationCommand", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectInvalidConfig(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	bad := com5
	bad.Serial.DataBits = 9
	err := f.session.Connect(bad)
	require.ErrorIs(err, ErrConfigInvalid)
	var ce *ConfigError
	require.ErrorAs(err, &ce)
	require.Equal("serial", ce.Field)

	bad = com5
	bad.RemoteAddress = 256
	require.ErrorIs(f.session.Connect(bad), ErrConfigInvalid)

	bad = com5
	bad.Serial.Address = ""
	err = f.session.Connect(bad)
	require.ErrorIs(err, ErrConfigInvalid)
	require.ErrorAs(err, &ce)
	require.Equal("serial", ce.Field)

	require.Zero(f.transCalls.Load(), "no resource touched")
	require.Equal(Idle, f.session.State())
}

func TestConnectRollback(t *testing.T) {
	t.Run("transport create", func(t *testing.T) {
		require := require.New(t)
		f := newFixture(t)
		cause := errors.New("no such port")
		f.transErr = cause

		err := f.session.Connect(com5)
		require.ErrorIs(err, ErrTransportUnavailable)
		require.ErrorIs(err, cause)
		var te *TransportError
		require.ErrorAs(err, &te)
		require.Equal("create", te.Op)
		require.Equal("COM5", te.Port)
		require.Zero(f.engineCalls.Load())
		require.Equal(Idle, f.session.State())
	})

	t.Run("engine create", func(t *testing.T) {
		require := require.New(t)
		f := newFixture(t)
		f.engineErr = errors.New("out of memory")

		require.ErrorIs(f.session.Connect(com5), ErrEngineCreateFailed)
		require.Equal(int64(1), f.transport(0).closed.Load())
		require.Equal(Idle, f.session.State())
		m := f.session.Metrics()
		require.Equal(m.TransportsAcquired, m.TransportsReleased)
		require.Zero(m.EnginesCreated)
	})

	t.Run("transport open", func(t *testing.T) {
		require := require.New(t)
		f := newFixture(t)
		f.openErr = errors.New("access denied")

		err := f.session.Connect(com5)
		require.ErrorIs(err, ErrTransportUnavailable)
		var te *TransportError
		require.ErrorAs(err, &te)
		require.Equal("open", te.Op)
		require.Equal(int64(1), f.engine(0).destroyed.Load())
		require.Zero(f.engine(0).runs.Load())
		require.Equal(int64(1), f.transport(0).closed.Load())
		require.Equal(Idle, f.session.State())

		f.openErr = nil
		require.NoError(f.session.Connect(com5), "usable after failure")
	})
}

func TestConnectTwice(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.session.Connect(com5))
	require.ErrorIs(f.session.Connect(com5), ErrInvalidState)
	require.Equal(int64(1), f.transCalls.Load())
}

func TestEngineCallbacksPublish(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.session.Connect(com5))
	eng := f.engine(0)

	a := asdu.NewEmptyASDU(asdu.ParamsStandard101)
	require.NoError(a.UnmarshalBinary([]byte{0x01, 0x01, 0x14, 0x01, 0x64, 0x00, 0x01}))

	eng.mu.Lock()
	onRaw, onASDU, onLink := eng.onRaw, eng.onASDU, eng.onLink
	eng.mu.Unlock()
	before := len(f.sink.kinds())

	onLink(1, cs101.LinkStateAvailable)
	onRaw([]byte{0xE5}, false)
	require.True(onASDU(3, a))

	f.sink.mu.Lock()
	got := append([]event.Event(nil), f.sink.events[before:]...)
	f.sink.mu.Unlock()
	require.Len(got, 3)
	require.Equal(event.KindLinkState, got[0].Kind)
	require.Equal(event.LinkAvailable, got[0].LinkState)
	require.Equal(uint16(1), got[0].Address)
	require.Equal(event.Raw{Data: []byte{0xE5}, Sent: false}, got[1].Raw)
	require.Equal(event.KindReceived, got[2].Kind)
	require.Equal(asdu.M_SP_NA_1, got[2].Received.Type)
	require.Equal(asdu.CommonAddr(1), got[2].Received.CommonAddr)
	require.Equal(uint16(3), got[2].Received.LinkAddress)
	require.Equal([]event.Point{{IOA: 100, Value: 1}}, got[2].Received.Points)
}

func TestDisconnectJoinTimeout(t *testing.T) {
	require := require.New(t)
	block := make(chan struct{})
	f := newFixture(t, WithJoinTimeout(20*time.Millisecond))
	f.nextEngine = func() *mockEngine {
		e := newMockEngine()
		e.block = block
		return e
	}
	s := f.session

	require.NoError(s.Connect(com5))
	eng, tr := f.engine(0), f.transport(0)
	<-eng.entered

	res, err := s.Disconnect()
	require.NoError(err)
	require.Equal(JoinTimedOut, res.Outcome)
	require.Equal(Idle, s.State())
	require.Zero(eng.destroyed.Load(), "not destroyed under a running step")
	require.Zero(tr.closed.Load())
	require.Equal(uint64(1), s.Metrics().JoinTimeouts)

	require.ErrorIs(s.Connect(com5), ErrWorkerJoinTimeout)
	require.Equal(int64(1), f.transCalls.Load())

	close(block)
	require.Eventually(func() bool {
		return eng.destroyed.Load() == 1 && tr.closed.Load() == 1
	}, time.Second, time.Millisecond)

	f.nextEngine = newMockEngine
	require.NoError(s.Connect(com5))
	res, err = s.Disconnect()
	require.NoError(err)
	require.Equal(JoinClean, res.Outcome)
}

func TestReconnectAfterAbandonedWorkerReleased(t *testing.T) {
	require := require.New(t)
	block := make(chan struct{})
	gate := make(chan struct{})
	f := newFixture(t, WithJoinTimeout(20*time.Millisecond))
	f.nextEngine = func() *mockEngine {
		e := newMockEngine()
		e.block = block
		return e
	}
	f.closeGate = gate
	s := f.session

	require.NoError(s.Connect(com5))
	eng, tr := f.engine(0), f.transport(0)
	<-eng.entered

	res, err := s.Disconnect()
	require.NoError(err)
	require.Equal(JoinTimedOut, res.Outcome)

	f.mu.Lock()
	f.nextEngine = newMockEngine
	f.closeGate = nil
	f.mu.Unlock()

	// the worker exits and blocks closing the old transport
	close(block)
	require.Eventually(func() bool { return eng.destroyed.Load() == 1 }, time.Second, time.Millisecond)
	require.ErrorIs(s.Connect(com5), ErrWorkerJoinTimeout)
	require.Zero(tr.closed.Load())
	require.Equal(int64(1), f.transCalls.Load())
	require.Zero(s.Metrics().TransportsReleased)

	close(gate)
	require.Eventually(func() bool { return s.Connect(com5) == nil }, time.Second, time.Millisecond)
	require.Equal(int64(1), tr.closed.Load())
	m := s.Metrics()
	require.Equal(uint64(2), m.TransportsAcquired)
	require.Equal(uint64(1), m.TransportsReleased)

	res, err = s.Disconnect()
	require.NoError(err)
	require.Equal(JoinClean, res.Outcome)
	m = s.Metrics()
	require.Equal(m.TransportsAcquired, m.TransportsReleased)
	require.Equal(m.EnginesCreated, m.EnginesDestroyed)
}

func TestReconnectBalancesResources(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	s := f.session

	for i := 0; i < 2; i++ {
		require.NoError(s.Connect(com5))
		require.Eventually(func() bool { return f.engine(i).runs.Load() > 0 }, time.Second, time.Millisecond)

		res, err := s.Disconnect()
		require.NoError(err)
		require.Equal(JoinClean, res.Outcome)
		require.Equal(Idle, s.State())

		m := s.Metrics()
		require.Equal(uint64(i+1), m.TransportsAcquired)
		require.Equal(m.TransportsAcquired, m.TransportsReleased)
		require.Equal(uint64(i+1), m.EnginesCreated)
		require.Equal(m.EnginesCreated, m.EnginesDestroyed)
		require.Equal(int64(1), f.transport(i).closed.Load())
		require.Equal(int64(1), f.engine(i).destroyed.Load())
	}
	require.Equal(uint64(2), s.Metrics().Connects)
	require.Equal(uint64(2), s.Metrics().Disconnects)
}

func TestCloseWhileConnecting(t *testing.T) {
	require := require.New(t)
	release := make(chan struct{})
	f := newFixture(t, WithTransportFactory(func(cfg cs101.SerialConfig) (Transport, error) {
		<-release
		return &fakeTransport{cfg: cfg}, nil
	}))
	s := f.session

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(com5) }()
	require.Eventually(func() bool { return s.State() == Connecting }, time.Second, time.Millisecond)

	require.ErrorIs(s.Close(), ErrInvalidState)
	close(release)
	require.NoError(<-connected)
	require.Equal(Connected, s.State())
}

func TestWorkerPanic(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.nextEngine = func() *mockEngine {
		e := newMockEngine()
		e.panicRun = true
		return e
	}
	s := f.session

	require.NoError(s.Connect(com5))
	require.Eventually(func() bool {
		for _, k := range f.sink.kinds() {
			if k == event.KindLinkState {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	require.Equal(int64(1), f.engine(0).runs.Load())

	res, err := s.Disconnect()
	require.NoError(err)
	require.Equal(JoinClean, res.Outcome)
	require.Equal(int64(1), f.engine(0).destroyed.Load())
}

func TestParseConfig(t *testing.T) {
	require := require.New(t)

	cfg, err := ParseConfig(RawConfig{
		Port: "COM5", BaudRate: "9600", DataBits: "8", Parity: "E", StopBits: "1",
		LocalAddress: "2", RemoteAddress: "1",
	})
	require.NoError(err)
	require.Equal(com5, cfg)

	cfg, err = ParseConfig(RawConfig{
		Port: "/dev/ttyUSB0", BaudRate: "19200", DataBits: "7", Parity: "odd", StopBits: "2",
		LocalAddress: "1", RemoteAddress: "3",
	})
	require.NoError(err)
	require.Equal("/dev/ttyUSB0 (19200,7,O,2)", cfg.Serial.String())

	for field, raw := range map[string]RawConfig{
		"baud rate":      {Port: "COM1", BaudRate: "fast", DataBits: "8", Parity: "N", StopBits: "1", LocalAddress: "2", RemoteAddress: "1"},
		"data bits":      {Port: "COM1", BaudRate: "9600", DataBits: "", Parity: "N", StopBits: "1", LocalAddress: "2", RemoteAddress: "1"},
		"parity":         {Port: "COM1", BaudRate: "9600", DataBits: "8", Parity: "X", StopBits: "1", LocalAddress: "2", RemoteAddress: "1"},
		"stop bits":      {Port: "COM1", BaudRate: "9600", DataBits: "8", Parity: "N", StopBits: "3", LocalAddress: "2", RemoteAddress: "1"},
		"local address":  {Port: "COM1", BaudRate: "9600", DataBits: "8", Parity: "N", StopBits: "1", LocalAddress: "-1", RemoteAddress: "1"},
		"remote address": {Port: "COM1", BaudRate: "9600", DataBits: "8", Parity: "N", StopBits: "1", LocalAddress: "2", RemoteAddress: "x"},
		"serial":         {Port: "", BaudRate: "9600", DataBits: "8", Parity: "N", StopBits: "1", LocalAddress: "2", RemoteAddress: "1"},
	} {
		_, err := ParseConfig(raw)
		require.ErrorIs(err, ErrConfigInvalid, field)
		var ce *ConfigError
		require.ErrorAs(err, &ce, field)
		require.Equal(field, ce.Field)
	}
}

func TestWorkerStops(t *testing.T) {
	require := require.New(t)
	eng := newMockEngine()
	w := startWorker(eng, time.Millisecond, nil)
	require.Eventually(func() bool { return eng.runs.Load() > 3 }, time.Second, time.Millisecond)
	require.True(w.stop(time.Second))
	require.False(w.abandon(func() {}))
}
