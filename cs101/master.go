// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/riclolsen/cs101master/asdu"
	"github.com/riclolsen/cs101master/clog"
)

// primary link states
type primaryState int

const (
	primIdle primaryState = iota
	primWaitStatus
	primWaitReset
	primAvailable
	primWaitConfirm
	primWaitResponse
	primError
)

const readBufferSize = 512

// Master is an IEC 60870-5-101 primary station driven by repeated calls to Run.
// Run must be called from one goroutine; the Send methods and handler setters
// may be called from any goroutine.
type Master struct {
	option Option
	port   Port
	clog.Clog

	metrics LinkMetrics

	mu sync.Mutex

	readBuf        []byte
	rxBuf          []byte
	timeoutApplied bool
	readFailed     bool

	sendQueue [][]byte

	// primary station state
	prim        primaryState
	fcb         bool
	outstanding *Frame
	sendingData bool
	retried     bool
	deadline    time.Time
	errorSince  time.Time
	lastSent    time.Time
	lastRecv    time.Time
	lastPoll    time.Time
	acd         bool

	// secondary station state (balanced mode)
	fcbExpected bool

	linkState LinkLayerState
	destroyed bool
	notices   []notice

	onASDU      ASDUReceivedHandler
	onRaw       RawMessageHandler
	onLinkState LinkLayerStateChangedHandler

	now func() time.Time
}

type noticeKind int

const (
	noticeRaw noticeKind = iota
	noticeASDU
	noticeLinkState
)

type notice struct {
	kind  noticeKind
	raw   []byte
	sent  bool
	addr  uint16
	asdu  *asdu.ASDU
	state LinkLayerState
}

// NewMaster creates a primary station on port. The port does not need to be
// open yet; nothing is read or written before the first Run.
func NewMaster(port Port, o *Option) (*Master, error) {
	if port == nil {
		return nil, ErrNilPort
	}
	if o == nil {
		o = NewOption()
	}
	opt := *o
	if err := opt.config.Valid(); err != nil {
		return nil, fmt.Errorf("cs101: invalid config: %w", err)
	}
	if err := opt.params.Valid(); err != nil {
		return nil, fmt.Errorf("cs101: invalid asdu params: %w", err)
	}

	m := &Master{
		option:    opt,
		port:      port,
		Clog:      clog.NewLogger("cs101 master"),
		readBuf:   make([]byte, readBufferSize),
		rxBuf:     make([]byte, 0, 2*readBufferSize),
		sendQueue: make([][]byte, 0, opt.config.MaxSendQueueSize),
		linkState: LinkStateIdle,
		now:       time.Now,
	}
	m.Clog.LogMode(true)
	return m, nil
}

// SetLogMode enables or disables logging output.
func (sf *Master) SetLogMode(enable bool) {
	sf.Clog.LogMode(enable)
}

// SetASDUReceivedHandler sets the handler called for every received ASDU.
func (sf *Master) SetASDUReceivedHandler(h ASDUReceivedHandler) {
	sf.mu.Lock()
	sf.onASDU = h
	sf.mu.Unlock()
}

// SetRawMessageHandler sets the handler called with every raw frame.
func (sf *Master) SetRawMessageHandler(h RawMessageHandler) {
	sf.mu.Lock()
	sf.onRaw = h
	sf.mu.Unlock()
}

// SetLinkLayerStateChanged sets the handler called on link state transitions.
func (sf *Master) SetLinkLayerStateChanged(h LinkLayerStateChangedHandler) {
	sf.mu.Lock()
	sf.onLinkState = h
	sf.mu.Unlock()
}

// Params returns the ASDU parameters used by the master.
func (sf *Master) Params() *asdu.Params {
	return &sf.option.params
}

// Metrics returns the link counters.
func (sf *Master) Metrics() *LinkMetrics {
	return &sf.metrics
}

// LinkState returns the current link layer state.
func (sf *Master) LinkState() LinkLayerState {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.linkState
}

// QueueLen returns the number of ASDUs waiting for transmission.
func (sf *Master) QueueLen() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return len(sf.sendQueue)
}

// Destroy stops the master. Queued ASDUs are discarded and handlers released.
// The port is not closed. Destroy is idempotent.
func (sf *Master) Destroy() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.destroyed {
		return
	}
	sf.destroyed = true
	if n := len(sf.sendQueue); n > 0 {
		sf.Warn("Discarding %d unsent ASDUs", n)
	}
	sf.sendQueue = nil
	sf.outstanding = nil
	sf.notices = nil
	sf.onASDU = nil
	sf.onRaw = nil
	sf.onLinkState = nil
	sf.Debug("Master destroyed")
}

// Run performs one processing step: read what the port has, handle every
// complete frame, check the link timers and send the next request.
// Handlers are called from Run after the step, in event order.
func (sf *Master) Run() {
	sf.mu.Lock()
	if sf.destroyed {
		sf.mu.Unlock()
		return
	}
	if !sf.timeoutApplied {
		if err := sf.port.SetReadTimeout(sf.option.config.ReadTimeout); err == nil {
			sf.timeoutApplied = true
		}
	}
	sf.mu.Unlock()

	// Run is the only reader, so the read happens outside the lock.
	n, rerr := sf.port.Read(sf.readBuf)

	sf.mu.Lock()
	if sf.destroyed {
		sf.mu.Unlock()
		return
	}
	now := sf.now()
	if rerr != nil {
		if !sf.readFailed {
			sf.readFailed = true
			sf.Error("Failed to read from port: %v", rerr)
			sf.linkFailed(now)
		}
	} else {
		if sf.readFailed {
			sf.readFailed = false
			sf.Info("Port readable again")
		}
		if n > 0 {
			sf.rxBuf = append(sf.rxBuf, sf.readBuf[:n]...)
			sf.processRx(now)
		}
	}
	if !sf.readFailed {
		sf.checkTimeouts(now)
		sf.primaryStep(now)
	}

	notices := sf.notices
	sf.notices = nil
	onASDU, onRaw, onLinkState := sf.onASDU, sf.onRaw, sf.onLinkState
	sf.mu.Unlock()

	for _, nt := range notices {
		switch nt.kind {
		case noticeRaw:
			if onRaw != nil {
				onRaw(nt.raw, nt.sent)
			}
		case noticeASDU:
			if onASDU != nil && !onASDU(nt.addr, nt.asdu) {
				sf.Debug("ASDU not handled: %s", nt.asdu.Identifier)
			}
		case noticeLinkState:
			if onLinkState != nil {
				onLinkState(nt.addr, nt.state)
			}
		}
	}
}

// processRx parses every complete frame in rxBuf.
func (sf *Master) processRx(now time.Time) {
	for len(sf.rxBuf) > 0 {
		frame, n, err := ParseFrame(sf.rxBuf, sf.option.config.LinkAddrSize)
		if errors.Is(err, ErrIncompleteFrame) {
			break
		}
		if err != nil {
			sf.metrics.incFrameErrCount()
			sf.Debug("Discarding octet 0x%02X: %v", sf.rxBuf[0], err)
			sf.rxBuf = sf.rxBuf[n:]
			continue
		}
		raw := append([]byte(nil), sf.rxBuf[:n]...)
		sf.rxBuf = sf.rxBuf[n:]
		sf.metrics.incFrameRecvCount()
		sf.lastRecv = now
		sf.notices = append(sf.notices, notice{kind: noticeRaw, raw: raw, sent: false})
		sf.handleIncomingFrame(frame, now)
	}
	// keep the buffer from growing on a noisy line
	if cap(sf.rxBuf) > 4*readBufferSize && len(sf.rxBuf) < readBufferSize {
		sf.rxBuf = append(make([]byte, 0, 2*readBufferSize), sf.rxBuf...)
	}
}

// handleIncomingFrame dispatches a parsed frame by its PRM bit.
func (sf *Master) handleIncomingFrame(frame *Frame, now time.Time) {
	cfg := &sf.option.config
	if frame.Start != SingleCharACK && cfg.LinkAddrSize > 0 {
		addr := frame.GetLinkAddress()
		isBroadcast := (cfg.LinkAddrSize == 1 && addr == 0xFF) || (cfg.LinkAddrSize == 2 && addr == 0xFFFF)
		if addr != cfg.RemoteLinkAddress && addr != cfg.LinkAddress && !isBroadcast {
			sf.Debug("Ignoring frame with unexpected link address %d", addr)
			return
		}
	}

	ctrl := frame.GetControlField()
	if ctrl.PRM {
		if cfg.Mode != ModeBalanced {
			sf.Warn("Received unexpected frame from primary in unbalanced mode: %s", ctrl)
			return
		}
		sf.handlePrimaryFrame(frame, ctrl)
		return
	}
	sf.handleSecondaryFrame(frame, ctrl, now)
}

// handleSecondaryFrame processes responses to the requests of this station.
func (sf *Master) handleSecondaryFrame(frame *Frame, ctrl ControlField, now time.Time) {
	cfg := &sf.option.config
	if cfg.Mode == ModeUnbalanced && ctrl.ACD {
		sf.acd = true
	}

	switch ctrl.Fun {
	case SecFcRespLinkNF, SecFcRespLinkNI:
		sf.Warn("%v (FC=%d)", ErrLinkNotFunctioning, ctrl.Fun)
		sf.linkFailed(now)
		return
	case SecFcConfNACK:
		sf.Warn("Received NACK (link busy)")
		sf.setLinkState(LinkStateBusy)
		if sf.outstanding != nil {
			sf.retried = false
			sf.deadline = now.Add(cfg.TimeoutRepeatT2)
		}
		return
	}

	switch sf.prim {
	case primWaitStatus:
		if ctrl.Fun != SecFcRespStatus {
			sf.Debug("Unexpected response while waiting for link status: %s", ctrl)
			return
		}
		sf.Debug("Link status received, resetting remote link")
		sf.sendRequest(PrimFcResetLink, false, now)
		sf.prim = primWaitReset

	case primWaitReset:
		if ctrl.Fun != SecFcConfACK {
			sf.Debug("Unexpected response while waiting for reset confirm: %s", ctrl)
			return
		}
		sf.Info("Remote link reset confirmed, link available")
		sf.clearOutstanding()
		sf.fcb = true
		sf.prim = primAvailable
		sf.lastPoll = time.Time{}
		sf.setLinkState(sf.flowState(ctrl))

	case primWaitConfirm:
		if ctrl.Fun != SecFcConfACK {
			sf.Debug("Unexpected response while waiting for confirm: %s", ctrl)
			return
		}
		if sf.sendingData && len(sf.sendQueue) > 0 {
			sf.sendQueue = sf.sendQueue[1:]
			sf.metrics.incASDUSendCount()
		}
		sf.fcb = !sf.fcb
		sf.clearOutstanding()
		sf.prim = primAvailable
		sf.setLinkState(sf.flowState(ctrl))

	case primWaitResponse:
		switch ctrl.Fun {
		case SecFcRespUserData:
			sf.deliverASDU(frame)
		case SecFcRespNoData, SecFcConfACK:
		default:
			sf.Debug("Unexpected response to class request: %s", ctrl)
			return
		}
		sf.fcb = !sf.fcb
		sf.clearOutstanding()
		sf.prim = primAvailable
		sf.setLinkState(sf.flowState(ctrl))

	default:
		if ctrl.Fun == SecFcRespUserData {
			sf.deliverASDU(frame)
			return
		}
		sf.Debug("Ignoring unsolicited response: %s", ctrl)
	}
}

func (sf *Master) flowState(ctrl ControlField) LinkLayerState {
	if ctrl.DFC {
		return LinkStateBusy
	}
	return LinkStateAvailable
}

// checkTimeouts repeats an unanswered request once and declares the link
// failed when the repetition is not answered either.
func (sf *Master) checkTimeouts(now time.Time) {
	cfg := &sf.option.config
	switch sf.prim {
	case primError:
		if now.Sub(sf.errorSince) >= cfg.LinkRetryDelay {
			sf.Debug("Restarting link initialisation")
			sf.prim = primIdle
		}
	case primWaitStatus, primWaitReset, primWaitConfirm, primWaitResponse:
		if sf.outstanding == nil || now.Before(sf.deadline) {
			return
		}
		if !sf.retried {
			sf.retried = true
			sf.metrics.incRetryCount()
			sf.Warn("Response timeout, repeating %s", sf.outstanding)
			sf.writeFrame(sf.outstanding, now)
			sf.deadline = now.Add(cfg.TimeoutRepeatT2)
			return
		}
		sf.Warn("No response after repetition: %v", ErrTimeoutT1)
		sf.linkFailed(now)
	}
}

// primaryStep starts the next request when no request is outstanding.
func (sf *Master) primaryStep(now time.Time) {
	cfg := &sf.option.config
	switch sf.prim {
	case primIdle:
		sf.Debug("Requesting link status")
		sf.sendRequest(PrimFcReqStatus, false, now)
		sf.prim = primWaitStatus

	case primAvailable:
		if len(sf.sendQueue) > 0 {
			sf.sendUserData(sf.sendQueue[0], now)
			sf.prim = primWaitConfirm
			return
		}
		if cfg.Mode == ModeBalanced {
			if now.Sub(sf.lastActivity()) >= cfg.TimeoutTestT3 {
				sf.Debug("T3 expired, sending test link")
				sf.sendRequest(PrimFcTestLink, true, now)
				sf.prim = primWaitConfirm
			}
			return
		}
		if sf.acd {
			sf.acd = false
			sf.sendRequest(PrimFcReqData1, true, now)
			sf.prim = primWaitResponse
			return
		}
		if now.Sub(sf.lastPoll) >= cfg.TimeoutSendLinkMsg {
			sf.lastPoll = now
			sf.sendRequest(PrimFcReqData2, true, now)
			sf.prim = primWaitResponse
		}
	}
}

func (sf *Master) lastActivity() time.Time {
	if sf.lastRecv.After(sf.lastSent) {
		return sf.lastRecv
	}
	return sf.lastSent
}

func (sf *Master) linkFailed(now time.Time) {
	sf.clearOutstanding()
	sf.prim = primError
	sf.errorSince = now
	sf.acd = false
	sf.setLinkState(LinkStateError)
}

func (sf *Master) clearOutstanding() {
	sf.outstanding = nil
	sf.sendingData = false
	sf.retried = false
}

func (sf *Master) setLinkState(s LinkLayerState) {
	if sf.linkState == s {
		return
	}
	sf.Info("Link layer state %s -> %s", sf.linkState, s)
	sf.linkState = s
	sf.notices = append(sf.notices, notice{
		kind:  noticeLinkState,
		addr:  sf.option.config.RemoteLinkAddress,
		state: s,
	})
}

// primaryControl builds the control field of a request from this station.
func (sf *Master) primaryControl(fc byte, fcv bool) byte {
	cf := ControlField{
		DIR: sf.option.config.Mode == ModeBalanced,
		PRM: true,
		FCV: fcv,
		FCB: fcv && sf.fcb,
		Fun: fc,
	}
	return cf.Value()
}

func (sf *Master) sendRequest(fc byte, fcv bool, now time.Time) {
	cfg := &sf.option.config
	frame := NewFixedFrame(sf.primaryControl(fc, fcv), encodeLinkAddress(cfg.RemoteLinkAddress, cfg.LinkAddrSize))
	sf.startOutstanding(frame, false, now)
}

func (sf *Master) sendUserData(asduData []byte, now time.Time) {
	cfg := &sf.option.config
	frame := NewDataFrame(sf.primaryControl(PrimFcUserDataConf, true),
		encodeLinkAddress(cfg.RemoteLinkAddress, cfg.LinkAddrSize), asduData)
	sf.startOutstanding(frame, true, now)
}

func (sf *Master) startOutstanding(frame *Frame, data bool, now time.Time) {
	sf.outstanding = frame
	sf.sendingData = data
	sf.retried = false
	sf.deadline = now.Add(sf.option.config.TimeoutResponseT1)
	sf.writeFrame(frame, now)
}

// writeFrame marshals and writes one frame to the port.
func (sf *Master) writeFrame(frame *Frame, now time.Time) {
	raw, err := frame.MarshalBinary(sf.option.config.LinkAddrSize)
	if err != nil {
		sf.Error("Failed to marshal frame: %v", err)
		return
	}
	if _, err := sf.port.Write(raw); err != nil {
		sf.Error("Failed to write frame to port: %v", err)
		sf.linkFailed(now)
		return
	}
	sf.metrics.incFrameSendCount()
	sf.lastSent = now
	sf.notices = append(sf.notices, notice{kind: noticeRaw, raw: raw, sent: true})
}

// deliverASDU decodes the frame payload and queues it for the ASDU handler.
func (sf *Master) deliverASDU(frame *Frame) {
	a, err := frame.DecodeASDU(&sf.option.params)
	if err != nil {
		sf.Warn("Failed to decode ASDU: %v", err)
		return
	}
	sf.metrics.incASDURecvCount()
	sf.notices = append(sf.notices, notice{kind: noticeASDU, addr: frame.GetLinkAddress(), asdu: a})
}

// SendASDU queues a for confirmed transmission.
func (sf *Master) SendASDU(a *asdu.ASDU) error {
	if a == nil {
		return errors.New("cs101: nil asdu")
	}
	raw, err := a.MarshalBinary()
	if err != nil {
		return fmt.Errorf("cs101: failed to marshal ASDU: %w", err)
	}
	if len(raw) > int(sf.option.config.MaxAPDULength) {
		return fmt.Errorf("%w: %d octets", ErrInvalidFrameLength, len(raw))
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.destroyed {
		return ErrUseClosedConnection
	}
	if len(sf.sendQueue) >= sf.option.config.MaxSendQueueSize {
		sf.metrics.incQueueDropCount()
		sf.Warn("Send queue full, discarding ASDU: %s", a.Identifier)
		return ErrSendQueueFull
	}
	sf.sendQueue = append(sf.sendQueue, raw)
	sf.Debug("ASDU %s enqueued. Queue size: %d", a.Identifier, len(sf.sendQueue))
	return nil
}

// SendInterrogationCommand queues a C_IC_NA_1.
func (sf *Master) SendInterrogationCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, qoi asdu.QualifierOfInterrogation) error {
	a, err := asdu.InterrogationCmd(&sf.option.params, coa, ca, qoi)
	if err != nil {
		return err
	}
	return sf.SendASDU(a)
}

// SendProcessCommand queues a single object command such as C_SC_NA_1.
func (sf *Master) SendProcessCommand(coa asdu.CauseOfTransmission, ca asdu.CommonAddr, cmd asdu.CommandObject) error {
	if cmd == nil {
		return errors.New("cs101: nil command object")
	}
	a, err := asdu.ProcessCmd(&sf.option.params, coa, ca, cmd)
	if err != nil {
		return err
	}
	return sf.SendASDU(a)
}

// SendClockSyncCommand queues a C_CS_NA_1 carrying t.
func (sf *Master) SendClockSyncCommand(ca asdu.CommonAddr, t time.Time) error {
	a, err := asdu.ClockSynchronizationCmd(&sf.option.params, ca, t)
	if err != nil {
		return err
	}
	return sf.SendASDU(a)
}
