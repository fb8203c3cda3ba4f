// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

// In balanced mode the remote station is a primary station too. Its requests
// are answered here from the secondary half of this station.

// handlePrimaryFrame answers a request of the remote primary station.
func (sf *Master) handlePrimaryFrame(frame *Frame, ctrl ControlField) {
	switch ctrl.Fun {
	case PrimFcResetLink:
		sf.Debug("Received Reset Link command")
		sf.fcbExpected = true
		sf.sendLinkAck()
	case PrimFcResetUser:
		sf.Debug("Received Reset User Process command")
		sf.sendLinkAck()
	case PrimFcTestLink:
		sf.Debug("Received Test Link command")
		sf.sendLinkAck()
	case PrimFcUserDataConf:
		switch {
		case !ctrl.FCV:
			sf.Warn("Received Confirmed User Data frame with FCV=0. Ignoring.")
			return
		case ctrl.FCB == sf.fcbExpected:
			sf.fcbExpected = !sf.fcbExpected
			sf.deliverASDU(frame)
		default:
			// repeated frame after a lost ACK
			sf.Warn("Received Confirmed User Data with unexpected FCB (Expected=%v). Re-sending ACK.", sf.fcbExpected)
		}
		sf.sendLinkAck()
	case PrimFcUserDataNoConf:
		sf.Debug("Received Unconfirmed User Data from Primary")
		sf.deliverASDU(frame)
	case PrimFcReqStatus:
		sf.Debug("Received Request Status of Link")
		sf.sendSecondary(SecFcRespStatus)
	default:
		sf.Warn("Received unhandled frame function code from primary: %s", ctrl)
		sf.sendSecondary(SecFcRespLinkNI)
	}
}

func (sf *Master) sendLinkAck() {
	sf.sendSecondary(SecFcConfACK)
}

// sendSecondary writes a fixed frame response carrying the own link address.
func (sf *Master) sendSecondary(fc byte) {
	cfg := &sf.option.config
	cf := ControlField{DIR: cfg.Mode == ModeBalanced, Fun: fc}
	sf.writeFrame(NewFixedFrame(cf.Value(), encodeLinkAddress(cfg.LinkAddress, cfg.LinkAddrSize)), sf.now())
}
