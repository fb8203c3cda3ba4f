// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"github.com/riclolsen/cs101master/asdu"
)

// LinkLayerState is the state of the link to the remote station as seen by the master.
type LinkLayerState int

const (
	LinkStateIdle LinkLayerState = iota
	LinkStateError
	LinkStateBusy
	LinkStateAvailable
)

func (s LinkLayerState) String() string {
	switch s {
	case LinkStateIdle:
		return "IDLE"
	case LinkStateError:
		return "ERROR"
	case LinkStateBusy:
		return "BUSY"
	case LinkStateAvailable:
		return "AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// ASDUReceivedHandler is called for every ASDU received from the remote
// station. address is the link address of the sender. The return value
// reports whether the ASDU was handled.
type ASDUReceivedHandler func(address uint16, a *asdu.ASDU) bool

// RawMessageHandler is called with every frame written (sent=true) or read
// (sent=false). msg must not be retained.
type RawMessageHandler func(msg []byte, sent bool)

// LinkLayerStateChangedHandler is called when the link to address changes state.
type LinkLayerStateChangedHandler func(address uint16, state LinkLayerState)
