// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"sync/atomic"
)

// Metrics counts session lifecycle operations.
type Metrics struct {
	TransportsAcquired atomic.Uint64
	TransportsReleased atomic.Uint64
	EnginesCreated     atomic.Uint64
	EnginesDestroyed   atomic.Uint64
	Connects           atomic.Uint64
	Disconnects        atomic.Uint64
	JoinTimeouts       atomic.Uint64
	CommandsSent       atomic.Uint64
}

// MetricsSnapshot is a point in time copy of Metrics.
type MetricsSnapshot struct {
	TransportsAcquired uint64
	TransportsReleased uint64
	EnginesCreated     uint64
	EnginesDestroyed   uint64
	Connects           uint64
	Disconnects        uint64
	JoinTimeouts       uint64
	CommandsSent       uint64
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TransportsAcquired: m.TransportsAcquired.Load(),
		TransportsReleased: m.TransportsReleased.Load(),
		EnginesCreated:     m.EnginesCreated.Load(),
		EnginesDestroyed:   m.EnginesDestroyed.Load(),
		Connects:           m.Connects.Load(),
		Disconnects:        m.Disconnects.Load(),
		JoinTimeouts:       m.JoinTimeouts.Load(),
		CommandsSent:       m.CommandsSent.Load(),
	}
}
