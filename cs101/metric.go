// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"sync/atomic"
)

// LinkMetrics contains atomic counters for one master link.
type LinkMetrics struct {
	// FrameSendCount is the number of frames written to the port.
	FrameSendCount atomic.Uint64
	// FrameRecvCount is the number of valid frames read from the port.
	FrameRecvCount atomic.Uint64
	// FrameErrCount is the number of discarded octets and malformed frames.
	FrameErrCount atomic.Uint64
	// RetryCount is the number of repeated requests after T1 expired.
	RetryCount atomic.Uint64
	// ASDURecvCount is the number of ASDUs delivered to the handler.
	ASDURecvCount atomic.Uint64
	// ASDUSendCount is the number of ASDUs confirmed by the remote station.
	ASDUSendCount atomic.Uint64
	// QueueDropCount is the number of ASDUs rejected because the queue was full.
	QueueDropCount atomic.Uint64
}

func (m *LinkMetrics) incFrameSendCount() { m.FrameSendCount.Add(1) }
func (m *LinkMetrics) incFrameRecvCount() { m.FrameRecvCount.Add(1) }
func (m *LinkMetrics) incFrameErrCount() { m.FrameErrCount.Add(1) }
func (m *LinkMetrics) incRetryCount() { m.RetryCount.Add(1) }
func (m *LinkMetrics) incASDURecvCount() { m.ASDURecvCount.Add(1) }
func (m *LinkMetrics) incASDUSendCount() { m.ASDUSendCount.Add(1) }
func (m *LinkMetrics) incQueueDropCount() { m.QueueDropCount.Add(1) }
