// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package event carries what a master session observes to its subscribers:
// raw frames, received data, link state changes, log and status text.
package event

import (
	"fmt"
	"time"

	"github.com/riclolsen/cs101master/asdu"
)

// Kind identifies the payload of an Event.
type Kind int

const (
	KindRawFrame Kind = iota
	KindReceived
	KindLinkState
	KindLog
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindRawFrame:
		return "raw"
	case KindReceived:
		return "received"
	case KindLinkState:
		return "link"
	case KindLog:
		return "log"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Direction of a log line relative to this station.
type Direction int

const (
	DirNone Direction = iota
	DirSend
	DirRecv
)

func (d Direction) String() string {
	switch d {
	case DirSend:
		return "SEND"
	case DirRecv:
		return "RECV"
	default:
		return "INFO"
	}
}

// LinkState mirrors the link layer state reported by the engine.
type LinkState int

const (
	LinkIdle LinkState = iota
	LinkError
	LinkBusy
	LinkAvailable
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "IDLE"
	case LinkError:
		return "ERROR"
	case LinkBusy:
		return "BUSY"
	case LinkAvailable:
		return "AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Raw is one frame as it went over the line.
type Raw struct {
	Data []byte
	Sent bool
}

// Point is one information element of a received ASDU. A zero Time means
// the element carried no time tag.
type Point struct {
	IOA     asdu.InfoObjAddr
	Value   float64
	Quality byte
	Time    time.Time
}

// Received summarises an ASDU delivered by the engine.
type Received struct {
	Type       asdu.TypeID
	TypeName   string
	Cause      asdu.CauseOfTransmission
	CommonAddr asdu.CommonAddr
	// LinkAddress is the link address of the frame that carried the ASDU.
	// NewReceived leaves it zero.
	LinkAddress uint16
	Elements    int
	// Points is empty for types whose elements are not decoded.
	Points []Point
}

// NewReceived builds a Received from a. Nothing of a is retained.
func NewReceived(a *asdu.ASDU) *Received {
	r := &Received{
		Type:       a.Type,
		TypeName:   a.Type.String(),
		Cause:      a.Coa,
		CommonAddr: a.CommonAddr,
		Elements:   int(a.Variable.Number),
	}
	if !asdu.Decodable(a.Type) {
		return r
	}
	points, err := a.Points()
	if err != nil {
		return r
	}
	r.Points = make([]Point, 0, len(points))
	for _, p := range points {
		r.Points = append(r.Points, Point{IOA: p.Ioa, Value: p.Value, Quality: p.Quality, Time: p.Time})
	}
	return r
}

// Event is one observation. Exactly one payload field is set, selected by Kind.
type Event struct {
	Kind Kind
	// Time is assigned when the event is published.
	Time time.Time

	Raw      Raw
	Received *Received

	LinkState LinkState
	// Address is the link address the state refers to.
	Address uint16

	Text      string
	Direction Direction
}

// RawFrame returns a KindRawFrame event. data is copied.
func RawFrame(data []byte, sent bool) Event {
	return Event{Kind: KindRawFrame, Raw: Raw{Data: append([]byte(nil), data...), Sent: sent}}
}

// ReceivedASDU returns a KindReceived event.
func ReceivedASDU(r *Received) Event {
	return Event{Kind: KindReceived, Received: r}
}

// LinkStateChanged returns a KindLinkState event.
func LinkStateChanged(address uint16, s LinkState) Event {
	return Event{Kind: KindLinkState, Address: address, LinkState: s}
}

// Log returns a KindLog event with formatted text.
func Log(dir Direction, format string, v ...interface{}) Event {
	return Event{Kind: KindLog, Direction: dir, Text: fmt.Sprintf(format, v...)}
}

// Status returns a KindStatus event.
func Status(text string) Event {
	return Event{Kind: KindStatus, Text: text}
}

// Sink receives events in publication order.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})
