// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package event

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	// TimeLayout is the timestamp layout of formatted lines.
	TimeLayout = "15:04:05.000"

	DefaultHistorySize = 1000
)

// Format renders ev as log lines, e.g.
//
//	[15:04:05.000] SEND: 10 49 01 4A 16
//	[15:04:05.120] RECV: ASDU: M_SP_NA_1(1) CA:1 Elements:2
//	[15:04:05.120] RECV:   IOA:100 Value:1
func Format(ev Event) []string {
	prefix := "[" + ev.Time.Format(TimeLayout) + "] "
	switch ev.Kind {
	case KindRawFrame:
		dir := DirRecv
		if ev.Raw.Sent {
			dir = DirSend
		}
		return []string{prefix + dir.String() + ": " + hexBytes(ev.Raw.Data)}

	case KindReceived:
		r := ev.Received
		if r == nil {
			return nil
		}
		lines := make([]string, 0, 1+len(r.Points))
		lines = append(lines, fmt.Sprintf("%sRECV: ASDU: %s(%d) CA:%d Elements:%d",
			prefix, r.TypeName, r.Type, r.CommonAddr, r.Elements))
		for _, p := range r.Points {
			line := fmt.Sprintf("%sRECV:   IOA:%d Value:%s", prefix, p.IOA, strconv.FormatFloat(p.Value, 'f', -1, 64))
			if p.Quality != 0 {
				line += fmt.Sprintf(" Q:0x%02X", p.Quality)
			}
			if !p.Time.IsZero() {
				line += " T:" + p.Time.Format("2006-01-02 "+TimeLayout)
			}
			lines = append(lines, line)
		}
		return lines

	case KindLinkState:
		return []string{prefix + "STATUS: Link Layer: " + ev.LinkState.String()}

	case KindStatus:
		return []string{prefix + "STATUS: " + ev.Text}

	default:
		return []string{prefix + ev.Direction.String() + ": " + ev.Text}
	}
}

func hexBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(3 * len(b))
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// History keeps the most recent formatted lines. It is safe for
// concurrent use.
type History struct {
	mu    sync.Mutex
	lines []string
	start int
	n     int
}

// NewHistory returns a History holding up to size lines.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{lines: make([]string, size)}
}

// Add appends lines, evicting the oldest when full.
func (sf *History) Add(lines ...string) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	for _, l := range lines {
		i := (sf.start + sf.n) % len(sf.lines)
		sf.lines[i] = l
		if sf.n < len(sf.lines) {
			sf.n++
		} else {
			sf.start = (sf.start + 1) % len(sf.lines)
		}
	}
}

// Record formats ev and adds the lines. It fits Bus.Subscribe.
func (sf *History) Record(ev Event) {
	sf.Add(Format(ev)...)
}

// Lines returns the held lines, oldest first.
func (sf *History) Lines() []string {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	out := make([]string, sf.n)
	for i := range out {
		out[i] = sf.lines[(sf.start+i)%len(sf.lines)]
	}
	return out
}

// Len returns the number of held lines.
func (sf *History) Len() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.n
}

// Clear drops every line.
func (sf *History) Clear() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	for i := range sf.lines {
		sf.lines[i] = ""
	}
	sf.start, sf.n = 0, 0
}
