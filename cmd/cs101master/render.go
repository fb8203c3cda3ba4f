// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/riclolsen/cs101master/event"
)

// renderer prints the traffic log. Lines carry their own timestamp, so the
// console writer shows only level and message.
type renderer struct {
	log  zerolog.Logger
	link atomic.Int32
}

func newRenderer(out io.Writer, color bool) *renderer {
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    !color,
		PartsOrder: []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
	}
	return &renderer{log: zerolog.New(w)}
}

func (r *renderer) handle(ev event.Event) {
	level := zerolog.InfoLevel
	switch ev.Kind {
	case event.KindRawFrame:
		level = zerolog.DebugLevel
	case event.KindLinkState:
		r.link.Store(int32(ev.LinkState))
		if ev.LinkState == event.LinkError {
			level = zerolog.WarnLevel
		}
	}
	for _, line := range event.Format(ev) {
		r.log.WithLevel(level).Msg(line)
	}
}

// linkState returns the last reported link state.
func (r *renderer) linkState() event.LinkState {
	return event.LinkState(r.link.Load())
}
