// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"errors"
	"fmt"
)

// error defined
var (
	ErrConfigInvalid        = errors.New("session: invalid configuration")
	ErrTransportUnavailable = errors.New("session: transport unavailable")
	ErrEngineCreateFailed   = errors.New("session: engine creation failed")
	ErrNotConnected         = errors.New("session: not connected")
	ErrWorkerJoinTimeout    = errors.New("session: worker did not stop in time")
	ErrInvalidState         = errors.New("session: operation not allowed in current state")
)

// ConfigError is an invalid configuration value. It matches ErrConfigInvalid.
type ConfigError struct {
	Field string      // config field name
	Value interface{} // the invalid value
	Msg   string      // explanation
	Err   error       // underlying parse or validation error, may be nil
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrConfigInvalid, e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfigInvalid }

// TransportError is a failure to create or open the transport. It matches
// ErrTransportUnavailable.
type TransportError struct {
	Op   string // "create" or "open"
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", ErrTransportUnavailable, e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransportUnavailable }
