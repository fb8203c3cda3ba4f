// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"errors"
)

// error defined
var (
	ErrUseClosedConnection = errors.New("use of closed connection")
	ErrNotActive           = errors.New("link layer is not active")
	ErrSendQueueFull       = errors.New("send queue is full")
	ErrNilPort             = errors.New("nil port")
)

// CS101 specific errors
var (
	ErrTimeoutT1          = errors.New("response timeout (T1/T2)")
	ErrInvalidFrameLength = errors.New("invalid frame length")
	ErrLinkNotFunctioning = errors.New("remote link service not functioning")
)
