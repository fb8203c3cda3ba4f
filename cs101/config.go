// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"errors"
	"time"
)

// TransmissionMode defines the transmission mode (Balanced or Unbalanced)
type TransmissionMode byte

const (
	ModeUnbalanced TransmissionMode = iota // Master polls slaves
	ModeBalanced                           // Point-to-point, both stations may initiate
)

func (m TransmissionMode) String() string {
	if m == ModeBalanced {
		return "balanced"
	}
	return "unbalanced"
}

// Constants defining default values and ranges for CS101 link parameters.
const (
	// Default timeout waiting for ACK/response from the secondary station
	DefaultTimeoutResponseT1 = 1 * time.Second
	TimeoutResponseT1Min     = 10 * time.Millisecond
	TimeoutResponseT1Max     = 255 * time.Second

	// Default timeout for the single repetition of an unanswered request
	DefaultTimeoutRepeatT2 = 500 * time.Millisecond
	TimeoutRepeatT2Min     = 10 * time.Millisecond
	TimeoutRepeatT2Max     = 255 * time.Second

	// Default idle time before a test link frame is sent (balanced)
	DefaultTimeoutTestT3 = 20 * time.Second
	TimeoutTestT3Min     = 1 * time.Second
	TimeoutTestT3Max     = 172800 * time.Second // 48 hours

	// Default Link Address size (1 or 2 octets, 0 for structured/unused)
	DefaultLinkAddrSize = 1
	LinkAddrSizeMin     = 0
	LinkAddrSizeMax     = 2

	// Max length of the ASDU carried by one frame
	DefaultMaxAPDULength = 249
	MaxAPDULengthMin     = 1
	MaxAPDULengthMax     = 249

	// Poll cadence for class 2 requests (unbalanced)
	TimeoutSendLinkMsgMin     = 1 * time.Millisecond
	TimeoutSendLinkMsgMax     = 1000 * time.Millisecond
	DefaultTimeoutSendLinkMsg = 200 * time.Millisecond

	// Delay before the link is initialised again after a failure
	DefaultLinkRetryDelay = 1 * time.Second

	// Read timeout applied to the port by each processing step
	DefaultReadTimeout = 5 * time.Millisecond

	DefaultMaxSendQueueSize = 100
)

// Config defines an IEC 60870-5-101 link layer configuration.
type Config struct {
	// Transmission Mode (Balanced or Unbalanced)
	Mode TransmissionMode

	// LinkAddress is the address of this station.
	LinkAddress uint16
	// RemoteLinkAddress is the address of the controlled station.
	RemoteLinkAddress uint16
	// Size of Link Address field in octets (0, 1, or 2)
	LinkAddrSize byte

	// Timeout waiting for ACK/response from secondary station
	TimeoutResponseT1 time.Duration
	// Timeout after the repeated request, must be < T1
	TimeoutRepeatT2 time.Duration
	// Idle timeout before a test frame is sent (balanced)
	TimeoutTestT3 time.Duration
	// Interval between class 2 polls (unbalanced)
	TimeoutSendLinkMsg time.Duration
	// Delay before restarting link initialisation after an error
	LinkRetryDelay time.Duration
	// Port read timeout used by Run
	ReadTimeout time.Duration

	// Maximum size of the send queue (number of ASDUs)
	MaxSendQueueSize int

	// Maximum length of the ASDU part of the frame
	MaxAPDULength uint8
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil config")
	}

	if sf.Mode != ModeUnbalanced && sf.Mode != ModeBalanced {
		return errors.New("invalid transmission mode")
	}

	if sf.LinkAddrSize > LinkAddrSizeMax {
		return errors.New("link address size must be 0, 1, or 2")
	}
	if sf.LinkAddrSize == 1 && (sf.LinkAddress > 0xFF || sf.RemoteLinkAddress > 0xFF) {
		return errors.New("link address exceeds 1 octet limit")
	}

	if sf.TimeoutResponseT1 == 0 {
		sf.TimeoutResponseT1 = DefaultTimeoutResponseT1
	} else if sf.TimeoutResponseT1 < TimeoutResponseT1Min || sf.TimeoutResponseT1 > TimeoutResponseT1Max {
		return errors.New("timeout T1 out of range [10ms, 255s]")
	}

	if sf.TimeoutRepeatT2 == 0 {
		sf.TimeoutRepeatT2 = DefaultTimeoutRepeatT2
	} else if sf.TimeoutRepeatT2 < TimeoutRepeatT2Min || sf.TimeoutRepeatT2 > TimeoutRepeatT2Max {
		return errors.New("timeout T2 out of range [10ms, 255s]")
	}
	if sf.TimeoutRepeatT2 >= sf.TimeoutResponseT1 {
		return errors.New("timeout T2 must be less than T1")
	}

	if sf.TimeoutTestT3 == 0 {
		sf.TimeoutTestT3 = DefaultTimeoutTestT3
	} else if sf.TimeoutTestT3 < TimeoutTestT3Min || sf.TimeoutTestT3 > TimeoutTestT3Max {
		return errors.New("timeout T3 out of range [1s, 48h]")
	}

	if sf.TimeoutSendLinkMsg == 0 {
		sf.TimeoutSendLinkMsg = DefaultTimeoutSendLinkMsg
	} else if sf.TimeoutSendLinkMsg < TimeoutSendLinkMsgMin || sf.TimeoutSendLinkMsg > TimeoutSendLinkMsgMax {
		return errors.New("timeout for sending link message out of range [1ms, 1s]")
	}

	if sf.LinkRetryDelay <= 0 {
		sf.LinkRetryDelay = DefaultLinkRetryDelay
	}
	if sf.ReadTimeout <= 0 {
		sf.ReadTimeout = DefaultReadTimeout
	}

	if sf.MaxSendQueueSize < 0 {
		return errors.New("MaxSendQueueSize must be positive")
	}
	if sf.MaxSendQueueSize == 0 {
		sf.MaxSendQueueSize = DefaultMaxSendQueueSize
	}

	if sf.MaxAPDULength == 0 {
		sf.MaxAPDULength = DefaultMaxAPDULength
	} else if sf.MaxAPDULength < MaxAPDULengthMin || sf.MaxAPDULength > MaxAPDULengthMax {
		return errors.New("max APDU length out of range")
	}

	return nil
}

// DefaultConfig provides a default balanced master configuration:
// own link address 2, remote link address 1.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeBalanced,
		LinkAddress:        2,
		RemoteLinkAddress:  1,
		LinkAddrSize:       DefaultLinkAddrSize,
		TimeoutResponseT1:  DefaultTimeoutResponseT1,
		TimeoutRepeatT2:    DefaultTimeoutRepeatT2,
		TimeoutTestT3:      DefaultTimeoutTestT3,
		TimeoutSendLinkMsg: DefaultTimeoutSendLinkMsg,
		LinkRetryDelay:     DefaultLinkRetryDelay,
		ReadTimeout:        DefaultReadTimeout,
		MaxSendQueueSize:   DefaultMaxSendQueueSize,
		MaxAPDULength:      DefaultMaxAPDULength,
	}
}
