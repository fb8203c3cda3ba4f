// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults of the operator interface.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = serial.EvenParity
	DefaultStopBits = serial.OneStopBit
)

// StandardBaudRates are the rates offered to operators.
var StandardBaudRates = []int{300, 600, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// Port is the byte stream the master runs over.
// Read must return (0, nil) when the read timeout expires without data.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// SerialConfig holds serial port configuration parameters.
type SerialConfig struct {
	// Address is the serial port address (e.g., "COM3" on Windows, "/dev/ttyS0" on Linux).
	Address string
	// BaudRate is the serial port speed (e.g., 9600, 19200, 115200).
	BaudRate int
	// DataBits is the number of data bits, 5 to 8.
	DataBits int
	// StopBits specifies the number of stop bits.
	StopBits serial.StopBits
	// Parity specifies the parity mode.
	Parity serial.Parity
	// Timeout bounds a blocking read on the port. 0 means block until data arrives.
	Timeout time.Duration
}

// DefaultSerialConfig returns 9600 baud 8E1 for the named port.
func DefaultSerialConfig(address string) SerialConfig {
	return SerialConfig{
		Address:  address,
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
	}
}

// Valid checks the line parameters.
func (sf SerialConfig) Valid() error {
	if strings.TrimSpace(sf.Address) == "" {
		return errors.New("serial address (port name) must be configured")
	}
	if sf.BaudRate <= 0 {
		return errors.New("serial baud rate must be positive")
	}
	if sf.DataBits < 5 || sf.DataBits > 8 {
		return fmt.Errorf("serial data bits %d out of range [5, 8]", sf.DataBits)
	}
	if sf.Parity < serial.NoParity || sf.Parity > serial.SpaceParity {
		return fmt.Errorf("invalid serial parity %d", sf.Parity)
	}
	if sf.StopBits < serial.OneStopBit || sf.StopBits > serial.TwoStopBits {
		return fmt.Errorf("invalid serial stop bits %d", sf.StopBits)
	}
	if sf.Timeout < 0 {
		return errors.New("serial timeout must not be negative")
	}
	return nil
}

// Mode converts the line parameters to a go.bug.st/serial mode.
func (sf SerialConfig) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: sf.BaudRate,
		DataBits: sf.DataBits,
		Parity:   sf.Parity,
		StopBits: sf.StopBits,
	}
}

// String renders the line as "COM5 (9600,8,E,1)".
func (sf SerialConfig) String() string {
	return fmt.Sprintf("%s (%d,%d,%s,%s)", sf.Address, sf.BaudRate, sf.DataBits,
		ParityString(sf.Parity), StopBitsString(sf.StopBits))
}

// ParseParity maps a letter or word to serial.Parity: N/none, O/odd, E/even, M/mark, S/space.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "none":
		return serial.NoParity, nil
	case "o", "odd":
		return serial.OddParity, nil
	case "e", "even":
		return serial.EvenParity, nil
	case "m", "mark":
		return serial.MarkParity, nil
	case "s", "space":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", s)
	}
}

// ParityString returns the single letter form of p.
func ParityString(p serial.Parity) string {
	switch p {
	case serial.NoParity:
		return "N"
	case serial.OddParity:
		return "O"
	case serial.EvenParity:
		return "E"
	case serial.MarkParity:
		return "M"
	case serial.SpaceParity:
		return "S"
	default:
		return "?"
	}
}

// ParseStopBits maps "1", "1.5" or "2" to serial.StopBits.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("unknown stop bits %q", s)
	}
}

// StopBitsString returns "1", "1.5" or "2".
func StopBitsString(s serial.StopBits) string {
	switch s {
	case serial.OneStopBit:
		return "1"
	case serial.OnePointFiveStopBits:
		return "1.5"
	case serial.TwoStopBits:
		return "2"
	default:
		return "?"
	}
}
