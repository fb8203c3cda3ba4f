// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/riclolsen/cs101master/asdu"
)

// CS101 Frame Format Constants (FT1.2)
const (
	// StartFixed is the start character for fixed-length frames
	StartFixed byte = 0x10
	// StartVariable is the start character for variable-length frames
	StartVariable byte = 0x68
	// EndChar is the end character of fixed and variable frames
	EndChar byte = 0x16
	// SingleCharACK is the single control character E5, a positive
	// acknowledge from the secondary station
	SingleCharACK byte = 0xE5

	// MaxFrameLen is the largest value of the length field
	MaxFrameLen = 255
)

const (
	// Control Field Bits (Primary Station Message)
	// DIR: Direction bit, balanced mode only (1: A -> B, 0: B -> A)
	CtrlDIR byte = 0x80
	// PRM: Primary Message bit (1: From Primary Station, 0: From Secondary Station)
	CtrlPRM byte = 0x40
	// FCB: Frame Count Bit
	CtrlFCB byte = 0x20
	// FCV: Frame Count Valid bit
	CtrlFCV byte = 0x10
	// Control Field Bits (Secondary Station Message)
	// ACD: Access Demand bit (unbalanced only)
	CtrlACD byte = 0x20
	// DFC: Data Flow Control bit
	CtrlDFC byte = 0x10
	// Function Code Mask
	CtrlFuncMask byte = 0x0F
)

// Primary Function Codes (PRM=1, bits 0-3)
const (
	// --- Send/Confirm Functions ---
	PrimFcResetLink      byte = 0 // Reset of remote link
	PrimFcResetUser      byte = 1 // Reset of user process
	PrimFcTestLink       byte = 2 // Test function for link, balanced mode
	PrimFcUserDataConf   byte = 3 // User data, confirmed
	PrimFcUserDataNoConf byte = 4 // User data, unconfirmed
	// --- Request/Respond Functions ---
	PrimFcReqAccess byte = 8  // Request access demand
	PrimFcReqStatus byte = 9  // Request status of link
	PrimFcReqData1  byte = 10 // Request user data class 1
	PrimFcReqData2  byte = 11 // Request user data class 2
)

// Secondary Function Codes (PRM=0, bits 0-3)
const (
	// --- Send/Confirm Functions ---
	SecFcConfACK  byte = 0 // Confirm: Positive acknowledge (ACK)
	SecFcConfNACK byte = 1 // Confirm: Negative acknowledge (NACK, link busy)
	// --- Request/Respond Functions ---
	SecFcRespUserData byte = 8  // Respond: User data
	SecFcRespNoData   byte = 9  // Respond: NACK - requested data not available
	SecFcRespStatus   byte = 11 // Respond: Status of link / Access Demand
	SecFcRespLinkNF   byte = 14 // Respond: Link service not functioning
	SecFcRespLinkNI   byte = 15 // Respond: Link service not implemented
)

// ControlField represents the parsed control field byte
type ControlField struct {
	DIR bool // Direction (balanced mode)
	PRM bool // Primary Message (true if from primary station)
	FCB bool // Frame Count Bit
	FCV bool // Frame Count Valid
	ACD bool // Access Demand (secondary station only)
	DFC bool // Data Flow Control (secondary station only)
	Fun byte // Function Code (masked)
}

// ParseControlField parses the control field byte.
func ParseControlField(b byte) ControlField {
	cf := ControlField{
		DIR: (b & CtrlDIR) != 0,
		PRM: (b & CtrlPRM) != 0,
		Fun: b & CtrlFuncMask,
	}
	if cf.PRM {
		cf.FCB = (b & CtrlFCB) != 0
		cf.FCV = (b & CtrlFCV) != 0
	} else {
		cf.ACD = (b & CtrlACD) != 0
		cf.DFC = (b & CtrlDFC) != 0
	}
	return cf
}

// Value encodes the ControlField struct back to a byte.
func (cf ControlField) Value() byte {
	var b byte
	if cf.DIR {
		b |= CtrlDIR
	}
	if cf.PRM {
		b |= CtrlPRM
		if cf.FCB {
			b |= CtrlFCB
		}
		if cf.FCV {
			b |= CtrlFCV
		}
	} else {
		if cf.ACD {
			b |= CtrlACD
		}
		if cf.DFC {
			b |= CtrlDFC
		}
	}
	return b | (cf.Fun & CtrlFuncMask)
}

// String provides a string representation of the control field.
func (cf ControlField) String() string {
	prm := "SEC"
	if cf.PRM {
		prm = "PRM"
	}
	flags := ""
	if cf.DIR {
		flags += " DIR=1"
	}
	if cf.PRM && cf.FCV {
		if cf.FCB {
			flags += " FCB=1"
		} else {
			flags += " FCB=0"
		}
	}
	if !cf.PRM && cf.ACD {
		flags += " ACD=1"
	}
	if !cf.PRM && cf.DFC {
		flags += " DFC=1"
	}
	return fmt.Sprintf("CTRL<%s FC=%d%s>", prm, cf.Fun, flags)
}

// Frame is one FT1.2 frame: fixed length, variable length or single character.
type Frame struct {
	Start    byte
	Control  byte
	LinkAddr []byte // Link Address (0, 1, or 2 bytes depending on config)
	ASDU     []byte // Application Service Data Unit (variable frames only)
}

// Errors related to frame parsing
var (
	ErrIncompleteFrame    = errors.New("incomplete frame")
	ErrInvalidStartChar   = errors.New("invalid start character")
	ErrLengthMismatch     = errors.New("length fields do not match")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrFrameTooShort      = errors.New("frame is too short for headers")
	ErrFrameLenExceeded   = errors.New("frame length exceeds maximum")
	ErrInvalidLinkAddrLen = errors.New("invalid link address length in config")
	ErrInvalidEndChar     = errors.New("invalid end character")
)

// calculateChecksum calculates the checksum (sum of bytes from Control field to end of ASDU).
func calculateChecksum(control byte, linkAddr []byte, asdu []byte) byte {
	sum := control
	for _, b := range linkAddr {
		sum += b
	}
	for _, b := range asdu {
		sum += b
	}
	return sum
}

// ParseFrame decodes the frame at the start of buf and returns it with the
// number of bytes it occupies. ErrIncompleteFrame means buf holds a valid
// prefix and nothing was consumed. Any other error consumes one byte so the
// caller can resynchronise on the next start character.
func ParseFrame(buf []byte, linkAddrSize byte) (*Frame, int, error) {
	if linkAddrSize > LinkAddrSizeMax {
		return nil, 0, ErrInvalidLinkAddrLen
	}
	if len(buf) == 0 {
		return nil, 0, ErrIncompleteFrame
	}
	la := int(linkAddrSize)

	switch buf[0] {
	case SingleCharACK:
		return &Frame{Start: SingleCharACK}, 1, nil

	case StartFixed:
		// Start + Control + LinkAddr + Checksum + End
		n := 4 + la
		if len(buf) < n {
			return nil, 0, ErrIncompleteFrame
		}
		f := &Frame{
			Start:    StartFixed,
			Control:  buf[1],
			LinkAddr: append([]byte(nil), buf[2:2+la]...),
		}
		if buf[n-1] != EndChar {
			return nil, 1, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrInvalidEndChar, EndChar, buf[n-1])
		}
		if cs := calculateChecksum(f.Control, f.LinkAddr, nil); cs != buf[n-2] {
			return nil, 1, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, cs, buf[n-2])
		}
		return f, n, nil

	case StartVariable:
		if len(buf) < 4 {
			return nil, 0, ErrIncompleteFrame
		}
		l1, l2 := buf[1], buf[2]
		if l1 != l2 || buf[3] != StartVariable {
			return nil, 1, fmt.Errorf("%w: L1=0x%02X, L2=0x%02X", ErrLengthMismatch, l1, l2)
		}
		// length covers Control + LinkAddr + ASDU
		if int(l1) < 1+la {
			return nil, 1, fmt.Errorf("%w: length %d less than link address size %d", ErrFrameTooShort, l1, linkAddrSize)
		}
		n := 4 + int(l1) + 2
		if len(buf) < n {
			return nil, 0, ErrIncompleteFrame
		}
		f := &Frame{
			Start:    StartVariable,
			Control:  buf[4],
			LinkAddr: append([]byte(nil), buf[5:5+la]...),
			ASDU:     append([]byte(nil), buf[5+la:n-2]...),
		}
		if buf[n-1] != EndChar {
			return nil, 1, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrInvalidEndChar, EndChar, buf[n-1])
		}
		if cs := calculateChecksum(f.Control, f.LinkAddr, f.ASDU); cs != buf[n-2] {
			return nil, 1, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, cs, buf[n-2])
		}
		return f, n, nil

	default:
		return nil, 1, fmt.Errorf("%w: got 0x%02X", ErrInvalidStartChar, buf[0])
	}
}

// MarshalBinary encodes the Frame struct into its byte representation.
func (f *Frame) MarshalBinary(linkAddrSize byte) ([]byte, error) {
	if linkAddrSize > LinkAddrSizeMax {
		return nil, ErrInvalidLinkAddrLen
	}
	if f.Start != SingleCharACK && len(f.LinkAddr) != int(linkAddrSize) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidLinkAddrLen, linkAddrSize, len(f.LinkAddr))
	}

	switch f.Start {
	case SingleCharACK:
		return []byte{SingleCharACK}, nil

	case StartFixed:
		buf := make([]byte, 0, 4+int(linkAddrSize))
		buf = append(buf, StartFixed, f.Control)
		buf = append(buf, f.LinkAddr...)
		return append(buf, calculateChecksum(f.Control, f.LinkAddr, nil), EndChar), nil

	case StartVariable:
		l := 1 + int(linkAddrSize) + len(f.ASDU)
		if l > MaxFrameLen {
			return nil, fmt.Errorf("%w: L=%d", ErrFrameLenExceeded, l)
		}
		buf := make([]byte, 0, l+6)
		buf = append(buf, StartVariable, byte(l), byte(l), StartVariable, f.Control)
		buf = append(buf, f.LinkAddr...)
		buf = append(buf, f.ASDU...)
		return append(buf, calculateChecksum(f.Control, f.LinkAddr, f.ASDU), EndChar), nil

	default:
		return nil, fmt.Errorf("%w: cannot marshal frame with start 0x%02X", ErrInvalidStartChar, f.Start)
	}
}

// DecodeASDU decodes the ASDU part of the frame using the provided ASDU parameters.
func (f *Frame) DecodeASDU(params *asdu.Params) (*asdu.ASDU, error) {
	if f.Start != StartVariable || len(f.ASDU) == 0 {
		return nil, errors.New("frame does not contain an ASDU")
	}
	a := asdu.NewEmptyASDU(params)
	if err := a.UnmarshalBinary(f.ASDU); err != nil {
		return nil, fmt.Errorf("failed to decode ASDU: %w", err)
	}
	return a, nil
}

// NewFixedFrame creates a new fixed-length frame (e.g., ACK/NACK).
func NewFixedFrame(control byte, linkAddr []byte) *Frame {
	return &Frame{
		Start:    StartFixed,
		Control:  control,
		LinkAddr: linkAddr,
	}
}

// NewDataFrame creates a new variable-length frame containing an ASDU.
func NewDataFrame(control byte, linkAddr []byte, asduData []byte) *Frame {
	return &Frame{
		Start:    StartVariable,
		Control:  control,
		LinkAddr: linkAddr,
		ASDU:     asduData,
	}
}

// GetControlField parses and returns the ControlField struct.
// A single character frame reads as a secondary ACK.
func (f *Frame) GetControlField() ControlField {
	if f.Start == SingleCharACK {
		return ControlField{Fun: SecFcConfACK}
	}
	return ParseControlField(f.Control)
}

// GetLinkAddress returns the link address as uint16 (Little Endian).
// Returns 0 if link address size is 0 or invalid.
func (f *Frame) GetLinkAddress() uint16 {
	switch len(f.LinkAddr) {
	case 1:
		return uint16(f.LinkAddr[0])
	case 2:
		return binary.LittleEndian.Uint16(f.LinkAddr)
	default:
		return 0
	}
}

// encodeLinkAddress encodes addr in size octets.
func encodeLinkAddress(addr uint16, size byte) []byte {
	switch size {
	case 1:
		return []byte{byte(addr)}
	case 2:
		return binary.LittleEndian.AppendUint16(nil, addr)
	default:
		return nil
	}
}

func (f *Frame) String() string {
	switch f.Start {
	case SingleCharACK:
		return "SC<E5>"
	case StartFixed:
		return fmt.Sprintf("FIX<%s LA=%d>", f.GetControlField(), f.GetLinkAddress())
	default:
		return fmt.Sprintf("VAR<%s LA=%d ASDU=%d>", f.GetControlField(), f.GetLinkAddress(), len(f.ASDU))
	}
}
