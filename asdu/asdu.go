// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package asdu models the IEC 60870-5-101 application service data unit:
// identifiers, parameters, time tags, command builders and decoding of
// monitor direction information objects.
package asdu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ASDUSizeMax is the largest ASDU carried by one FT1.2 frame.
const ASDUSizeMax = 249

// error defined
var (
	ErrParam             = errors.New("asdu: invalid parameters")
	ErrLengthOutOfRange  = errors.New("asdu: length out of range")
	ErrTypeNotSupported  = errors.New("asdu: type identification not supported")
	ErrCommonAddrZero    = errors.New("asdu: common address zero is not used")
	ErrNotAnyObjInfo     = errors.New("asdu: no information object")
	ErrInfoObjIndexFit   = errors.New("asdu: information object index not fit")
	ErrInfoObjAddrFit    = errors.New("asdu: information object address not fit")
	ErrCmdCause          = errors.New("asdu: cause of transmission not allowed for command")
	ErrTypeIdentifier    = errors.New("asdu: type identification does not match")
	ErrOriginAddrFit     = errors.New("asdu: originator address needs two octet cause")
	ErrCommonAddrTooLong = errors.New("asdu: common address exceeds configured size")
)

// Params holds the field sizes of a link. They must match on both stations.
type Params struct {
	// CauseSize is 1 or 2 octets; 2 carries the originator address.
	CauseSize int
	// CommonAddrSize is 1 or 2 octets.
	CommonAddrSize int
	// InfoObjAddrSize is 1, 2 or 3 octets.
	InfoObjAddrSize int
	// InfoObjTimeZone is the location used for time tags. Nil means UTC.
	InfoObjTimeZone *time.Location
}

// ParamsStandard101 are the common IEC 60870-5-101 field sizes.
var ParamsStandard101 = &Params{
	CauseSize:       1,
	CommonAddrSize:  1,
	InfoObjAddrSize: 2,
	InfoObjTimeZone: time.UTC,
}

// ParamsWide101 uses the largest field sizes.
var ParamsWide101 = &Params{
	CauseSize:       2,
	CommonAddrSize:  2,
	InfoObjAddrSize: 3,
	InfoObjTimeZone: time.UTC,
}

// Valid checks the field sizes.
func (sf *Params) Valid() error {
	if sf == nil ||
		(sf.CauseSize < 1 || sf.CauseSize > 2) ||
		(sf.CommonAddrSize < 1 || sf.CommonAddrSize > 2) ||
		(sf.InfoObjAddrSize < 1 || sf.InfoObjAddrSize > 3) {
		return ErrParam
	}
	return nil
}

// IdentifierSize is the length of the data unit identifier in octets.
func (sf *Params) IdentifierSize() int {
	return 2 + sf.CauseSize + sf.CommonAddrSize
}

func (sf *Params) location() *time.Location {
	if sf.InfoObjTimeZone == nil {
		return time.UTC
	}
	return sf.InfoObjTimeZone
}

// ASDU is an application service data unit.
type ASDU struct {
	*Params
	Identifier
	infoObj []byte
}

// NewEmptyASDU returns an ASDU bound to p with no identifier or objects.
func NewEmptyASDU(p *Params) *ASDU {
	return &ASDU{Params: p, infoObj: make([]byte, 0, ASDUSizeMax)}
}

// NewASDU returns an ASDU with the given identifier and no objects.
func NewASDU(p *Params, id Identifier) *ASDU {
	a := NewEmptyASDU(p)
	a.Identifier = id
	return a
}

// InfoObj returns the raw information object octets.
func (sf *ASDU) InfoObj() []byte {
	return sf.infoObj
}

// AppendBytes appends raw octets to the information object area.
func (sf *ASDU) AppendBytes(b ...byte) *ASDU {
	sf.infoObj = append(sf.infoObj, b...)
	return sf
}

// AppendInfoObjAddr appends an information object address using the configured size.
func (sf *ASDU) AppendInfoObjAddr(addr InfoObjAddr) error {
	switch sf.InfoObjAddrSize {
	case 1:
		if addr > 0xff {
			return ErrInfoObjAddrFit
		}
		sf.infoObj = append(sf.infoObj, byte(addr))
	case 2:
		if addr > 0xffff {
			return ErrInfoObjAddrFit
		}
		sf.infoObj = append(sf.infoObj, byte(addr), byte(addr>>8))
	case 3:
		if addr > InfoObjAddrMax {
			return ErrInfoObjAddrFit
		}
		sf.infoObj = append(sf.infoObj, byte(addr), byte(addr>>8), byte(addr>>16))
	default:
		return ErrParam
	}
	return nil
}

// decodeInfoObjAddr reads an information object address at the start of b.
func (sf *ASDU) decodeInfoObjAddr(b []byte) (InfoObjAddr, error) {
	if len(b) < sf.InfoObjAddrSize {
		return 0, ErrInfoObjIndexFit
	}
	var ioa InfoObjAddr
	switch sf.InfoObjAddrSize {
	case 1:
		ioa = InfoObjAddr(b[0])
	case 2:
		ioa = InfoObjAddr(b[0]) | InfoObjAddr(b[1])<<8
	case 3:
		ioa = InfoObjAddr(b[0]) | InfoObjAddr(b[1])<<8 | InfoObjAddr(b[2])<<16
	default:
		return 0, ErrParam
	}
	return ioa, nil
}

// MarshalBinary encodes the ASDU.
func (sf *ASDU) MarshalBinary() ([]byte, error) {
	if err := sf.Params.Valid(); err != nil {
		return nil, err
	}
	if sf.Coa.Cause == Unused {
		return nil, fmt.Errorf("%w: cause unused", ErrParam)
	}
	if sf.CommonAddr == InvalidCommonAddr {
		return nil, ErrCommonAddrZero
	}

	raw := make([]byte, 0, sf.IdentifierSize()+len(sf.infoObj))
	raw = append(raw, byte(sf.Type), sf.Variable.Value(), sf.Coa.Value())
	switch sf.CauseSize {
	case 1:
		if sf.OrigAddr != 0 {
			return nil, ErrOriginAddrFit
		}
	case 2:
		raw = append(raw, byte(sf.OrigAddr))
	}
	switch sf.CommonAddrSize {
	case 1:
		switch {
		case sf.CommonAddr == GlobalCommonAddr:
			raw = append(raw, 0xff)
		case sf.CommonAddr > 0xff:
			return nil, ErrCommonAddrTooLong
		default:
			raw = append(raw, byte(sf.CommonAddr))
		}
	case 2:
		raw = binary.LittleEndian.AppendUint16(raw, uint16(sf.CommonAddr))
	}
	raw = append(raw, sf.infoObj...)
	if len(raw) > ASDUSizeMax {
		return nil, ErrLengthOutOfRange
	}
	return raw, nil
}

// UnmarshalBinary decodes an ASDU. The information object area is kept raw
// and decoded on demand by Points.
func (sf *ASDU) UnmarshalBinary(raw []byte) error {
	if err := sf.Params.Valid(); err != nil {
		return err
	}
	lenDUI := sf.IdentifierSize()
	if len(raw) < lenDUI || len(raw) > ASDUSizeMax {
		return ErrLengthOutOfRange
	}

	sf.Type = TypeID(raw[0])
	sf.Variable = ParseVariableStruct(raw[1])
	sf.Coa = ParseCauseOfTransmission(raw[2])
	offset := 3
	sf.OrigAddr = 0
	if sf.CauseSize == 2 {
		sf.OrigAddr = OriginAddr(raw[offset])
		offset++
	}
	if sf.CommonAddrSize == 1 {
		sf.CommonAddr = CommonAddr(raw[offset])
		if sf.CommonAddr == 0xff {
			sf.CommonAddr = GlobalCommonAddr
		}
	} else {
		sf.CommonAddr = CommonAddr(binary.LittleEndian.Uint16(raw[offset:]))
	}
	sf.infoObj = append(sf.infoObj[:0], raw[lenDUI:]...)
	return nil
}

func (sf *ASDU) String() string {
	return fmt.Sprintf("%s [% X]", sf.Identifier, sf.infoObj)
}
