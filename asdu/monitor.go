// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package asdu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Point is one decoded information element in monitor direction.
type Point struct {
	Ioa InfoObjAddr
	// Value is the element value converted to float64. Normalized values are
	// scaled to [-1, 1).
	Value float64
	// Quality holds the quality descriptor bits (IV NT SB BL OV).
	Quality byte
	// Time is the element time tag; zero when the type carries none or the tag is invalid.
	Time time.Time
}

// Quality descriptor bits.
const (
	QDSOverflow    byte = 0x01
	QDSBlocked     byte = 0x10
	QDSSubstituted byte = 0x20
	QDSNotTopical  byte = 0x40
	QDSInvalid     byte = 0x80
)

const (
	noTag = iota
	tag24
	tag56
)

type elementCodec struct {
	size   int
	tag    int
	decode func(b []byte) (float64, byte)
}

func decodeSIQ(b []byte) (float64, byte) {
	return float64(b[0] & 0x01), b[0] & 0xf0
}

func decodeDIQ(b []byte) (float64, byte) {
	return float64(b[0] & 0x03), b[0] & 0xf0
}

func decodeVTI(b []byte) (float64, byte) {
	v := int8(b[0]<<1) >> 1
	return float64(v), b[1] & 0xf1
}

func decodeBSI(b []byte) (float64, byte) {
	return float64(binary.LittleEndian.Uint32(b)), b[4] & 0xf1
}

func decodeNVA(b []byte) (float64, byte) {
	return float64(int16(binary.LittleEndian.Uint16(b))) / 32768, b[2] & 0xf1
}

func decodeNVANoQDS(b []byte) (float64, byte) {
	return float64(int16(binary.LittleEndian.Uint16(b))) / 32768, 0
}

func decodeSVA(b []byte) (float64, byte) {
	return float64(int16(binary.LittleEndian.Uint16(b))), b[2] & 0xf1
}

func decodeFloat(b []byte) (float64, byte) {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), b[4] & 0xf1
}

// decodeBCR maps the sequence octet flags (IV CA CY) onto quality bits.
func decodeBCR(b []byte) (float64, byte) {
	var q byte
	if b[4]&0x80 != 0 {
		q |= QDSInvalid
	}
	if b[4]&0x20 != 0 {
		q |= QDSOverflow
	}
	return float64(int32(binary.LittleEndian.Uint32(b))), q
}

var monitorCodecs = map[TypeID]elementCodec{
	M_SP_NA_1: {1, noTag, decodeSIQ},
	M_SP_TA_1: {1, tag24, decodeSIQ},
	M_DP_NA_1: {1, noTag, decodeDIQ},
	M_DP_TA_1: {1, tag24, decodeDIQ},
	M_ST_NA_1: {2, noTag, decodeVTI},
	M_ST_TA_1: {2, tag24, decodeVTI},
	M_BO_NA_1: {5, noTag, decodeBSI},
	M_BO_TA_1: {5, tag24, decodeBSI},
	M_ME_NA_1: {3, noTag, decodeNVA},
	M_ME_TA_1: {3, tag24, decodeNVA},
	M_ME_NB_1: {3, noTag, decodeSVA},
	M_ME_TB_1: {3, tag24, decodeSVA},
	M_ME_NC_1: {5, noTag, decodeFloat},
	M_ME_TC_1: {5, tag24, decodeFloat},
	M_IT_NA_1: {5, noTag, decodeBCR},
	M_IT_TA_1: {5, tag24, decodeBCR},
	M_ME_ND_1: {2, noTag, decodeNVANoQDS},
	M_SP_TB_1: {1, tag56, decodeSIQ},
	M_DP_TB_1: {1, tag56, decodeDIQ},
	M_ST_TB_1: {2, tag56, decodeVTI},
	M_BO_TB_1: {5, tag56, decodeBSI},
	M_ME_TD_1: {3, tag56, decodeNVA},
	M_ME_TE_1: {3, tag56, decodeSVA},
	M_ME_TF_1: {5, tag56, decodeFloat},
	M_IT_TB_1: {5, tag56, decodeBCR},
}

// Decodable reports whether Points can decode type t.
func Decodable(t TypeID) bool {
	_, ok := monitorCodecs[t]
	return ok
}

// Points decodes every information element of a monitor direction ASDU.
// CP24Time2a tags are completed against the current time.
func (sf *ASDU) Points() ([]Point, error) {
	return sf.PointsAt(time.Now())
}

// PointsAt is Points with an explicit reference time for CP24Time2a tags.
func (sf *ASDU) PointsAt(ref time.Time) ([]Point, error) {
	codec, ok := monitorCodecs[sf.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotSupported, sf.Type)
	}
	n := int(sf.Variable.Number)
	if n == 0 {
		return nil, ErrNotAnyObjInfo
	}
	tagLen := 0
	switch codec.tag {
	case tag24:
		tagLen = 3
	case tag56:
		tagLen = 7
	}
	elemLen := codec.size + tagLen

	want := n * (sf.InfoObjAddrSize + elemLen)
	if sf.Variable.IsSequence {
		want = sf.InfoObjAddrSize + n*elemLen
	}
	if len(sf.infoObj) != want {
		return nil, fmt.Errorf("%w: %s expects %d octets, got %d", ErrInfoObjIndexFit, sf.Type, want, len(sf.infoObj))
	}

	loc := sf.location()
	points := make([]Point, 0, n)
	b := sf.infoObj
	var ioa InfoObjAddr
	for i := 0; i < n; i++ {
		if !sf.Variable.IsSequence || i == 0 {
			addr, err := sf.decodeInfoObjAddr(b)
			if err != nil {
				return nil, err
			}
			ioa = addr
			b = b[sf.InfoObjAddrSize:]
		} else {
			ioa++
		}
		v, q := codec.decode(b[:codec.size])
		p := Point{Ioa: ioa, Value: v, Quality: q}
		switch codec.tag {
		case tag24:
			if t, ok := ParseCP24Time2a(b[codec.size:elemLen], ref, loc); ok {
				p.Time = t
			}
		case tag56:
			if t, ok := ParseCP56Time2a(b[codec.size:elemLen], loc); ok {
				p.Time = t
			}
		}
		points = append(points, p)
		b = b[elemLen:]
	}
	return points, nil
}
