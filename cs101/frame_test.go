// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package cs101

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riclolsen/cs101master/asdu"
)

func TestParseFrame(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		require := require.New(t)
		buf := []byte{0x10, 0xC9, 0x01, 0xCA, 0x16, 0xE5}
		f, n, err := ParseFrame(buf, 1)
		require.NoError(err)
		require.Equal(5, n)
		require.Equal(StartFixed, f.Start)
		require.Equal(uint16(1), f.GetLinkAddress())
		cf := f.GetControlField()
		require.True(cf.PRM)
		require.True(cf.DIR)
		require.False(cf.FCV)
		require.Equal(PrimFcReqStatus, cf.Fun)

		f, n, err = ParseFrame(buf[n:], 1)
		require.NoError(err)
		require.Equal(1, n)
		require.Equal(SingleCharACK, f.Start)
		require.Equal(SecFcConfACK, f.GetControlField().Fun)
		require.False(f.GetControlField().PRM)
	})

	t.Run("variable", func(t *testing.T) {
		require := require.New(t)
		buf := []byte{0x68, 0x09, 0x09, 0x68, 0xF3, 0x01, 0x64, 0x01, 0x06, 0x01, 0x00, 0x00, 0x14, 0x74, 0x16}
		f, n, err := ParseFrame(buf, 1)
		require.NoError(err)
		require.Equal(len(buf), n)
		require.Equal([]byte{0x64, 0x01, 0x06, 0x01, 0x00, 0x00, 0x14}, f.ASDU)

		a, err := f.DecodeASDU(asdu.ParamsStandard101)
		require.NoError(err)
		require.Equal(asdu.C_IC_NA_1, a.Type)
		require.Equal(asdu.CommonAddr(1), a.CommonAddr)
	})

	t.Run("incomplete", func(t *testing.T) {
		require := require.New(t)
		full := []byte{0x68, 0x09, 0x09, 0x68, 0xF3, 0x01, 0x64, 0x01, 0x06, 0x01, 0x00, 0x00, 0x14, 0x74, 0x16}
		for i := 0; i < len(full); i++ {
			_, n, err := ParseFrame(full[:i], 1)
			require.ErrorIs(err, ErrIncompleteFrame, "prefix %d", i)
			require.Zero(n)
		}
		_, _, err := ParseFrame([]byte{0x10, 0xC9, 0x01}, 1)
		require.ErrorIs(err, ErrIncompleteFrame)
	})

	t.Run("corrupt", func(t *testing.T) {
		require := require.New(t)

		_, n, err := ParseFrame([]byte{0x10, 0xC9, 0x01, 0xCB, 0x16}, 1)
		require.ErrorIs(err, ErrChecksumMismatch)
		require.Equal(1, n)

		_, n, err = ParseFrame([]byte{0x10, 0xC9, 0x01, 0xCA, 0x17}, 1)
		require.ErrorIs(err, ErrInvalidEndChar)
		require.Equal(1, n)

		_, n, err = ParseFrame([]byte{0x68, 0x09, 0x08, 0x68}, 1)
		require.ErrorIs(err, ErrLengthMismatch)
		require.Equal(1, n)

		_, n, err = ParseFrame([]byte{0x68, 0x01, 0x01, 0x68}, 1)
		require.ErrorIs(err, ErrFrameTooShort)
		require.Equal(1, n)

		_, n, err = ParseFrame([]byte{0x00}, 1)
		require.ErrorIs(err, ErrInvalidStartChar)
		require.Equal(1, n)

		_, _, err = ParseFrame([]byte{0x10}, 3)
		require.ErrorIs(err, ErrInvalidLinkAddrLen)
	})

	t.Run("two octet address", func(t *testing.T) {
		require := require.New(t)
		raw, err := NewFixedFrame(0x49, encodeLinkAddress(0x0102, 2)).MarshalBinary(2)
		require.NoError(err)
		require.Equal([]byte{0x10, 0x49, 0x02, 0x01, 0x4C, 0x16}, raw)

		f, n, err := ParseFrame(raw, 2)
		require.NoError(err)
		require.Equal(6, n)
		require.Equal(uint16(0x0102), f.GetLinkAddress())
	})
}

func TestMarshalFrame(t *testing.T) {
	require := require.New(t)

	raw, err := NewDataFrame(0xF3, []byte{0x01}, []byte{0x64, 0x01, 0x06, 0x01, 0x00, 0x00, 0x14}).MarshalBinary(1)
	require.NoError(err)
	require.Equal([]byte{0x68, 0x09, 0x09, 0x68, 0xF3, 0x01, 0x64, 0x01, 0x06, 0x01, 0x00, 0x00, 0x14, 0x74, 0x16}, raw)

	raw, err = (&Frame{Start: SingleCharACK}).MarshalBinary(1)
	require.NoError(err)
	require.Equal([]byte{0xE5}, raw)

	_, err = NewFixedFrame(0x40, []byte{1, 2}).MarshalBinary(1)
	require.ErrorIs(err, ErrInvalidLinkAddrLen)

	_, err = NewDataFrame(0x53, []byte{1}, make([]byte, 254)).MarshalBinary(1)
	require.ErrorIs(err, ErrFrameLenExceeded)

	_, err = (&Frame{Start: 0x33}).MarshalBinary(0)
	require.ErrorIs(err, ErrInvalidStartChar)
}

func TestControlField(t *testing.T) {
	require := require.New(t)

	cf := ParseControlField(0xF3)
	require.Equal(ControlField{DIR: true, PRM: true, FCB: true, FCV: true, Fun: PrimFcUserDataConf}, cf)
	require.Equal(byte(0xF3), cf.Value())
	require.Equal("CTRL<PRM FC=3 DIR=1 FCB=1>", cf.String())

	cf = ParseControlField(0x3B)
	require.Equal(ControlField{ACD: true, DFC: true, Fun: SecFcRespStatus}, cf)
	require.Equal(byte(0x3B), cf.Value())
	require.Equal("CTRL<SEC FC=11 ACD=1 DFC=1>", cf.String())
}
