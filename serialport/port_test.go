// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package serialport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/riclolsen/cs101master/cs101"
)

type fakeHandle struct {
	timeouts []time.Duration
	written  []byte
	closed   int
}

func (h *fakeHandle) Read(b []byte) (int, error) {
	return copy(b, []byte{0xE5}), nil
}

func (h *fakeHandle) Write(b []byte) (int, error) {
	h.written = append(h.written, b...)
	return len(b), nil
}

func (h *fakeHandle) SetReadTimeout(t time.Duration) error {
	h.timeouts = append(h.timeouts, t)
	return nil
}

func (h *fakeHandle) ResetInputBuffer() error { return nil }

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

func stubOpen(t *testing.T, h *fakeHandle, err error) (names *[]string, modes *[]*serial.Mode) {
	t.Helper()
	orig := openPort
	t.Cleanup(func() { openPort = orig })
	names, modes = &[]string{}, &[]*serial.Mode{}
	openPort = func(name string, mode *serial.Mode) (portHandle, error) {
		*names = append(*names, name)
		*modes = append(*modes, mode)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return names, modes
}

func TestNewValidates(t *testing.T) {
	require := require.New(t)

	_, err := New(cs101.SerialConfig{})
	require.Error(err)

	cfg := cs101.DefaultSerialConfig("COM5")
	cfg.DataBits = 4
	_, err = New(cfg)
	require.Error(err)
}

func TestPortLifecycle(t *testing.T) {
	require := require.New(t)
	h := &fakeHandle{}
	names, modes := stubOpen(t, h, nil)

	p, err := New(cs101.DefaultSerialConfig("COM5"))
	require.NoError(err)
	p.LogMode(false)
	require.Empty(*names, "New does not open the device")

	_, err = p.Read(make([]byte, 8))
	require.ErrorIs(err, ErrPortClosed)
	_, err = p.Write([]byte{1})
	require.ErrorIs(err, ErrPortClosed)

	require.NoError(p.SetReadTimeout(5 * time.Millisecond))
	require.NoError(p.Open())
	require.True(p.IsOpen())
	require.Equal([]string{"COM5"}, *names)
	require.Equal(&serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.OneStopBit}, (*modes)[0])
	require.Equal([]time.Duration{5 * time.Millisecond}, h.timeouts, "pending timeout applied on open")
	require.ErrorIs(p.Open(), ErrPortOpen)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(err)
	require.Equal([]byte{0xE5}, buf[:n])

	_, err = p.Write([]byte{0x10, 0x49, 0x01, 0x4A, 0x16})
	require.NoError(err)
	require.Equal([]byte{0x10, 0x49, 0x01, 0x4A, 0x16}, h.written)

	require.NoError(p.SetReadTimeout(0))
	require.Equal(serial.NoTimeout, h.timeouts[len(h.timeouts)-1])

	require.NoError(p.Close())
	require.NoError(p.Close())
	require.Equal(1, h.closed)
	require.False(p.IsOpen())
}

func TestOpenFailure(t *testing.T) {
	require := require.New(t)
	busy := errors.New("access denied")
	stubOpen(t, nil, busy)

	p, err := New(cs101.DefaultSerialConfig("COM9"))
	require.NoError(err)
	p.LogMode(false)

	err = p.Open()
	require.ErrorIs(err, busy)
	require.Contains(err.Error(), "COM9")
	require.False(p.IsOpen())
}
