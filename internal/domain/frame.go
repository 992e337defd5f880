package domain

import (
	"encoding/binary"
	"fmt"
	"math/rand"
)

const (
	// FrameSize is the length of both the request and the response frame
	FrameSize = 8

	// OpcodeReadLevel asks the meter for its current state
	OpcodeReadLevel = 0xB3
)

// RequestFrame is the fixed command written to the meter's OUT endpoint.
// Bytes 1-3 are filler the meter ignores; bytes 4-7 are always zero.
type RequestFrame [FrameSize]byte

// NewRequestFrame builds a read-level request with random filler bytes
func NewRequestFrame() RequestFrame {
	var f RequestFrame
	f[0] = OpcodeReadLevel
	for i := 1; i <= 3; i++ {
		f[i] = byte(rand.Intn(256))
	}
	return f
}

// Bytes returns the frame as a slice for writing
func (f RequestFrame) Bytes() []byte {
	return f[:]
}

// DecodeLevel extracts the sound level from a response frame.
// The first two bytes hold the level in tenths of a decibel, big-endian.
func DecodeLevel(frame []byte) (float64, error) {
	if len(frame) != FrameSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(frame), FrameSize)
	}

	raw := binary.BigEndian.Uint16(frame[:2])
	return float64(raw) / 10, nil
}
