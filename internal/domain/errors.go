package domain

import "errors"

var (
	// ErrDeviceNotFound indicates no sound level meter is attached
	ErrDeviceNotFound = errors.New("sound level meter not found")

	// ErrFrameLength indicates a response frame is not exactly FrameSize bytes
	ErrFrameLength = errors.New("response frame has wrong length")

	// ErrFrameOverrun indicates the device returned more bytes than one frame
	ErrFrameOverrun = errors.New("response frame overrun")

	// ErrEmptyHostname indicates a measurement has no device name
	ErrEmptyHostname = errors.New("device name cannot be empty")
)
