// Package usb drives the USB sound level meter through libusb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog/log"

	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/domain"
)

const (
	// VendorID and ProductID identify the supported meter model
	VendorID  gousb.ID = 0x64bd
	ProductID gousb.ID = 0x74e3

	// ResponseDelay is how long the meter needs between request and response
	ResponseDelay = 50 * time.Millisecond

	// FlushTimeout bounds the discard read done when the meter is opened
	FlushTimeout = 250 * time.Millisecond
)

// deviceFinder is satisfied by *gousb.Context
type deviceFinder interface {
	OpenDeviceWithVIDPID(vid, pid gousb.ID) (*gousb.Device, error)
}

type inEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type outEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Meter implements ports.LevelSensor on top of a claimed USB interface.
// It owns every libusb handle it opened; Close releases them in reverse order.
type Meter struct {
	in         inEndpoint
	out        outEndpoint
	packetSize int
	request    domain.RequestFrame
	settle     time.Duration
	closers    []func() error
}

// Open finds the meter, claims its first interface and flushes stale data.
// Returns domain.ErrDeviceNotFound when no meter is attached.
func Open(ctx context.Context) (*Meter, error) {
	usbCtx := gousb.NewContext()

	m, err := open(ctx, usbCtx)
	if err != nil {
		usbCtx.Close()
		return nil, err
	}

	m.closers = append([]func() error{usbCtx.Close}, m.closers...)
	return m, nil
}

func open(ctx context.Context, finder deviceFinder) (*Meter, error) {
	dev, err := finder.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil && dev == nil {
		return nil, fmt.Errorf("failed to open device %s:%s: %w", VendorID, ProductID, err)
	}
	if dev == nil {
		return nil, domain.ErrDeviceNotFound
	}

	var closers []func() error
	fail := func(err error) (*Meter, error) {
		runClosers(closers)
		dev.Close()
		return nil, err
	}

	// Detaches a kernel driver holding the interface on claim, reattaches on release
	if err := dev.SetAutoDetach(true); err != nil {
		return fail(fmt.Errorf("failed to enable kernel driver auto-detach: %w", err))
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return fail(fmt.Errorf("failed to get active config: %w", err))
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return fail(fmt.Errorf("failed to select config %d: %w", cfgNum, err))
	}
	closers = append(closers, cfg.Close)

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		return fail(fmt.Errorf("failed to claim interface 0: %w", err))
	}
	closers = append(closers, func() error {
		intf.Close()
		return nil
	})

	outDesc, inDesc, err := pickEndpoints(intf.Setting)
	if err != nil {
		return fail(err)
	}

	out, err := intf.OutEndpoint(outDesc.Number)
	if err != nil {
		return fail(fmt.Errorf("failed to open OUT endpoint %d: %w", outDesc.Number, err))
	}

	in, err := intf.InEndpoint(inDesc.Number)
	if err != nil {
		return fail(fmt.Errorf("failed to open IN endpoint %d: %w", inDesc.Number, err))
	}

	log.Info().
		Str("device", dev.String()).
		Str("out", outDesc.String()).
		Str("in", inDesc.String()).
		Msg("claimed sound level meter")

	m := newMeter(in, out, inDesc.MaxPacketSize)
	// Closers run last-in first-out: interface, config, device
	m.closers = append([]func() error{dev.Close}, closers...)

	if err := m.flush(ctx); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

func newMeter(in inEndpoint, out outEndpoint, packetSize int) *Meter {
	if packetSize <= 0 {
		packetSize = domain.FrameSize
	}
	return &Meter{
		in:         in,
		out:        out,
		packetSize: packetSize,
		request:    domain.NewRequestFrame(),
		settle:     ResponseDelay,
	}
}

// pickEndpoints returns the lowest numbered OUT and IN endpoints of a setting
func pickEndpoints(setting gousb.InterfaceSetting) (out, in gousb.EndpointDesc, err error) {
	var haveOut, haveIn bool
	for _, ep := range setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if !haveOut || ep.Number < out.Number {
				out, haveOut = ep, true
			}
		case gousb.EndpointDirectionIn:
			if !haveIn || ep.Number < in.Number {
				in, haveIn = ep, true
			}
		}
	}
	if !haveOut || !haveIn {
		return out, in, fmt.Errorf("interface %s lacks an IN/OUT endpoint pair", setting)
	}
	return out, in, nil
}

// flush discards whatever the meter buffered before we opened it.
// A timeout means there was nothing to discard.
func (m *Meter) flush(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, FlushTimeout)
	defer cancel()

	buf := make([]byte, m.packetSize)
	n, err := m.in.ReadContext(ctx, buf)
	if err != nil && !isTimeout(ctx, err) {
		return fmt.Errorf("failed to flush device buffer: %w", err)
	}

	log.Debug().Int("bytes", n).Msg("flushed device buffer")
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gousb.ErrorTimeout) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		(errors.Is(err, gousb.TransferCancelled) && ctx.Err() != nil)
}

// ReadLevel requests one reading and blocks until the full response arrives.
// There is no read timeout beyond ctx.
func (m *Meter) ReadLevel(ctx context.Context) (float64, error) {
	if _, err := m.out.WriteContext(ctx, m.request.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to write request: %w", err)
	}

	time.Sleep(m.settle)

	frame := make([]byte, 0, domain.FrameSize)
	chunk := make([]byte, m.packetSize)
	for len(frame) < domain.FrameSize {
		n, err := m.in.ReadContext(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to read response: %w", err)
		}
		if len(frame)+n > domain.FrameSize {
			return 0, fmt.Errorf("%w: read %d bytes with %d already buffered", domain.ErrFrameOverrun, n, len(frame))
		}
		frame = append(frame, chunk[:n]...)
	}

	return domain.DecodeLevel(frame)
}

// Close releases the interface and device handles
func (m *Meter) Close() error {
	return runClosers(m.closers)
}

func runClosers(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
