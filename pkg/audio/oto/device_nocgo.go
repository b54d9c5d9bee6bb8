//go:build nocgo

package oto

import (
	"context"

	"github.com/MrWong99/talewind/pkg/audio"
)

// Device is unavailable without cgo.
type Device struct{}

// New always returns [ErrUnavailable].
func New(f audio.Format, _ ...Option) (*Device, error) {
	if err := validate(f); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

// Format implements [audio.Device].
func (d *Device) Format() audio.Format { return audio.Format{} }

// Play implements [audio.Device].
func (d *Device) Play(context.Context, <-chan []byte) error { return ErrUnavailable }

// Close implements [audio.Device].
func (d *Device) Close() error { return nil }

var _ audio.Device = (*Device)(nil)
