package oto

import (
	"testing"
	"time"

	"github.com/MrWong99/talewind/pkg/audio"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f       audio.Format
		wantErr bool
	}{
		{audio.Format{SampleRate: 24000, Channels: 1}, false},
		{audio.Format{SampleRate: 48000, Channels: 2}, false},
		{audio.Format{SampleRate: 0, Channels: 1}, true},
		{audio.Format{SampleRate: 24000, Channels: 0}, true},
		{audio.Format{SampleRate: 24000, Channels: 6}, true},
	}
	for _, tt := range tests {
		if err := validate(tt.f); (err != nil) != tt.wantErr {
			t.Errorf("validate(%s) = %v, wantErr %v", tt.f, err, tt.wantErr)
		}
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	o := options{bufferSize: defaultBufferSize, readyTimeout: defaultReadyTimeout}
	WithBufferSize(250 * time.Millisecond)(&o)
	WithReadyTimeout(0)(&o)
	if o.bufferSize != 250*time.Millisecond {
		t.Errorf("bufferSize = %v, want 250ms", o.bufferSize)
	}
	if o.readyTimeout != defaultReadyTimeout {
		t.Errorf("readyTimeout = %v, want default %v", o.readyTimeout, defaultReadyTimeout)
	}
}
