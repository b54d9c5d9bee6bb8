package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/talewind/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	mono := samplesToBytes([]int16{100, 200, 300})
	stereo := audio.MonoToStereo(mono)
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples should clamp to 32767 (not overflow).
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{32767}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	if got[0] != want[0] {
		t.Errorf("got %d, want %d", got[0], want[0])
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	// First output sample should equal first source sample.
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	// Last output sample should be close to last source sample.
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleStereo16(t *testing.T) {
	// 2 stereo frames at 16kHz → 6 stereo frames (12 samples) at 48kHz
	pcm := samplesToBytes([]int16{100, 200, 300, 400})
	out := audio.ResampleStereo16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(got))
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	t.Parallel()
	f := audio.Format{SampleRate: 24000, Channels: 1}
	conv := audio.FormatConverter{Target: f}
	pcm := samplesToBytes([]int16{100, 200})
	result := conv.Convert(pcm, f)
	if &result[0] != &pcm[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		src, target audio.Format
		in          []int16
		wantSamples int
		want        []int16
	}{
		{
			name:        "mono to stereo",
			src:         audio.Format{SampleRate: 48000, Channels: 1},
			target:      audio.Format{SampleRate: 48000, Channels: 2},
			in:          []int16{100, 200, 300},
			wantSamples: 6,
			want:        []int16{100, 100, 200, 200, 300, 300},
		},
		{
			name:        "stereo to mono",
			src:         audio.Format{SampleRate: 24000, Channels: 2},
			target:      audio.Format{SampleRate: 24000, Channels: 1},
			in:          []int16{100, 200, -100, -200},
			wantSamples: 2,
			want:        []int16{150, -150},
		},
		{
			name:        "tts 16k mono to 48k stereo",
			src:         audio.Format{SampleRate: 16000, Channels: 1},
			target:      audio.Format{SampleRate: 48000, Channels: 2},
			in:          []int16{1000, 2000},
			wantSamples: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conv := audio.FormatConverter{Target: tt.target}
			got := bytesToSamples(conv.Convert(samplesToBytes(tt.in), tt.src))
			if len(got) != tt.wantSamples {
				t.Fatalf("samples = %d, want %d", len(got), tt.wantSamples)
			}
			for i, w := range tt.want {
				if got[i] != w {
					t.Errorf("sample %d = %d, want %d", i, got[i], w)
				}
			}
		})
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	t.Parallel()
	target := audio.Format{SampleRate: 48000, Channels: 1}
	for _, src := range []audio.Format{{SampleRate: 22050, Channels: 1}, target} {
		conv := audio.FormatConverter{Target: target}
		if got := conv.Convert([]byte{1, 2, 3}, src); len(got) != 0 {
			t.Errorf("Convert(odd, %s) = %d bytes, want 0", src, len(got))
		}
	}
}

func TestMonoToStereo_OddLengthInput(t *testing.T) {
	// I2: odd-length input should not produce trailing zero bytes.
	// 5 bytes = 2 complete samples + 1 trailing byte.
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF} // 100, 200, then junk byte
	stereo := audio.MonoToStereo(pcm)
	// Should only process 2 complete samples → 4 stereo samples → 8 bytes.
	if len(stereo) != 8 {
		t.Fatalf("expected 8 bytes for 2 complete mono samples, got %d", len(stereo))
	}
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	// Zero srcRate should return input unchanged.
	out := audio.ResampleMono16(pcm, 0, 48000)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero srcRate, got len %d", len(out))
	}
	// Zero dstRate should return input unchanged.
	out = audio.ResampleMono16(pcm, 48000, 0)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero dstRate, got len %d", len(out))
	}
	// Negative rates should return input unchanged.
	out = audio.ResampleMono16(pcm, -1, 48000)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for negative srcRate, got len %d", len(out))
	}
}

func TestResampleStereo16_ZeroRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300, 400})
	out := audio.ResampleStereo16(pcm, 0, 48000)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero srcRate, got len %d", len(out))
	}
	out = audio.ResampleStereo16(pcm, 48000, 0)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero dstRate, got len %d", len(out))
	}
}

func TestConvertStream(t *testing.T) {
	t.Parallel()

	in := make(chan []byte, 3)
	src := audio.Format{SampleRate: 48000, Channels: 1}
	out := audio.ConvertStream(in, src, audio.Format{SampleRate: 48000, Channels: 2})

	in <- samplesToBytes([]int16{100, 200})
	in <- []byte{1, 2, 3} // dropped
	in <- samplesToBytes([]int16{500})
	close(in)

	var results [][]int16
	for chunk := range out {
		results = append(results, bytesToSamples(chunk))
	}
	if len(results) != 2 {
		t.Fatalf("got %d chunks, want 2", len(results))
	}
	want := [][]int16{{100, 100, 200, 200}, {500, 500}}
	for i := range want {
		if len(results[i]) != len(want[i]) {
			t.Fatalf("chunk %d = %v, want %v", i, results[i], want[i])
		}
		for j := range want[i] {
			if results[i][j] != want[i][j] {
				t.Errorf("chunk %d sample %d = %d, want %d", i, j, results[i][j], want[i][j])
			}
		}
	}
}

func TestConvertStream_MatchingFormatPassesThrough(t *testing.T) {
	t.Parallel()
	f := audio.Format{SampleRate: 24000, Channels: 1}
	in := make(chan []byte)
	if out := audio.ConvertStream(in, f, f); out != (<-chan []byte)(in) {
		t.Error("expected the input channel back for matching formats")
	}
}

func TestFormat_Duration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f     audio.Format
		bytes int
		want  time.Duration
	}{
		{audio.Format{SampleRate: 24000, Channels: 1}, 48000, time.Second},
		{audio.Format{SampleRate: 48000, Channels: 2}, 19200, 100 * time.Millisecond},
		{audio.Format{SampleRate: 16000, Channels: 1}, 0, 0},
		{audio.Format{}, 1000, 0},
	}
	for _, tt := range tests {
		if got := tt.f.Duration(tt.bytes); got != tt.want {
			t.Errorf("%s.Duration(%d) = %v, want %v", tt.f, tt.bytes, got, tt.want)
		}
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()
	for f, want := range map[audio.Format]string{
		{SampleRate: 24000, Channels: 1}: "24000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 8000, Channels: 4}:  "8000Hz 4ch",
	} {
		if got := f.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
