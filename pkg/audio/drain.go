package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it to release a producer blocked on a [Segment.Audio] channel whose
// audio will never be played.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
