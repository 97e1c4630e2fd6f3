/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ring implements the single-producer single-consumer interleaved
// float32 ring buffer that bridges the decode worker's pipeline thread and
// the OS audio device callback.
package ring

import "sync"

// RingMillis is the default ring capacity expressed as milliseconds of
// audio at the stream's sample rate.
const RingMillis = 500

// Buffer is a fixed-capacity SPSC ring of interleaved float32 samples.
// push_slice and pop_slice never block: both report the number of samples
// actually moved so callers can account for backpressure or underrun
// themselves.
type Buffer struct {
	mu   sync.Mutex
	buf  []float32
	head int // next read position
	tail int // next write position
	n    int // occupied sample count
}

// Capacity computes the ring capacity in samples for a given stream spec,
// clamped to at least one channel block.
func Capacity(sampleRate uint32, channels uint16, ringMillis int) int {
	if channels == 0 {
		channels = 1
	}
	cap := int(sampleRate) * int(channels) * ringMillis / 1000
	if cap < int(channels) {
		cap = int(channels)
	}
	return cap
}

// New creates a ring with the given sample capacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{buf: make([]float32, capacity)}
}

// PushSlice copies as many samples from src into the ring as fit, returning
// the count actually copied. It never blocks.
func (b *Buffer) PushSlice(src []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	free := len(b.buf) - b.n
	if free <= 0 || len(src) == 0 {
		return 0
	}
	count := len(src)
	if count > free {
		count = free
	}
	for i := 0; i < count; i++ {
		b.buf[b.tail] = src[i]
		b.tail = (b.tail + 1) % len(b.buf)
	}
	b.n += count
	return count
}

// PopSlice drains up to len(dst) samples into dst, returning the count
// actually copied. Missing samples are the caller's responsibility to
// zero-fill; PopSlice never blocks and never zero-fills itself.
func (b *Buffer) PopSlice(dst []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n == 0 || len(dst) == 0 {
		return 0
	}
	count := len(dst)
	if count > b.n {
		count = b.n
	}
	for i := 0; i < count; i++ {
		dst[i] = b.buf[b.head]
		b.head = (b.head + 1) % len(b.buf)
	}
	b.n -= count
	return count
}

// OccupiedLen returns the number of samples currently held in the ring.
func (b *Buffer) OccupiedLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Capacity returns the ring's fixed sample capacity.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Clear discards any buffered samples.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.tail, b.n = 0, 0, 0
}
