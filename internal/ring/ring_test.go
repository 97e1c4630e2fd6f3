package ring

import (
	"sync"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	r := New(8)
	n := r.PushSlice([]float32{1, 2, 3, 4})
	if n != 4 {
		t.Fatalf("push: got %d want 4", n)
	}
	if got := r.OccupiedLen(); got != 4 {
		t.Fatalf("occupied: got %d want 4", got)
	}

	dst := make([]float32, 4)
	n = r.PopSlice(dst)
	if n != 4 {
		t.Fatalf("pop: got %d want 4", n)
	}
	for i, v := range dst {
		if v != float32(i+1) {
			t.Fatalf("dst[%d] = %v, want %v", i, v, i+1)
		}
	}
}

func TestPushPartialWhenFull(t *testing.T) {
	r := New(4)
	n := r.PushSlice([]float32{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Fatalf("partial push: got %d want 4", n)
	}
	if r.OccupiedLen() != 4 {
		t.Fatalf("occupied mismatch after partial push")
	}
}

func TestPopPartialWhenEmpty(t *testing.T) {
	r := New(4)
	r.PushSlice([]float32{1, 2})
	dst := make([]float32, 4)
	n := r.PopSlice(dst)
	if n != 2 {
		t.Fatalf("partial pop: got %d want 2", n)
	}
}

func TestClear(t *testing.T) {
	r := New(4)
	r.PushSlice([]float32{1, 2, 3})
	r.Clear()
	if r.OccupiedLen() != 0 {
		t.Fatalf("expected empty ring after clear")
	}
}

// Capacity is computed from sample_rate * channels * ring_ms / 1000,
// clamped to at least one channel block.
func TestCapacity(t *testing.T) {
	cases := []struct {
		rate     uint32
		channels uint16
		ms       int
		want     int
	}{
		{44100, 2, 500, 44100},
		{8000, 1, 1, 8}, // 8000*1*1/1000 = 8
		{100, 2, 1, 2},  // rounds down to 0, clamped to channels(2)
	}
	for _, c := range cases {
		got := Capacity(c.rate, c.channels, c.ms)
		if got != c.want {
			t.Errorf("Capacity(%d,%d,%d) = %d, want %d", c.rate, c.channels, c.ms, got, c.want)
		}
	}
}

// Concurrent producer/consumer exercise to catch data races under -race.
func TestConcurrentProducerConsumer(t *testing.T) {
	r := New(256)
	var wg sync.WaitGroup
	wg.Add(2)

	const total = 10000
	go func() {
		defer wg.Done()
		chunk := make([]float32, 16)
		written := 0
		for written < total {
			for i := range chunk {
				chunk[i] = float32(written + i)
			}
			n := r.PushSlice(chunk)
			written += n
			if n == 0 {
				continue
			}
		}
	}()

	go func() {
		defer wg.Done()
		dst := make([]float32, 16)
		read := 0
		for read < total {
			n := r.PopSlice(dst)
			read += n
		}
	}()

	wg.Wait()
}
