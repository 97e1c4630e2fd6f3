package model

import "testing"

func TestStreamSpecValid(t *testing.T) {
	if (StreamSpec{SampleRate: 0, Channels: 2}).Valid() {
		t.Fatal("zero sample rate must be invalid")
	}
	if (StreamSpec{SampleRate: 44100, Channels: 0}).Valid() {
		t.Fatal("zero channels must be invalid")
	}
	if !(StreamSpec{SampleRate: 44100, Channels: 2}).Valid() {
		t.Fatal("44100/2 must be valid")
	}
}

func TestAudioBlockFrames(t *testing.T) {
	b := AudioBlock{Channels: 2, Samples: make([]float32, 8)}
	if b.Frames() != 4 {
		t.Fatalf("frames = %d, want 4", b.Frames())
	}
}

// position_ms must strictly increase for any successful step with
// frames > 0 (§8 testable property).
func TestPositionMonotonicAdvance(t *testing.T) {
	ctx := &PipelineContext{}
	ctx.AdvancePosition(44100, 44100) // one second of frames
	if ctx.PositionMs != 1000 {
		t.Fatalf("position = %d, want 1000", ctx.PositionMs)
	}
	prev := ctx.PositionMs
	ctx.AdvancePosition(4410, 44100)
	if ctx.PositionMs <= prev {
		t.Fatalf("position did not strictly increase: %d -> %d", prev, ctx.PositionMs)
	}
}

func TestLatchAndConsumeSeek(t *testing.T) {
	ctx := &PipelineContext{}
	if _, ok := ctx.ConsumeSeek(); ok {
		t.Fatal("expected no pending seek initially")
	}
	ctx.LatchSeek(5000)
	ms, ok := ctx.ConsumeSeek()
	if !ok || ms != 5000 {
		t.Fatalf("got (%d, %v), want (5000, true)", ms, ok)
	}
	if _, ok := ctx.ConsumeSeek(); ok {
		t.Fatal("seek should be cleared after consume")
	}
}

func TestGaplessTrimEnabled(t *testing.T) {
	if (GaplessTrimSpec{}).Enabled() {
		t.Fatal("zero trim must be disabled")
	}
	if !(GaplessTrimSpec{HeadFrames: 1}).Enabled() {
		t.Fatal("non-zero head must be enabled")
	}
}
