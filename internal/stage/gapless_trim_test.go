package stage

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/model"
)

func TestGaplessTrimDropsHeadFrames(t *testing.T) {
	g := NewGaplessTrim(model.GaplessTrimSpec{HeadFrames: 2})
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}
	g.Prepare(spec, &model.PipelineContext{})

	block := &model.AudioBlock{Channels: 2, Samples: []float32{1, 1, 2, 2, 3, 3}} // 3 frames
	g.Process(block, &model.PipelineContext{})
	if block.Frames() != 1 {
		t.Fatalf("expected 1 frame remaining after dropping 2 head frames, got %d", block.Frames())
	}
	if block.Samples[0] != 3 {
		t.Fatalf("expected third frame to survive, got %v", block.Samples)
	}
}

func TestGaplessTrimWithholdsTailFrames(t *testing.T) {
	g := NewGaplessTrim(model.GaplessTrimSpec{TailFrames: 1})
	spec := model.StreamSpec{SampleRate: 44100, Channels: 1}
	g.Prepare(spec, &model.PipelineContext{})

	block := &model.AudioBlock{Channels: 1, Samples: []float32{1, 2, 3}}
	g.Process(block, &model.PipelineContext{})
	if block.Frames() != 2 {
		t.Fatalf("expected last frame withheld, got %d frames", block.Frames())
	}
}

func TestGaplessTrimDisabledPassesThrough(t *testing.T) {
	g := NewGaplessTrim(model.GaplessTrimSpec{})
	block := &model.AudioBlock{Channels: 1, Samples: []float32{1, 2, 3}}
	g.Process(block, &model.PipelineContext{})
	if block.Frames() != 3 {
		t.Fatal("disabled trim must not alter the block")
	}
}
