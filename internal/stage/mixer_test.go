package stage

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/model"
)

func TestMixerDownmixesStereoToMono(t *testing.T) {
	m := NewMixer(1, LfeDiscard)
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}
	out, err := m.Prepare(spec, &model.PipelineContext{})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.Channels != 1 {
		t.Fatalf("expected target channels 1, got %d", out.Channels)
	}

	block := &model.AudioBlock{Channels: 2, Samples: []float32{0.2, 0.2, 0.4, 0.4}}
	m.Process(block, &model.PipelineContext{})
	if block.Channels != 1 || block.Frames() != 2 {
		t.Fatalf("unexpected block shape after downmix: channels=%d frames=%d", block.Channels, block.Frames())
	}
}

func TestMixerUpmixesMonoToStereo(t *testing.T) {
	m := NewMixer(2, LfeDiscard)
	spec := model.StreamSpec{SampleRate: 44100, Channels: 1}
	m.Prepare(spec, &model.PipelineContext{})

	block := &model.AudioBlock{Channels: 1, Samples: []float32{0.5, 0.5}}
	m.Process(block, &model.PipelineContext{})
	if block.Channels != 2 || len(block.Samples) != 4 {
		t.Fatalf("expected upmix to 2 channels x 2 frames, got channels=%d samples=%d", block.Channels, len(block.Samples))
	}
}

func TestMixerNoOpWhenChannelsMatch(t *testing.T) {
	m := NewMixer(2, LfeDiscard)
	m.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, &model.PipelineContext{})
	block := &model.AudioBlock{Channels: 2, Samples: []float32{1, 2, 3, 4}}
	m.Process(block, &model.PipelineContext{})
	if block.Samples[0] != 1 || block.Samples[3] != 4 {
		t.Fatal("matching channel count must pass through unchanged")
	}
}
