package stage

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/fade"
	"github.com/friendsincode/audioengine/internal/model"
)

// §8 scenario 2: a TransitionGain request with available_frames_hint=2
// and time_policy=FitToAvailable must complete the ramp to target_gain
// within those 2 frames.
func TestTransitionGainCompletesWithinAvailableFrames(t *testing.T) {
	g := NewTransitionGain()
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}
	if _, err := g.Prepare(spec, &model.PipelineContext{}); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	g.ApplyControl(Control{Name: "transition_gain", Payload: TransitionGainControl{
		TargetGain:          0,
		Curve:               fade.Linear,
		TimePolicy:          fade.FitToAvailable,
		AvailableFramesHint: 2,
	}}, &model.PipelineContext{})

	block := &model.AudioBlock{Channels: 2, Samples: []float32{1, 1, 1, 1}} // 2 frames
	if _, err := g.Process(block, &model.PipelineContext{}); err != nil {
		t.Fatalf("process: %v", err)
	}

	last := block.Samples[len(block.Samples)-1]
	if last > 1e-6 {
		t.Fatalf("expected gain to reach ~0 by the end of available frames, got %v", last)
	}
}

func TestMasterGainAppliesUniformlyAcrossChannels(t *testing.T) {
	g := NewMasterGain(0.5)
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}
	g.Prepare(spec, &model.PipelineContext{})

	block := &model.AudioBlock{Channels: 2, Samples: []float32{1, 1}}
	g.Process(block, &model.PipelineContext{})
	for _, v := range block.Samples {
		if v != 0.5 {
			t.Fatalf("expected steady gain 0.5, got %v", v)
		}
	}
}

func TestMasterGainPersistsCurrentValue(t *testing.T) {
	g := NewMasterGain(0.7)
	if g.CurrentGain() != 0.7 {
		t.Fatalf("current gain = %v, want 0.7", g.CurrentGain())
	}
}
