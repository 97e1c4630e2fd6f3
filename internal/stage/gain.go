/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stage

import (
	"github.com/friendsincode/audioengine/internal/fade"
	"github.com/friendsincode/audioengine/internal/model"
)

// TransitionGainControl is the out-of-band control posted by the runner
// before seek/pause/stop/switch (§4.D).
type TransitionGainControl struct {
	TargetGain          float64
	Curve               fade.Curve
	TimePolicy          fade.TimePolicy
	AvailableFramesHint uint64
	FixedDurationFrames uint64
}

// GainStage applies a single gain ramp to every channel uniformly. Used
// both as the transition-gain stage (addressable via stage key, driven by
// TransitionGainControl) and the master-gain stage (driven by SetVolume).
type GainStage struct {
	key string

	spec        model.StreamSpec
	framePos    uint64
	currentGain float64
	ramp        *fade.Ramp
}

// NewTransitionGain constructs the near-EOF/seek fade stage.
func NewTransitionGain() *GainStage {
	return &GainStage{key: "transition_gain", currentGain: 1.0}
}

// NewMasterGain constructs the user-volume stage.
func NewMasterGain(initial float64) *GainStage {
	return &GainStage{key: "master_gain", currentGain: initial}
}

func (g *GainStage) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error) {
	g.spec = spec
	g.framePos = 0
	return spec, nil
}

func (g *GainStage) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (g *GainStage) Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error) {
	if block == nil || len(block.Samples) == 0 {
		return Ok, nil
	}
	frames := block.Frames()
	channels := int(block.Channels)

	for f := 0; f < frames; f++ {
		gain := g.currentGain
		if g.ramp != nil {
			// Each frame gets the ramp's value at the end of that frame, so
			// a ramp of N frames reaches its target on its Nth frame.
			gain = g.ramp.GainAt(g.framePos + 1)
			if g.ramp.Done(g.framePos + 1) {
				g.currentGain = g.ramp.TargetGain
				g.ramp = nil
			}
		}
		base := f * channels
		for c := 0; c < channels; c++ {
			block.Samples[base+c] *= float32(gain)
		}
		g.framePos++
	}
	return Ok, nil
}

func (g *GainStage) StageKey() string { return g.key }

// ApplyControl accepts a TransitionGainControl (or, for the master-gain
// stage, a bare float64 target) and starts a new ramp.
func (g *GainStage) ApplyControl(control Control, ctx *model.PipelineContext) bool {
	switch payload := control.Payload.(type) {
	case TransitionGainControl:
		duration := payload.FixedDurationFrames
		if payload.TimePolicy == fade.FitToAvailable {
			duration = payload.AvailableFramesHint
		}
		r := fade.NewFitToAvailable(payload.Curve, payload.TargetGain > g.currentGain, g.framePos, duration, g.currentGain, payload.TargetGain)
		g.ramp = &r
		return true
	case float64:
		r := fade.NewFitToAvailable(fade.Linear, payload > g.currentGain, g.framePos, uint64(g.spec.SampleRate)/10, g.currentGain, payload)
		g.ramp = &r
		return true
	default:
		return false
	}
}

func (g *GainStage) Flush(ctx *model.PipelineContext) error { return nil }
func (g *GainStage) Stop(ctx *model.PipelineContext) error  { return nil }

// CurrentGain returns the stage's instantaneous gain, used by the session
// manager to persist SetMasterGain across rebuilds (§8 round-trip
// property).
func (g *GainStage) CurrentGain() float64 { return g.currentGain }
