/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stage

import "github.com/friendsincode/audioengine/internal/model"

// ResampleQuality selects the resampler's interpolation order. Concrete
// codec-grade resampling algorithms are a plugin concern; this built-in
// provides a linear-interpolation resampler sufficient for rate matching
// inside the engine's own transform chain.
type ResampleQuality int

const (
	QualityLinear ResampleQuality = iota
	QualityLinearOversampled
)

// Resampler converts a stream to a target sample rate, per §4.D's
// "optional resampler (target sample rate + quality)".
type Resampler struct {
	TargetRate uint32
	Quality    ResampleQuality

	inRate   uint32
	channels uint16
	frac     float64 // fractional position carried across Process calls
	tail     []float32
}

func NewResampler(targetRate uint32, quality ResampleQuality) *Resampler {
	return &Resampler{TargetRate: targetRate, Quality: quality}
}

func (r *Resampler) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error) {
	r.inRate = spec.SampleRate
	r.channels = spec.Channels
	r.frac = 0
	r.tail = nil
	target := r.TargetRate
	if target == 0 {
		target = spec.SampleRate
	}
	return model.StreamSpec{SampleRate: target, Channels: spec.Channels}, nil
}

func (r *Resampler) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (r *Resampler) Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error) {
	if block == nil || r.TargetRate == 0 || r.TargetRate == r.inRate || r.channels == 0 {
		return Ok, nil
	}

	channels := int(r.channels)
	in := append(r.tail, block.Samples...)
	inFrames := len(in) / channels
	if inFrames < 2 {
		r.tail = in
		block.Samples = block.Samples[:0]
		return Ok, nil
	}

	ratio := float64(r.inRate) / float64(r.TargetRate)
	var out []float32
	pos := r.frac
	for {
		idx := int(pos)
		if idx+1 >= inFrames {
			break
		}
		t := pos - float64(idx)
		base0 := idx * channels
		base1 := (idx + 1) * channels
		for c := 0; c < channels; c++ {
			s0 := in[base0+c]
			s1 := in[base1+c]
			out = append(out, s0+float32(t)*(s1-s0))
		}
		pos += ratio
	}

	consumedFrames := int(pos)
	if consumedFrames > inFrames-1 {
		consumedFrames = inFrames - 1
	}
	r.frac = pos - float64(consumedFrames)
	r.tail = append([]float32(nil), in[consumedFrames*channels:]...)

	block.Samples = out
	return Ok, nil
}

func (r *Resampler) StageKey() string                                          { return "" }
func (r *Resampler) ApplyControl(control Control, ctx *model.PipelineContext) bool { return false }
func (r *Resampler) Flush(ctx *model.PipelineContext) error                    { r.tail = nil; r.frac = 0; return nil }
func (r *Resampler) Stop(ctx *model.PipelineContext) error                     { return r.Flush(ctx) }
