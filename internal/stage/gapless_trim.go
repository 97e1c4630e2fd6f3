/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stage

import "github.com/friendsincode/audioengine/internal/model"

// GaplessTrim drops head_frames from the start of a track and withholds
// tail_frames from the end, so a decoder-reported trim spec never leaks
// codec padding into the output stream.
type GaplessTrim struct {
	Spec model.GaplessTrimSpec

	spec          model.StreamSpec
	headRemaining uint64
	tailBuffer    []float32 // the last tail_frames seen so far, passed on ahead of the next block; discarded by Flush
}

func NewGaplessTrim(spec model.GaplessTrimSpec) *GaplessTrim {
	return &GaplessTrim{Spec: spec, headRemaining: spec.HeadFrames}
}

func (g *GaplessTrim) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error) {
	g.spec = spec
	g.headRemaining = g.Spec.HeadFrames
	return spec, nil
}

func (g *GaplessTrim) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (g *GaplessTrim) Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error) {
	if !g.Spec.Enabled() || block == nil {
		return Ok, nil
	}
	channels := int(block.Channels)
	if channels == 0 {
		return Ok, nil
	}

	if g.headRemaining > 0 {
		frames := uint64(block.Frames())
		if frames <= g.headRemaining {
			g.headRemaining -= frames
			block.Samples = block.Samples[:0]
			return Ok, nil
		}
		dropFrames := g.headRemaining
		block.Samples = block.Samples[dropFrames*uint64(channels):]
		g.headRemaining = 0
	}

	// Tail trim: hold back the last tail_frames worth of samples seen so
	// far. Held samples are passed on ahead of the next block; whatever is
	// still held when the decoder reports Eof is discarded by Flush, so it
	// never reaches the output.
	if g.Spec.TailFrames > 0 {
		tailSamples := int(g.Spec.TailFrames) * channels
		pending := append(g.tailBuffer, block.Samples...)
		if len(pending) > tailSamples {
			keep := len(pending) - tailSamples
			g.tailBuffer = append([]float32(nil), pending[keep:]...)
			block.Samples = pending[:keep]
		} else {
			g.tailBuffer = pending
			block.Samples = block.Samples[:0]
		}
	}

	return Ok, nil
}

func (g *GaplessTrim) StageKey() string { return "gapless_trim" }

func (g *GaplessTrim) ApplyControl(control Control, ctx *model.PipelineContext) bool { return false }

func (g *GaplessTrim) Flush(ctx *model.PipelineContext) error {
	g.tailBuffer = nil
	return nil
}

func (g *GaplessTrim) Stop(ctx *model.PipelineContext) error { return g.Flush(ctx) }
