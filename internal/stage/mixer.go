/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stage

import "github.com/friendsincode/audioengine/internal/model"

// LfeMode selects how a channel-count mismatch folds a low-frequency
// channel when downmixing.
type LfeMode int

const (
	LfeDiscard LfeMode = iota
	LfeMixIntoFronts
)

// Mixer folds or expands the channel count to a target, per §4.D's
// "optional mixer (target channels + LFE policy)".
type Mixer struct {
	TargetChannels uint16
	Lfe            LfeMode

	inChannels uint16
}

func NewMixer(targetChannels uint16, lfe LfeMode) *Mixer {
	return &Mixer{TargetChannels: targetChannels, Lfe: lfe}
}

func (m *Mixer) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error) {
	m.inChannels = spec.Channels
	target := m.TargetChannels
	if target == 0 {
		target = spec.Channels
	}
	return model.StreamSpec{SampleRate: spec.SampleRate, Channels: target}, nil
}

func (m *Mixer) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (m *Mixer) Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error) {
	if block == nil || m.TargetChannels == 0 || block.Channels == m.TargetChannels {
		return Ok, nil
	}
	frames := block.Frames()
	out := make([]float32, frames*int(m.TargetChannels))

	switch {
	case block.Channels > m.TargetChannels:
		// Downmix: keep the first TargetChannels input channels. With
		// LfeMixIntoFronts every extra channel is added at half gain to
		// the first two outputs; with LfeDiscard every extra channel is
		// dropped. Channels are not averaged.
		extra := int(block.Channels) - int(m.TargetChannels)
		for f := 0; f < frames; f++ {
			inBase := f * int(block.Channels)
			outBase := f * int(m.TargetChannels)
			for c := 0; c < int(m.TargetChannels); c++ {
				out[outBase+c] = block.Samples[inBase+c]
			}
			if m.Lfe == LfeMixIntoFronts {
				for e := 0; e < extra; e++ {
					v := block.Samples[inBase+int(m.TargetChannels)+e]
					out[outBase] += v * 0.5
					if m.TargetChannels > 1 {
						out[outBase+1] += v * 0.5
					}
				}
			}
		}
	default:
		// Upmix: duplicate the last available channel into the new slots.
		for f := 0; f < frames; f++ {
			inBase := f * int(block.Channels)
			outBase := f * int(m.TargetChannels)
			for c := 0; c < int(m.TargetChannels); c++ {
				if c < int(block.Channels) {
					out[outBase+c] = block.Samples[inBase+c]
				} else {
					out[outBase+c] = block.Samples[inBase+int(block.Channels)-1]
				}
			}
		}
	}

	block.Channels = m.TargetChannels
	block.Samples = out
	return Ok, nil
}

func (m *Mixer) StageKey() string                                          { return "" }
func (m *Mixer) ApplyControl(control Control, ctx *model.PipelineContext) bool { return false }
func (m *Mixer) Flush(ctx *model.PipelineContext) error                    { return nil }
func (m *Mixer) Stop(ctx *model.PipelineContext) error                     { return nil }
