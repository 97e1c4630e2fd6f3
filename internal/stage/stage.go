/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stage defines the §4.C stage capability contracts (Source,
// Decoder, Transform, Sink) and the built-in transforms the runner
// assembles in fixed order: gapless-trim, mixer, resampler,
// transition-gain, master-gain.
//
// Grounded on dsp/graph.go's per-node-type builder dispatch: where the
// teacher selects a GStreamer element constructor by node type, the
// built-ins here are selected and chained by the runner's assembly rule
// instead of a string pipeline.
package stage

import (
	"github.com/friendsincode/audioengine/internal/model"
)

// Status is the per-call outcome contract shared by Decoder.NextBlock and
// Transform.Process.
type Status int

const (
	Ok Status = iota
	Eof
	Fatal
)

// Control is the out-of-band control envelope routed to a transform by
// stage key (§4.C, §4.D).
type Control struct {
	Name    string
	Payload any
}

// Source produces raw bytes/frames for a Decoder to consume.
type Source interface {
	Prepare(ctx *model.PipelineContext) (model.SourceHandle, error)
	SyncRuntimeControl(ctx *model.PipelineContext) error
	Stop(ctx *model.PipelineContext) error
}

// Decoder turns a SourceHandle into a stream of AudioBlocks.
type Decoder interface {
	Prepare(handle model.SourceHandle, ctx *model.PipelineContext) (model.StreamSpec, error)
	SyncRuntimeControl(ctx *model.PipelineContext) error
	NextBlock(out *model.AudioBlock, ctx *model.PipelineContext) (Status, error)
	CurrentGaplessTrimSpec() model.GaplessTrimSpec
	EstimatedRemainingFrames() uint64
	Flush(ctx *model.PipelineContext) error
	Stop(ctx *model.PipelineContext) error
}

// Transform consumes and produces AudioBlocks of a (possibly different)
// StreamSpec, optionally advertising a stage key for out-of-band control
// routing.
type Transform interface {
	Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error)
	SyncRuntimeControl(ctx *model.PipelineContext) error
	Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error)
	StageKey() string // "" means not independently addressable
	ApplyControl(control Control, ctx *model.PipelineContext) bool
	Flush(ctx *model.PipelineContext) error
	Stop(ctx *model.PipelineContext) error
}

// Sink is the tail of the pipeline; the concrete shared-device
// implementation lives in internal/sink, this is the narrow contract the
// runner depends on so it can be substituted in tests.
type Sink interface {
	Prepare(spec model.StreamSpec, ctx *model.PipelineContext) error
	SyncRuntimeControl(ctx *model.PipelineContext) error
	Write(block model.AudioBlock, ctx *model.PipelineContext) (accepted bool, err error)
	Flush(ctx *model.PipelineContext) error
	Stop(ctx *model.PipelineContext) error
}

// ReusableSink is a Sink that can report whether it is already open
// against a given spec, so a §4.D Reuse-mode activation can keep the
// device stream open across a gapless track switch instead of always
// rebuilding it. Sinks that don't implement it are always treated as
// needing a fresh Prepare.
type ReusableSink interface {
	Sink
	Ready(spec model.StreamSpec) bool
}
