/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runner implements the §4.D pipeline runner: stage preparation,
// the step loop, drain/flush, stop/pause/seek, and control routing by
// stage key.
//
// Grounded on pipeline.go's Pipeline/Play/Stop/Fade method shape,
// generalized from driving a gst-launch-1.0 subprocess string to directly
// stepping an in-process Source -> Decoder -> Transform chain -> Sink.
package runner

import (
	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/stage"
)

// StepResult is the step loop's per-iteration outcome.
type StepResult int

const (
	StepProgressed StepResult = iota
	StepIdle
	StepEof
)

// SinkActivation selects Fresh (always rebuild) or Reuse (keep the
// session's existing sink when its route fingerprint and output spec
// match), per §4.D.
type SinkActivation int

const (
	Fresh SinkActivation = iota
	Reuse
)

const drainPumpIterations = 32

// Runner owns one track's Source/Decoder/Transform chain/Sink for its
// entire lifetime. prepare_decode is single-shot; stop is idempotent.
type Runner struct {
	source  stage.Source
	decoder stage.Decoder
	chain   []stage.Transform
	sink    stage.Sink

	ctx model.PipelineContext

	prepared     bool
	stopped      bool
	outputSpec   model.StreamSpec
	pendingBlock *model.AudioBlock

	deferredControls map[string]stage.Control
}

// New constructs a runner over the given stages, built via
// stage.BuildChain by the caller (the session manager).
func New(source stage.Source, decoder stage.Decoder, chain []stage.Transform, sink stage.Sink) *Runner {
	return &Runner{
		source:           source,
		decoder:          decoder,
		chain:            chain,
		sink:             sink,
		deferredControls: make(map[string]stage.Control),
	}
}

// PrepareDecode runs the single-shot prepare sequence: source.prepare,
// decoder.prepare, then each transform threaded left to right. The final
// transform's spec is retained as the runner's output spec.
func (r *Runner) PrepareDecode(inputSpec model.StreamSpec) error {
	if r.prepared {
		return engineerr.New(engineerr.Internal, "prepare_decode is single-shot per runner")
	}

	handle, err := r.source.Prepare(&r.ctx)
	if err != nil {
		return engineerr.Wrap(engineerr.StageFailure, "source prepare", err)
	}

	spec, err := r.decoder.Prepare(handle, &r.ctx)
	if err != nil {
		return engineerr.Wrap(engineerr.StageFailure, "decoder prepare", err)
	}
	if !spec.Valid() {
		return engineerr.New(engineerr.StageFailure, "decoder produced an invalid stream spec")
	}

	for _, t := range r.chain {
		spec, err = t.Prepare(spec, &r.ctx)
		if err != nil {
			return engineerr.Wrap(engineerr.StageFailure, "transform prepare", err)
		}
		if !spec.Valid() {
			return engineerr.New(engineerr.StageFailure, "transform produced an invalid stream spec")
		}
	}

	r.outputSpec = spec
	r.prepared = true

	// Replay any controls buffered before a runner existed, per §4.E's
	// deferred-control replay on every subsequent prepare.
	for key, control := range r.deferredControls {
		r.ApplyTransformControlTo(key, control)
	}
	return nil
}

// ActivateSink prepares the sink against the runner's output spec. In
// Reuse mode, a sink that reports itself already open (ReusableSink.Ready)
// against that exact spec is left streaming rather than re-Prepared, so a
// gapless track switch never closes the device (§4.D, §4.J).
func (r *Runner) ActivateSink(mode SinkActivation) error {
	if !r.prepared {
		return engineerr.New(engineerr.NotPrepared, "activate_sink called before prepare_decode")
	}
	if mode == Reuse {
		if rs, ok := r.sink.(stage.ReusableSink); ok && rs.Ready(r.outputSpec) {
			return nil
		}
	}
	if err := r.sink.Prepare(r.outputSpec, &r.ctx); err != nil {
		return err
	}
	return nil
}

// OutputSpec returns the spec retained after PrepareDecode.
func (r *Runner) OutputSpec() model.StreamSpec { return r.outputSpec }

// Position returns the runner's current position in milliseconds.
func (r *Runner) Position() int64 { return r.ctx.PositionMs }

// RequestSeek latches a seek to be applied at the top of the next step.
func (r *Runner) RequestSeek(ms int64) { r.ctx.LatchSeek(ms) }

// PlayableRemainingFramesHint implements §4.D's near-EOF fade input:
// (decoder.remaining - gapless_tail_frames) * output_rate / decoder_rate,
// scaled into output-domain frames.
func (r *Runner) PlayableRemainingFramesHint(decoderRate uint32) uint64 {
	remaining := r.decoder.EstimatedRemainingFrames()
	tail := r.decoder.CurrentGaplessTrimSpec().TailFrames
	if remaining <= tail {
		return 0
	}
	usable := remaining - tail
	if decoderRate == 0 || r.outputSpec.SampleRate == 0 {
		return usable
	}
	return usable * uint64(r.outputSpec.SampleRate) / uint64(decoderRate)
}

// Step runs one iteration of the §4.D step loop.
func (r *Runner) Step() (StepResult, error) {
	if !r.prepared {
		return StepIdle, engineerr.New(engineerr.NotPrepared, "step called before prepare_decode")
	}

	if err := r.source.SyncRuntimeControl(&r.ctx); err != nil {
		return StepIdle, err
	}
	if err := r.decoder.SyncRuntimeControl(&r.ctx); err != nil {
		return StepIdle, err
	}
	for _, t := range r.chain {
		if err := t.SyncRuntimeControl(&r.ctx); err != nil {
			return StepIdle, err
		}
	}
	if err := r.sink.SyncRuntimeControl(&r.ctx); err != nil {
		if !engineerr.Is(err, engineerr.SinkDisconnected) {
			return StepIdle, err
		}
		// SinkDisconnected was already handled (stream rebuilt) by
		// SyncRuntimeControl. It is not returned to the caller and no
		// Error event is raised for it; stepping continues.
	}

	if ms, ok := r.ctx.ConsumeSeek(); ok {
		r.ctx.PositionMs = ms
	}

	if r.pendingBlock != nil {
		accepted, err := r.sink.Write(*r.pendingBlock, &r.ctx)
		if err != nil {
			return StepIdle, engineerr.Wrap(engineerr.StageFailure, "sink write", err)
		}
		if !accepted {
			return StepIdle, nil
		}
		frames := uint64(r.pendingBlock.Frames())
		r.pendingBlock = nil
		r.ctx.AdvancePosition(frames, r.outputSpec.SampleRate)
		return StepProgressed, nil
	}

	block := model.AudioBlock{}
	status, err := r.decoder.NextBlock(&block, &r.ctx)
	if err != nil {
		return StepIdle, engineerr.Wrap(engineerr.StageFailure, "decoder next_block", err)
	}
	if status == stage.Eof {
		return StepEof, nil
	}
	if block.Frames() == 0 {
		return StepIdle, nil
	}

	for _, t := range r.chain {
		status, err = t.Process(&block, &r.ctx)
		if err != nil {
			return StepIdle, engineerr.Wrap(engineerr.StageFailure, "transform process", err)
		}
		if status == stage.Eof {
			return StepEof, nil
		}
		if block.Frames() == 0 {
			return StepIdle, nil
		}
	}

	accepted, err := r.sink.Write(block, &r.ctx)
	if err != nil {
		return StepIdle, engineerr.Wrap(engineerr.StageFailure, "sink write", err)
	}
	if !accepted {
		r.pendingBlock = &block
		return StepIdle, nil
	}

	r.ctx.AdvancePosition(uint64(block.Frames()), r.outputSpec.SampleRate)
	return StepProgressed, nil
}

// Drain implements §4.D's drain sequence for pause/stop-with-drain: flush
// the decoder and every transform, then pump a bounded number of empty
// blocks through the chain to extract tails, finally draining the sink.
func (r *Runner) Drain() error {
	if err := r.decoder.Flush(&r.ctx); err != nil {
		return err
	}
	for _, t := range r.chain {
		if err := t.Flush(&r.ctx); err != nil {
			return err
		}
	}

	for i := 0; i < drainPumpIterations; i++ {
		block := model.AudioBlock{}
		for _, t := range r.chain {
			if _, err := t.Process(&block, &r.ctx); err != nil {
				return err
			}
		}
		if block.Frames() == 0 {
			continue
		}
		if _, err := r.sink.Write(block, &r.ctx); err != nil {
			return err
		}
	}

	return r.sink.Flush(&r.ctx)
}

// DrainSinkForReuse passes the sink's producer-side ownership cleanly to
// the next runner (Reuse activation mode, §4.D).
func (r *Runner) DrainSinkForReuse() stage.Sink {
	sink := r.sink
	r.sink = nil
	return sink
}

// ApplyTransformControlTo resolves a stage by key and applies the control,
// returning true iff a stage handled it. If the runner is not yet
// prepared, the control is buffered and replayed on the next prepare
// (§4.E).
func (r *Runner) ApplyTransformControlTo(stageKey string, control stage.Control) bool {
	if !r.prepared {
		r.deferredControls[stageKey] = control
		return false
	}
	t, ok := stage.FindByKey(r.chain, stageKey)
	if !ok {
		return false
	}
	return t.ApplyControl(control, &r.ctx)
}

// Stop tears the runner down. Idempotent.
func (r *Runner) Stop() error {
	if r.stopped {
		return nil
	}
	r.stopped = true

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	note(r.decoder.Stop(&r.ctx))
	for _, t := range r.chain {
		note(t.Stop(&r.ctx))
	}
	note(r.source.Stop(&r.ctx))
	if r.sink != nil {
		note(r.sink.Stop(&r.ctx))
	}
	return firstErr
}
