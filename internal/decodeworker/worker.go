/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package decodeworker implements the §4.E decode worker: one dedicated
// goroutine per engine that owns the runner and serves commands over a
// bounded channel in FIFO order, emitting Position/StateChanged/
// TrackChanged/Error/Log events via the event hub.
//
// Grounded on service.go's per-station command handling combined with
// supervisor.go's ticker + context + WaitGroup loop shape.
package decodeworker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/eventhub"
	"github.com/friendsincode/audioengine/internal/fade"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/runner"
	"github.com/friendsincode/audioengine/internal/stage"
)

// StopBehavior selects how Pause/Stop tears playback down.
type StopBehavior int

const (
	Immediate StopBehavior = iota
	DrainSink
)

// Policy carries the runtime policy fields the worker forwards to the
// pipeline builder on the next prepare (§4.E: "policy takes effect on next
// prepare").
type Policy struct {
	MasterGain      float64
	LfeMode         stage.LfeMode
	ResampleQuality stage.ResampleQuality
	DspChain        []stage.Transform
	OutputSinkRoute string

	// GaplessPlayback mirrors SetOutputOptions.gapless_playback (§6.2).
	// When set, Open attempts to carry the device sink across the track
	// switch (§4.D "Reuse") instead of always rebuilding it.
	GaplessPlayback bool
}

// Builder constructs a fully-wired runner for a track, applying the given
// policy. Implemented by the session manager; kept as an interface here so
// decodeworker never imports session (avoiding an import cycle, since
// session owns the worker).
type Builder interface {
	BuildRunner(track model.TrackRef, policy Policy) (*runner.Runner, error)
}

type openCmd struct {
	track        model.TrackRef
	startPlaying bool
}
type playCmd struct{}
type pauseCmd struct{ behavior StopBehavior }
type stopCmd struct{ behavior StopBehavior }
type seekCmd struct{ ms int64 }
type setMasterGainCmd struct{ level float64 }
type setLfeModeCmd struct{ mode stage.LfeMode }
type setResampleQualityCmd struct{ quality stage.ResampleQuality }
type setDspChainCmd struct{ chain []stage.Transform }
type setGaplessPlaybackCmd struct{ enabled bool }
type applyStageControlCmd struct {
	stageKey string
	control  stage.Control
}
type shutdownCmd struct{ done chan struct{} }

// Worker is the decode worker: all pipeline state mutation happens on its
// goroutine only.
type Worker struct {
	logger  zerolog.Logger
	builder Builder
	hub     *eventhub.Hub

	cmdCh chan any

	state   atomic.Int32 // model.PlayerState, read cross-goroutine via State()
	runner  *runner.Runner
	policy  Policy
	current model.TrackRef

	// deferredControls holds the latest ApplyStageControl per stage key,
	// whether or not a runner existed when it arrived. Per §4.E, it is
	// replayed into every freshly built runner's prepare so a late Open
	// still observes controls that arrived before it.
	deferredControls map[string]stage.Control

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a stopped worker bound to the given pipeline builder and
// event hub.
func New(logger zerolog.Logger, builder Builder, hub *eventhub.Hub) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		logger:           logger.With().Str("component", "decode_worker").Logger(),
		builder:          builder,
		hub:              hub,
		cmdCh:            make(chan any, 32),
		policy:           Policy{MasterGain: 1.0},
		deferredControls: make(map[string]stage.Control),
		ctx:              ctx,
		cancel:           cancel,
	}
	w.state.Store(int32(model.Stopped))
	return w
}

// Start launches the worker's cooperative command loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

const tickInterval = 10 * time.Millisecond

func (w *Worker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case cmd := <-w.cmdCh:
			w.handle(cmd)
			if _, ok := cmd.(shutdownCmd); ok {
				return
			}
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	if model.PlayerState(w.state.Load()) != model.Playing || w.runner == nil {
		return
	}
	res, err := w.runner.Step()
	if err != nil {
		w.emitError(err)
		if engineerr.Is(err, engineerr.StageFailure) {
			w.transitionTo(model.Stopped)
		}
		return
	}
	switch res {
	case runner.StepProgressed:
		w.hub.Emit(eventhub.Event{Kind: eventhub.Position, Payload: w.runner.Position()})
	case runner.StepEof:
		w.transitionTo(model.Stopped)
		w.hub.Emit(eventhub.Event{Kind: eventhub.TrackChanged, Payload: model.TrackRef{}})
	}
}

func (w *Worker) handle(cmd any) {
	switch c := cmd.(type) {
	case openCmd:
		w.handleOpen(c)
	case playCmd:
		w.handlePlay()
	case pauseCmd:
		w.handleFadeThenBehavior(c.behavior, model.Paused)
	case stopCmd:
		w.handleFadeThenBehavior(c.behavior, model.Stopped)
	case seekCmd:
		w.handleSeek(c.ms)
	case setMasterGainCmd:
		w.policy.MasterGain = c.level
		if w.runner != nil {
			w.runner.ApplyTransformControlTo("master_gain", stage.Control{Name: "master_gain", Payload: c.level})
		}
	case setLfeModeCmd:
		w.policy.LfeMode = c.mode
	case setResampleQualityCmd:
		w.policy.ResampleQuality = c.quality
	case setDspChainCmd:
		w.policy.DspChain = c.chain
	case setGaplessPlaybackCmd:
		w.policy.GaplessPlayback = c.enabled
	case applyStageControlCmd:
		// Always keep the latest control per stage key in the deferred
		// slot so it survives into the next runner too (§4.E: "on every
		// subsequent prepare, replay deferred controls").
		w.deferredControls[c.stageKey] = c.control
		if w.runner == nil {
			w.logger.Debug().Str("stage_key", c.stageKey).Msg("buffering control, no runner yet")
		} else {
			w.runner.ApplyTransformControlTo(c.stageKey, c.control)
		}
	case shutdownCmd:
		w.handleShutdown()
		close(c.done)
	}
}

func (w *Worker) handleOpen(c openCmd) {
	// Gapless reuse (§4.D, §4.E "activate sink (Reuse when gapless is
	// enabled and specs match)"): sever the outgoing runner's sink
	// reference *before* Stop so Stop doesn't close the device out from
	// under the incoming runner, which is built against the session's
	// same persistent sink. ActivateSink(Reuse) still falls back to a
	// full Prepare if the new output spec doesn't match what's already
	// streaming.
	reuseSink := w.policy.GaplessPlayback
	if w.runner != nil {
		w.fadeOutIfPlaying()
		if reuseSink {
			w.runner.DrainSinkForReuse()
		}
		if err := w.runner.Stop(); err != nil {
			w.logger.Warn().Err(err).Msg("error stopping previous runner")
		}
	}

	r, err := w.builder.BuildRunner(c.track, w.policy)
	if err != nil {
		w.emitError(err)
		w.transitionTo(model.Stopped)
		return
	}
	if err := r.PrepareDecode(model.StreamSpec{}); err != nil {
		w.emitError(err)
		w.transitionTo(model.Stopped)
		return
	}
	// Replay every deferred control into the freshly prepared runner so
	// controls that arrived before this (or any prior) Open still take
	// effect, per §4.E.
	for key, control := range w.deferredControls {
		r.ApplyTransformControlTo(key, control)
	}
	activation := runner.Fresh
	if reuseSink {
		activation = runner.Reuse
	}
	if err := r.ActivateSink(activation); err != nil {
		w.emitError(err)
		w.transitionTo(model.Stopped)
		return
	}

	w.runner = r
	w.current = c.track
	w.hub.Emit(eventhub.Event{Kind: eventhub.TrackChanged, Payload: c.track})

	if c.startPlaying {
		w.transitionTo(model.Playing)
	} else {
		w.transitionTo(model.Paused)
	}
}

func (w *Worker) handlePlay() {
	if w.runner == nil {
		return
	}
	w.transitionTo(model.Playing)
}

func (w *Worker) handleFadeThenBehavior(behavior StopBehavior, target model.PlayerState) {
	if w.runner == nil {
		w.transitionTo(target)
		return
	}
	w.fadeOutIfPlaying()
	if behavior == DrainSink {
		if err := w.runner.Drain(); err != nil {
			w.logger.Warn().Err(err).Msg("drain error")
		}
	}
	w.transitionTo(target)
}

func (w *Worker) handleSeek(ms int64) {
	if w.runner == nil {
		return
	}
	w.fadeOutIfPlaying()
	w.runner.RequestSeek(ms)
	w.fadeIn()
}

// fadeOutIfPlaying posts the §4.D near-EOF-safe TransitionGain request
// before any seek/pause/stop/switch, using playable_remaining_frames_hint
// so the fade always completes within the track's remaining audio.
func (w *Worker) fadeOutIfPlaying() {
	if w.runner == nil {
		return
	}
	hint := w.runner.PlayableRemainingFramesHint(w.runner.OutputSpec().SampleRate)
	w.runner.ApplyTransformControlTo("transition_gain", stage.Control{
		Name: "transition_gain",
		Payload: stage.TransitionGainControl{
			TargetGain:          0,
			Curve:               fade.Linear,
			TimePolicy:          fade.FitToAvailable,
			AvailableFramesHint: hint,
		},
	})
}

func (w *Worker) fadeIn() {
	if w.runner == nil {
		return
	}
	w.runner.ApplyTransformControlTo("transition_gain", stage.Control{
		Name: "transition_gain",
		Payload: stage.TransitionGainControl{
			TargetGain:          1.0,
			Curve:               fade.Linear,
			TimePolicy:          fade.FixedDuration,
			FixedDurationFrames: uint64(w.runner.OutputSpec().SampleRate) / 5,
		},
	})
}

func (w *Worker) handleShutdown() {
	if w.runner != nil {
		w.fadeOutIfPlaying()
		w.runner.Stop()
		w.runner = nil
	}
	w.transitionTo(model.Stopped)
}

// transitionTo emits at most one StateChanged event per actual state
// change (§8 idempotence property).
func (w *Worker) transitionTo(next model.PlayerState) {
	if model.PlayerState(w.state.Load()) == next {
		return
	}
	w.state.Store(int32(next))
	w.hub.Emit(eventhub.Event{Kind: eventhub.StateChanged, Payload: next})
}

func (w *Worker) emitError(err error) {
	w.hub.Emit(eventhub.Event{Kind: eventhub.Error, Payload: err})
	w.hub.Emit(eventhub.Event{Kind: eventhub.Log, Payload: err.Error()})
}

// --- public command-submission API, all FIFO via the single cmdCh ---

func (w *Worker) Open(track model.TrackRef, startPlaying bool) {
	w.cmdCh <- openCmd{track: track, startPlaying: startPlaying}
}
func (w *Worker) Play()                  { w.cmdCh <- playCmd{} }
func (w *Worker) Pause(b StopBehavior)   { w.cmdCh <- pauseCmd{behavior: b} }
func (w *Worker) Stop(b StopBehavior)    { w.cmdCh <- stopCmd{behavior: b} }
func (w *Worker) Seek(ms int64)          { w.cmdCh <- seekCmd{ms: ms} }
func (w *Worker) SetMasterGain(v float64) {
	w.cmdCh <- setMasterGainCmd{level: v}
}
func (w *Worker) SetLfeMode(m stage.LfeMode) { w.cmdCh <- setLfeModeCmd{mode: m} }
func (w *Worker) SetResampleQuality(q stage.ResampleQuality) {
	w.cmdCh <- setResampleQualityCmd{quality: q}
}
func (w *Worker) SetDspChain(chain []stage.Transform) { w.cmdCh <- setDspChainCmd{chain: chain} }
func (w *Worker) SetGaplessPlayback(enabled bool) {
	w.cmdCh <- setGaplessPlaybackCmd{enabled: enabled}
}
func (w *Worker) ApplyStageControl(stageKey string, control stage.Control) {
	w.cmdCh <- applyStageControlCmd{stageKey: stageKey, control: control}
}

// Shutdown deactivates the worker and blocks until its loop exits.
func (w *Worker) Shutdown() {
	done := make(chan struct{})
	w.cmdCh <- shutdownCmd{done: done}
	<-done
	w.cancel()
	w.wg.Wait()
}

// State returns the worker's current player state.
func (w *Worker) State() model.PlayerState { return model.PlayerState(w.state.Load()) }
