/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sink implements the §4.B shared-device sink: a ring-buffered
// producer/consumer bridge from the pipeline thread to an OS audio device
// callback, including reconfiguration and metrics.
//
// Grounded on gstreamer.go's ProcessState machine and mutex-guarded
// telemetry snapshot pattern; the device callback itself is represented by
// a DeviceStream interface so this package stays free of any particular OS
// audio API, matching §1's "OS-specific device enumeration details" being
// out of scope.
package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/ring"
)

// State mirrors §4.B's state machine:
// Unprepared -> Prepared -> Streaming -> (Reconfiguring -> Streaming)* -> Unprepared.
type State int

const (
	Unprepared State = iota
	Prepared
	Streaming
	Reconfiguring
)

func (s State) String() string {
	switch s {
	case Unprepared:
		return "unprepared"
	case Prepared:
		return "prepared"
	case Streaming:
		return "streaming"
	case Reconfiguring:
		return "reconfiguring"
	default:
		return "unknown"
	}
}

// SampleFormat is a device sample format the callback converts into.
type SampleFormat int

const (
	FormatF32 SampleFormat = iota
	FormatI16
	FormatI32
	FormatU16
)

// DeviceStream is the narrow contract a real OS audio backend must
// satisfy. Open/Close model a real device stream's lifecycle; the sink
// owns the consumer end of the ring and feeds it through FillCallback from
// whatever thread the backend calls back on.
type DeviceStream interface {
	Open(spec model.StreamSpec, format SampleFormat) error
	Close() error
}

// WriteDeadline and FlushDeadline are the §4.B fixed timing constants.
const (
	WriteDeadline = 30 * time.Millisecond
	FlushDeadline = 350 * time.Millisecond
)

// Metrics counts the §8 sink invariants.
type Metrics struct {
	WrittenSamples     uint64
	DroppedSamples     uint64
	UnderrunCallbacks  uint64
	ReconfigureAttempt uint64
	ReconfigureSuccess uint64
}

// Sink is the shared-device sink implementation.
type Sink struct {
	logger zerolog.Logger

	mu            sync.Mutex
	state         State
	spec          model.StreamSpec
	format        SampleFormat
	desiredDevice string
	appliedDevice string
	desiredRev    uint64
	appliedRev    uint64
	lastCallbackErr error

	stream DeviceStream
	buf    *ring.Buffer

	metrics Metrics
}

// New constructs an unprepared sink bound to a DeviceStream implementation
// (a fake in tests, a real backend in production).
func New(logger zerolog.Logger, stream DeviceStream) *Sink {
	return &Sink{logger: logger.With().Str("component", "sink").Logger(), stream: stream, state: Unprepared}
}

// Prepare opens the device matching spec. Per §4.B it is the pipeline's
// job to insert a mixer/resampler if the device's actual format differs.
// This method fails with StageFailure only when the backend's Open fails:
// DeviceStream does not report the device's own spec, so no comparison
// against spec is made.
func (s *Sink) Prepare(spec model.StreamSpec, format SampleFormat, ringMillis int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stream.Open(spec, format); err != nil {
		return engineerr.Wrap(engineerr.StageFailure, "open device stream", err)
	}

	s.spec = spec
	s.format = format
	s.buf = ring.New(ring.Capacity(spec.SampleRate, spec.Channels, ringMillis))
	s.state = Prepared
	s.appliedRev = s.desiredRev
	return nil
}

// SetDesiredDevice writes the desired device id under the sink's mutex and
// bumps desired_revision, per §4.B reconfiguration algorithm. The pipeline
// thread observes the mismatch on the next SyncRuntimeControl.
func (s *Sink) SetDesiredDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desiredDevice = deviceID
	s.desiredRev++
}

// NoteCallbackError records a fatal stream error observed by the device
// callback into a sticky slot, consumed by the next SyncRuntimeControl.
func (s *Sink) NoteCallbackError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCallbackErr = err
}

// SyncRuntimeControl rebuilds the stream if a reconfigure is pending
// (desired != applied) or a sticky callback error is set, aggregating both
// into the returned failure.
func (s *Sink) SyncRuntimeControl(ctx *model.PipelineContext) error {
	s.mu.Lock()
	needsRebuild := s.desiredRev != s.appliedRev
	cbErr := s.lastCallbackErr
	s.lastCallbackErr = nil
	s.mu.Unlock()

	if !needsRebuild && cbErr == nil {
		return nil
	}

	atomic.AddUint64(&s.metrics.ReconfigureAttempt, 1)
	s.mu.Lock()
	s.state = Reconfiguring
	spec, format, device := s.spec, s.format, s.desiredDevice
	s.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing stream during reconfigure")
	}
	if err := s.stream.Open(spec, format); err != nil {
		if cbErr != nil {
			return engineerr.Wrap(engineerr.SinkDisconnected, "rebuild after callback error and device change", err)
		}
		return engineerr.Wrap(engineerr.StageFailure, "rebuild stream", err)
	}

	s.mu.Lock()
	s.appliedDevice = device
	s.appliedRev = s.desiredRev
	s.state = Streaming
	s.mu.Unlock()
	atomic.AddUint64(&s.metrics.ReconfigureSuccess, 1)

	if cbErr != nil {
		return engineerr.Wrap(engineerr.SinkDisconnected, "device callback reported a fatal error", cbErr)
	}
	return nil
}

// Write attempts to push the whole block into the ring, retrying within a
// fixed per-write deadline; partial writes increment dropped_samples. It
// never blocks indefinitely.
func (s *Sink) Write(block model.AudioBlock, ctx *model.PipelineContext) (bool, error) {
	s.mu.Lock()
	if s.state == Unprepared {
		s.mu.Unlock()
		return false, engineerr.New(engineerr.NotPrepared, "sink not prepared")
	}
	s.state = Streaming
	buf := s.buf
	s.mu.Unlock()

	deadline := time.Now().Add(WriteDeadline)
	remaining := block.Samples
	for len(remaining) > 0 {
		n := buf.PushSlice(remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return true, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if len(remaining) > 0 {
		atomic.AddUint64(&s.metrics.DroppedSamples, uint64(len(remaining)))
		return false, nil
	}
	return true, nil
}

// Flush waits until the ring drains or the flush deadline elapses.
func (s *Sink) Flush(ctx *model.PipelineContext) error {
	s.mu.Lock()
	buf := s.buf
	cbErr := s.lastCallbackErr
	s.mu.Unlock()
	if buf == nil {
		return nil
	}

	deadline := time.Now().Add(FlushDeadline)
	for buf.OccupiedLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if cbErr != nil {
		return engineerr.Wrap(engineerr.Io, "last callback error during flush", cbErr)
	}
	return nil
}

// Stop drops the producer and the stream.
func (s *Sink) Stop(ctx *model.PipelineContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unprepared {
		return nil
	}
	err := s.stream.Close()
	s.buf = nil
	s.state = Unprepared
	if err != nil {
		return engineerr.Wrap(engineerr.Io, "close device stream", err)
	}
	return nil
}

// DeviceCallback fills dst with up to len(dst) samples popped from the
// ring; shortfall is zero-filled and counted as one underrun. It performs
// the §6.4 sample-format conversion. The callback must not allocate, lock
// beyond the ring's own short critical section, or call back into the
// runner (§5).
//
// WrittenSamples counts samples actually delivered to the device here, on
// the drain side, not on push: a sample pushed into the ring but not yet
// popped is still accounted for by OccupiedLen, so the §8 conservation
// invariant (written + dropped + still_in_ring == frames_accepted ×
// channels) only holds if the push side leaves it uncounted.
func (s *Sink) DeviceCallback(dst []float32) {
	n := s.buf.PopSlice(dst)
	if n > 0 {
		atomic.AddUint64(&s.metrics.WrittenSamples, uint64(n))
	}
	if n < len(dst) {
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
		atomic.AddUint64(&s.metrics.UnderrunCallbacks, 1)
	}
}

// ConvertSample applies §4.B/§6.4's clamped linear scaling from internal
// f32 to a device sample format.
func ConvertSample(v float32, format SampleFormat) any {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	switch format {
	case FormatI16:
		return int16(v * 32767)
	case FormatI32:
		return int32(v * 2147483647)
	case FormatU16:
		return uint16((v + 1) / 2 * 65535)
	default:
		return v
	}
}

// MetricsSnapshot returns a snapshot of the sink's counters.
func (s *Sink) MetricsSnapshot() Metrics {
	return Metrics{
		WrittenSamples:     atomic.LoadUint64(&s.metrics.WrittenSamples),
		DroppedSamples:     atomic.LoadUint64(&s.metrics.DroppedSamples),
		UnderrunCallbacks:  atomic.LoadUint64(&s.metrics.UnderrunCallbacks),
		ReconfigureAttempt: atomic.LoadUint64(&s.metrics.ReconfigureAttempt),
		ReconfigureSuccess: atomic.LoadUint64(&s.metrics.ReconfigureSuccess),
	}
}

// State returns the sink's current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the sink is already open (Prepared or Streaming)
// against spec, so a Reuse-mode ActivateSink can skip reopening the
// device across a gapless track switch (§4.D "Reuse": "if the session
// already holds a sink whose route fingerprint and output spec match,
// keep it"). The device/route half of that fingerprint is implicit here:
// the session hands every runner the same *Sink instance, so the only
// thing that can still differ between tracks is the output spec.
func (s *Sink) Ready(spec model.StreamSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != Unprepared && s.spec == spec
}

// StageAdapter narrows *Sink to the runner's stage.Sink contract (§4.C),
// fixing the device sample format and ring size chosen by the session
// manager at construction time so Prepare can match stage.Sink's
// Prepare(spec, ctx) signature.
type StageAdapter struct {
	sink       *Sink
	format     SampleFormat
	ringMillis int
}

// AsStage wraps the sink for use as a runner.stage.Sink with a fixed
// device format and ring size.
func (s *Sink) AsStage(format SampleFormat, ringMillis int) *StageAdapter {
	if ringMillis <= 0 {
		ringMillis = ring.RingMillis
	}
	return &StageAdapter{sink: s, format: format, ringMillis: ringMillis}
}

func (a *StageAdapter) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) error {
	return a.sink.Prepare(spec, a.format, a.ringMillis)
}

func (a *StageAdapter) SyncRuntimeControl(ctx *model.PipelineContext) error {
	return a.sink.SyncRuntimeControl(ctx)
}

func (a *StageAdapter) Write(block model.AudioBlock, ctx *model.PipelineContext) (bool, error) {
	return a.sink.Write(block, ctx)
}

func (a *StageAdapter) Flush(ctx *model.PipelineContext) error { return a.sink.Flush(ctx) }
func (a *StageAdapter) Stop(ctx *model.PipelineContext) error  { return a.sink.Stop(ctx) }

// Ready implements stage.ReusableSink by delegating to the underlying
// sink's open/spec check.
func (a *StageAdapter) Ready(spec model.StreamSpec) bool { return a.sink.Ready(spec) }

// Sink returns the underlying sink, e.g. for metrics reporting or
// route-fingerprint comparison by the session manager.
func (a *StageAdapter) Sink() *Sink { return a.sink }
