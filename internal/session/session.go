/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session implements the §4.J session manager: the decode
// worker's Builder collaborator. It resolves a TrackRef to a Source, picks
// a Decoder candidate through the capability registry, assembles the
// fixed-order transform chain, and owns the single device sink every
// built runner shares across track switches, persisting master gain and
// consulting the promoted preload cache along the way.
//
// Grounded on the teacher's service.go wiring a Pipeline from a Station's
// resolved mount/source configuration; generalized from "station ->
// GStreamer pipeline string" to "TrackRef -> Source/Decoder/chain/Sink".
package session

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/cache"
	"github.com/friendsincode/audioengine/internal/decodeworker"
	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/eventhub"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/plugin"
	"github.com/friendsincode/audioengine/internal/registry"
	"github.com/friendsincode/audioengine/internal/runner"
	"github.com/friendsincode/audioengine/internal/sink"
	"github.com/friendsincode/audioengine/internal/sources/localfile"
	"github.com/friendsincode/audioengine/internal/stage"
)

// Config configures the session's device sink. It has no decoder
// settings: decoders are chosen in the registry's candidate order.
type Config struct {
	DeviceFormat sink.SampleFormat
	RingMillis   int
}

// Session owns the decode worker, the single persistent device sink every
// built runner shares, and the promoted preload cache.
type Session struct {
	logger  zerolog.Logger
	cfg     Config
	reg     *registry.Registry
	plugins *plugin.Service
	hub     *eventhub.Hub
	cache   *cache.Cache

	deviceSink  *sink.Sink
	sinkAdapter *sink.StageAdapter

	mu         sync.Mutex
	masterGain *stage.GainStage // persists CurrentGain across runner rebuilds (§8 round-trip property)

	Worker *decodeworker.Worker
}

// New constructs a session over an already-started device stream. cache
// may be nil, in which case preload lookups are always misses.
func New(logger zerolog.Logger, cfg Config, reg *registry.Registry, plugins *plugin.Service, hub *eventhub.Hub, preload *cache.Cache, device sink.DeviceStream) *Session {
	logger = logger.With().Str("component", "session").Logger()
	if cfg.RingMillis <= 0 {
		cfg.RingMillis = 200
	}

	deviceSink := sink.New(logger, device)
	s := &Session{
		logger:      logger,
		cfg:         cfg,
		reg:         reg,
		plugins:     plugins,
		hub:         hub,
		cache:       preload,
		deviceSink:  deviceSink,
		sinkAdapter: deviceSink.AsStage(cfg.DeviceFormat, cfg.RingMillis),
		masterGain:  stage.NewMasterGain(1.0),
	}
	s.Worker = decodeworker.New(logger, s, hub)
	return s
}

// Start launches the decode worker's command loop.
func (s *Session) Start() { s.Worker.Start() }

// Shutdown stops the decode worker and releases the device sink.
func (s *Session) Shutdown() {
	s.Worker.Shutdown()
	ctx := &model.PipelineContext{}
	if err := s.deviceSink.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("error stopping device sink on shutdown")
	}
}

// BuildRunner implements decodeworker.Builder: resolve the track's Source
// and Decoder, assemble the transform chain from policy, and wire them to
// the session's persistent sink.
func (s *Session) BuildRunner(track model.TrackRef, policy decodeworker.Policy) (*runner.Runner, error) {
	src, err := s.resolveSource(track)
	if err != nil {
		return nil, err
	}

	dec, decInstance, err := s.resolveDecoder(track)
	if err != nil {
		if decInstance != nil {
			decInstance.Release()
		}
		_ = src.Stop(&model.PipelineContext{})
		return nil, err
	}

	s.mu.Lock()
	s.masterGain.ApplyControl(stage.Control{Name: "master_gain", Payload: policy.MasterGain}, nil)
	gain := s.masterGain
	s.mu.Unlock()

	chain, err := stage.BuildChain(stage.ChainSpec{
		TransitionGain: stage.NewTransitionGain(),
		UserTransforms: policy.DspChain,
		MasterGain:     gain,
	})
	if err != nil {
		if decInstance != nil {
			decInstance.Release()
		}
		_ = src.Stop(&model.PipelineContext{})
		return nil, err
	}

	r := runner.New(src, dec, chain, s.sinkAdapter)
	s.applyPreloadHint(track, dec)
	return r, nil
}

// resolveSource picks the built-in Source implementation for a TrackRef.
// Local paths use localfile.Source directly; a locator-addressed track is
// resolved through the plugin's advertised Source capability.
func (s *Session) resolveSource(track model.TrackRef) (stage.Source, error) {
	if track.IsLocal() {
		return localfile.New(track.LocalPath), nil
	}
	if track.Locator == nil {
		return nil, engineerr.New(engineerr.InvalidInput, "track ref has neither a local path nor a source locator")
	}

	instance, err := s.plugins.CreateInstance(track.Locator.PluginID, model.CapabilitySource, track.Locator.TypeID, track.Locator.Config)
	if err != nil {
		return nil, err
	}
	src, ok := instance.Value.(stage.Source)
	if !ok {
		instance.Release()
		return nil, engineerr.New(engineerr.Internal, "plugin source instance does not implement stage.Source")
	}
	return &releasingSource{Source: src, instance: instance}, nil
}

// resolveDecoder ranks decoder candidates by the track's extension (or the
// locator's type id when not local) and instantiates the highest-ranked
// one whose plugin accepts the lease.
func (s *Session) resolveDecoder(track model.TrackRef) (stage.Decoder, *plugin.Instance, error) {
	ext := decoderExt(track)
	candidates := s.reg.DecoderCandidates(ext)
	if len(candidates) == 0 {
		return nil, nil, engineerr.New(engineerr.NotFound, "no decoder capability registered for "+ext)
	}

	var lastErr error
	for _, c := range candidates {
		instance, err := s.plugins.CreateInstance(c.PluginID, model.CapabilityDecoder, c.TypeID, nil)
		if err != nil {
			lastErr = err
			continue
		}
		dec, ok := instance.Value.(stage.Decoder)
		if !ok {
			instance.Release()
			lastErr = engineerr.New(engineerr.Internal, "plugin decoder instance does not implement stage.Decoder")
			continue
		}
		return &releasingDecoder{Decoder: dec, instance: instance}, instance, nil
	}
	if lastErr == nil {
		lastErr = engineerr.New(engineerr.NotFound, "no decoder candidate accepted a lease")
	}
	return nil, nil, lastErr
}

func decoderExt(track model.TrackRef) string {
	if track.IsLocal() {
		return strings.TrimPrefix(filepath.Ext(track.LocalPath), ".")
	}
	if track.Locator != nil {
		return track.Locator.TypeID
	}
	return ""
}

// releasingSource wraps a plugin-created Source so Stop always releases
// the owning instance's generation pin, regardless of the source's own
// Stop outcome.
type releasingSource struct {
	stage.Source
	instance *plugin.Instance
}

func (r *releasingSource) Stop(ctx *model.PipelineContext) error {
	err := r.Source.Stop(ctx)
	r.instance.Release()
	return err
}

// releasingDecoder is the decoder-side counterpart of releasingSource.
type releasingDecoder struct {
	stage.Decoder
	instance *plugin.Instance
}

func (r *releasingDecoder) Stop(ctx *model.PipelineContext) error {
	err := r.Decoder.Stop(ctx)
	r.instance.Release()
	return err
}
