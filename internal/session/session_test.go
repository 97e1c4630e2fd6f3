/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/decodeworker"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/plugin"
	"github.com/friendsincode/audioengine/internal/registry"
	"github.com/friendsincode/audioengine/internal/runner"
	"github.com/friendsincode/audioengine/internal/sink"
	"github.com/friendsincode/audioengine/internal/stage"
)

// fakeDecoder emits a fixed number of silent blocks before reporting EOF.
type fakeDecoder struct {
	blocksLeft int
	spec       model.StreamSpec
}

func (d *fakeDecoder) Prepare(handle model.SourceHandle, ctx *model.PipelineContext) (model.StreamSpec, error) {
	d.spec = model.StreamSpec{SampleRate: 44100, Channels: 2}
	return d.spec, nil
}
func (d *fakeDecoder) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }
func (d *fakeDecoder) NextBlock(out *model.AudioBlock, ctx *model.PipelineContext) (stage.Status, error) {
	if d.blocksLeft <= 0 {
		return stage.Eof, nil
	}
	d.blocksLeft--
	out.Channels = d.spec.Channels
	out.Samples = make([]float32, 64*int(d.spec.Channels))
	return stage.Ok, nil
}
func (d *fakeDecoder) CurrentGaplessTrimSpec() model.GaplessTrimSpec { return model.GaplessTrimSpec{} }
func (d *fakeDecoder) EstimatedRemainingFrames() uint64              { return uint64(d.blocksLeft * 64) }
func (d *fakeDecoder) Flush(ctx *model.PipelineContext) error        { return nil }
func (d *fakeDecoder) Stop(ctx *model.PipelineContext) error         { return nil }

type fakeFactory struct{}

func (fakeFactory) NewInstance(meta model.PluginMetadata, desc model.CapabilityDescriptor, config []byte) (any, error) {
	return &fakeDecoder{blocksLeft: 3}, nil
}

func newTestSession(t *testing.T) (*Session, func()) {
	t.Helper()
	logger := zerolog.Nop()
	reg := registry.New()
	plugins := plugin.New(logger, reg)

	manifest := plugin.Manifest{
		ID:         "test.decoder",
		Name:       "Test Decoder",
		APIVersion: "1",
		Version:    "1.0.0",
		Capabilities: []plugin.ManifestCapability{
			{Kind: "decoder", TypeID: "wav", DecoderExtScores: map[string]int{"wav": 100}},
		},
	}
	if _, err := plugins.Activate(manifest, fakeFactory{}); err != nil {
		t.Fatalf("activate plugin: %v", err)
	}

	s := New(logger, Config{DeviceFormat: sink.FormatF32, RingMillis: 200}, reg, plugins, nil, nil, sink.NullDevice{})
	return s, func() {}
}

func TestBuildRunnerResolvesLocalTrackAndDecoder(t *testing.T) {
	s, cleanup := newTestSession(t)
	defer cleanup()

	f, err := os.CreateTemp(t.TempDir(), "track-*.wav")
	if err != nil {
		t.Fatalf("create temp track: %v", err)
	}
	f.Close()

	r, err := s.BuildRunner(model.TrackRef{LocalPath: f.Name()}, decodeworker.Policy{MasterGain: 1.0})
	if err != nil {
		t.Fatalf("build runner: %v", err)
	}
	if err := r.PrepareDecode(model.StreamSpec{}); err != nil {
		t.Fatalf("prepare decode: %v", err)
	}
	if err := r.ActivateSink(runner.Fresh); err != nil {
		t.Fatalf("activate sink: %v", err)
	}

	progressed := false
	for i := 0; i < 10; i++ {
		res, err := r.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if res == runner.StepProgressed {
			progressed = true
		}
		if res == runner.StepEof {
			break
		}
	}
	if !progressed {
		t.Fatal("expected at least one progressed step")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestBuildRunnerFailsWithoutDecoderCapability(t *testing.T) {
	logger := zerolog.Nop()
	reg := registry.New()
	plugins := plugin.New(logger, reg)
	s := New(logger, Config{}, reg, plugins, nil, nil, sink.NullDevice{})

	f, err := os.CreateTemp(t.TempDir(), "track-*.mp3")
	if err != nil {
		t.Fatalf("create temp track: %v", err)
	}
	f.Close()

	if _, err := s.BuildRunner(model.TrackRef{LocalPath: f.Name()}, decodeworker.Policy{}); err == nil {
		t.Fatal("expected build runner to fail with no decoder capability registered")
	}
}
