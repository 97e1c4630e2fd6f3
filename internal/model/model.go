/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package model holds the CORE data entities (§3.1) shared across the
// pipeline, plugin runtime, and control router packages.
package model

import (
	"encoding/json"
	"math"
)

// TrackRef is an opaque address for a playable resource: either a local
// filesystem path, or a structured token naming a plugin-backed source
// catalog entry.
type TrackRef struct {
	LocalPath string           `json:"local_path,omitempty"`
	SourceID  string           `json:"source_id,omitempty"`
	TrackID   string           `json:"track_id,omitempty"`
	Locator   *SourceLocator   `json:"locator,omitempty"`
}

// SourceLocator names the (plugin_id, type_id) source catalog that resolves
// a non-local TrackRef, plus its config/track payloads.
type SourceLocator struct {
	PluginID string          `json:"plugin_id"`
	TypeID   string          `json:"type_id"`
	Config   json.RawMessage `json:"config,omitempty"`
	Track    json.RawMessage `json:"track,omitempty"`
}

// IsLocal reports whether the ref addresses a local file.
func (t TrackRef) IsLocal() bool { return t.LocalPath != "" }

// StreamSpec describes a PCM stream's sample rate and channel count. It
// propagates top to bottom through Prepare; every transform returns the
// spec it produces.
type StreamSpec struct {
	SampleRate uint32
	Channels   uint16
}

// Valid reports whether the spec satisfies the CORE invariant
// sample_rate >= 1 && channels >= 1.
func (s StreamSpec) Valid() bool {
	return s.SampleRate >= 1 && s.Channels >= 1
}

// AudioBlock is an interleaved f32 PCM block. len(Samples) % Channels == 0
// always holds; blocks may be empty.
type AudioBlock struct {
	Channels uint16
	Samples  []float32
}

// Frames returns the number of per-channel frames held in the block.
func (b AudioBlock) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / int(b.Channels)
}

// GaplessTrimSpec is a head/tail sample trim defined by the decoder for
// lossy codecs. Disabled iff both fields are zero.
type GaplessTrimSpec struct {
	HeadFrames uint64
	TailFrames uint64
}

// Enabled reports whether either trim edge is non-zero.
func (g GaplessTrimSpec) Enabled() bool {
	return g.HeadFrames != 0 || g.TailFrames != 0
}

// SourceHandle is an opaque value produced by Source.Prepare and consumed
// by Decoder.Prepare.
type SourceHandle struct {
	Value any
}

// PipelineContext is the mutable per-step state threaded through a single
// runner's step loop.
type PipelineContext struct {
	PositionMs    int64
	PendingSeekMs *int64
}

// AdvancePosition applies the CORE advance rule:
// position_ms += frames_written * 1000 / sample_rate (saturating).
func (c *PipelineContext) AdvancePosition(framesWritten uint64, sampleRate uint32) {
	if sampleRate == 0 {
		return
	}
	delta := int64(framesWritten) * 1000 / int64(sampleRate)
	next := c.PositionMs + delta
	if next < c.PositionMs {
		// saturate rather than wrap on overflow
		next = math.MaxInt64
	}
	c.PositionMs = next
}

// LatchSeek records a pending seek to be applied at the top of the next
// step-loop iteration.
func (c *PipelineContext) LatchSeek(ms int64) {
	v := ms
	c.PendingSeekMs = &v
}

// ConsumeSeek clears and returns a latched seek, if any.
func (c *PipelineContext) ConsumeSeek() (int64, bool) {
	if c.PendingSeekMs == nil {
		return 0, false
	}
	ms := *c.PendingSeekMs
	c.PendingSeekMs = nil
	return ms, true
}

// PlayerState is the session-visible playback state machine. Transitions
// are only ever issued from the decode worker.
type PlayerState int

const (
	Stopped PlayerState = iota
	Paused
	Playing
	Buffering
)

func (s PlayerState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	case Buffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// PluginMetadata is the manifest-derived identity of a loaded plugin. Id is
// the stable key.
type PluginMetadata struct {
	ID         string
	Name       string
	APIVersion string
	Version    string
	Info       map[string]string
}

// CapabilityKind enumerates the plugin capability kinds.
type CapabilityKind int

const (
	CapabilityDecoder CapabilityKind = iota
	CapabilitySource
	CapabilityDSP
	CapabilityLyrics
	CapabilityOutputSink
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityDecoder:
		return "decoder"
	case CapabilitySource:
		return "source"
	case CapabilityDSP:
		return "dsp"
	case CapabilityLyrics:
		return "lyrics"
	case CapabilityOutputSink:
		return "output_sink"
	default:
		return "unknown"
	}
}

// CapabilityDescriptor describes one typed operation a plugin advertises.
type CapabilityDescriptor struct {
	Kind             CapabilityKind
	TypeID           string
	DisplayName      string
	ConfigSchema     json.RawMessage
	DefaultConfig    json.RawMessage
	DecoderExtScores map[string]int // extension (including "*") -> score, decoder capabilities only
}

// GenerationID is a monotonically increasing per-plugin generation counter.
type GenerationID uint64

// InstanceID is an opaque handle for a live plugin-created instance.
type InstanceID string

// ConfigUpdateMode selects how a config update is applied to a live
// instance.
type ConfigUpdateMode int

const (
	HotApply ConfigUpdateMode = iota
	Recreate
	Reject
)

func (m ConfigUpdateMode) String() string {
	switch m {
	case HotApply:
		return "hot_apply"
	case Recreate:
		return "recreate"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ConfigUpdatePlan is the verdict a plugin or DSP capability returns for a
// proposed config update.
type ConfigUpdatePlan struct {
	Mode   ConfigUpdateMode
	Reason string
}
