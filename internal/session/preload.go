/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"context"
	"time"

	"github.com/friendsincode/audioengine/internal/cache"
	"github.com/friendsincode/audioengine/internal/model"
)

// preloadBucketMs is the coarseness of the position key a preload entry is
// cached under: a seek landing anywhere in the same bucket reuses the
// entry rather than missing on every slightly different position.
const preloadBucketMs = 5000

// resumable is implemented by a decoder plugin that can skip expensive
// setup (seek tables, container parse state) given a previously captured
// resume blob. Optional: a decoder that doesn't implement it is simply
// never handed a hint.
type resumable interface {
	ResumeFromBlob(blob []byte) error
}

// snapshottable is implemented by a decoder plugin that can serialize its
// resume state for later caching.
type snapshottable interface {
	SnapshotBlob() ([]byte, error)
}

func trackKey(track model.TrackRef) string {
	if track.IsLocal() {
		return "local:" + track.LocalPath
	}
	if track.Locator != nil {
		return track.Locator.PluginID + ":" + track.Locator.TypeID + ":" + string(track.Locator.Track)
	}
	return ""
}

func bucket(positionMs int64) int64 {
	return (positionMs / preloadBucketMs) * preloadBucketMs
}

// applyPreloadHint looks up a cached preload entry for track at its
// resolved decoder's current position bucket and, if present and the
// decoder supports it, resumes from the captured blob.
func (s *Session) applyPreloadHint(track model.TrackRef, dec any) {
	if s.cache == nil || !s.cache.IsAvailable() {
		return
	}
	key := trackKey(track)
	if key == "" {
		return
	}
	r, ok := dec.(resumable)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	entry, found := s.cache.GetPreload(ctx, key, bucket(0))
	if !found {
		return
	}
	if err := r.ResumeFromBlob(entry.DecoderBlob); err != nil {
		s.logger.Debug().Err(err).Str("track_key", key).Msg("preload resume failed, falling back to cold decode")
	}
}

// PromotePreload captures the current decoder's resume state and caches
// it, called by the caller (normally on pause or a queued-next lookahead)
// when the decoder supports snapshotting.
func (s *Session) PromotePreload(track model.TrackRef, positionMs int64, dec any) {
	if s.cache == nil || !s.cache.IsAvailable() {
		return
	}
	snap, ok := dec.(snapshottable)
	if !ok {
		return
	}
	key := trackKey(track)
	if key == "" {
		return
	}
	blob, err := snap.SnapshotBlob()
	if err != nil {
		s.logger.Debug().Err(err).Str("track_key", key).Msg("preload snapshot failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	b := bucket(positionMs)
	entry := cache.PreloadEntry{TrackKey: key, PositionMs: positionMs, DecoderBlob: blob}
	if err := s.cache.SetPreload(ctx, b, entry); err != nil {
		s.logger.Debug().Err(err).Str("track_key", key).Msg("preload cache write failed")
	}
}
