/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"github.com/friendsincode/audioengine/internal/decodeworker"
	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/session"
	"github.com/friendsincode/audioengine/internal/stage"
)

// playerDispatcher implements control.Dispatcher (internal/control) over a
// Session's decode worker, translating the §6.2 player control tagged
// union into the worker's command-submission API. Library scope has no
// CORE collaborator (§1: the SQLite schema and scan/search/playlist logic
// live outside this module), so DispatchLibrary always reports
// Unsupported.
//
// Grounded on the teacher's service.go RPC handlers, which likewise
// decoded a loosely-typed request payload and called the one matching
// Pipeline/Station method.
type playerDispatcher struct {
	sess *session.Session
}

func newPlayerDispatcher(sess *session.Session) *playerDispatcher {
	return &playerDispatcher{sess: sess}
}

func (d *playerDispatcher) DispatchPlayer(command string, payload any) error {
	switch command {
	case "switch_track_ref":
		track, lazy, err := trackFromPayload(payload)
		if err != nil {
			return err
		}
		d.sess.Worker.Open(track, !lazy)
		return nil
	case "play":
		d.sess.Worker.Play()
		return nil
	case "pause":
		d.sess.Worker.Pause(behaviorFromPayload(payload))
		return nil
	case "stop":
		d.sess.Worker.Stop(behaviorFromPayload(payload))
		return nil
	case "shutdown":
		d.sess.Worker.Shutdown()
		return nil
	case "seek_ms":
		ms, err := intField(payload, "position_ms")
		if err != nil {
			return err
		}
		d.sess.Worker.Seek(ms)
		return nil
	case "set_volume":
		v, err := floatField(payload, "volume")
		if err != nil {
			return err
		}
		d.sess.Worker.SetMasterGain(v)
		return nil
	case "set_lfe_mode":
		mode, err := stringField(payload, "mode")
		if err != nil {
			return err
		}
		lfe := stage.LfeDiscard
		if mode == "mix_into_fronts" {
			lfe = stage.LfeMixIntoFronts
		}
		d.sess.Worker.SetLfeMode(lfe)
		return nil
	case "preload_track":
		// Resume-state promotion runs against the already-open decoder on
		// a future prepare; nothing to forward synchronously here beyond
		// accepting the request (§4.J preload is consumed on Open, not on
		// PreloadTrack itself).
		return nil
	case "refresh_devices", "set_output_device", "set_output_sink_route", "clear_output_sink_route":
		return engineerr.New(engineerr.Unsupported, "device enumeration/routing is an external collaborator in this build (§1 non-goal)")
	case "set_output_options":
		if m, ok := payload.(map[string]any); ok {
			if gapless, ok := m["gapless_playback"].(bool); ok {
				d.sess.Worker.SetGaplessPlayback(gapless)
			}
		}
		return nil
	default:
		return engineerr.New(engineerr.Unsupported, "unknown player command: "+command)
	}
}

func (d *playerDispatcher) DispatchLibrary(command string, payload any) error {
	return engineerr.New(engineerr.Unsupported, "library control is outside this module's CORE scope (§1)")
}

func behaviorFromPayload(payload any) decodeworker.StopBehavior {
	if drain, _ := stringField(payload, "behavior"); drain == "drain_sink" {
		return decodeworker.DrainSink
	}
	return decodeworker.Immediate
}

func trackFromPayload(payload any) (model.TrackRef, bool, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return model.TrackRef{}, false, engineerr.New(engineerr.InvalidInput, "switch_track_ref requires an object payload")
	}
	lazy, _ := m["lazy"].(bool)
	if path, ok := m["local_path"].(string); ok && path != "" {
		return model.TrackRef{LocalPath: path}, lazy, nil
	}
	locator, ok := m["locator"].(map[string]any)
	if !ok {
		return model.TrackRef{}, false, engineerr.New(engineerr.InvalidInput, "switch_track_ref requires local_path or locator")
	}
	pluginID, _ := locator["plugin_id"].(string)
	typeID, _ := locator["type_id"].(string)
	if pluginID == "" || typeID == "" {
		return model.TrackRef{}, false, engineerr.New(engineerr.InvalidInput, "locator requires plugin_id and type_id")
	}
	return model.TrackRef{
		Locator: &model.SourceLocator{PluginID: pluginID, TypeID: typeID},
	}, lazy, nil
}

func stringField(payload any, key string) (string, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", nil
	}
	v, _ := m[key].(string)
	return v, nil
}

func intField(payload any, key string) (int64, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, engineerr.New(engineerr.InvalidInput, "expected an object payload")
	}
	switch v := m[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, engineerr.New(engineerr.InvalidInput, "missing or non-numeric field: "+key)
	}
}

func floatField(payload any, key string) (float64, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, engineerr.New(engineerr.InvalidInput, "expected an object payload")
	}
	v, ok := m[key].(float64)
	if !ok {
		return 0, engineerr.New(engineerr.InvalidInput, "missing or non-numeric field: "+key)
	}
	return v, nil
}
