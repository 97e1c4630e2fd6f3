/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package controlapi exposes the control router (internal/control) and
// the event hub (internal/eventhub) as a small gRPC service, so an
// out-of-process UI can submit Player/Library commands and subscribe to
// Position/StateChanged/TrackChanged/Error events without linking the
// engine binary.
//
// There is no .proto file: requests, responses, and streamed events are
// all carried as google.protobuf.Struct, a message type already compiled
// into google.golang.org/protobuf. This file converts between that
// generic envelope and the engine's own control.Request/eventhub.Event
// types.
//
// Grounded on the teacher's mediaengine/service.go RPC handlers (the same
// request/response shape: validate, dispatch, report success/error), with
// the pb.MediaEngineServer stub replaced by a hand-built grpc.ServiceDesc
// in service.go since no generated protobuf package exists for this
// domain.
package controlapi

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/friendsincode/audioengine/internal/control"
	"github.com/friendsincode/audioengine/internal/eventhub"
	"github.com/friendsincode/audioengine/internal/model"
)

func scopeFromString(s string) (control.Scope, error) {
	switch s {
	case "player", "":
		return control.Player, nil
	case "library":
		return control.Library, nil
	default:
		return 0, fmt.Errorf("controlapi: unknown scope %q", s)
	}
}

func waitFromString(s string) (control.WaitCategory, error) {
	switch s {
	case "immediate", "":
		return control.Immediate, nil
	case "until_player_state":
		return control.UntilPlayerState, nil
	case "until_scan_finished":
		return control.UntilScanFinished, nil
	case "until_playlist_updated":
		return control.UntilPlaylistUpdated, nil
	default:
		return 0, fmt.Errorf("controlapi: unknown wait category %q", s)
	}
}

func playerStateFromString(s string) (model.PlayerState, error) {
	switch s {
	case "stopped":
		return model.Stopped, nil
	case "paused":
		return model.Paused, nil
	case "playing":
		return model.Playing, nil
	case "buffering":
		return model.Buffering, nil
	default:
		return 0, fmt.Errorf("controlapi: unknown player state %q", s)
	}
}

// requestFromStruct decodes a submitted command envelope into a
// control.Request. Required fields: plugin_id, command; scope and wait
// default to Player/Immediate when absent.
func requestFromStruct(s *structpb.Struct) (control.Request, error) {
	fields := s.GetFields()

	pluginID := fields["plugin_id"].GetStringValue()
	if pluginID == "" {
		return control.Request{}, fmt.Errorf("controlapi: missing plugin_id")
	}
	command := fields["command"].GetStringValue()
	if command == "" {
		return control.Request{}, fmt.Errorf("controlapi: missing command")
	}

	scope, err := scopeFromString(fields["scope"].GetStringValue())
	if err != nil {
		return control.Request{}, err
	}
	wait, err := waitFromString(fields["wait"].GetStringValue())
	if err != nil {
		return control.Request{}, err
	}

	req := control.Request{
		PluginID:  pluginID,
		RequestID: fields["request_id"].GetStringValue(),
		Scope:     scope,
		Command:   command,
		Wait:      wait,
	}
	if payload, ok := fields["payload"]; ok {
		req.Payload = payload.AsInterface()
	}
	if wait == control.UntilPlayerState {
		state, err := playerStateFromString(fields["expected_state"].GetStringValue())
		if err != nil {
			return control.Request{}, err
		}
		req.ExpectedState = state
	}
	return req, nil
}

func structFromFinished(cf control.ControlFinished) (*structpb.Struct, error) {
	m := map[string]any{
		"plugin_id":  cf.PluginID,
		"request_id": cf.RequestID,
		"ok":         cf.OK,
	}
	if cf.Err != nil {
		m["error"] = cf.Err.Error()
	}
	return structpb.NewStruct(m)
}

func kindName(k eventhub.Kind) string {
	switch k {
	case eventhub.Position:
		return "position"
	case eventhub.StateChanged:
		return "state_changed"
	case eventhub.TrackChanged:
		return "track_changed"
	case eventhub.Error:
		return "error"
	case eventhub.Log:
		return "log"
	default:
		return "unknown"
	}
}

// structFromEvent renders an engine event as a Struct envelope. Payloads
// that cannot round-trip through structpb (anything other than the
// JSON-ish primitives/maps/slices it accepts) are dropped with their
// Go %v string kept under payload_repr instead of failing the stream.
func structFromEvent(ev eventhub.Event) (*structpb.Struct, error) {
	m := map[string]any{"kind": kindName(ev.Kind)}
	if ev.Payload != nil {
		if v, err := structpb.NewValue(ev.Payload); err == nil {
			m["payload"] = v.AsInterface()
		} else {
			m["payload_repr"] = fmt.Sprintf("%v", ev.Payload)
		}
	}
	return structpb.NewStruct(m)
}
