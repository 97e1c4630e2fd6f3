/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webrtcsource

import (
	"context"
	"net/http"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsSignalMessage mirrors the teacher's WebSocket signaling envelope.
type wsSignalMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// WSOfferer implements Offerer over a single accepted WebSocket
// connection, reusing the teacher's wsjson signaling message shape but
// waiting for an "offer" from the remote side instead of sending one.
type WSOfferer struct {
	conn       *websocket.Conn
	logger     zerolog.Logger
	candidates chan webrtc.ICECandidateInit
}

// AcceptWS upgrades an inbound HTTP request to a WebSocket signaling
// channel for one publisher connection.
func AcceptWS(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (*WSOfferer, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return nil, err
	}
	return &WSOfferer{conn: conn, logger: logger, candidates: make(chan webrtc.ICECandidateInit, 16)}, nil
}

// Offer waits for the remote publisher's "offer" message.
func (o *WSOfferer) Offer(ctx context.Context) (webrtc.SessionDescription, error) {
	for {
		var msg wsSignalMessage
		if err := wsjson.Read(ctx, o.conn, &msg); err != nil {
			return webrtc.SessionDescription{}, err
		}
		switch msg.Type {
		case "offer":
			if msg.SDP == nil {
				continue
			}
			return *msg.SDP, nil
		case "candidate":
			if msg.Candidate != nil {
				o.candidates <- *msg.Candidate
			}
		}
	}
}

// SendAnswer sends the local answer back to the publisher.
func (o *WSOfferer) SendAnswer(ctx context.Context, answer webrtc.SessionDescription) error {
	return wsjson.Write(ctx, o.conn, wsSignalMessage{Type: "answer", SDP: &answer})
}

// ICECandidates returns the channel fed by Offer's background candidate
// messages. The caller drains it for the lifetime of the negotiation.
func (o *WSOfferer) ICECandidates(ctx context.Context) (<-chan webrtc.ICECandidateInit, error) {
	go func() {
		for {
			var msg wsSignalMessage
			if err := wsjson.Read(ctx, o.conn, &msg); err != nil {
				close(o.candidates)
				return
			}
			if msg.Type == "candidate" && msg.Candidate != nil {
				select {
				case o.candidates <- *msg.Candidate:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return o.candidates, nil
}

// Close releases the underlying WebSocket connection.
func (o *WSOfferer) Close() error {
	return o.conn.Close(websocket.StatusNormalClosure, "")
}
