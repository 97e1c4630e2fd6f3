/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/friendsincode/audioengine/internal/control"
	"github.com/friendsincode/audioengine/internal/eventhub"
)

type fakeDispatcher struct{ lastCommand string }

func (f *fakeDispatcher) DispatchPlayer(command string, payload any) error {
	f.lastCommand = command
	return nil
}
func (f *fakeDispatcher) DispatchLibrary(command string, payload any) error {
	f.lastCommand = command
	return nil
}

func TestSubmitRoundTripsImmediateCommand(t *testing.T) {
	disp := &fakeDispatcher{}
	router := control.New(zerolog.Nop(), disp, nil)
	router.Start()
	defer router.Shutdown()

	svc := New(zerolog.Nop(), router, eventhub.New())

	req, err := structpb.NewStruct(map[string]any{
		"plugin_id":  "ui.tui",
		"request_id": "r1",
		"command":    "pause",
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Fields["ok"].GetBoolValue() {
		t.Fatalf("expected ok=true, got %v", resp.Fields["ok"])
	}
	if disp.lastCommand != "pause" {
		t.Fatalf("expected dispatcher to see pause, got %q", disp.lastCommand)
	}
}

func TestSubmitRejectsMissingCommand(t *testing.T) {
	disp := &fakeDispatcher{}
	router := control.New(zerolog.Nop(), disp, nil)
	router.Start()
	defer router.Shutdown()

	svc := New(zerolog.Nop(), router, eventhub.New())

	req, _ := structpb.NewStruct(map[string]any{"plugin_id": "ui.tui"})
	if _, err := svc.Submit(context.Background(), req); err == nil {
		t.Fatal("expected missing command to be rejected")
	}
}

type recordingStream struct {
	ctx context.Context

	mu  sync.Mutex
	out []*structpb.Struct
}

func (r *recordingStream) Send(m *structpb.Struct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, m)
	return nil
}
func (r *recordingStream) Context() context.Context { return r.ctx }

func (r *recordingStream) received() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out)
}

func TestEventsForwardsHubEvents(t *testing.T) {
	hub := eventhub.New()
	svc := New(zerolog.Nop(), nil, hub)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &recordingStream{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- svc.Events(&structpb.Struct{}, stream) }()

	// Give Events time to subscribe before emitting.
	for hub.SubscriberCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	hub.Emit(eventhub.Event{Kind: eventhub.StateChanged, Payload: "playing"})

	deadline := time.Now().Add(time.Second)
	for stream.received() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err == nil {
		t.Fatal("expected Events to return the context cancellation error")
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if len(stream.out) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(stream.out))
	}
	if stream.out[0].Fields["kind"].GetStringValue() != "state_changed" {
		t.Fatalf("unexpected kind field: %v", stream.out[0].Fields["kind"])
	}
}

func TestIssueTokenParsesBackWithSubject(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := IssueToken(secret, "tui-client", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := parseToken(secret, tok)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "tui-client" {
		t.Fatalf("expected subject tui-client, got %q", claims.Subject)
	}
}

func TestParseTokenRejectsWrongAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		Subject: "tui-client",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokStr, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseToken(secret, tokStr); err == nil {
		t.Fatal("expected wrong-algorithm token to be rejected")
	}
}

func TestAuthServerOptionsEmptySecretYieldsNone(t *testing.T) {
	if opts := AuthServerOptions(nil); opts != nil {
		t.Fatalf("expected no server options for an empty secret, got %d", len(opts))
	}
}

func TestAuthServerOptionsNonEmptySecretYieldsInterceptors(t *testing.T) {
	opts := AuthServerOptions([]byte("test-secret"))
	if len(opts) != 2 {
		t.Fatalf("expected a unary and stream interceptor option, got %d", len(opts))
	}
}
