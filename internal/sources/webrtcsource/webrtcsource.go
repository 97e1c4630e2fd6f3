/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webrtcsource implements the §4.C Source contract for a TrackRef
// resolved to a remote WebRTC audio publisher (a plugin-registered source
// catalog entry whose locator names this type). It answers one inbound
// peer connection and exposes the negotiated remote track's RTP packets as
// the opaque SourceHandle a Decoder plugin depacketizes and decodes;
// concrete Opus/codec decoding stays a plugin concern per §1.
//
// Adapted from the teacher's internal/webrtc Broadcaster, which pushed a
// locally-produced track out to many subscribing peers. This package
// inverts that: it answers a single inbound offer and pulls the remote
// peer's published track into the pipeline instead.
package webrtcsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

// Config mirrors the teacher's ICE server configuration, generalized from
// a broadcast-wide setting to one per inbound publisher connection.
type Config struct {
	STUNServer   string
	TURNServer   string
	TURNUsername string
	TURNPassword string

	// NegotiationTimeout bounds how long Prepare waits for the remote
	// peer's offer/answer exchange and first track to arrive.
	NegotiationTimeout time.Duration
}

// Offerer is the signaling collaborator: it hands the Source a remote SDP
// offer and ICE candidates and receives the local answer. The concrete
// transport (WebSocket, HTTP long-poll) is an external collaborator,
// matching §1's "any specific network source" being out of scope.
type Offerer interface {
	Offer(ctx context.Context) (webrtc.SessionDescription, error)
	SendAnswer(ctx context.Context, answer webrtc.SessionDescription) error
	ICECandidates(ctx context.Context) (<-chan webrtc.ICECandidateInit, error)
}

// RTPReader is the SourceHandle payload a decoder plugin pulls from.
type RTPReader struct {
	pkts chan *rtp.Packet
}

// ReadRTP blocks for the next depacketized RTP packet from the remote
// track, or returns ctx.Err() if ctx is cancelled first.
func (r *RTPReader) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case p, ok := <-r.pkts:
		if !ok {
			return nil, engineerr.New(engineerr.Io, "webrtc source: remote track ended")
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Source answers one inbound WebRTC offer and exposes the negotiated
// remote audio track as an RTPReader.
type Source struct {
	cfg    Config
	signal Offerer
	logger zerolog.Logger

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	reader *RTPReader
}

// New constructs a Source bound to a signaling collaborator.
func New(cfg Config, signal Offerer, logger zerolog.Logger) *Source {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = 10 * time.Second
	}
	return &Source{cfg: cfg, signal: signal, logger: logger.With().Str("component", "webrtc_source").Logger()}
}

func (s *Source) buildAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	i := &interceptor.Registry{}
	pliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pliFactory)
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

func (s *Source) iceServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if s.cfg.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{s.cfg.STUNServer}})
	}
	if s.cfg.TURNServer != "" {
		turn := webrtc.ICEServer{URLs: []string{s.cfg.TURNServer}}
		if s.cfg.TURNUsername != "" {
			turn.Username = s.cfg.TURNUsername
			turn.Credential = s.cfg.TURNPassword
			turn.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, turn)
	}
	return servers
}

// Prepare negotiates the inbound connection and waits for the first
// remote track, returning an RTPReader SourceHandle for the decoder.
func (s *Source) Prepare(ctx *model.PipelineContext) (model.SourceHandle, error) {
	api, err := s.buildAPI()
	if err != nil {
		return model.SourceHandle{}, engineerr.Wrap(engineerr.Internal, "build webrtc api", err)
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers()})
	if err != nil {
		return model.SourceHandle{}, engineerr.Wrap(engineerr.Io, "create peer connection", err)
	}

	negotiateCtx, cancel := context.WithTimeout(context.Background(), s.cfg.NegotiationTimeout)
	defer cancel()

	reader := &RTPReader{pkts: make(chan *rtp.Packet, 256)}
	trackArrived := make(chan struct{})
	var trackOnce sync.Once

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		trackOnce.Do(func() { close(trackArrived) })
		go s.pumpTrack(track, reader)
	})

	offer, err := s.signal.Offer(negotiateCtx)
	if err != nil {
		pc.Close()
		return model.SourceHandle{}, engineerr.Wrap(engineerr.Io, "receive remote offer", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return model.SourceHandle{}, engineerr.Wrap(engineerr.StageFailure, "set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return model.SourceHandle{}, engineerr.Wrap(engineerr.StageFailure, "create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return model.SourceHandle{}, engineerr.Wrap(engineerr.StageFailure, "set local description", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	if err := s.signal.SendAnswer(negotiateCtx, *pc.LocalDescription()); err != nil {
		pc.Close()
		return model.SourceHandle{}, engineerr.Wrap(engineerr.Io, "send local answer", err)
	}

	if candidates, err := s.signal.ICECandidates(negotiateCtx); err == nil {
		go s.drainCandidates(pc, candidates)
	}

	select {
	case <-trackArrived:
	case <-negotiateCtx.Done():
		pc.Close()
		return model.SourceHandle{}, engineerr.New(engineerr.Timeout, "webrtc source: no remote track before negotiation timeout")
	}

	s.mu.Lock()
	s.pc = pc
	s.reader = reader
	s.mu.Unlock()

	return model.SourceHandle{Value: reader}, nil
}

func (s *Source) drainCandidates(pc *webrtc.PeerConnection, candidates <-chan webrtc.ICECandidateInit) {
	for c := range candidates {
		if err := pc.AddICECandidate(c); err != nil {
			s.logger.Debug().Err(err).Msg("failed to add remote ICE candidate")
		}
	}
}

func (s *Source) pumpTrack(track *webrtc.TrackRemote, reader *RTPReader) {
	for {
		p, _, err := track.ReadRTP()
		if err != nil {
			close(reader.pkts)
			return
		}
		select {
		case reader.pkts <- p:
		default:
			s.logger.Warn().Msg("webrtc source: rtp backlog full, dropping packet")
		}
	}
}

func (s *Source) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }

func (s *Source) Stop(ctx *model.PipelineContext) error {
	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()
	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return engineerr.Wrap(engineerr.Io, "close webrtc peer connection", err)
	}
	return nil
}
