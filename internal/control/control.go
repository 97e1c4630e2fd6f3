/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package control implements the §4.I control router: a single thread
// correlating plugin-issued control requests with engine/library
// completion events, enforcing per-plugin FIFO response ordering and a
// deadline-based finish timeout.
//
// Grounded on the decode worker's single-goroutine command loop
// (internal/decodeworker), generalized from driving one pipeline to
// correlating requests against asynchronous completion events.
package control

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/model"
)

// ControlFinishTimeout bounds how long a non-Immediate request waits for a
// matching completion event before the router synthesizes a timeout
// finish. A var, not a const, so tests can shrink it.
var ControlFinishTimeout = 15 * time.Second

// Scope names the subsystem a control request targets.
type Scope int

const (
	Player Scope = iota
	Library
)

// WaitCategory selects how a request's completion is determined.
type WaitCategory int

const (
	Immediate WaitCategory = iota
	UntilPlayerState
	UntilScanFinished
	UntilPlaylistUpdated
)

// Request is one plugin-issued control request.
type Request struct {
	PluginID  string
	RequestID string
	Scope     Scope
	Command   string
	Payload   any
	Wait      WaitCategory

	// ExpectedState is read only when Wait == UntilPlayerState.
	ExpectedState model.PlayerState
}

// ControlFinished is emitted once a request's wait condition resolves,
// either by a matching event or by deadline timeout.
type ControlFinished struct {
	PluginID  string
	RequestID string
	OK        bool
	Err       error
}

// Dispatcher performs the actual Player/Library command work. Submit
// returns quickly; completion for non-Immediate requests arrives later via
// matching PlayerStateChanged/LibraryEvent notifications.
type Dispatcher interface {
	DispatchPlayer(command string, payload any) error
	DispatchLibrary(command string, payload any) error
}

// LibraryEventKind distinguishes the library completion events the router
// matches against UntilScanFinished / UntilPlaylistUpdated waits.
type LibraryEventKind int

const (
	ScanFinished LibraryEventKind = iota
	PlaylistUpdated
)

type pendingFinish struct {
	req      Request
	deadline time.Time
}

type submitCmd struct {
	req  Request
	resp chan ControlFinished // nil for SubmitAsync
}
type playerStateCmd struct{ state model.PlayerState }
type libraryEventCmd struct{ kind LibraryEventKind }
type tickCmd struct{}
type shutdownCmd struct{ done chan struct{} }

// Router is the §4.I control router. All state is owned by one goroutine;
// external callers only ever send onto cmdCh.
type Router struct {
	logger     zerolog.Logger
	dispatcher Dispatcher
	onFinished func(ControlFinished)

	cmdCh chan any

	// pending is keyed by plugin_id, preserving each plugin's per-request
	// acceptance order (§4.I ordering guarantee).
	pending map[string][]*pendingFinish

	done chan struct{}
}

// New constructs a router. onFinished is invoked (from the router's own
// goroutine) for every resolved request that has no Submit caller waiting
// on it: every request sent with SubmitAsync, and the later completion of
// a non-Immediate request sent with Submit. A result that Submit returns
// directly is not also passed to onFinished.
func New(logger zerolog.Logger, dispatcher Dispatcher, onFinished func(ControlFinished)) *Router {
	return &Router{
		logger:     logger.With().Str("component", "control_router").Logger(),
		dispatcher: dispatcher,
		onFinished: onFinished,
		cmdCh:      make(chan any, 64),
		pending:    make(map[string][]*pendingFinish),
		done:       make(chan struct{}),
	}
}

// Start launches the router's serialization loop.
func (r *Router) Start() {
	go r.loop()
}

const sweepInterval = 200 * time.Millisecond

func (r *Router) loop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.cmdCh:
			stop := r.handle(cmd)
			if stop {
				return
			}
		case <-ticker.C:
			r.sweepDeadlines()
		}
	}
}

func (r *Router) handle(cmd any) (stop bool) {
	switch c := cmd.(type) {
	case submitCmd:
		r.submit(c)
	case playerStateCmd:
		r.matchPlayerState(c.state)
	case libraryEventCmd:
		r.matchLibraryEvent(c.kind)
	case tickCmd:
		r.sweepDeadlines()
	case shutdownCmd:
		close(c.done)
		return true
	}
	return false
}

func (r *Router) submit(c submitCmd) {
	req := c.req

	var err error
	switch req.Scope {
	case Player:
		err = r.dispatcher.DispatchPlayer(req.Command, req.Payload)
	case Library:
		err = r.dispatcher.DispatchLibrary(req.Command, req.Payload)
	}
	if err != nil {
		r.finish(ControlFinished{PluginID: req.PluginID, RequestID: req.RequestID, OK: false, Err: err}, c.resp)
		return
	}

	if req.Wait == Immediate {
		r.finish(ControlFinished{PluginID: req.PluginID, RequestID: req.RequestID, OK: true}, c.resp)
		return
	}

	r.pending[req.PluginID] = append(r.pending[req.PluginID], &pendingFinish{
		req:      req,
		deadline: time.Now().Add(ControlFinishTimeout),
	})
	if c.resp != nil {
		c.resp <- ControlFinished{PluginID: req.PluginID, RequestID: req.RequestID, OK: true}
	}
}

func (r *Router) matchPlayerState(state model.PlayerState) {
	for pluginID, list := range r.pending {
		kept := list[:0]
		for _, pf := range list {
			if pf.req.Wait == UntilPlayerState && pf.req.ExpectedState == state {
				r.finish(ControlFinished{PluginID: pf.req.PluginID, RequestID: pf.req.RequestID, OK: true}, nil)
				continue
			}
			kept = append(kept, pf)
		}
		r.pending[pluginID] = kept
	}
}

func (r *Router) matchLibraryEvent(kind LibraryEventKind) {
	want := UntilScanFinished
	if kind == PlaylistUpdated {
		want = UntilPlaylistUpdated
	}
	for pluginID, list := range r.pending {
		kept := list[:0]
		for _, pf := range list {
			if pf.req.Wait == want {
				r.finish(ControlFinished{PluginID: pf.req.PluginID, RequestID: pf.req.RequestID, OK: true}, nil)
				continue
			}
			kept = append(kept, pf)
		}
		r.pending[pluginID] = kept
	}
}

func (r *Router) sweepDeadlines() {
	now := time.Now()
	for pluginID, list := range r.pending {
		kept := list[:0]
		for _, pf := range list {
			if now.After(pf.deadline) {
				r.finish(ControlFinished{
					PluginID:  pf.req.PluginID,
					RequestID: pf.req.RequestID,
					OK:        false,
					Err:       errControlFinishTimeout,
				}, nil)
				continue
			}
			kept = append(kept, pf)
		}
		r.pending[pluginID] = kept
	}
}

func (r *Router) finish(cf ControlFinished, resp chan ControlFinished) {
	if resp != nil {
		resp <- cf
		return
	}
	if r.onFinished != nil {
		r.onFinished(cf)
	}
}

// Submit enqueues a control request. For Immediate requests it blocks
// until the router has processed it and returns the result directly;
// non-Immediate requests return immediately with OK set once accepted,
// their real completion arriving later via onFinished.
func (r *Router) Submit(req Request) ControlFinished {
	resp := make(chan ControlFinished, 1)
	r.cmdCh <- submitCmd{req: req, resp: resp}
	return <-resp
}

// SubmitAsync enqueues a non-Immediate request without blocking the
// caller; its eventual resolution arrives via onFinished.
func (r *Router) SubmitAsync(req Request) {
	r.cmdCh <- submitCmd{req: req}
}

// NotifyPlayerStateChanged feeds a StateChanged event into the router for
// matching against UntilPlayerState waits.
func (r *Router) NotifyPlayerStateChanged(state model.PlayerState) {
	r.cmdCh <- playerStateCmd{state: state}
}

// NotifyLibraryEvent feeds a library completion event into the router for
// matching against UntilScanFinished / UntilPlaylistUpdated waits.
func (r *Router) NotifyLibraryEvent(kind LibraryEventKind) {
	r.cmdCh <- libraryEventCmd{kind: kind}
}

// Shutdown stops the router's loop and waits for it to exit.
func (r *Router) Shutdown() {
	done := make(chan struct{})
	r.cmdCh <- shutdownCmd{done: done}
	<-done
}
