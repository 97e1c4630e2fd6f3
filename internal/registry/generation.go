/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package registry implements the per-generation capability registry
// (§4.G) and the generation-guard unload-safety primitive (§3.1) that
// coordinates plugin unloading without a global lock.
package registry

import "sync/atomic"

// Guard coordinates unload safety for one plugin generation using only
// atomics, per §5 ("GenerationGuard atomics coordinate unload safety
// without a global lock").
type Guard struct {
	id           uint64
	inflightCalls int64
	active        int32
}

// NewGuard creates an active guard for the given generation id.
func NewGuard(id uint64) *Guard {
	return &Guard{id: id, active: 1}
}

// ID returns the generation id this guard belongs to.
func (g *Guard) ID() uint64 { return g.id }

// Enter records the start of an in-flight call into this generation's
// instance. Callers must pair it with Leave.
func (g *Guard) Enter() { atomic.AddInt64(&g.inflightCalls, 1) }

// Leave records the completion of an in-flight call.
func (g *Guard) Leave() { atomic.AddInt64(&g.inflightCalls, -1) }

// InflightCalls returns the current in-flight call count.
func (g *Guard) InflightCalls() int64 { return atomic.LoadInt64(&g.inflightCalls) }

// Active reports whether the generation is still the slot's active
// generation (false once it has been moved to draining).
func (g *Guard) Active() bool { return atomic.LoadInt32(&g.active) != 0 }

// Deactivate moves the generation out of active service. It does not by
// itself make the generation unloadable; live instances still pin it via
// Enter/Leave until they drop.
func (g *Guard) Deactivate() { atomic.StoreInt32(&g.active, 0) }

// Unloadable reports whether the generation may be collected: not active
// and no in-flight calls remain.
func (g *Guard) Unloadable() bool {
	return !g.Active() && g.InflightCalls() == 0
}
