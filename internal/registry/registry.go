/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

type capabilityKey struct {
	kind   model.CapabilityKind
	typeID string
}

// generationEntry holds one generation's registered capabilities.
type generationEntry struct {
	guard        *Guard
	capabilities map[capabilityKey]model.CapabilityDescriptor
	order        []capabilityKey // registration order, within this generation
	seq          uint64          // registry-wide order this generation was registered in
}

// Registry is the three-level capability map described in §4.G:
// plugin_id -> generation_id -> (kind, type_id) -> descriptor. Lookups are
// read-mostly; registration is rare, so it is guarded by an RWMutex
// (grounded on supervisor.go's monitoredPipelines map pattern).
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[uint64]*generationEntry
	active  map[string]uint64 // plugin_id -> currently active generation id
	nextSeq uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		plugins: make(map[string]map[uint64]*generationEntry),
		active:  make(map[string]uint64),
	}
}

// RegisterGeneration registers a new generation's capabilities and marks it
// the plugin's active generation. Any previously active generation for the
// same plugin id is left in the map (its guard must be deactivated by the
// caller, see §4.F activation algorithm) but is no longer reachable via
// Find, which is scoped to the active generation only.
func (r *Registry) RegisterGeneration(pluginID string, guard *Guard, caps []model.CapabilityDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gens, ok := r.plugins[pluginID]
	if !ok {
		gens = make(map[uint64]*generationEntry)
		r.plugins[pluginID] = gens
	}

	capMap := make(map[capabilityKey]model.CapabilityDescriptor, len(caps))
	order := make([]capabilityKey, 0, len(caps))
	for _, c := range caps {
		key := capabilityKey{kind: c.Kind, typeID: c.TypeID}
		capMap[key] = c
		order = append(order, key)
	}

	r.nextSeq++
	gens[guard.ID()] = &generationEntry{guard: guard, capabilities: capMap, order: order, seq: r.nextSeq}
	r.active[pluginID] = guard.ID()
}

// RemoveGeneration deletes a generation's capability descriptors, normally
// called once a draining generation has been collected.
func (r *Registry) RemoveGeneration(pluginID string, generationID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gens, ok := r.plugins[pluginID]
	if !ok {
		return
	}
	delete(gens, generationID)
	if len(gens) == 0 {
		delete(r.plugins, pluginID)
	}
}

// Find resolves (plugin, kind, type) scoped to the plugin's currently
// active generation. Returns NotFound if the plugin has no active
// generation, or if that generation does not advertise the capability.
func (r *Registry) Find(pluginID string, kind model.CapabilityKind, typeID string) (model.CapabilityDescriptor, *Guard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	genID, ok := r.active[pluginID]
	if !ok {
		return model.CapabilityDescriptor{}, nil, engineerr.New(engineerr.NotFound, "plugin has no active lease")
	}
	entry := r.plugins[pluginID][genID]
	if entry == nil {
		return model.CapabilityDescriptor{}, nil, engineerr.New(engineerr.NotFound, "plugin has no active lease")
	}
	desc, ok := entry.capabilities[capabilityKey{kind: kind, typeID: typeID}]
	if !ok {
		return model.CapabilityDescriptor{}, nil, engineerr.New(engineerr.NotFound, "capability not advertised")
	}
	return desc, entry.guard, nil
}

// ActiveGeneration returns the currently active generation id for a plugin,
// if any.
func (r *Registry) ActiveGeneration(pluginID string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[pluginID]
	return id, ok
}

// MarkInactive clears the active pointer for a plugin, e.g. on
// deactivation, without removing its draining generations from the map.
func (r *Registry) MarkInactive(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, pluginID)
}

// DecoderCandidate is one ranked result of a decoder extension lookup.
type DecoderCandidate struct {
	PluginID string
	TypeID   string
	Score    int
}

// DecoderCandidates implements §4.G's extension-based candidate selection:
//  1. normalize the extension to lowercase without a leading dot,
//  2. enumerate decoders advertising either an exact (ext, score) rule or a
//     wildcard score > 0 — per the resolved Open Question, a plugin with
//     both an exact rule for this extension and a wildcard rule is scored
//     using its exact rule only,
//  3. sort by score desc, then plugin id asc, then type id asc,
//  4. if empty, fall back to all decoder capabilities in registration
//     order.
func (r *Registry) DecoderCandidates(ext string) []DecoderCandidate {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Collect active generations in the order they were registered, so
	// the no-match fallback below can walk capabilities in a stable
	// "registration order" instead of Go's randomized map iteration.
	type activePlugin struct {
		pluginID string
		entry    *generationEntry
	}
	actives := make([]activePlugin, 0, len(r.active))
	for pluginID, genID := range r.active {
		if entry := r.plugins[pluginID][genID]; entry != nil {
			actives = append(actives, activePlugin{pluginID: pluginID, entry: entry})
		}
	}
	sort.Slice(actives, func(i, j int) bool { return actives[i].entry.seq < actives[j].entry.seq })

	var ranked []DecoderCandidate
	var allDecoders []DecoderCandidate // registration order fallback

	for _, ap := range actives {
		for _, key := range ap.entry.order {
			if key.kind != model.CapabilityDecoder {
				continue
			}
			desc := ap.entry.capabilities[key]
			allDecoders = append(allDecoders, DecoderCandidate{PluginID: ap.pluginID, TypeID: key.typeID, Score: 0})

			exactScore, hasExact := desc.DecoderExtScores[ext]
			wildcardScore, hasWildcard := desc.DecoderExtScores["*"]

			switch {
			case hasExact:
				ranked = append(ranked, DecoderCandidate{PluginID: ap.pluginID, TypeID: key.typeID, Score: exactScore})
			case hasWildcard && wildcardScore > 0:
				ranked = append(ranked, DecoderCandidate{PluginID: ap.pluginID, TypeID: key.typeID, Score: wildcardScore})
			}
		}
	}

	if len(ranked) == 0 {
		return allDecoders
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].PluginID != ranked[j].PluginID {
			return ranked[i].PluginID < ranked[j].PluginID
		}
		return ranked[i].TypeID < ranked[j].TypeID
	})
	return ranked
}
