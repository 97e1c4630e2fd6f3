/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package plugin

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/registry"
)

// Factory constructs a live instance for one capability of an activated
// plugin generation. The returned value is opaque to the plugin runtime; it
// is typically a stage.Source, stage.Decoder, a DSP stage.Transform, or a
// stage.Sink, type-asserted by the caller.
type Factory interface {
	NewInstance(meta model.PluginMetadata, desc model.CapabilityDescriptor, config []byte) (any, error)
}

// slot tracks one plugin's manifest, factory, and generation lineage.
type slot struct {
	manifest Manifest
	factory  Factory
	guards   map[uint64]*registry.Guard // all generations ever activated, draining included
}

// Instance is a live plugin-created object plus the handle the caller uses
// to release its lease on the owning generation.
type Instance struct {
	ID    model.InstanceID
	Value any

	guard *registry.Guard
}

// Release drops this instance's pin on its generation. Safe to call once;
// repeated calls would double-decrement inflight_calls and must be avoided
// by the caller.
func (i *Instance) Release() {
	i.guard.Leave()
}

// ReloadReport summarizes one reload_dir_from_state pass.
type ReloadReport struct {
	Loaded             []string
	Deactivated        []string
	UnloadedGenerations int
	Errors             []error
}

// Service is the §4.F plugin runtime: manifest discovery plus the
// generation-scoped activation/instance/drain lifecycle built over
// internal/registry.
type Service struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	reg      *registry.Registry
	slots    map[string]*slot
	disabled map[string]bool

	nextGen uint64
}

// New constructs an empty plugin service over the given capability
// registry.
func New(logger zerolog.Logger, reg *registry.Registry) *Service {
	return &Service{
		logger:   logger.With().Str("component", "plugin_service").Logger(),
		reg:      reg,
		slots:    make(map[string]*slot),
		disabled: make(map[string]bool),
	}
}

// Disable marks a plugin id disabled, deactivating it if currently active.
func (s *Service) Disable(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[pluginID] = true
	s.deactivateLocked(pluginID)
}

// Enable clears a plugin's disabled flag. It does not reactivate the
// plugin; the next reload pass will.
func (s *Service) Enable(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, pluginID)
}

// Activate issues a new generation for manifest, using factory to build
// instances, and installs it as the plugin's active generation. Any prior
// active generation is moved to draining (its guard deactivated) but kept
// in the slot until collected.
func (s *Service) Activate(manifest Manifest, factory Factory) (model.GenerationID, error) {
	if err := manifest.Validate(); err != nil {
		return 0, err
	}
	caps, err := manifest.Descriptors()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled[manifest.ID] {
		return 0, engineerr.New(engineerr.Denied, "plugin is disabled: "+manifest.ID)
	}

	sl, ok := s.slots[manifest.ID]
	if !ok {
		sl = &slot{guards: make(map[uint64]*registry.Guard)}
		s.slots[manifest.ID] = sl
	}
	sl.manifest = manifest
	sl.factory = factory

	s.deactivatePriorGenerationLocked(manifest.ID, sl)

	s.nextGen++
	guard := registry.NewGuard(s.nextGen)
	sl.guards[guard.ID()] = guard
	s.reg.RegisterGeneration(manifest.ID, guard, caps)

	s.logger.Info().Str("plugin_id", manifest.ID).Uint64("generation_id", guard.ID()).Msg("plugin activated")
	return model.GenerationID(guard.ID()), nil
}

// deactivatePriorGenerationLocked deactivates (but does not remove) the
// slot's currently-active generation guard, if any. Caller holds s.mu.
func (s *Service) deactivatePriorGenerationLocked(pluginID string, sl *slot) {
	genID, ok := s.reg.ActiveGeneration(pluginID)
	if !ok {
		return
	}
	if guard, ok := sl.guards[genID]; ok {
		guard.Deactivate()
	}
	s.reg.MarkInactive(pluginID)
}

// Deactivate moves a plugin's active generation to draining without
// unloading it. Already-created instances keep running until dropped;
// subsequent CreateInstance calls fail with NotFound ("plugin has no
// active lease").
func (s *Service) Deactivate(pluginID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateLocked(pluginID)
}

func (s *Service) deactivateLocked(pluginID string) {
	sl, ok := s.slots[pluginID]
	if !ok {
		return
	}
	s.deactivatePriorGenerationLocked(pluginID, sl)
}

// CreateInstance resolves (plugin_id, kind, type_id) against the plugin's
// currently active generation and constructs an instance via its factory.
// The instance pins its generation (Enter) until Release (Leave) is
// called.
func (s *Service) CreateInstance(pluginID string, kind model.CapabilityKind, typeID string, config []byte) (*Instance, error) {
	s.mu.Lock()
	sl, ok := s.slots[pluginID]
	s.mu.Unlock()
	if !ok {
		return nil, engineerr.New(engineerr.NotFound, "plugin has no active lease")
	}

	desc, guard, err := s.reg.Find(pluginID, kind, typeID)
	if err != nil {
		return nil, err
	}
	if !guard.Active() {
		return nil, engineerr.New(engineerr.NotFound, "plugin has no active lease")
	}

	// Pin the generation before calling out to the factory, not after:
	// otherwise a concurrent CollectReadyForUnload could see
	// inflight_calls == 0 and unload the generation while its factory
	// call is still in flight.
	guard.Enter()
	value, err := sl.factory.NewInstance(model.PluginMetadata{
		ID:         sl.manifest.ID,
		Name:       sl.manifest.Name,
		APIVersion: sl.manifest.APIVersion,
		Version:    sl.manifest.Version,
		Info:       sl.manifest.Info,
	}, desc, config)
	if err != nil {
		guard.Leave()
		return nil, engineerr.Wrap(engineerr.Internal, "plugin factory", err)
	}

	return &Instance{ID: model.InstanceID(uuid.NewString()), Value: value, guard: guard}, nil
}

// CollectReadyForUnload scans pluginID's draining generations and removes
// (from both the slot and the registry) every one with no active flag and
// no in-flight calls. Returns the count collected.
func (s *Service) CollectReadyForUnload(pluginID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[pluginID]
	if !ok {
		return 0
	}

	collected := 0
	for genID, guard := range sl.guards {
		if guard.Unloadable() {
			s.reg.RemoveGeneration(pluginID, genID)
			delete(sl.guards, genID)
			collected++
		}
	}
	return collected
}

// ReloadDirFromState re-discovers pluginsDir and reconciles activation
// state: loads and activates plugins not yet active and not disabled,
// deactivates plugins that are active but now missing from disk or newly
// disabled.
func (s *Service) ReloadDirFromState(pluginsDir string, factory Factory) (ReloadReport, error) {
	manifests, err := DiscoverManifests(pluginsDir)
	if err != nil {
		return ReloadReport{}, err
	}

	discovered := make(map[string]Manifest, len(manifests))
	for _, m := range manifests {
		discovered[m.ID] = m
	}

	var report ReloadReport

	s.mu.Lock()
	activeIDs := make([]string, 0, len(s.slots))
	allSlotIDs := make([]string, 0, len(s.slots))
	for id := range s.slots {
		allSlotIDs = append(allSlotIDs, id)
		if _, ok := s.reg.ActiveGeneration(id); ok {
			activeIDs = append(activeIDs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range activeIDs {
		_, stillPresent := discovered[id]
		if !stillPresent || s.isDisabled(id) {
			s.Deactivate(id)
			report.Deactivated = append(report.Deactivated, id)
		}
	}

	for id, m := range discovered {
		if s.isDisabled(id) {
			continue
		}
		s.mu.Lock()
		_, alreadyActive := s.reg.ActiveGeneration(id)
		s.mu.Unlock()
		if alreadyActive {
			continue
		}
		if _, err := s.Activate(m, factory); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Loaded = append(report.Loaded, id)
	}

	for _, id := range allSlotIDs {
		report.UnloadedGenerations += s.CollectReadyForUnload(id)
	}

	return report, nil
}

// isDisabled reports whether pluginID is currently disabled, under the
// service lock.
func (s *Service) isDisabled(pluginID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[pluginID]
}
