/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package plugin

import (
	"fmt"
	goplugin "plugin"
	"path/filepath"
	"sync"
	"time"

	"github.com/friendsincode/audioengine/internal/asyncop"
	"github.com/friendsincode/audioengine/internal/model"
)

// NativeFactory loads capability instances from real Go shared-object
// plugins (go build -buildmode=plugin), the idiomatic-Go analogue of
// §6.1's "out-of-process-language-neutral native module" contract: each
// plugin id resolves to <plugins_dir>/<id>/<id>.so, opened once and kept
// resident for the process lifetime (matching §3.3's "module resolved"
// load step), and its exported NewInstance symbol is the module's single
// capability factory entry point.
//
// This is new: the teacher shells out to gst-launch-1.0 subprocesses and
// has no native-module concept. Grounded on the only Go-idiomatic
// mechanism for loading native code at runtime, the standard library's
// "plugin" package.
type NativeFactory struct {
	pluginsDir string

	mu     sync.Mutex
	opened map[string]*goplugin.Plugin
}

// NewNativeFactory constructs a factory that resolves native modules
// under pluginsDir.
func NewNativeFactory(pluginsDir string) *NativeFactory {
	return &NativeFactory{pluginsDir: pluginsDir, opened: make(map[string]*goplugin.Plugin)}
}

// instanceCtor is the signature a native module's NewInstance export must
// satisfy.
type instanceCtor func(model.PluginMetadata, model.CapabilityDescriptor, []byte) (any, error)

// NewInstance implements Factory by dispatching to the native module's own
// NewInstance export, marshalled through §4.H's bounded-timeout async op
// primitive: the native constructor runs on its own goroutine (standing in
// for the out-of-process ABI call) and the caller waits on an asyncop.Op
// bounded by a per-kind timeout, exactly as the spec requires for open-
// stream-class operations versus plain unit ops.
func (f *NativeFactory) NewInstance(meta model.PluginMetadata, desc model.CapabilityDescriptor, config []byte) (any, error) {
	p, err := f.open(meta.ID)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup("NewInstance")
	if err != nil {
		return nil, fmt.Errorf("native plugin %s: missing NewInstance export: %w", meta.ID, err)
	}
	ctor, ok := sym.(func(model.PluginMetadata, model.CapabilityDescriptor, []byte) (any, error))
	if !ok {
		return nil, fmt.Errorf("native plugin %s: NewInstance has the wrong signature", meta.ID)
	}

	op := asyncop.New()
	go func() {
		value, err := instanceCtor(ctor)(meta, desc, config)
		if err != nil {
			op.Fail(err)
			return
		}
		op.Resolve(value)
	}()

	if _, err := op.Wait(instanceTimeout(desc.Kind)); err != nil {
		return nil, fmt.Errorf("native plugin %s: %w", meta.ID, err)
	}
	return op.TakeResult()
}

// instanceTimeout selects the §4.H timeout class for a capability kind:
// sources and output sinks open a stream (20s budget), everything else is
// a unit op (10s budget).
func instanceTimeout(kind model.CapabilityKind) time.Duration {
	switch kind {
	case model.CapabilitySource, model.CapabilityOutputSink:
		return asyncop.OpenStreamTimeout
	default:
		return asyncop.UnitOpTimeout
	}
}

// open loads (once) and caches the .so backing pluginID.
func (f *NativeFactory) open(pluginID string) (*goplugin.Plugin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.opened[pluginID]; ok {
		return p, nil
	}
	path := filepath.Join(f.pluginsDir, pluginID, pluginID+".so")
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening native module for %s: %w", pluginID, err)
	}
	f.opened[pluginID] = p
	return p, nil
}
