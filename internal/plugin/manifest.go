/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package plugin implements the §4.F plugin runtime service: manifest
// discovery, generation-scoped activation, instance creation, draining and
// collection, and directory-reload reconciliation.
//
// Grounded on service.go's per-station lifecycle map and New()'s component
// wiring, generalized from one gRPC-managed station per mount to an
// arbitrary number of plugin slots keyed by plugin id.
package plugin

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

// Manifest is the on-disk descriptor discovered under plugins_dir.
// Permissions are outside CORE scope; Signature is optional and only
// checked by DiscoverManifestsVerified when given trusted keys (see
// discovery.go). DiscoverManifests, which Service.ReloadDirFromState
// uses, ignores it.
type Manifest struct {
	ID           string               `yaml:"id"`
	Name         string               `yaml:"name"`
	APIVersion   string               `yaml:"api_version"`
	Version      string               `yaml:"version"`
	Capabilities []ManifestCapability `yaml:"capabilities"`
	Info         map[string]string    `yaml:"info"`
	Signature    string               `yaml:"signature"`
}

// ManifestCapability is the YAML shape of one advertised capability.
type ManifestCapability struct {
	Kind             string         `yaml:"kind"`
	TypeID           string         `yaml:"type_id"`
	DisplayName      string         `yaml:"display_name"`
	DecoderExtScores map[string]int `yaml:"decoder_ext_scores"`
}

func parseCapabilityKind(kind string) (model.CapabilityKind, error) {
	switch kind {
	case "decoder":
		return model.CapabilityDecoder, nil
	case "source":
		return model.CapabilitySource, nil
	case "dsp":
		return model.CapabilityDSP, nil
	case "lyrics":
		return model.CapabilityLyrics, nil
	case "output_sink":
		return model.CapabilityOutputSink, nil
	default:
		return 0, engineerr.New(engineerr.InvalidInput, "unknown capability kind: "+kind)
	}
}

// Descriptors converts the manifest's YAML capability list into registry
// descriptors.
func (m Manifest) Descriptors() ([]model.CapabilityDescriptor, error) {
	out := make([]model.CapabilityDescriptor, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		kind, err := parseCapabilityKind(c.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, model.CapabilityDescriptor{
			Kind:             kind,
			TypeID:           c.TypeID,
			DisplayName:      c.DisplayName,
			DecoderExtScores: c.DecoderExtScores,
		})
	}
	return out, nil
}

// Validate checks the manifest carries the required identity fields.
func (m Manifest) Validate() error {
	if m.ID == "" || m.Name == "" || m.APIVersion == "" || m.Version == "" {
		return engineerr.New(engineerr.InvalidInput, "manifest missing required field: id, name, api_version, version")
	}
	return nil
}

// DiscoverManifests walks pluginsDir and parses every manifest.yaml /
// manifest.yml found directly under a plugin subdirectory.
func DiscoverManifests(pluginsDir string) ([]Manifest, error) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Io, "reading plugins_dir", err)
	}

	var manifests []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, name := range []string{"manifest.yaml", "manifest.yml"} {
			path := filepath.Join(pluginsDir, e.Name(), name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var m Manifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, engineerr.Wrap(engineerr.Io, "parsing manifest "+path, err)
			}
			if err := m.Validate(); err != nil {
				return nil, err
			}
			manifests = append(manifests, m)
			break
		}
	}
	return manifests, nil
}
