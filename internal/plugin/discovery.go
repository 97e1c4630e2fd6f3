/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package plugin

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ed25519"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/audioengine/internal/engineerr"
)

// TrustedKeys holds the ed25519 public keys a discovery pass will accept
// manifest signatures from. An empty set disables verification entirely:
// plugin signing and permissions are outside CORE scope, but a host that
// wants it can opt in by configuring keys here.
type TrustedKeys []ed25519.PublicKey

// ParseTrustedKeys decodes a list of hex-encoded ed25519 public keys, the
// format a deployment would set via config (comma-separated env var or
// config file list).
func ParseTrustedKeys(hexKeys []string) (TrustedKeys, error) {
	keys := make(TrustedKeys, 0, len(hexKeys))
	for _, hk := range hexKeys {
		raw, err := hex.DecodeString(hk)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.InvalidInput, "decoding trusted manifest key", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, engineerr.New(engineerr.InvalidInput, "trusted manifest key has wrong length")
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return keys, nil
}

// verify checks raw (the manifest file's bytes, with the signature line
// stripped by canonicalizeManifest) against m.Signature, a base64-encoded
// ed25519 signature, accepting if any trusted key verifies it.
func (keys TrustedKeys) verify(raw []byte, m Manifest) error {
	if len(keys) == 0 {
		return nil
	}
	if m.Signature == "" {
		return engineerr.New(engineerr.Denied, "manifest "+m.ID+" is unsigned but signature verification is required")
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return engineerr.Wrap(engineerr.InvalidInput, "decoding manifest signature", err)
	}
	canonical := canonicalizeManifest(raw)
	for _, key := range keys {
		if ed25519.Verify(key, canonical, sig) {
			return nil
		}
	}
	return engineerr.New(engineerr.Denied, "manifest "+m.ID+" signature does not match any trusted key")
}

// canonicalizeManifest strips the signature line before hashing, so a
// manifest can be signed and then have its own signature field filled in
// without invalidating itself.
func canonicalizeManifest(raw []byte) []byte {
	lines := bytes.Split(raw, []byte("\n"))
	out := lines[:0]
	for _, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("signature:")) {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

// DiscoverManifestsVerified behaves like DiscoverManifests but additionally
// enforces keys against every discovered manifest's signature. Pass an
// empty TrustedKeys to recover DiscoverManifests' unverified behavior.
func DiscoverManifestsVerified(pluginsDir string, keys TrustedKeys) ([]Manifest, error) {
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
			if err := keys.verify(data, m); err != nil {
				return nil, err
			}
			manifests = append(manifests, m)
			break
		}
	}
	return manifests, nil
}
