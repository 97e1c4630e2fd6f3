package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/friendsincode/audioengine/internal/model"
)

func writeManifest(t *testing.T, dir, pluginDir, contents string) {
	t.Helper()
	full := filepath.Join(dir, pluginDir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(full, "manifest.yaml"), []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestDiscoverManifestsParsesValidManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "flacdec", `
id: flacdec
name: FLAC Decoder
api_version: "1.0"
version: 0.1.0
capabilities:
  - kind: decoder
    type_id: flac
    display_name: FLAC
    decoder_ext_scores:
      flac: 100
`)

	manifests, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}
	if manifests[0].ID != "flacdec" {
		t.Fatalf("id = %q, want flacdec", manifests[0].ID)
	}

	descs, err := manifests[0].Descriptors()
	if err != nil {
		t.Fatalf("descriptors: %v", err)
	}
	if len(descs) != 1 || descs[0].Kind != model.CapabilityDecoder {
		t.Fatalf("unexpected descriptors: %+v", descs)
	}
}

func TestDiscoverManifestsSkipsDirsWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifests, err := DiscoverManifests(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected 0 manifests, got %d", len(manifests))
	}
}

func TestManifestDescriptorsRejectsUnknownCapabilityKind(t *testing.T) {
	m := Manifest{
		ID: "x", Name: "X", APIVersion: "1.0", Version: "0.1.0",
		Capabilities: []ManifestCapability{{Kind: "nonsense", TypeID: "t"}},
	}
	if _, err := m.Descriptors(); err == nil {
		t.Fatal("expected error for unknown capability kind")
	}
}
