package plugin

import (
	"github.com/rs/zerolog"
	"testing"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/registry"
)

type fakeFactory struct{ created int }

func (f *fakeFactory) NewInstance(meta model.PluginMetadata, desc model.CapabilityDescriptor, config []byte) (any, error) {
	f.created++
	return "instance-for-" + desc.TypeID, nil
}

func testManifest(id string) Manifest {
	return Manifest{
		ID: id, Name: "Test Plugin", APIVersion: "1.0", Version: "0.1.0",
		Capabilities: []ManifestCapability{
			{Kind: "decoder", TypeID: "flac", DecoderExtScores: map[string]int{"flac": 100}},
		},
	}
}

func TestActivateThenCreateInstance(t *testing.T) {
	s := New(zerolog.Nop(), registry.New())
	factory := &fakeFactory{}

	genID, err := s.Activate(testManifest("p1"), factory)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if genID == 0 {
		t.Fatal("expected a non-zero generation id")
	}

	inst, err := s.CreateInstance("p1", model.CapabilityDecoder, "flac", nil)
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if inst.ID == "" {
		t.Fatal("expected a non-empty instance id")
	}
	if factory.created != 1 {
		t.Fatalf("factory.created = %d, want 1", factory.created)
	}
	inst.Release()
}

func TestReactivateDrainsPriorGenerationButKeepsLiveInstances(t *testing.T) {
	s := New(zerolog.Nop(), registry.New())
	factory := &fakeFactory{}

	s.Activate(testManifest("p1"), factory)
	inst, err := s.CreateInstance("p1", model.CapabilityDecoder, "flac", nil)
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	if _, err := s.Activate(testManifest("p1"), factory); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	// The old instance's generation is draining but still pinned, so it
	// must not be collectible yet.
	if collected := s.CollectReadyForUnload("p1"); collected != 0 {
		t.Fatalf("expected 0 collected while instance is live, got %d", collected)
	}

	inst.Release()
	if collected := s.CollectReadyForUnload("p1"); collected != 1 {
		t.Fatalf("expected 1 collected after release, got %d", collected)
	}
}

func TestCreateInstanceAfterDeactivateFails(t *testing.T) {
	s := New(zerolog.Nop(), registry.New())
	factory := &fakeFactory{}
	s.Activate(testManifest("p1"), factory)
	s.Deactivate("p1")

	_, err := s.CreateInstance("p1", model.CapabilityDecoder, "flac", nil)
	if !engineerr.Is(err, engineerr.NotFound) {
		t.Fatalf("expected NotFound after deactivate, got %v", err)
	}
}

func TestDisabledPluginRejectsActivation(t *testing.T) {
	s := New(zerolog.Nop(), registry.New())
	s.Disable("p1")

	_, err := s.Activate(testManifest("p1"), &fakeFactory{})
	if !engineerr.Is(err, engineerr.Denied) {
		t.Fatalf("expected Denied, got %v", err)
	}
}

func TestManifestValidateRejectsMissingFields(t *testing.T) {
	m := Manifest{ID: "p1"}
	if err := m.Validate(); !engineerr.Is(err, engineerr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}
