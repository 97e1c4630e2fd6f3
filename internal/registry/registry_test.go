package registry

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/model"
)

func decoderDesc(typeID string, scores map[string]int) model.CapabilityDescriptor {
	return model.CapabilityDescriptor{
		Kind:             model.CapabilityDecoder,
		TypeID:           typeID,
		DecoderExtScores: scores,
	}
}

// §8 scenario 6: two decoders advertise mp3 (P1 score 100, P2 score 50); a
// third wildcard decoder P3 score 10. Candidates must be [P1, P2, P3].
func TestDecoderCandidateOrdering(t *testing.T) {
	r := New()
	r.RegisterGeneration("p1", NewGuard(1), []model.CapabilityDescriptor{decoderDesc("mp3dec", map[string]int{"mp3": 100})})
	r.RegisterGeneration("p2", NewGuard(1), []model.CapabilityDescriptor{decoderDesc("mp3dec2", map[string]int{"mp3": 50})})
	r.RegisterGeneration("p3", NewGuard(1), []model.CapabilityDescriptor{decoderDesc("anydec", map[string]int{"*": 10})})

	candidates := r.DecoderCandidates("mp3")
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
	want := []string{"p1", "p2", "p3"}
	for i, c := range candidates {
		if c.PluginID != want[i] {
			t.Errorf("candidate[%d] = %s, want %s", i, c.PluginID, want[i])
		}
	}
}

func TestDecoderCandidateExactOverridesWildcardForSamePlugin(t *testing.T) {
	r := New()
	r.RegisterGeneration("p1", NewGuard(1), []model.CapabilityDescriptor{
		decoderDesc("dec", map[string]int{"flac": 5, "*": 90}),
	})
	candidates := r.DecoderCandidates("flac")
	if len(candidates) != 1 || candidates[0].Score != 5 {
		t.Fatalf("expected exact score 5 to win over wildcard 90, got %+v", candidates)
	}
}

func TestDecoderCandidatesFallBackToRegistrationOrderWhenEmpty(t *testing.T) {
	r := New()
	r.RegisterGeneration("p2", NewGuard(1), []model.CapabilityDescriptor{decoderDesc("dec2", nil)})
	r.RegisterGeneration("p1", NewGuard(1), []model.CapabilityDescriptor{decoderDesc("dec1", nil)})
	candidates := r.DecoderCandidates("ogg")
	if len(candidates) != 2 {
		t.Fatalf("expected fallback to all decoders, got %d", len(candidates))
	}
	// Registration order, not plugin-id order: p2 was registered first.
	want := []string{"p2", "p1"}
	for i, c := range candidates {
		if c.PluginID != want[i] {
			t.Fatalf("candidate[%d] = %s, want %s (registration order)", i, c.PluginID, want[i])
		}
	}
}

func TestFindScopedToActiveGeneration(t *testing.T) {
	r := New()
	guard1 := NewGuard(1)
	r.RegisterGeneration("p1", guard1, []model.CapabilityDescriptor{{Kind: model.CapabilityDSP, TypeID: "eq"}})

	if _, _, err := r.Find("p1", model.CapabilityDSP, "eq"); err != nil {
		t.Fatalf("expected to find active generation's capability: %v", err)
	}

	guard1.Deactivate()
	guard2 := NewGuard(2)
	r.RegisterGeneration("p1", guard2, []model.CapabilityDescriptor{{Kind: model.CapabilityDSP, TypeID: "eq2"}})

	if _, _, err := r.Find("p1", model.CapabilityDSP, "eq"); err == nil {
		t.Fatal("old generation's capability must not resolve once superseded")
	}
	if _, _, err := r.Find("p1", model.CapabilityDSP, "eq2"); err != nil {
		t.Fatalf("new generation's capability should resolve: %v", err)
	}
}

func TestFindUnknownPluginReturnsNotFound(t *testing.T) {
	r := New()
	if _, _, err := r.Find("ghost", model.CapabilityDecoder, "x"); err == nil {
		t.Fatal("expected not-found error for unknown plugin")
	}
}
