package stage

import (
	"testing"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

type stubTransform struct{ key string }

func (s *stubTransform) Prepare(spec model.StreamSpec, ctx *model.PipelineContext) (model.StreamSpec, error) {
	return spec, nil
}
func (s *stubTransform) SyncRuntimeControl(ctx *model.PipelineContext) error { return nil }
func (s *stubTransform) Process(block *model.AudioBlock, ctx *model.PipelineContext) (Status, error) {
	return Ok, nil
}
func (s *stubTransform) StageKey() string                                          { return s.key }
func (s *stubTransform) ApplyControl(control Control, ctx *model.PipelineContext) bool { return false }
func (s *stubTransform) Flush(ctx *model.PipelineContext) error                    { return nil }
func (s *stubTransform) Stop(ctx *model.PipelineContext) error                     { return nil }

func TestBuildChainOrdersFixedly(t *testing.T) {
	gapless := &stubTransform{key: "gapless_trim"}
	mixer := &stubTransform{key: ""}
	resampler := &stubTransform{key: ""}
	user := &stubTransform{key: "user1"}
	transition := &stubTransform{key: "transition_gain"}
	master := &stubTransform{key: "master_gain"}

	chain, err := BuildChain(ChainSpec{
		GaplessTrim:    gapless,
		Mixer:          mixer,
		Resampler:      resampler,
		UserTransforms: []Transform{user},
		TransitionGain: transition,
		MasterGain:     master,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Transform{gapless, mixer, resampler, user, transition, master}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] out of order", i)
		}
	}
}

func TestBuildChainRejectsDuplicateStageKeys(t *testing.T) {
	_, err := BuildChain(ChainSpec{
		PreMixDSPs:  []Transform{&stubTransform{key: "eq"}},
		PostMixDSPs: []Transform{&stubTransform{key: "eq"}},
	})
	if !engineerr.Is(err, engineerr.InvalidInput) {
		t.Fatalf("expected InvalidInput for duplicate key, got %v", err)
	}
}

func TestFindByKey(t *testing.T) {
	target := &stubTransform{key: "target"}
	chain := []Transform{&stubTransform{key: "a"}, target}
	found, ok := FindByKey(chain, "target")
	if !ok || found != target {
		t.Fatal("expected to find target by key")
	}
	if _, ok := FindByKey(chain, "missing"); ok {
		t.Fatal("expected missing key to not be found")
	}
}
