/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stage

import "github.com/friendsincode/audioengine/internal/engineerr"

// ChainSpec names the optional members of the fixed assembly order
// (§4.D): gapless-trim, pre-mix DSPs, mixer, resampler, user transforms,
// post-mix DSPs, transition-gain, master-gain.
type ChainSpec struct {
	GaplessTrim    Transform // nil if disabled
	PreMixDSPs     []Transform
	Mixer          Transform // nil if disabled
	Resampler      Transform // nil if disabled
	UserTransforms []Transform
	PostMixDSPs    []Transform
	TransitionGain Transform // nil if disabled
	MasterGain     Transform // nil if disabled
}

// BuildChain assembles the transform list in the CORE's fixed order and
// rejects duplicate stage keys at construction time.
func BuildChain(spec ChainSpec) ([]Transform, error) {
	var chain []Transform

	appendStage := func(t Transform) {
		if t != nil {
			chain = append(chain, t)
		}
	}

	appendStage(spec.GaplessTrim)
	for _, t := range spec.PreMixDSPs {
		appendStage(t)
	}
	appendStage(spec.Mixer)
	appendStage(spec.Resampler)
	for _, t := range spec.UserTransforms {
		appendStage(t)
	}
	for _, t := range spec.PostMixDSPs {
		appendStage(t)
	}
	appendStage(spec.TransitionGain)
	appendStage(spec.MasterGain)

	seen := make(map[string]bool)
	for _, t := range chain {
		key := t.StageKey()
		if key == "" {
			continue
		}
		if seen[key] {
			return nil, engineerr.New(engineerr.InvalidInput, "duplicate stage key: "+key)
		}
		seen[key] = true
	}

	return chain, nil
}

// FindByKey resolves a transform by its stage key, for routing
// apply_transform_control_to (§4.D).
func FindByKey(chain []Transform, key string) (Transform, bool) {
	for _, t := range chain {
		if t.StageKey() == key {
			return t, true
		}
	}
	return nil, false
}
