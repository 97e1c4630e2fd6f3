/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fade implements the gain-ramp curves used by the transition-gain
// and master-gain pipeline stages.
package fade

import "math"

// Curve selects the shape of a gain ramp.
type Curve int

const (
	Linear Curve = iota
	Logarithmic
	Exponential
	SCurve
)

// Volume returns the gain multiplier at progress in [0,1] for the given
// curve. fadeIn inverts the curve's natural fade-out direction.
func Volume(progress float64, curve Curve, fadeIn bool) float64 {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	var v float64
	switch curve {
	case Logarithmic:
		v = math.Log10(progress*9+1)
	case Exponential:
		v = math.Pow(progress, 2)
	case SCurve:
		// cubic ease-in-out
		if progress < 0.5 {
			v = 4 * progress * progress * progress
		} else {
			f := -2*progress + 2
			v = 1 - (f*f*f)/2
		}
	default: // Linear
		v = progress
	}

	if fadeIn {
		return v
	}
	return 1 - v
}

// TimePolicy selects how a TransitionGain control's duration is derived.
type TimePolicy int

const (
	// FixedDuration ramps over an explicit duration regardless of track
	// remaining length.
	FixedDuration TimePolicy = iota
	// FitToAvailable ramps over whatever is left of the track, so a fade
	// started near EOF always completes within the remaining audio.
	FitToAvailable
)

// Ramp is a single in-flight gain ramp tracked by frame position.
type Ramp struct {
	Curve          Curve
	FadeIn         bool
	StartFrame     uint64
	DurationFrames uint64
	TargetGain     float64
	StartGain      float64
}

// NewFitToAvailable builds a ramp that is guaranteed to finish within
// availableFrames, per §4.D's near-EOF fade guarantee.
func NewFitToAvailable(curve Curve, fadeIn bool, startFrame uint64, availableFrames uint64, startGain, targetGain float64) Ramp {
	duration := availableFrames
	if duration == 0 {
		duration = 1
	}
	return Ramp{
		Curve:          curve,
		FadeIn:         fadeIn,
		StartFrame:     startFrame,
		DurationFrames: duration,
		TargetGain:     targetGain,
		StartGain:      startGain,
	}
}

// GainAt returns the interpolated gain at the given absolute frame index.
// Once the ramp's duration has elapsed, it holds steady at TargetGain.
func (r Ramp) GainAt(frame uint64) float64 {
	if frame <= r.StartFrame {
		return r.StartGain
	}
	elapsed := frame - r.StartFrame
	if elapsed >= r.DurationFrames {
		return r.TargetGain
	}
	progress := float64(elapsed) / float64(r.DurationFrames)
	shaped := Volume(progress, r.Curve, r.FadeIn)
	if r.FadeIn {
		return r.StartGain + (r.TargetGain-r.StartGain)*shaped
	}
	// A fade-out curve runs from 1 down to 0, so it weights StartGain.
	return r.TargetGain + (r.StartGain-r.TargetGain)*shaped
}

// Done reports whether the ramp has reached its target by the given frame.
func (r Ramp) Done(frame uint64) bool {
	return frame >= r.StartFrame+r.DurationFrames
}
