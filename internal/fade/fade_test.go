package fade

import "testing"

func TestVolumeLinearFadeOutIsInverse(t *testing.T) {
	if v := Volume(0, Linear, false); v != 1 {
		t.Fatalf("fade-out at progress 0 = %v, want 1", v)
	}
	if v := Volume(1, Linear, false); v != 0 {
		t.Fatalf("fade-out at progress 1 = %v, want 0", v)
	}
}

func TestVolumeFadeInEndpoints(t *testing.T) {
	for _, c := range []Curve{Linear, Logarithmic, Exponential, SCurve} {
		if v := Volume(0, c, true); v < -1e-9 || v > 1e-9 {
			t.Errorf("curve %v fade-in at 0 = %v, want ~0", c, v)
		}
		if v := Volume(1, c, true); v < 1-1e-9*10 || v > 1+1e-6 {
			t.Errorf("curve %v fade-in at 1 = %v, want ~1", c, v)
		}
	}
}

func TestVolumeClampsOutOfRangeProgress(t *testing.T) {
	if v := Volume(-5, Linear, true); v != 0 {
		t.Fatalf("negative progress should clamp to 0, got %v", v)
	}
	if v := Volume(5, Linear, true); v != 1 {
		t.Fatalf("progress>1 should clamp to 1, got %v", v)
	}
}

// NewFitToAvailable must guarantee the ramp completes within the frames
// available even near EOF (§4.D near-EOF fade guarantee).
func TestFitToAvailableCompletesWithinWindow(t *testing.T) {
	r := NewFitToAvailable(Linear, false, 100, 2, 1.0, 0.0)
	if !r.Done(102) {
		t.Fatalf("ramp should be done exactly at start+available frames")
	}
	if g := r.GainAt(102); g != 0.0 {
		t.Fatalf("gain at completion = %v, want 0", g)
	}
	if g := r.GainAt(100); g != 1.0 {
		t.Fatalf("gain at start = %v, want start gain 1.0", g)
	}
}

func TestFitToAvailableZeroFramesStillTerminates(t *testing.T) {
	r := NewFitToAvailable(Linear, true, 10, 0, 0.0, 1.0)
	if !r.Done(11) {
		t.Fatalf("zero-available ramp should finish within one frame")
	}
}
