package tilt

import (
	"math"
	"testing"

	"github.com/sagarbiophysics/relion/pkg/freq"
)

func TestNormalizeField(t *testing.T) {
	xy := freq.NewComplexImage(8)
	w := freq.NewRealImage(8)
	xy.Set(1, 0, complex(4, 2))
	w.Set(1, 0, 2)
	xy.Set(2, 0, complex(7, 7)) // weightless bin

	out := NormalizeField(xy, w)
	if got := out.At(1, 0); got != complex(2, 1) {
		t.Errorf("normalized bin = %v, want (2+1i)", got)
	}
	if got := out.At(2, 0); got != 0 {
		t.Errorf("zero-weight bin normalized to %v, want 0", got)
	}
	if xy.At(1, 0) != complex(4, 2) {
		t.Error("NormalizeField mutated its input")
	}
}

func TestPhaseOf(t *testing.T) {
	xy := freq.NewComplexImage(8)
	xy.Set(0, 1, complex(0, 3))
	xy.Set(1, 1, complex(-2, 0))
	p := PhaseOf(xy)
	if math.Abs(p.At(0, 1)-math.Pi/2) > 1e-12 {
		t.Errorf("phase of 3i = %v, want pi/2", p.At(0, 1))
	}
	if math.Abs(p.At(1, 1)-math.Pi) > 1e-12 {
		t.Errorf("phase of -2 = %v, want pi", p.At(1, 1))
	}
	if p.At(2, 2) != 0 {
		t.Errorf("phase of zero bin = %v, want 0", p.At(2, 2))
	}
}

// Masking contract at size 64, 1.0 A/px, kmin 20 A (3.2 px), exclusion
// ring (10 A, 20 A]. A bin's angstrom radius is s*angpix/r.
func TestApplyMask(t *testing.T) {
	const s = 64
	w := freq.NewRealImage(s)
	for i := range w.Data {
		w.Data[i] = 1
	}
	ApplyMask(w, 1.0, 3.2, 10, 20)

	cases := []struct {
		x, y int
		kept bool
		why  string
	}{
		{0, 0, false, "DC bin"},
		{2, 0, false, "r=2 below kmin"},
		{3, 0, false, "r=3 below kmin"},
		{4, 0, false, "r=4, ra=16 inside exclusion ring"},
		{0, s - 4, false, "r=4 on a negative-frequency row"},
		{6, 0, false, "r=6, ra=10.67 inside exclusion ring"},
		{7, 0, true, "r=7, ra=9.14 past the ring"},
		{8, 0, true, "r=8, ra=8"},
		{0, 32, true, "Nyquist row"},
	}
	for _, c := range cases {
		got := w.At(c.x, c.y) > 0
		if got != c.kept {
			t.Errorf("bin (%d,%d) kept=%v, want %v (%s)", c.x, c.y, got, c.kept, c.why)
		}
	}
}

func TestApplyMaskRingDisabled(t *testing.T) {
	const s = 64
	w := freq.NewRealImage(s)
	for i := range w.Data {
		w.Data[i] = 1
	}
	ApplyMask(w, 1.0, 3.2, -1, -1)

	if w.At(4, 0) != 1 {
		t.Error("r=4 masked although the exclusion ring is disabled")
	}
	if w.At(2, 0) != 0 {
		t.Error("r=2 survived the kmin cut")
	}
	if w.At(0, 0) != 0 {
		t.Error("DC bin survived")
	}
}

func TestTotalWeight(t *testing.T) {
	w := freq.NewRealImage(8)
	w.Set(0, 0, 1.5)
	w.Set(3, 2, 2.5)
	if got := TotalWeight(w); got != 4.0 {
		t.Errorf("TotalWeight = %v, want 4", got)
	}
}
