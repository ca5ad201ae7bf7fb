package tilt

import (
	"math"

	"github.com/sagarbiophysics/relion/pkg/freq"
)

// NormalizeField divides the complex sum by the weight sum elementwise.
// Bins with non-positive weight normalize to exactly zero; the weight
// image doubles as the confidence mask downstream.
func NormalizeField(xy *freq.ComplexImage, w *freq.RealImage) *freq.ComplexImage {
	out := freq.NewComplexImage(xy.H)
	for i, v := range xy.Data {
		if w.Data[i] > 0 {
			out.Data[i] = v / complex(w.Data[i], 0)
		}
	}
	return out
}

// PhaseOf returns the per-bin phase of a complex field. Zero bins map
// to phase zero.
func PhaseOf(xy *freq.ComplexImage) *freq.RealImage {
	out := freq.NewRealImage(xy.H)
	for i, v := range xy.Data {
		out.Data[i] = math.Atan2(imag(v), real(v))
	}
	return out
}

// ApplyMask zeroes unreliable bins of the weight image in place.
//
// Low-resolution bins inside kminPx Fourier pixels (equivalently, with
// angstrom radius ra = s*angpix/r above the configured kmin) are
// removed, as is the DC bin. If xring1 is positive, bins whose angstrom
// radius falls in (xring0, xring1] are removed as well.
func ApplyMask(w *freq.RealImage, angpix, kminPx, xring0, xring1 float64) {
	s := w.H
	for y := 0; y < w.H; y++ {
		yy := float64(freq.SignedFreq(y, s))
		for x := 0; x < w.W; x++ {
			xx := float64(x)
			rp := math.Sqrt(xx*xx + yy*yy)
			if rp < kminPx || rp == 0 {
				w.Set(x, y, 0)
				continue
			}
			if xring1 > 0 {
				ra := float64(s) * angpix / rp
				if ra > xring0 && ra <= xring1 {
					w.Set(x, y, 0)
				}
			}
		}
	}
}

// TotalWeight sums a weight image.
func TotalWeight(w *freq.RealImage) float64 {
	t := 0.0
	for _, v := range w.Data {
		t += v
	}
	return t
}
