package freq

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DecenterUnflip expands a half-plane real image into a full, centered
// S x S plane for inspection. The missing half is filled by point
// reflection through the origin with a sign flip, which is the correct
// completion for antisymmetric quantities such as phase fields.
func DecenterUnflip(src *RealImage) (*RealImage, error) {
	if !src.HalfPlane() {
		return nil, fmt.Errorf("%w: %dx%d is not a half plane", ErrSizeMismatch, src.W, src.H)
	}
	s := src.H
	out := &RealImage{W: s, H: s, Data: make([]float64, s*s)}

	for i := 0; i < s; i++ {
		ky := i - s/2
		for j := 0; j < s; j++ {
			kx := j - s/2
			var v float64
			if kx >= 0 {
				v = src.At(kx, wrapRow(ky, s))
			} else {
				v = -src.At(-kx, wrapRow(-ky, s))
			}
			out.Data[i*s+j] = v
		}
	}
	return out, nil
}

// ToSpatial converts a half-plane complex image back to its real-space
// S x S counterpart via an inverse 2D FFT. The half plane is first
// completed to a full Hermitian plane, so the result is real up to
// rounding. Used for diagnostics only; the estimation pipeline itself
// never leaves frequency space.
func ToSpatial(src *ComplexImage) ([]float64, error) {
	if !src.HalfPlane() {
		return nil, fmt.Errorf("%w: %dx%d is not a half plane", ErrSizeMismatch, src.W, src.H)
	}
	s := src.H
	sh := src.W

	// Hermitian completion: F(-k) = conj(F(k)).
	full := make([]complex128, s*s)
	for y := 0; y < s; y++ {
		for x := 0; x < sh; x++ {
			full[y*s+x] = src.At(x, y)
		}
		for x := sh; x < s; x++ {
			mx := s - x
			my := (s - y) % s
			v := src.At(mx, my)
			full[y*s+x] = complex(real(v), -imag(v))
		}
	}

	cf := fourier.NewCmplxFFT(s)

	// Conjugating first turns the forward transform below into the
	// inverse one; the imaginary parts are dropped at the end anyway.
	for i, v := range full {
		full[i] = complex(real(v), -imag(v))
	}

	// Transform along rows, then columns.
	row := make([]complex128, s)
	tmp := make([]complex128, s)
	for y := 0; y < s; y++ {
		copy(row, full[y*s:(y+1)*s])
		cf.Sequence(tmp, row)
		copy(full[y*s:(y+1)*s], tmp)
	}
	col := make([]complex128, s)
	for x := 0; x < s; x++ {
		for y := 0; y < s; y++ {
			col[y] = full[y*s+x]
		}
		cf.Sequence(tmp, col)
		for y := 0; y < s; y++ {
			full[y*s+x] = tmp[y]
		}
	}

	// The gonum inverse is unnormalized.
	norm := 1.0 / float64(s*s)
	out := make([]float64, s*s)
	for i, v := range full {
		out[i] = real(v) * norm
	}
	return out, nil
}

func wrapRow(k, s int) int {
	if k < 0 {
		return k + s
	}
	return k
}
