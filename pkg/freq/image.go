// Package freq provides 2D image containers over the Fourier half plane
// together with the frequency-index conventions shared by the whole
// aberration pipeline.
//
// Images produced by a real-to-complex transform of an S x S micrograph
// occupy a half plane of width S/2+1 and height S. Row index y maps to the
// signed frequency y for y <= S/2 and y-S otherwise; column index x is the
// non-negative frequency x. All radius and angle computations in this
// repository go through SignedFreq so the mapping stays consistent.
package freq

import (
	"errors"
	"fmt"
)

// ErrSizeMismatch is returned when two images with different dimensions are
// combined, or when an image does not have half-plane dimensions.
var ErrSizeMismatch = errors.New("freq: image size mismatch")

// ComplexImage is a complex-valued image over the Fourier half plane,
// stored row-major with width W = S/2+1 and height H = S.
type ComplexImage struct {
	W, H int
	Data []complex128
}

// RealImage is a real-valued image over the Fourier half plane.
type RealImage struct {
	W, H int
	Data []float64
}

// NewComplexImage allocates a zeroed half-plane image for logical size s.
func NewComplexImage(s int) *ComplexImage {
	return &ComplexImage{
		W:    s/2 + 1,
		H:    s,
		Data: make([]complex128, (s/2+1)*s),
	}
}

// NewRealImage allocates a zeroed half-plane image for logical size s.
func NewRealImage(s int) *RealImage {
	return &RealImage{
		W:    s/2 + 1,
		H:    s,
		Data: make([]float64, (s/2+1)*s),
	}
}

// SignedFreq converts a row index into its signed frequency for an image of
// logical size s.
func SignedFreq(y, s int) int {
	if y <= s/2 {
		return y
	}
	return y - s
}

// Size returns the logical (spatial) image size S for a half-plane image.
func (im *ComplexImage) Size() int { return im.H }

// Size returns the logical (spatial) image size S for a half-plane image.
func (im *RealImage) Size() int { return im.H }

// HalfPlane reports whether the image has the dimensions of a half-plane
// transform of a square image with even side length.
func (im *ComplexImage) HalfPlane() bool {
	return im.H > 0 && im.H%2 == 0 && im.W == im.H/2+1 && len(im.Data) == im.W*im.H
}

// HalfPlane reports whether the image has half-plane dimensions.
func (im *RealImage) HalfPlane() bool {
	return im.H > 0 && im.H%2 == 0 && im.W == im.H/2+1 && len(im.Data) == im.W*im.H
}

// At returns the value at column x, row y.
func (im *ComplexImage) At(x, y int) complex128 { return im.Data[y*im.W+x] }

// Set stores v at column x, row y.
func (im *ComplexImage) Set(x, y int, v complex128) { im.Data[y*im.W+x] = v }

// At returns the value at column x, row y.
func (im *RealImage) At(x, y int) float64 { return im.Data[y*im.W+x] }

// Set stores v at column x, row y.
func (im *RealImage) Set(x, y int, v float64) { im.Data[y*im.W+x] = v }

// Add accumulates other into im elementwise.
func (im *ComplexImage) Add(other *ComplexImage) error {
	if im.W != other.W || im.H != other.H {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, im.W, im.H, other.W, other.H)
	}
	for i, v := range other.Data {
		im.Data[i] += v
	}
	return nil
}

// Add accumulates other into im elementwise.
func (im *RealImage) Add(other *RealImage) error {
	if im.W != other.W || im.H != other.H {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, im.W, im.H, other.W, other.H)
	}
	for i, v := range other.Data {
		im.Data[i] += v
	}
	return nil
}

// Clone returns a deep copy.
func (im *ComplexImage) Clone() *ComplexImage {
	out := &ComplexImage{W: im.W, H: im.H, Data: make([]complex128, len(im.Data))}
	copy(out.Data, im.Data)
	return out
}

// Clone returns a deep copy.
func (im *RealImage) Clone() *RealImage {
	out := &RealImage{W: im.W, H: im.H, Data: make([]float64, len(im.Data))}
	copy(out.Data, im.Data)
	return out
}

// Parts splits a complex image into its real and imaginary components.
func (im *ComplexImage) Parts() (re, im2 *RealImage) {
	re = &RealImage{W: im.W, H: im.H, Data: make([]float64, len(im.Data))}
	im2 = &RealImage{W: im.W, H: im.H, Data: make([]float64, len(im.Data))}
	for i, v := range im.Data {
		re.Data[i] = real(v)
		im2.Data[i] = imag(v)
	}
	return re, im2
}

// Combine assembles a complex image from real and imaginary components.
func Combine(re, im *RealImage) (*ComplexImage, error) {
	if re.W != im.W || re.H != im.H {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, re.W, re.H, im.W, im.H)
	}
	out := &ComplexImage{W: re.W, H: re.H, Data: make([]complex128, len(re.Data))}
	for i := range re.Data {
		out.Data[i] = complex(re.Data[i], im.Data[i])
	}
	return out, nil
}
