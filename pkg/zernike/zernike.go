// Package zernike evaluates Zernike polynomials in cartesian form and
// defines the linear index orders used for aberration coefficient
// vectors. Antisymmetric (odd) aberrations are expansions over odd-n
// terms, symmetric (even) aberrations over even-n terms.
//
// The index enumerations below fix the layout of every coefficient
// vector in the optics calibration records: ascending n, and within
// each n ascending m from -n to n in steps of two.
package zernike

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidIndex is returned for (m, n) pairs that do not name a
// Zernike term, or for out-of-range linear indices.
var ErrInvalidIndex = errors.New("zernike: invalid index")

// R evaluates the radial polynomial R_n^|m|(r). It is zero when n-|m|
// is odd, matching the standard convention.
func R(m, n int, r float64) float64 {
	if m < 0 {
		m = -m
	}
	if (n-m)%2 != 0 || m > n {
		return 0
	}
	sum := 0.0
	for k := 0; k <= (n-m)/2; k++ {
		c := float64(factorial(n-k)) /
			(float64(factorial(k)) * float64(factorial((n+m)/2-k)) * float64(factorial((n-m)/2-k)))
		if k%2 != 0 {
			c = -c
		}
		sum += c * math.Pow(r, float64(n-2*k))
	}
	return sum
}

// Z evaluates the cartesian Zernike term Z_n^m at (x, y). Negative m
// selects the sine harmonic, non-negative m the cosine harmonic. The
// coordinates are not restricted to the unit disk: aberration phases
// are evaluated on raw reciprocal-space coordinates.
func Z(m, n int, x, y float64) float64 {
	r := math.Hypot(x, y)
	theta := math.Atan2(y, x)
	if m >= 0 {
		return R(m, n, r) * math.Cos(float64(m)*theta)
	}
	return R(m, n, r) * math.Sin(float64(-m)*theta)
}

// NumOdd returns the number of odd-n terms with n <= nMax.
func NumOdd(nMax int) int {
	c := 0
	for n := 1; n <= nMax; n += 2 {
		c += n + 1
	}
	return c
}

// NumEven returns the number of even-n terms with n <= nMax,
// including the n = 0 piston term.
func NumEven(nMax int) int {
	c := 0
	for n := 0; n <= nMax; n += 2 {
		c += n + 1
	}
	return c
}

// OddIndex maps a linear coefficient index to its (m, n) pair in the
// odd enumeration.
func OddIndex(i int) (m, n int, err error) {
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	k := i
	for n := 1; ; n += 2 {
		if k < n+1 {
			return -n + 2*k, n, nil
		}
		k -= n + 1
	}
}

// EvenIndex maps a linear coefficient index to its (m, n) pair in the
// even enumeration.
func EvenIndex(i int) (m, n int, err error) {
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	k := i
	for n := 0; ; n += 2 {
		if k < n+1 {
			return -n + 2*k, n, nil
		}
		k -= n + 1
	}
}

// OddIndexOf returns the linear index of (m, n) in the odd enumeration.
func OddIndexOf(m, n int) (int, error) {
	if n < 1 || n%2 == 0 || m < -n || m > n || (n-m)%2 != 0 {
		return 0, fmt.Errorf("%w: m=%d n=%d", ErrInvalidIndex, m, n)
	}
	idx := 0
	for nn := 1; nn < n; nn += 2 {
		idx += nn + 1
	}
	return idx + (m+n)/2, nil
}

func factorial(n int) int64 {
	f := int64(1)
	for i := 2; i <= n; i++ {
		f *= int64(i)
	}
	return f
}
