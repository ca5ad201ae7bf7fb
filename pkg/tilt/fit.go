package tilt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/zernike"
)

// FitResult holds the fitted aberration parameters for one optics
// group. Zernike is non-nil only for the full odd-expansion fit; the
// tilt components are always populated so the two fit paths stay
// comparable.
type FitResult struct {
	Group          int
	ShiftX, ShiftY float64
	TiltX, TiltY   float64
	Zernike        []float64

	// Residual is the weighted RMS distance between the unit-normalized
	// observed field and the fitted phase surface.
	Residual float64
}

// fitInput is the reduced, normalized and masked field for one group.
type fitInput struct {
	group  int
	xyNrm  *freq.ComplexImage
	phase  *freq.RealImage
	wgh    *freq.RealImage
	s      int
	angpix float64
	cs     float64 // mm
	lambda float64 // Å
}

// fitModel is one of the two fit strategies. Both consume the same
// accumulate/normalize/mask pipeline output and differ only here.
type fitModel interface {
	fit(in fitInput) (FitResult, error)
}

// modelForDegree selects the fit strategy from the configured maximum
// odd Zernike degree.
func modelForDegree(nMax int) fitModel {
	if nMax < 3 {
		return tiltOnlyModel{}
	}
	return zernikeModel{nMax: nMax}
}

// tiltCoefficient converts between beam tilt and the cubic phase-ramp
// coefficient in reciprocal-angstrom coordinates:
// phi(q) = coeff * |q|^2 * (tiltX*qx + tiltY*qy).
func tiltCoefficient(csMM, lambda float64) float64 {
	return 0.360 * csMM * 1e7 * lambda * lambda
}

// bins is the flattened set of usable (positive-weight) frequency bins.
type bins struct {
	qx, qy, w []float64
	phase     []float64
	re, im    []float64 // unit-normalized observed field
}

func collectBins(in fitInput) bins {
	var b bins
	as := float64(in.s) * in.angpix
	for y := 0; y < in.wgh.H; y++ {
		qy := float64(freq.SignedFreq(y, in.s)) / as
		for x := 0; x < in.wgh.W; x++ {
			i := y*in.wgh.W + x
			w := in.wgh.Data[i]
			if w <= 0 {
				continue
			}
			z := in.xyNrm.Data[i]
			mag := math.Hypot(real(z), imag(z))
			if mag == 0 {
				continue
			}
			b.qx = append(b.qx, float64(x)/as)
			b.qy = append(b.qy, qy)
			b.w = append(b.w, w)
			b.phase = append(b.phase, in.phase.Data[i])
			b.re = append(b.re, real(z)/mag)
			b.im = append(b.im, imag(z)/mag)
		}
	}
	return b
}

// complexResidual is the objective shared by both refinement steps:
// the weighted squared distance between the unit-normalized observed
// field and the unit phasor of the modeled phase.
func complexResidual(b bins, phi []float64) float64 {
	cost := 0.0
	for i := range b.w {
		dre := b.re[i] - math.Cos(phi[i])
		dim := b.im[i] - math.Sin(phi[i])
		cost += b.w[i] * (dre*dre + dim*dim)
	}
	return cost
}

func refine(b bins, x0 []float64, phiAt func(x []float64, i int) float64) []float64 {
	phi := make([]float64, len(b.w))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i := range phi {
				phi[i] = phiAt(x, i)
			}
			return complexResidual(b, phi)
		},
	}
	res, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil || res == nil {
		return x0
	}
	return res.X
}

func weightedRMS(b bins, phiAt func(i int) float64) float64 {
	if len(b.w) == 0 {
		return 0
	}
	sq := make([]float64, len(b.w))
	for i := range b.w {
		dre := b.re[i] - math.Cos(phiAt(i))
		dim := b.im[i] - math.Sin(phiAt(i))
		sq[i] = dre*dre + dim*dim
	}
	return math.Sqrt(stat.Mean(sq, b.w))
}

// tiltOnlyModel fits the planar tilt/shift ramp
// phi = sx*qx + sy*qy + c*|q|^2*(tx*qx + ty*qy)
// by a closed-form weighted linear solve on the phase field, then
// refines against the complex field.
type tiltOnlyModel struct{}

func (tiltOnlyModel) fit(in fitInput) (FitResult, error) {
	b := collectBins(in)
	if len(b.w) == 0 {
		return FitResult{}, fmt.Errorf("%w: group %d has no usable bins", ErrDegenerateFit, in.group)
	}
	c := tiltCoefficient(in.cs, in.lambda)

	basis := func(i int, out []float64) {
		q2 := b.qx[i]*b.qx[i] + b.qy[i]*b.qy[i]
		out[0] = b.qx[i]
		out[1] = b.qy[i]
		out[2] = c * q2 * b.qx[i]
		out[3] = c * q2 * b.qy[i]
	}

	a := mat.NewDense(4, 4, nil)
	rhs := mat.NewVecDense(4, nil)
	row := make([]float64, 4)
	for i := range b.w {
		basis(i, row)
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				a.Set(j, k, a.At(j, k)+b.w[i]*row[j]*row[k])
			}
			rhs.SetVec(j, rhs.AtVec(j)+b.w[i]*row[j]*b.phase[i])
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err != nil {
		return FitResult{}, fmt.Errorf("%w: group %d: singular tilt system: %v",
			ErrDegenerateFit, in.group, err)
	}

	x0 := []float64{sol.AtVec(0), sol.AtVec(1), sol.AtVec(2), sol.AtVec(3)}
	phiAt := func(x []float64, i int) float64 {
		q2 := b.qx[i]*b.qx[i] + b.qy[i]*b.qy[i]
		return x[0]*b.qx[i] + x[1]*b.qy[i] + c*q2*(x[2]*b.qx[i]+x[3]*b.qy[i])
	}
	x := refine(b, x0, phiAt)

	return FitResult{
		Group:    in.group,
		ShiftX:   x[0],
		ShiftY:   x[1],
		TiltX:    x[2],
		TiltY:    x[3],
		Residual: weightedRMS(b, func(i int) float64 { return phiAt(x, i) }),
	}, nil
}

// zernikeModel fits a weighted linear combination of odd Zernike basis
// polynomials against the complex field. The linear pass targets the
// imaginary part of the unit-normalized field (the sine of the phase),
// which sidesteps phase unwrapping; refinement against the full complex
// objective then removes the small-angle bias. The degree-3 m=±1
// coefficients yield the reported tilt.
type zernikeModel struct {
	nMax int
}

func (zm zernikeModel) fit(in fitInput) (FitResult, error) {
	b := collectBins(in)
	if len(b.w) == 0 {
		return FitResult{}, fmt.Errorf("%w: group %d has no usable bins", ErrDegenerateFit, in.group)
	}

	k := zernike.NumOdd(zm.nMax)
	basis := make([][]float64, k)
	for j := 0; j < k; j++ {
		zmIdx, znIdx, err := zernike.OddIndex(j)
		if err != nil {
			return FitResult{}, err
		}
		basis[j] = make([]float64, len(b.w))
		for i := range b.w {
			basis[j][i] = zernike.Z(zmIdx, znIdx, b.qx[i], b.qy[i])
		}
	}

	a := mat.NewDense(k, k, nil)
	rhs := mat.NewVecDense(k, nil)
	for i := range b.w {
		for j := 0; j < k; j++ {
			for l := 0; l < k; l++ {
				a.Set(j, l, a.At(j, l)+b.w[i]*basis[j][i]*basis[l][i])
			}
			rhs.SetVec(j, rhs.AtVec(j)+b.w[i]*basis[j][i]*b.im[i])
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err != nil {
		return FitResult{}, fmt.Errorf("%w: group %d: singular Zernike system: %v",
			ErrDegenerateFit, in.group, err)
	}
	x0 := make([]float64, k)
	for j := 0; j < k; j++ {
		x0[j] = sol.AtVec(j)
	}

	phiAt := func(x []float64, i int) float64 {
		phi := 0.0
		for j := 0; j < k; j++ {
			phi += x[j] * basis[j][i]
		}
		return phi
	}
	coeffs := refine(b, x0, phiAt)

	tx, ty, sx, sy, err := extractTilt(coeffs, in.cs, in.lambda)
	if err != nil {
		return FitResult{}, err
	}
	return FitResult{
		Group:    in.group,
		ShiftX:   sx,
		ShiftY:   sy,
		TiltX:    tx,
		TiltY:    ty,
		Zernike:  coeffs,
		Residual: weightedRMS(b, func(i int) float64 { return phiAt(coeffs, i) }),
	}, nil
}

// extractTilt recovers (tiltX, tiltY) and the residual linear shift
// from an odd coefficient vector. The cubic tilt ramp decomposes as
// c*|q|^2*qx = c/3 * (Z(1,3) + 2*Z(1,1)), so the degree-3 m=±1
// coefficients determine the tilt and the matching share of the
// degree-1 coefficients is subtracted to leave the pure shift.
func extractTilt(coeffs []float64, csMM, lambda float64) (tx, ty, sx, sy float64, err error) {
	c := tiltCoefficient(csMM, lambda)
	i31, err := zernike.OddIndexOf(1, 3)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	i3m1, err := zernike.OddIndexOf(-1, 3)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	i11, err := zernike.OddIndexOf(1, 1)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	i1m1, err := zernike.OddIndexOf(-1, 1)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	tx = 3 * coeffs[i31] / c
	ty = 3 * coeffs[i3m1] / c
	sx = coeffs[i11] - 2*c*tx/3
	sy = coeffs[i1m1] - 2*c*ty/3
	return tx, ty, sx, sy, nil
}

// zernikeFromTilt expresses a pure tilt as odd Zernike coefficients up
// to degree nMax. Inverse of extractTilt; used by tests and synthetic
// data generation.
func zernikeFromTilt(tx, ty, csMM, lambda float64, nMax int) []float64 {
	c := tiltCoefficient(csMM, lambda)
	coeffs := make([]float64, zernike.NumOdd(nMax))
	i31, _ := zernike.OddIndexOf(1, 3)
	i3m1, _ := zernike.OddIndexOf(-1, 3)
	i11, _ := zernike.OddIndexOf(1, 1)
	i1m1, _ := zernike.OddIndexOf(-1, 1)
	coeffs[i31] = c * tx / 3
	coeffs[i3m1] = c * ty / 3
	coeffs[i11] = 2 * c * tx / 3
	coeffs[i1m1] = 2 * c * ty / 3
	return coeffs
}

// TiltPhase evaluates the tilt-induced phase at reciprocal coordinates
// (qx, qy) for the given tilt and optics constants. Shared by the
// forward model, the fit surfaces and synthetic data generation.
func TiltPhase(tx, ty, csMM, lambda, qx, qy float64) float64 {
	c := tiltCoefficient(csMM, lambda)
	q2 := qx*qx + qy*qy
	return c * q2 * (tx*qx + ty*qy)
}
