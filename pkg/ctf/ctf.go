// Package ctf implements the contrast transfer function used for
// per-particle weighting and forward prediction. Defocus estimation is
// out of scope here: the parameters arrive pre-estimated with the
// particle metadata, and this package only evaluates the model.
package ctf

import (
	"math"

	"github.com/sagarbiophysics/relion/pkg/metadata"
)

// CTF evaluates the contrast transfer function for one particle.
// Frequencies are in reciprocal angstroms.
type CTF struct {
	DefocusU   float64 // Å
	DefocusV   float64 // Å
	AstigAngle float64 // radians
	Lambda     float64 // electron wavelength, Å
	Cs         float64 // spherical aberration, mm
	Q0         float64 // amplitude contrast fraction
	PhaseShift float64 // radians

	k1, k2, k3 float64
}

// Derive builds the per-particle CTF from particle metadata and the
// optics-group calibration values.
func Derive(p metadata.Particle, lambda, cs, q0 float64) CTF {
	c := CTF{
		DefocusU:   p.DefocusU,
		DefocusV:   p.DefocusV,
		AstigAngle: p.AstigAngle,
		Lambda:     lambda,
		Cs:         cs,
		Q0:         q0,
		PhaseShift: p.PhaseShift,
	}
	c.precompute()
	return c
}

func (c *CTF) precompute() {
	csA := c.Cs * 1e7 // mm -> Å
	c.k1 = math.Pi * c.Lambda
	c.k2 = math.Pi / 2 * csA * c.Lambda * c.Lambda * c.Lambda
	c.k3 = math.Atan2(c.Q0, math.Sqrt(1-c.Q0*c.Q0))
}

// Value evaluates the CTF at frequency (qx, qy) in 1/Å. gammaOffset is
// the symmetric-aberration phase offset for this bin (zero when the
// optics group has no even Zernike terms).
func (c CTF) Value(qx, qy, gammaOffset float64) float64 {
	if c.k1 == 0 && c.k2 == 0 {
		c.precompute()
	}
	q2 := qx*qx + qy*qy
	angle := math.Atan2(qy, qx)
	deltaF := 0.5 * (c.DefocusU + c.DefocusV +
		(c.DefocusU-c.DefocusV)*math.Cos(2*(angle-c.AstigAngle)))
	gamma := c.k1*deltaF*q2 - c.k2*q2*q2 - c.PhaseShift - c.k3 + gammaOffset
	return -math.Sin(gamma)
}
