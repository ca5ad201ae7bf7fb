package tilt

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/zernike"
)

// writeDiagnostics dumps the per-bin phase field and the fitted phase
// surface for one group as centered full-plane binary images, plus a
// real-space conversion of the normalized field. These are inspection
// aids only; nothing downstream reads them.
func (e *Estimator) writeDiagnostics(og int, phase *freq.RealImage, res FitResult, in fitInput) error {
	if err := os.MkdirAll(e.p.OutPath, 0755); err != nil {
		return err
	}

	full, err := freq.DecenterUnflip(phase)
	if err != nil {
		return err
	}
	if err := e.dumpFloats(fmt.Sprintf("delta-phase_per-pixel_optics-group_%d.bin", og), full.Data); err != nil {
		return err
	}

	fit := e.fittedPhase(res, in)
	fitFull, err := freq.DecenterUnflip(fit)
	if err != nil {
		return err
	}
	if err := e.dumpFloats(fmt.Sprintf("delta-phase_fit_optics-group_%d.bin", og), fitFull.Data); err != nil {
		return err
	}

	spatial, err := freq.ToSpatial(in.xyNrm)
	if err != nil {
		return err
	}
	return e.dumpFloats(fmt.Sprintf("phase-field_real-space_optics-group_%d.bin", og), spatial)
}

// fittedPhase evaluates the fitted model over the half plane.
func (e *Estimator) fittedPhase(res FitResult, in fitInput) *freq.RealImage {
	out := freq.NewRealImage(in.s)
	as := float64(in.s) * in.angpix
	for y := 0; y < out.H; y++ {
		qy := float64(freq.SignedFreq(y, in.s)) / as
		for x := 0; x < out.W; x++ {
			qx := float64(x) / as
			var phi float64
			if res.Zernike != nil {
				for j, c := range res.Zernike {
					zm, zn, _ := zernike.OddIndex(j)
					phi += c * zernike.Z(zm, zn, qx, qy)
				}
			} else {
				phi = res.ShiftX*qx + res.ShiftY*qy +
					TiltPhase(res.TiltX, res.TiltY, in.cs, in.lambda, qx, qy)
			}
			out.Set(x, y, phi)
		}
	}
	return out
}

func (e *Estimator) dumpFloats(name string, data []float64) error {
	f, err := os.Create(filepath.Join(e.p.OutPath, name))
	if err != nil {
		return err
	}
	defer f.Close()
	for _, v := range data {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}
