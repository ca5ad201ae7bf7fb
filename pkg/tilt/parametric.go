package tilt

import (
	"errors"
	"fmt"

	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/metadata"
	"github.com/sagarbiophysics/relion/pkg/optics"
)

// ParametricFit reduces all available checkpoints across mics per
// optics group, masks unreliable frequency bins and fits the configured
// aberration model, writing fitted parameters back into table. Groups
// with no contributing micrographs, or with no usable weight after
// masking, are reported and excluded; the run still completes and the
// remaining groups' results are valid.
func (e *Estimator) ParametricFit(mics []*metadata.Micrograph, table *optics.Table) ([]FitResult, error) {
	if !e.ready {
		return nil, ErrNotInitialized
	}
	if e.p.Verbose {
		fmt.Println(" + Fitting beam tilt ...")
	}

	var results []FitResult
	for og := 1; og <= len(table.Groups); og++ {
		grp, err := table.Group(og)
		if err != nil {
			return nil, err
		}

		xySum := freq.NewComplexImage(e.s)
		wSum := freq.NewRealImage(e.s)
		used := false
		for _, m := range mics {
			ok := true
			for _, key := range checkpointKeys(m.Name, og) {
				exists, err := e.store.Exists(key)
				if err != nil {
					return nil, err
				}
				if !exists {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			xy, w, err := e.readCheckpoint(m.Name, og)
			if err != nil {
				return nil, fmt.Errorf("tilt: reading checkpoint %s group %d: %w", m.Name, og, err)
			}
			if err := xySum.Add(xy); err != nil {
				return nil, err
			}
			if err := wSum.Add(w); err != nil {
				return nil, err
			}
			used = true
		}
		if !used {
			fmt.Printf(" - optics group %d: no contributing micrographs, skipping\n", og)
			continue
		}

		xyNrm := NormalizeField(xySum, wSum)
		phase := PhaseOf(xySum)

		wgh := wSum.Clone()
		kminPx, err := e.model.AngToPix(e.p.KMin, e.s, og)
		if err != nil {
			return nil, err
		}
		ApplyMask(wgh, grp.PixelSize, kminPx, e.p.XRing0, e.p.XRing1)
		if TotalWeight(wgh) == 0 {
			fmt.Printf(" - optics group %d: no usable weight after masking, skipping\n", og)
			continue
		}

		in := fitInput{
			group:  og,
			xyNrm:  xyNrm,
			phase:  phase,
			wgh:    wgh,
			s:      e.s,
			angpix: grp.PixelSize,
			cs:     grp.Cs,
			lambda: grp.Lambda,
		}
		res, err := modelForDegree(e.p.AberrMaxN).fit(in)
		if errors.Is(err, ErrDegenerateFit) {
			fmt.Printf(" - optics group %d: %v, skipping\n", og, err)
			continue
		}
		if err != nil {
			return nil, err
		}

		grp.BeamTiltX = res.TiltX
		grp.BeamTiltY = res.TiltY
		if res.Zernike != nil {
			grp.OddZernike = res.Zernike
		}
		if e.p.Verbose {
			fmt.Printf("   optics group %d: tilt = (%.6f, %.6f), residual = %.3g\n",
				og, res.TiltX, res.TiltY, res.Residual)
		}
		if e.p.Diagnostics {
			if err := e.writeDiagnostics(og, phase, res, in); err != nil {
				fmt.Printf("   warning: diagnostics for group %d: %v\n", og, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}
