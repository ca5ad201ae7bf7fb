// Package tilt estimates beam tilt and higher-order antisymmetric
// aberrations from per-particle Fourier-domain cross-correlations.
//
// Estimation runs in two phases. The accumulation phase walks
// micrographs one at a time, summing weighted observed-vs-predicted
// cross-correlations per optics group across a worker pool, and flushes
// each micrograph's sums to a checkpoint store; the whole phase is
// resumable at micrograph granularity through IsFinished. The fit phase
// reduces all checkpoints per group, masks unreliable frequency bins
// and fits either a planar tilt model or an odd Zernike expansion,
// writing the result back into the optics calibration table.
package tilt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/metadata"
	"github.com/sagarbiophysics/relion/pkg/optics"
	"github.com/sagarbiophysics/relion/pkg/store"
)

var (
	// ErrNotInitialized is returned when an estimator is used before Init.
	ErrNotInitialized = errors.New("tilt: estimator not initialized")

	// ErrBadInput marks a malformed per-micrograph input. Processing of
	// other micrographs is unaffected.
	ErrBadInput = errors.New("tilt: malformed micrograph input")

	// ErrDegenerateFit marks a group whose fit is undefined: no
	// contributing micrographs, or no usable weight after masking.
	ErrDegenerateFit = errors.New("tilt: degenerate fit")
)

// Params configures the estimator.
type Params struct {
	// KMin is the inner frequency threshold in Å. Bins at lower
	// resolution (larger angstrom radius) carry no usable tilt signal
	// and are masked out.
	KMin float64

	// AberrMaxN is the maximum odd Zernike degree. Below 3 the fit is
	// tilt-only; at 3 and above the full odd expansion is fitted.
	AberrMaxN int

	// XRing0, XRing1 bound an optional exclusion band in Å; bins with
	// angstrom radius in (XRing0, XRing1] are masked. Negative XRing1
	// disables the band.
	XRing0, XRing1 float64

	// Threads is the fixed worker-pool size for accumulation.
	Threads int

	// Size is the particle image size in pixels.
	Size int

	// OutPath is the directory diagnostics are written under.
	OutPath string

	Verbose     bool
	Diagnostics bool
}

// Estimator is the two-phase tilt/aberration estimator.
type Estimator struct {
	p      Params
	s, sh  int
	angpix float64
	model  *optics.Model
	store  store.Store
	ready  bool
}

// NewEstimator returns an estimator that still needs Init.
func NewEstimator() *Estimator { return &Estimator{} }

// Init wires the estimator to an observation model and a checkpoint
// store. It must be called exactly once, before any other method.
func (e *Estimator) Init(model *optics.Model, st store.Store, p Params) error {
	if p.Size < 2 || p.Size%2 != 0 {
		return fmt.Errorf("tilt: image size must be even and positive, got %d", p.Size)
	}
	if p.Threads < 1 {
		p.Threads = 1
	}
	angpix, err := model.PixelSize(1)
	if err != nil {
		return fmt.Errorf("tilt: init: %w", err)
	}
	e.p = p
	e.s = p.Size
	e.sh = p.Size/2 + 1
	e.angpix = angpix
	e.model = model
	e.store = st
	e.ready = true
	return nil
}

// ProcessMicrograph accumulates one micrograph's particles into
// per-group cross-correlation sums and flushes them as checkpoints.
// Re-invoking it for a finished micrograph recomputes and rewrites the
// same checkpoints; callers gate with IsFinished to skip done work.
// obs and pred are the observed and predicted particle images, index
// aligned with m.Particles.
func (e *Estimator) ProcessMicrograph(m *metadata.Micrograph, obs, pred []*freq.ComplexImage) error {
	if !e.ready {
		return ErrNotInitialized
	}
	if err := e.validateInput(m, obs, pred); err != nil {
		return err
	}

	groups := m.OpticsGroupsPresent()
	local := make(map[int]int, len(groups))
	for i, g := range groups {
		if _, err := e.model.Table().Group(g); err != nil {
			return err
		}
		local[g] = i
	}

	slots := newAccSlots(e.p.Threads, len(groups), e.s)
	pc := len(m.Particles)
	chunk := (pc + e.p.Threads - 1) / e.p.Threads

	var wg sync.WaitGroup
	errs := make([]error, e.p.Threads)
	for t := 0; t < e.p.Threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			lo := t * chunk
			hi := lo + chunk
			if hi > pc {
				hi = pc
			}
			for p := lo; p < hi; p++ {
				part := m.Particles[p]
				c, err := e.model.CTFForParticle(part)
				if err != nil {
					errs[t] = err
					return
				}
				grp, _ := e.model.Table().Group(part.OpticsGroup)
				boxAng := float64(e.s) * grp.PixelSize
				xy, w := slots.at(t, local[part.OpticsGroup])
				accumulateParticle(obs[p], pred[p], c, boxAng, xy, w)
			}
		}(t)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("tilt: micrograph %s: %w", m.Name, err)
		}
	}

	for i, g := range groups {
		xySum, wSum := slots.reduce(i, e.s)
		if err := e.writeCheckpoint(m.Name, g, xySum, wSum); err != nil {
			return fmt.Errorf("tilt: micrograph %s: %w", m.Name, err)
		}
	}
	return nil
}

// IsFinished reports whether every optics group present in the
// micrograph already has a complete checkpoint triple. The accumulation
// phase is resumable at micrograph granularity through this check.
func (e *Estimator) IsFinished(m *metadata.Micrograph) (bool, error) {
	if !e.ready {
		return false, ErrNotInitialized
	}
	for _, g := range m.OpticsGroupsPresent() {
		for _, key := range checkpointKeys(m.Name, g) {
			ok, err := e.store.Exists(key)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func (e *Estimator) validateInput(m *metadata.Micrograph, obs, pred []*freq.ComplexImage) error {
	if len(obs) != len(m.Particles) || len(pred) != len(m.Particles) {
		return fmt.Errorf("%w: micrograph %s: %d particles, %d observed, %d predicted",
			ErrBadInput, m.Name, len(m.Particles), len(obs), len(pred))
	}
	for i := range obs {
		for _, img := range []*freq.ComplexImage{obs[i], pred[i]} {
			if img == nil || !img.HalfPlane() || img.H != e.s {
				return fmt.Errorf("%w: micrograph %s: particle %d image is not a %dx%d half plane",
					ErrBadInput, m.Name, i, e.sh, e.s)
			}
		}
	}
	return nil
}

// checkpointKeys returns the triple of keys for one (micrograph, group)
// checkpoint, in write order: real, imaginary, weight. The weight role
// is written last so that a complete triple on disk implies the other
// two files were committed first.
func checkpointKeys(mic string, g int) [3]store.Key {
	return [3]store.Key{
		{Micrograph: mic, Group: g, Role: store.RoleReal},
		{Micrograph: mic, Group: g, Role: store.RoleImag},
		{Micrograph: mic, Group: g, Role: store.RoleWeight},
	}
}

func (e *Estimator) writeCheckpoint(mic string, g int, xy *freq.ComplexImage, w *freq.RealImage) error {
	keys := checkpointKeys(mic, g)
	re, im := xy.Parts()
	for i, img := range []*freq.RealImage{re, im, w} {
		if err := e.store.Put(keys[i], img); err != nil {
			return err
		}
	}
	return nil
}

func (e *Estimator) readCheckpoint(mic string, g int) (*freq.ComplexImage, *freq.RealImage, error) {
	keys := checkpointKeys(mic, g)
	re, err := e.store.Get(keys[0])
	if err != nil {
		return nil, nil, err
	}
	im, err := e.store.Get(keys[1])
	if err != nil {
		return nil, nil, err
	}
	w, err := e.store.Get(keys[2])
	if err != nil {
		return nil, nil, err
	}
	xy, err := freq.Combine(re, im)
	if err != nil {
		return nil, nil, err
	}
	return xy, w, nil
}
