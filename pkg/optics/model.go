package optics

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/sagarbiophysics/relion/pkg/ctf"
	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/metadata"
	"github.com/sagarbiophysics/relion/pkg/zernike"
)

// Projector supplies the reference projection for a particle: the
// central slice of a reference map at the particle's orientation,
// before any optical effects. It is an external collaborator; tests use
// synthetic implementations.
type Projector interface {
	Project(p metadata.Particle, dest *freq.ComplexImage) error
}

// PredictOptions selects which optical effects the forward model
// applies. The zero value applies everything.
type PredictOptions struct {
	SkipCTF        bool
	SkipAberration bool
	SkipShift      bool
}

// Model is the observation model for a run. It owns the calibration
// table and the size-keyed correction-image caches. The caches are
// fields of the model, not process-wide state: two models never share
// entries, and entries live until the model is dropped. Calibration is
// assumed fixed for the lifetime of the model, so entries are never
// invalidated.
type Model struct {
	table *Table

	mu        sync.Mutex
	phaseCorr map[int]map[int]*freq.ComplexImage // group -> size -> correction
	gammaOff  map[int]map[int]*freq.RealImage
}

// NewModel validates the table and builds a model over it. The sorted
// invariant is checked here, before any index-based lookup can happen.
func NewModel(t *Table) (*Model, error) {
	if !t.Sorted() {
		return nil, fmt.Errorf("%w: ids must be contiguous ascending from 1", ErrUnsorted)
	}
	return &Model{
		table:     t,
		phaseCorr: make(map[int]map[int]*freq.ComplexImage),
		gammaOff:  make(map[int]map[int]*freq.RealImage),
	}, nil
}

// Table returns the calibration table the model was built over.
func (m *Model) Table() *Table { return m.table }

// NumGroups returns the number of optics groups.
func (m *Model) NumGroups() int { return len(m.table.Groups) }

// PixelSize returns the pixel size of group g in Å.
func (m *Model) PixelSize(g int) (float64, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return 0, err
	}
	return grp.PixelSize, nil
}

// AngToPix converts a resolution in Å to its radius in Fourier pixels
// for image size s.
func (m *Model) AngToPix(a float64, s, g int) (float64, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return 0, err
	}
	return float64(s) * grp.PixelSize / a, nil
}

// PixToAng converts a radius in Fourier pixels to its resolution in Å
// for image size s.
func (m *Model) PixToAng(p float64, s, g int) (float64, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return 0, err
	}
	return float64(s) * grp.PixelSize / p, nil
}

// PhaseCorrection returns the cached antisymmetric-aberration phase
// correction exp(i*phi_odd) for (group, size), computing and caching it
// on first use. The returned image is shared: callers must not write
// through it.
func (m *Model) PhaseCorrection(g, s int) (*freq.ComplexImage, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.phaseCorr[g][s]; ok {
		return img, nil
	}

	img := freq.NewComplexImage(s)
	as := float64(s) * grp.PixelSize
	for y := 0; y < img.H; y++ {
		qy := float64(freq.SignedFreq(y, s)) / as
		for x := 0; x < img.W; x++ {
			qx := float64(x) / as
			mx, my := magnify(grp.Mag, qx, qy)
			phi := 0.0
			for i, c := range grp.OddZernike {
				zm, zn, _ := zernike.OddIndex(i)
				phi += c * zernike.Z(zm, zn, mx, my)
			}
			img.Set(x, y, cmplx.Exp(complex(0, phi)))
		}
	}
	if m.phaseCorr[g] == nil {
		m.phaseCorr[g] = make(map[int]*freq.ComplexImage)
	}
	m.phaseCorr[g][s] = img
	return img, nil
}

// GammaOffset returns the cached symmetric-aberration phase offset for
// (group, size). The returned image is shared: callers must not write
// through it.
func (m *Model) GammaOffset(g, s int) (*freq.RealImage, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.gammaOff[g][s]; ok {
		return img, nil
	}

	img := freq.NewRealImage(s)
	as := float64(s) * grp.PixelSize
	for y := 0; y < img.H; y++ {
		qy := float64(freq.SignedFreq(y, s)) / as
		for x := 0; x < img.W; x++ {
			qx := float64(x) / as
			mx, my := magnify(grp.Mag, qx, qy)
			phi := 0.0
			for i, c := range grp.EvenZernike {
				zm, zn, _ := zernike.EvenIndex(i)
				phi += c * zernike.Z(zm, zn, mx, my)
			}
			img.Set(x, y, phi)
		}
	}
	if m.gammaOff[g] == nil {
		m.gammaOff[g] = make(map[int]*freq.RealImage)
	}
	m.gammaOff[g][s] = img
	return img, nil
}

// DemodulatePhase multiplies img in place by the conjugate of the
// group's phase correction, removing the antisymmetric-aberration
// modulation from an observed image. A group without odd Zernike terms
// leaves the image untouched. Cache entries are size-specific: an image
// whose size conflicts with what is already cached for the group is a
// configuration error, not a resize.
func (m *Model) DemodulatePhase(g int, img *freq.ComplexImage) error {
	grp, err := m.table.Group(g)
	if err != nil {
		return err
	}
	if len(grp.OddZernike) == 0 {
		return nil
	}
	if !img.HalfPlane() {
		return fmt.Errorf("%w: %dx%d is not a half plane", freq.ErrSizeMismatch, img.W, img.H)
	}
	m.mu.Lock()
	for s := range m.phaseCorr[g] {
		if s != img.H {
			m.mu.Unlock()
			return fmt.Errorf("%w: group %d has a cached correction for size %d, image is %d",
				freq.ErrSizeMismatch, g, s, img.H)
		}
	}
	m.mu.Unlock()

	pc, err := m.PhaseCorrection(g, img.H)
	if err != nil {
		return err
	}
	for i, v := range pc.Data {
		img.Data[i] *= complex(real(v), -imag(v))
	}
	return nil
}

// MagnifyCoords applies the group's anisotropic magnification matrix
// to a frequency coordinate. A zero matrix acts as the identity.
func (m *Model) MagnifyCoords(g int, qx, qy float64) (float64, float64, error) {
	grp, err := m.table.Group(g)
	if err != nil {
		return 0, 0, err
	}
	mx, my := magnify(grp.Mag, qx, qy)
	return mx, my, nil
}

// CTFForParticle derives the per-particle CTF from the particle record
// and the group calibration.
func (m *Model) CTFForParticle(p metadata.Particle) (ctf.CTF, error) {
	grp, err := m.table.Group(p.OpticsGroup)
	if err != nil {
		return ctf.CTF{}, err
	}
	return ctf.Derive(p, grp.Lambda, grp.Cs, grp.Q0), nil
}

// PredictObservation composes the forward model for one particle:
// reference projection, then CTF, then antisymmetric-aberration
// modulation, then the particle's translational phase shift. The order
// is fixed; swapping modulation and shift changes sign conventions.
func (m *Model) PredictObservation(proj Projector, p metadata.Particle, s int, opts PredictOptions) (*freq.ComplexImage, error) {
	grp, err := m.table.Group(p.OpticsGroup)
	if err != nil {
		return nil, err
	}

	dest := freq.NewComplexImage(s)
	if err := proj.Project(p, dest); err != nil {
		return nil, fmt.Errorf("optics: projecting particle: %w", err)
	}

	if !opts.SkipCTF {
		c, err := m.CTFForParticle(p)
		if err != nil {
			return nil, err
		}
		var gamma *freq.RealImage
		if len(grp.EvenZernike) > 0 {
			if gamma, err = m.GammaOffset(p.OpticsGroup, s); err != nil {
				return nil, err
			}
		}
		as := float64(s) * grp.PixelSize
		for y := 0; y < dest.H; y++ {
			qy := float64(freq.SignedFreq(y, s)) / as
			for x := 0; x < dest.W; x++ {
				qx := float64(x) / as
				g0 := 0.0
				if gamma != nil {
					g0 = gamma.At(x, y)
				}
				dest.Set(x, y, dest.At(x, y)*complex(c.Value(qx, qy, g0), 0))
			}
		}
	}

	if !opts.SkipAberration && len(grp.OddZernike) > 0 {
		pc, err := m.PhaseCorrection(p.OpticsGroup, s)
		if err != nil {
			return nil, err
		}
		for i, v := range pc.Data {
			dest.Data[i] *= v
		}
	}

	if !opts.SkipShift {
		for y := 0; y < dest.H; y++ {
			ky := float64(freq.SignedFreq(y, s))
			for x := 0; x < dest.W; x++ {
				kx := float64(x)
				phase := -2 * math.Pi * (kx*p.ShiftX + ky*p.ShiftY) / float64(s)
				dest.Set(x, y, dest.At(x, y)*cmplx.Exp(complex(0, phase)))
			}
		}
	}
	return dest, nil
}

func magnify(mag [2][2]float64, qx, qy float64) (float64, float64) {
	if mag == ([2][2]float64{}) {
		return qx, qy
	}
	return mag[0][0]*qx + mag[0][1]*qy, mag[1][0]*qx + mag[1][1]*qy
}
