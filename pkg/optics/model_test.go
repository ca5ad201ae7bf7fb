package optics

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/sagarbiophysics/relion/pkg/freq"
	"github.com/sagarbiophysics/relion/pkg/metadata"
)

func newTestModel(t *testing.T, groups ...Group) *Model {
	t.Helper()
	m, err := NewModel(&Table{Groups: groups})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func baseGroup(id int) Group {
	return Group{
		ID:        id,
		PixelSize: 1.0,
		Lambda:    WavelengthFromKV(300),
		Cs:        2.7,
		Q0:        0.1,
		Mag:       IdentityMag,
	}
}

// unitProjector fills the destination with ones.
type unitProjector struct{}

func (unitProjector) Project(_ metadata.Particle, dest *freq.ComplexImage) error {
	for i := range dest.Data {
		dest.Data[i] = 1
	}
	return nil
}

func TestNewModelRequiresSortedTable(t *testing.T) {
	_, err := NewModel(&Table{Groups: []Group{{ID: 2}, {ID: 1}}})
	if !errors.Is(err, ErrUnsorted) {
		t.Errorf("got %v, want ErrUnsorted", err)
	}
}

func TestWavelengthFromKV(t *testing.T) {
	if got := WavelengthFromKV(300); math.Abs(got-0.019687) > 1e-5 {
		t.Errorf("WavelengthFromKV(300) = %v, want ~0.019687", got)
	}
	if got := WavelengthFromKV(200); math.Abs(got-0.025079) > 1e-5 {
		t.Errorf("WavelengthFromKV(200) = %v, want ~0.025079", got)
	}
}

func TestAngPixConversions(t *testing.T) {
	m := newTestModel(t, baseGroup(1))
	px, err := m.AngToPix(20, 64, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(px-3.2) > 1e-12 {
		t.Errorf("AngToPix(20, 64) = %v, want 3.2", px)
	}
	ang, err := m.PixToAng(px, 64, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ang-20) > 1e-12 {
		t.Errorf("PixToAng round trip = %v, want 20", ang)
	}
}

func TestPhaseCorrectionCached(t *testing.T) {
	g := baseGroup(1)
	g.OddZernike = []float64{0.1, -0.05}
	m := newTestModel(t, g)

	a, err := m.PhaseCorrection(1, 32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.PhaseCorrection(1, 32)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second lookup did not return the cached image")
	}

	// Every entry of the correction is a unit phasor.
	for i, v := range a.Data {
		if math.Abs(cmplx.Abs(v)-1) > 1e-12 {
			t.Fatalf("bin %d: |correction| = %v, want 1", i, cmplx.Abs(v))
		}
	}
}

func TestPhaseCorrectionSizesAreIndependent(t *testing.T) {
	g := baseGroup(1)
	g.OddZernike = []float64{0.1, -0.05}
	m := newTestModel(t, g)

	small, err := m.PhaseCorrection(1, 16)
	if err != nil {
		t.Fatal(err)
	}
	large, err := m.PhaseCorrection(1, 32)
	if err != nil {
		t.Fatal(err)
	}
	if small.H != 16 || large.H != 32 {
		t.Fatalf("sizes %d and %d, want 16 and 32", small.H, large.H)
	}
	// Re-requesting the small size after the large one must hit the
	// original entry, not recompute or collide.
	again, err := m.PhaseCorrection(1, 16)
	if err != nil {
		t.Fatal(err)
	}
	if again != small {
		t.Error("size-16 cache entry lost after caching size 32")
	}
}

func TestDemodulateWithoutOddTermsIsIdentity(t *testing.T) {
	m := newTestModel(t, baseGroup(1))
	img := freq.NewComplexImage(16)
	for i := range img.Data {
		img.Data[i] = complex(float64(i), 1)
	}
	before := img.Clone()
	if err := m.DemodulatePhase(1, img); err != nil {
		t.Fatal(err)
	}
	for i := range img.Data {
		if img.Data[i] != before.Data[i] {
			t.Fatalf("bin %d changed without odd terms", i)
		}
	}
}

func TestDemodulateRemovesModulation(t *testing.T) {
	g := baseGroup(1)
	g.OddZernike = []float64{0.2, -0.1, 0.05, 0.0, -0.02, 0.01}
	m := newTestModel(t, g)

	pc, err := m.PhaseCorrection(1, 16)
	if err != nil {
		t.Fatal(err)
	}
	img := pc.Clone()
	if err := m.DemodulatePhase(1, img); err != nil {
		t.Fatal(err)
	}
	for i, v := range img.Data {
		if math.Abs(real(v)-1) > 1e-12 || math.Abs(imag(v)) > 1e-12 {
			t.Fatalf("bin %d: demodulated modulation = %v, want 1", i, v)
		}
	}
}

func TestDemodulateRejectsConflictingSize(t *testing.T) {
	g := baseGroup(1)
	g.OddZernike = []float64{0.1}
	m := newTestModel(t, g)

	if _, err := m.PhaseCorrection(1, 32); err != nil {
		t.Fatal(err)
	}
	img := freq.NewComplexImage(64)
	if err := m.DemodulatePhase(1, img); !errors.Is(err, freq.ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
}

func TestDemodulateRejectsNonHalfPlane(t *testing.T) {
	g := baseGroup(1)
	g.OddZernike = []float64{0.1}
	m := newTestModel(t, g)

	bad := &freq.ComplexImage{W: 16, H: 16, Data: make([]complex128, 256)}
	if err := m.DemodulatePhase(1, bad); !errors.Is(err, freq.ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
}

func TestPredictObservationShiftPhase(t *testing.T) {
	m := newTestModel(t, baseGroup(1))
	const s = 16
	p := metadata.Particle{OpticsGroup: 1, ShiftX: 1}

	pred, err := m.PredictObservation(unitProjector{}, p, s, PredictOptions{SkipCTF: true, SkipAberration: true})
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < pred.H; y++ {
		for x := 0; x < pred.W; x++ {
			want := cmplx.Exp(complex(0, -2*math.Pi*float64(x)/float64(s)))
			if cmplx.Abs(pred.At(x, y)-want) > 1e-12 {
				t.Fatalf("bin (%d,%d): %v, want %v", x, y, pred.At(x, y), want)
			}
		}
	}
}

func TestPredictObservationAppliesCTF(t *testing.T) {
	m := newTestModel(t, baseGroup(1))
	const s = 16
	p := metadata.Particle{OpticsGroup: 1, DefocusU: 12000, DefocusV: 12000}

	pred, err := m.PredictObservation(unitProjector{}, p, s, PredictOptions{SkipAberration: true, SkipShift: true})
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.CTFForParticle(p)
	if err != nil {
		t.Fatal(err)
	}
	qx := 4.0 / float64(s)
	want := complex(c.Value(qx, 0, 0), 0)
	if cmplx.Abs(pred.At(4, 0)-want) > 1e-12 {
		t.Errorf("CTF-weighted bin = %v, want %v", pred.At(4, 0), want)
	}
}

func TestMagnifyCoords(t *testing.T) {
	g := baseGroup(1)
	g.Mag = [2][2]float64{{2, 0}, {0, 0.5}}
	m := newTestModel(t, g)

	mx, my, err := m.MagnifyCoords(1, 0.1, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mx-0.2) > 1e-12 || math.Abs(my-0.1) > 1e-12 {
		t.Errorf("magnified (0.1, 0.2) = (%v, %v), want (0.2, 0.1)", mx, my)
	}

	// The zero matrix is treated as the identity.
	zero := baseGroup(1)
	zero.Mag = [2][2]float64{}
	m2 := newTestModel(t, zero)
	mx, my, err = m2.MagnifyCoords(1, 0.3, -0.4)
	if err != nil {
		t.Fatal(err)
	}
	if mx != 0.3 || my != -0.4 {
		t.Errorf("zero matrix magnified (0.3, -0.4) to (%v, %v)", mx, my)
	}
}

func TestCTFForParticleUnknownGroup(t *testing.T) {
	m := newTestModel(t, baseGroup(1))
	_, err := m.CTFForParticle(metadata.Particle{OpticsGroup: 5})
	if !errors.Is(err, ErrUnknownOpticsGroup) {
		t.Errorf("got %v, want ErrUnknownOpticsGroup", err)
	}
}
