package tilt

import (
	"github.com/sagarbiophysics/relion/pkg/ctf"
	"github.com/sagarbiophysics/relion/pkg/freq"
)

// accSlots holds the per-worker accumulators for one micrograph:
// one (complex cross-correlation sum, weight sum) pair per
// (worker, group-local index). Each worker writes only its own row, so
// the parallel phase needs no locking; Reduce then folds the rows
// together in ascending worker order, which keeps the floating-point
// summation order stable across runs.
type accSlots struct {
	threads, groups int
	xy              []*freq.ComplexImage
	wgh             []*freq.RealImage
}

func newAccSlots(threads, groups, size int) *accSlots {
	s := &accSlots{
		threads: threads,
		groups:  groups,
		xy:      make([]*freq.ComplexImage, threads*groups),
		wgh:     make([]*freq.RealImage, threads*groups),
	}
	for i := range s.xy {
		s.xy[i] = freq.NewComplexImage(size)
		s.wgh[i] = freq.NewRealImage(size)
	}
	return s
}

func (s *accSlots) at(thread, local int) (*freq.ComplexImage, *freq.RealImage) {
	i := thread*s.groups + local
	return s.xy[i], s.wgh[i]
}

// reduce sums the per-worker accumulators for one group-local index
// into fresh images, folding workers in ascending order.
func (s *accSlots) reduce(local, size int) (*freq.ComplexImage, *freq.RealImage) {
	xySum := freq.NewComplexImage(size)
	wSum := freq.NewRealImage(size)
	for t := 0; t < s.threads; t++ {
		xy, w := s.at(t, local)
		xySum.Add(xy)
		wSum.Add(w)
	}
	return xySum, wSum
}

// accumulateParticle adds one particle's weighted cross-correlation to
// the given accumulator pair. Per bin, with c the CTF value, the weight
// is c² and the complex term is weight * observed * conj(predicted):
// the phase of the normalized ratio of the two sums approximates the
// aberration-induced phase surface.
func accumulateParticle(obs, pred *freq.ComplexImage, c ctf.CTF, boxAng float64, xy *freq.ComplexImage, wgh *freq.RealImage) {
	s := xy.H
	for y := 0; y < xy.H; y++ {
		qy := float64(freq.SignedFreq(y, s)) / boxAng
		for x := 0; x < xy.W; x++ {
			qx := float64(x) / boxAng
			cv := c.Value(qx, qy, 0)
			w := cv * cv
			i := y*xy.W + x
			p := pred.Data[i]
			xy.Data[i] += complex(w, 0) * obs.Data[i] * complex(real(p), -imag(p))
			wgh.Data[i] += w
		}
	}
}
