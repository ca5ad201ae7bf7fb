// Package optics owns the per-group imaging calibration and the
// observation model built on it: forward prediction of particle images
// and demodulation of antisymmetric aberrations, both driven by a
// lazily computed, size-keyed cache of correction images.
package optics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sagarbiophysics/relion/pkg/metadata"
)

var (
	// ErrUnknownOpticsGroup is returned for references to a group id
	// outside the calibration table.
	ErrUnknownOpticsGroup = errors.New("optics: unknown optics group")

	// ErrUnsorted is returned when a table whose group ids are not
	// contiguous ascending from 1 is used for index-based lookup.
	ErrUnsorted = errors.New("optics: optics groups not sorted")
)

// Group is the calibration record for one optics group. All particles
// in a group share these values. BeamTiltX/Y and OddZernike are written
// back by parametric fitting; everything else is fixed for a run.
type Group struct {
	ID          int     // 1-based
	PixelSize   float64 // Å
	Lambda      float64 // electron wavelength, Å
	Cs          float64 // spherical aberration, mm
	Q0          float64 // amplitude contrast fraction
	EvenZernike []float64
	OddZernike  []float64
	Mag         [2][2]float64 // anisotropic magnification matrix

	BeamTiltX float64
	BeamTiltY float64
}

// IdentityMag is the magnification matrix of an unmagnified group.
var IdentityMag = [2][2]float64{{1, 0}, {0, 1}}

// Table is the ordered set of optics groups for a run.
type Table struct {
	Groups []Group
}

// Sorted reports whether group ids are 1..n in table order, the
// precondition for accessing group g at index g-1.
func (t *Table) Sorted() bool {
	for i := range t.Groups {
		if t.Groups[i].ID != i+1 {
			return false
		}
	}
	return true
}

// FindUndefined returns the group ids referenced by particles in mics
// that have no entry in the table. An empty result is the healthy case.
func (t *Table) FindUndefined(mics []*metadata.Micrograph) []int {
	defined := map[int]bool{}
	for _, g := range t.Groups {
		defined[g.ID] = true
	}
	var missing []int
	seen := map[int]bool{}
	for _, m := range mics {
		for _, p := range m.Particles {
			if !defined[p.OpticsGroup] && !seen[p.OpticsGroup] {
				seen[p.OpticsGroup] = true
				missing = append(missing, p.OpticsGroup)
			}
		}
	}
	sort.Ints(missing)
	return missing
}

// Sort renumbers the groups to contiguous ascending ids and rewrites
// the particle references in mics to match. Merely reordering the table
// would break lookups when ids have gaps, so the particle table is
// always translated along with the renumbering.
func (t *Table) Sort(mics []*metadata.Micrograph) error {
	if missing := t.FindUndefined(mics); len(missing) > 0 {
		return fmt.Errorf("%w: particles reference undefined groups %v",
			ErrUnknownOpticsGroup, missing)
	}

	sort.Slice(t.Groups, func(i, j int) bool {
		return t.Groups[i].ID < t.Groups[j].ID
	})
	remap := make(map[int]int, len(t.Groups))
	for i := range t.Groups {
		old := t.Groups[i].ID
		if _, dup := remap[old]; dup {
			return fmt.Errorf("optics: duplicate group id %d", old)
		}
		remap[old] = i + 1
		t.Groups[i].ID = i + 1
	}
	for _, m := range mics {
		for i := range m.Particles {
			m.Particles[i].OpticsGroup = remap[m.Particles[i].OpticsGroup]
		}
	}
	return nil
}

// Group returns the calibration record for a 1-based group id.
func (t *Table) Group(g int) (*Group, error) {
	if g < 1 || g > len(t.Groups) {
		return nil, fmt.Errorf("%w: %d (table has %d)", ErrUnknownOpticsGroup, g, len(t.Groups))
	}
	return &t.Groups[g-1], nil
}

// AllPixelSizesIdentical reports whether every group shares one pixel
// size. Several downstream consumers assume this.
func (t *Table) AllPixelSizesIdentical() bool {
	for i := 1; i < len(t.Groups); i++ {
		if t.Groups[i].PixelSize != t.Groups[0].PixelSize {
			return false
		}
	}
	return true
}
