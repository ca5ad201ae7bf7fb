// Package metadata holds the in-memory particle and micrograph records
// consumed by the aberration pipeline. Reading and writing the on-disk
// tabular formats is the job of an external codec; this package only
// defines the field accessors and bulk enumeration the estimator needs.
package metadata

import "sort"

// Particle is one particle observation within a micrograph.
type Particle struct {
	// Micrograph is the identifier of the micrograph the particle
	// was extracted from.
	Micrograph string

	// OpticsGroup is the 1-based identifier of the optics group the
	// particle belongs to.
	OpticsGroup int

	// ShiftX, ShiftY are the particle's translational shifts in pixels.
	ShiftX, ShiftY float64

	// Per-particle CTF parameters.
	DefocusU   float64 // Å
	DefocusV   float64 // Å
	AstigAngle float64 // radians
	PhaseShift float64 // radians
}

// Micrograph groups the particles that share one exposure.
type Micrograph struct {
	Name      string
	Particles []Particle
}

// OpticsGroupsPresent returns the sorted set of optics-group ids
// referenced by the micrograph's particles.
func (m *Micrograph) OpticsGroupsPresent() []int {
	seen := map[int]bool{}
	for _, p := range m.Particles {
		seen[p.OpticsGroup] = true
	}
	out := make([]int, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// GroupsPresent returns the sorted union of optics groups across a set
// of micrographs.
func GroupsPresent(mics []*Micrograph) []int {
	seen := map[int]bool{}
	for _, m := range mics {
		for _, p := range m.Particles {
			seen[p.OpticsGroup] = true
		}
	}
	out := make([]int, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}
