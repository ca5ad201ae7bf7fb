// Package store provides the durable keyed image store backing the
// estimator's per-micrograph checkpoints. A checkpoint is the triple of
// images written under the real, imaginary and weight roles for one
// (micrograph, optics group) pair; the presence of all three roles is
// the sole completion signal, so writers flush the weight role last.
package store

import (
	"errors"
	"fmt"

	"github.com/sagarbiophysics/relion/pkg/freq"
)

// ErrNotFound is returned by Get for keys that were never put.
var ErrNotFound = errors.New("store: key not found")

// Role names one of the three images of a checkpoint triple.
type Role string

const (
	RoleReal   Role = "real"
	RoleImag   Role = "imag"
	RoleWeight Role = "weight"
)

// Key addresses one stored image.
type Key struct {
	Micrograph string
	Group      int
	Role       Role
}

func (k Key) String() string {
	return fmt.Sprintf("%s/optics-group-%d/%s", k.Micrograph, k.Group, k.Role)
}

// Store is a durable put/get/exists image store. Implementations must
// make each Put atomic: a reader never observes a partially written
// image, and Exists never reports a partial write.
type Store interface {
	Put(key Key, img *freq.RealImage) error
	Get(key Key) (*freq.RealImage, error)
	Exists(key Key) (bool, error)
}
