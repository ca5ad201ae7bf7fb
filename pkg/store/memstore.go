package store

import (
	"fmt"
	"sync"

	"github.com/sagarbiophysics/relion/pkg/freq"
)

// MemStore is a map-backed Store for tests and in-process use. It
// mirrors FileStore semantics: images are copied on Put and Get, so a
// caller can never alias stored data.
type MemStore struct {
	mu   sync.Mutex
	data map[Key]*freq.RealImage
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[Key]*freq.RealImage)}
}

// Put stores a copy of img under key.
func (ms *MemStore) Put(key Key, img *freq.RealImage) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.data[key] = img.Clone()
	return nil
}

// Get returns a copy of the image stored under key.
func (ms *MemStore) Get(key Key) (*freq.RealImage, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	img, ok := ms.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return img.Clone(), nil
}

// Exists reports whether key was put.
func (ms *MemStore) Exists(key Key) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.data[key]
	return ok, nil
}
