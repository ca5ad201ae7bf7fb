package store

import (
	"errors"
	"testing"
)

func TestMemStoreRoundTrip(t *testing.T) {
	ms := NewMemStore()
	key := Key{Micrograph: "m", Group: 1, Role: RoleReal}

	if _, err := ms.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store: got %v, want ErrNotFound", err)
	}
	if err := ms.Put(key, testImage(8)); err != nil {
		t.Fatal(err)
	}
	got, err := ms.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if got.At(1, 1) != testImage(8).At(1, 1) {
		t.Error("stored image differs from input")
	}
	ok, err := ms.Exists(key)
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemStoreNeverAliases(t *testing.T) {
	ms := NewMemStore()
	key := Key{Micrograph: "m", Group: 1, Role: RoleReal}
	img := testImage(8)
	if err := ms.Put(key, img); err != nil {
		t.Fatal(err)
	}

	img.Set(0, 0, 999)
	got, err := ms.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if got.At(0, 0) == 999 {
		t.Error("mutating the put image leaked into the store")
	}

	got.Set(0, 0, -999)
	again, err := ms.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if again.At(0, 0) == -999 {
		t.Error("mutating a retrieved image leaked into the store")
	}
}
