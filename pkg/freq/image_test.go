package freq

import (
	"errors"
	"testing"
)

func TestSignedFreq(t *testing.T) {
	cases := []struct {
		y, s, want int
	}{
		{0, 8, 0},
		{1, 8, 1},
		{4, 8, 4},
		{5, 8, -3},
		{7, 8, -1},
		{32, 64, 32},
		{33, 64, -31},
		{63, 64, -1},
	}
	for _, c := range cases {
		if got := SignedFreq(c.y, c.s); got != c.want {
			t.Errorf("SignedFreq(%d, %d) = %d, want %d", c.y, c.s, got, c.want)
		}
	}
}

func TestHalfPlaneDimensions(t *testing.T) {
	img := NewComplexImage(64)
	if img.W != 33 || img.H != 64 {
		t.Fatalf("NewComplexImage(64) = %dx%d, want 33x64", img.W, img.H)
	}
	if !img.HalfPlane() {
		t.Error("freshly allocated image should be a half plane")
	}
	if img.Size() != 64 {
		t.Errorf("Size() = %d, want 64", img.Size())
	}

	bad := &ComplexImage{W: 64, H: 64, Data: make([]complex128, 64*64)}
	if bad.HalfPlane() {
		t.Error("full-plane dimensions should not pass HalfPlane")
	}
}

func TestAddSizeMismatch(t *testing.T) {
	a := NewRealImage(32)
	b := NewRealImage(64)
	if err := a.Add(b); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Add with mismatched sizes: got %v, want ErrSizeMismatch", err)
	}

	ca := NewComplexImage(32)
	cb := NewComplexImage(64)
	if err := ca.Add(cb); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("complex Add with mismatched sizes: got %v, want ErrSizeMismatch", err)
	}
}

func TestAddAccumulates(t *testing.T) {
	a := NewRealImage(8)
	b := NewRealImage(8)
	a.Set(2, 3, 1.5)
	b.Set(2, 3, 2.5)
	b.Set(0, 0, -1)
	if err := a.Add(b); err != nil {
		t.Fatal(err)
	}
	if got := a.At(2, 3); got != 4.0 {
		t.Errorf("At(2,3) = %v after Add, want 4", got)
	}
	if got := a.At(0, 0); got != -1.0 {
		t.Errorf("At(0,0) = %v after Add, want -1", got)
	}
}

func TestPartsCombineRoundTrip(t *testing.T) {
	img := NewComplexImage(16)
	for i := range img.Data {
		img.Data[i] = complex(float64(i), -float64(i)*0.5)
	}
	re, im := img.Parts()
	back, err := Combine(re, im)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Data {
		if back.Data[i] != img.Data[i] {
			t.Fatalf("bin %d: round trip %v != original %v", i, back.Data[i], img.Data[i])
		}
	}

	if _, err := Combine(NewRealImage(16), NewRealImage(32)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Combine with mismatched sizes: got %v, want ErrSizeMismatch", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	img := NewRealImage(8)
	img.Set(1, 1, 7)
	cp := img.Clone()
	cp.Set(1, 1, 9)
	if img.At(1, 1) != 7 {
		t.Error("mutating a clone leaked into the original")
	}
}
