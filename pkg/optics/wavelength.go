package optics

import "math"

// WavelengthFromKV returns the relativistic electron wavelength in
// angstroms for an acceleration voltage in kilovolts.
func WavelengthFromKV(kv float64) float64 {
	v := kv * 1e3
	return 12.2639 / math.Sqrt(v+0.97845e-6*v*v)
}
