package live

import (
	"math"
)

// EncodePCM16LE converts a block of floating-point samples to 16-bit signed
// little-endian PCM by linear scaling. There is no dithering and no clipping
// guard: samples outside [-1, 1) wrap at the extremes, which is the expected
// behavior on this path. Runs on the capture callback path and must not
// allocate beyond the output buffer.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		s := int16(int32(sample * 32768))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BlockRMSEnergy computes the RMS energy of a raw float sample block before
// encoding. Returns a value between 0.0 and 1.0; the engine's audio loop
// reports it as the mic level at debug verbosity.
func BlockRMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
