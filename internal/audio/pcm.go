package audio

// EncodePCM16 converts normalized float samples to signed 16-bit
// little-endian PCM (linear16) for network transmission.
//
// Each sample is clamped to [-1, 1], then scaled by 32767 for non-negative
// values and 32768 for negative values. The asymmetric scaling maps the
// symmetric float range onto the full two's-complement int16 range without
// ever producing an out-of-range value.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}

		var v int16
		if s >= 0 {
			v = int16(s * 32767)
		} else {
			v = int16(s * 32768)
		}

		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// DecodePCM16 converts signed 16-bit little-endian PCM back to normalized
// float samples. Inverse of EncodePCM16 up to quantization error; odd
// trailing bytes are ignored.
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		if v >= 0 {
			out[i] = float32(v) / 32767
		} else {
			out[i] = float32(v) / 32768
		}
	}
	return out
}
