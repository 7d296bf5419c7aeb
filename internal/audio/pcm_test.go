package audio

import (
	"math"
	"testing"
)

func TestEncodePCM16_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"positive full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32768},
		{"zero", 0.0, 0},
		{"half scale", 0.5, 16383},
		{"negative half scale", -0.5, -16384},
		{"clamped above", 1.5, 32767},
		{"clamped below", -2.0, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.sample})
			if len(out) != 2 {
				t.Fatalf("Expected 2 bytes, got %d", len(out))
			}
			got := int16(uint16(out[0]) | uint16(out[1])<<8)
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEncodePCM16_LittleEndian(t *testing.T) {
	// 0.5 * 32767 truncates to 16383 = 0x3FFF
	out := EncodePCM16([]float32{0.5})
	if out[0] != 0xFF || out[1] != 0x3F {
		t.Errorf("Expected little-endian bytes [0xFF 0x3F], got [0x%02X 0x%02X]", out[0], out[1])
	}
}

func TestEncodePCM16_Length(t *testing.T) {
	frame := make([]float32, 4096)
	out := EncodePCM16(frame)
	if len(out) != 8192 {
		t.Errorf("Expected 8192 bytes for 4096 samples, got %d", len(out))
	}
}

func TestEncodePCM16_RoundTrip(t *testing.T) {
	// decode(encode(f)) must recover f within one quantization step
	const tolerance = 1.0 / 32768

	samples := make([]float32, 0, 2001)
	for i := -1000; i <= 1000; i++ {
		samples = append(samples, float32(i)/1000)
	}

	decoded := DecodePCM16(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d decoded samples, got %d", len(samples), len(decoded))
	}

	for i, want := range samples {
		if diff := math.Abs(float64(decoded[i] - want)); diff > tolerance {
			t.Fatalf("Sample %f: round trip error %f exceeds %f", want, diff, tolerance)
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	out := DecodePCM16([]byte{0x00, 0x40, 0xFF})
	if len(out) != 1 {
		t.Errorf("Expected trailing byte ignored, got %d samples", len(out))
	}
}

func TestEncodePCM16_Empty(t *testing.T) {
	if out := EncodePCM16(nil); len(out) != 0 {
		t.Errorf("Expected empty output for empty input, got %d bytes", len(out))
	}
}
