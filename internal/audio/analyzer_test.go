package audio

import (
	"math"
	"testing"
)

func TestRMSSilence(t *testing.T) {
	// All-zero input is the digital-silence case and must yield exactly 0.
	samples := make([]int16, 320)

	if got := RMS(samples); got != 0 {
		t.Errorf("Expected RMS 0 for silence, got %f", got)
	}
}

func TestRMSEmpty(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("Expected RMS 0 for nil input, got %f", got)
	}
	if got := RMS([]int16{}); got != 0 {
		t.Errorf("Expected RMS 0 for empty input, got %f", got)
	}
}

func TestRMSConstantAmplitude(t *testing.T) {
	// A constant signal's RMS equals its amplitude.
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 16384
	}

	got := RMS(samples)
	want := 16384.0 / 32768.0
	if math.Abs(got-want) > 0.0001 {
		t.Errorf("Expected RMS %f, got %f", want, got)
	}
}

func TestRMSSineWave(t *testing.T) {
	// A sine wave's RMS is amplitude / sqrt(2). Use a whole number of
	// periods so the mean is exact.
	sampleRate := 16000
	frequency := 400.0
	amplitude := 20000.0

	samples := make([]int16, sampleRate/10) // 0.1s, 40 full periods
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*ts))
	}

	got := RMS(samples)
	want := amplitude / math.Sqrt2 / 32768.0
	if math.Abs(got-want) > 0.001 {
		t.Errorf("Expected RMS %f, got %f", want, got)
	}
}

func TestRMSNegativeOnly(t *testing.T) {
	samples := []int16{-1000, -1000, -1000, -1000}

	got := RMS(samples)
	want := 1000.0 / 32768.0
	if math.Abs(got-want) > 0.0001 {
		t.Errorf("Expected RMS %f, got %f", want, got)
	}
}

func TestPeak(t *testing.T) {
	samples := []int16{100, -16384, 50, 8192}

	got := Peak(samples)
	want := 16384.0 / 32768.0
	if math.Abs(got-want) > 0.0001 {
		t.Errorf("Expected peak %f, got %f", want, got)
	}

	if got := Peak(nil); got != 0 {
		t.Errorf("Expected peak 0 for nil input, got %f", got)
	}
}

func TestSampleByteConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256, -513}

	data := BytesFromSamples(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}

	decoded := SamplesFromBytes(data)
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, want := range samples {
		if decoded[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, decoded[i])
		}
	}
}

func TestSamplesFromBytesOddLength(t *testing.T) {
	// A trailing odd byte must be ignored, not panic.
	data := []byte{0x10, 0x00, 0x20, 0x00, 0xFF}

	samples := SamplesFromBytes(data)
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 0x10 || samples[1] != 0x20 {
		t.Errorf("Unexpected samples: %v", samples)
	}
}
