package audio

import "math"

// fullScale is the normalization divisor for 16-bit PCM amplitudes.
const fullScale = 32768.0

// RMS computes the root-mean-square energy of a window of PCM-16 samples,
// normalized to the 0..1 full-scale range. An empty or all-zero window
// yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	return energy / fullScale
}

// Peak returns the largest absolute sample amplitude in the window,
// normalized to the 0..1 full-scale range.
func Peak(samples []int16) float64 {
	var peak float64
	for _, sample := range samples {
		amp := float64(sample)
		if amp < 0 {
			amp = -amp
		}
		if amp > peak {
			peak = amp
		}
	}
	return peak / fullScale
}

// SamplesFromBytes converts little-endian PCM-16 bytes to samples.
// A trailing odd byte is ignored.
func SamplesFromBytes(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// BytesFromSamples converts PCM-16 samples to little-endian bytes.
func BytesFromSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(uint16(sample) >> 8)
	}
	return data
}
