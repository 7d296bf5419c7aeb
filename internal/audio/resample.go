package audio

// Resample performs linear interpolation resampling between sample rates.
// The endpoint requires exact rate agreement (16kHz mono linear16), so the
// capture pipeline resamples whenever the device-native rate differs.
// Linear interpolation is adequate for speech; a sinc-based resampler would
// be overkill for a 16kHz recognition feed.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	if outputLength == 0 {
		return nil
	}
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
