package audio

import "math"

const filterTaps = 31

// Resample converts samples from srcRate to dstRate: linear interpolation
// with a windowed-sinc low-pass before downsampling or after upsampling.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return samples
	}

	cutoff := float64(min(srcRate, dstRate)) / 2
	if srcRate > dstRate {
		samples = lowPass(samples, cutoff, float64(srcRate), filterTaps)
	}

	step := float64(srcRate) / float64(dstRate)
	out := make([]float32, int(float64(len(samples))/step))
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		out[i] = lerp(samples, idx, float32(pos-float64(idx)))
	}

	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate), filterTaps)
	}
	return out
}

// Downmix averages interleaved frames into one channel.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func lowPass(samples []float32, cutoff, rate float64, taps int) []float32 {
	k := blackmanSinc(cutoff/rate, taps)
	half := taps / 2
	out := make([]float32, len(samples))
	for i := range samples {
		var acc float32
		for j := max(0, half-i); j < min(taps, len(samples)-i+half); j++ {
			acc += samples[i+j-half] * k[j]
		}
		out[i] = acc
	}
	return out
}

// blackmanSinc returns a unity-gain low-pass kernel for normalized cutoff fc.
func blackmanSinc(fc float64, taps int) []float32 {
	half := taps / 2
	k := make([]float64, taps)
	var sum float64
	for i := range k {
		n := float64(i - half)
		v := 1.0
		if n != 0 {
			x := 2 * math.Pi * fc * n
			v = math.Sin(x) / x
		}
		t := float64(i) / float64(taps-1)
		v *= 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
		k[i] = v
		sum += v
	}
	out := make([]float32, taps)
	for i, v := range k {
		out[i] = float32(v / sum)
	}
	return out
}

func lerp(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}
