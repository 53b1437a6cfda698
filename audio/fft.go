package audio

import "math"

// In-place radix-2 Cooley-Tukey FFT for power-of-2 sizes. Kept local because
// the analysis windows used by the modules are small fixed sizes and the
// transform is the only DSP primitive they need.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	// Bit-reverse ordering
	for i, j := 0, 0; i < n; i++ {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
	}

	for size := 2; size <= n; size <<= 1 {
		halfSize := size >> 1
		step := 2 * math.Pi / float64(size)
		for i := 0; i < n; i += size {
			for j := 0; j < halfSize; j++ {
				u := data[i+j]
				v := data[i+j+halfSize] * complex(math.Cos(float64(j)*step), -math.Sin(float64(j)*step))
				data[i+j] = u + v
				data[i+j+halfSize] = u - v
			}
		}
	}
}

// analysisWindow computes the magnitude spectrum of up to len(spectrum)
// normalized samples. The caller owns both scratch buffers so repeated calls
// allocate nothing; magnitude must hold len(spectrum)/2+1 bins.
func analysisWindow(samples []float64, spectrum []complex128, magnitude []float64) {
	n := len(spectrum)
	for i := range spectrum {
		if i < len(samples) {
			spectrum[i] = complex(samples[i], 0)
		} else {
			spectrum[i] = 0
		}
	}

	fft(spectrum)

	for i := 0; i <= n/2; i++ {
		re := real(spectrum[i])
		im := imag(spectrum[i])
		magnitude[i] = math.Sqrt(re*re + im*im)
	}
}

// binForFrequency maps a frequency in Hz to its spectrum bin index for the
// given transform size and sample rate.
func binForFrequency(hz float64, fftSize int, sampleRate uint32) int {
	if sampleRate == 0 {
		return 0
	}
	bin := int(hz * float64(fftSize) / float64(sampleRate))
	if bin < 0 {
		bin = 0
	}
	if max := fftSize / 2; bin > max {
		bin = max
	}
	return bin
}
