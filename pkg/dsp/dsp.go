// Package dsp provides the block-based signal processing primitives used by
// the voice activity detector: windowing, an in-place radix-2 FFT, band
// energy extraction and spectral flatness.
//
// Everything here operates on fixed-size blocks and allocates nothing per
// call once the reusable buffers are created, so it is safe to run inside
// the audio consumption loop.
package dsp

import (
	"errors"
	"math"
	"math/bits"
)

// ErrBlockSize indicates a block length that is not a power of two.
var ErrBlockSize = errors.New("dsp: block size must be a power of two")

// RMS returns the root-mean-square level of a PCM16 frame,
// normalized to full scale (0.0 to 1.0).
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// HighPass is a first-order high-pass filter with persistent state.
// It removes DC offset and low-frequency rumble before spectral analysis.
type HighPass struct {
	alpha float64
	prevX float64
	prevY float64
}

// NewHighPass creates a high-pass filter with the given cutoff frequency.
func NewHighPass(cutoffHz, sampleRate float64) *HighPass {
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / sampleRate
	return &HighPass{alpha: rc / (rc + dt)}
}

// Filter applies the filter in place to a float64 frame.
func (h *HighPass) Filter(frame []float64) {
	for i, x := range frame {
		y := h.alpha * (h.prevY + x - h.prevX)
		h.prevX = x
		h.prevY = y
		frame[i] = y
	}
}

// Reset clears the filter state.
func (h *HighPass) Reset() {
	h.prevX = 0
	h.prevY = 0
}

// HannWindow returns a Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// FFT holds the reusable state for a fixed-size transform.
type FFT struct {
	size int
	re   []float64
	im   []float64
}

// NewFFT creates a transform of the given power-of-two size.
func NewFFT(size int) (*FFT, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, ErrBlockSize
	}
	return &FFT{
		size: size,
		re:   make([]float64, size),
		im:   make([]float64, size),
	}, nil
}

// Size returns the transform length.
func (f *FFT) Size() int {
	return f.size
}

// PowerSpectrum computes the magnitude-squared spectrum of a real block.
// The result has size/2+1 bins (DC through Nyquist) and is written into
// out, which must have at least that length. The input is not modified.
func (f *FFT) PowerSpectrum(block []float64, out []float64) []float64 {
	n := f.size
	shift := bits.UintSize - uint(bits.Len(uint(n-1)))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse(uint(i)) >> shift)
		if i < len(block) {
			f.re[j] = block[i]
		} else {
			f.re[j] = 0
		}
		f.im[j] = 0
	}

	// Iterative Cooley-Tukey, decimation in time.
	for span := 2; span <= n; span <<= 1 {
		half := span >> 1
		step := -2 * math.Pi / float64(span)
		for start := 0; start < n; start += span {
			for k := 0; k < half; k++ {
				angle := step * float64(k)
				wr, wi := math.Cos(angle), math.Sin(angle)
				a, b := start+k, start+k+half
				tr := wr*f.re[b] - wi*f.im[b]
				ti := wr*f.im[b] + wi*f.re[b]
				f.re[b] = f.re[a] - tr
				f.im[b] = f.im[a] - ti
				f.re[a] += tr
				f.im[a] += ti
			}
		}
	}

	bins := n/2 + 1
	out = out[:bins]
	for i := 0; i < bins; i++ {
		out[i] = f.re[i]*f.re[i] + f.im[i]*f.im[i]
	}
	return out
}

// BinRange returns the bin indices covering [loHz, hiHz] for a power
// spectrum produced at the given sample rate and FFT size.
func BinRange(fftSize int, sampleRate float64, loHz, hiHz float64) (lo, hi int) {
	binWidth := sampleRate / float64(fftSize)
	lo = int(math.Ceil(loHz / binWidth))
	hi = int(math.Floor(hiHz / binWidth))
	if lo < 0 {
		lo = 0
	}
	if max := fftSize / 2; hi > max {
		hi = max
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// BandEnergy sums power spectrum bins covering [loHz, hiHz].
func BandEnergy(spectrum []float64, fftSize int, sampleRate, loHz, hiHz float64) float64 {
	lo, hi := BinRange(fftSize, sampleRate, loHz, hiHz)
	var sum float64
	for i := lo; i <= hi && i < len(spectrum); i++ {
		sum += spectrum[i]
	}
	return sum
}

// SpectralFlatness returns the ratio of the geometric to the arithmetic
// mean of the power spectrum bins in [lo, hi]. Values near 1 indicate a
// noise-like spectrum, values near 0 a tonal one.
func SpectralFlatness(spectrum []float64, lo, hi int) float64 {
	if hi >= len(spectrum) {
		hi = len(spectrum) - 1
	}
	if lo > hi {
		return 1
	}
	const floor = 1e-12
	var logSum, sum float64
	n := 0
	for i := lo; i <= hi; i++ {
		v := spectrum[i]
		if v < floor {
			v = floor
		}
		logSum += math.Log(v)
		sum += v
		n++
	}
	geo := math.Exp(logSum / float64(n))
	arith := sum / float64(n)
	if arith < floor {
		return 1
	}
	return geo / arith
}
