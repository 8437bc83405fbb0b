// Package analysis computes frequency-domain features from pooled audio
// buffers on the worker pool, off the real-time path.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/wavecore-audio/wavecore/internal/bufpool"
)

// ErrFrameTooLarge is returned when an input exceeds the configured FFT size.
var ErrFrameTooLarge = errors.New("analysis: frame exceeds fft size")

// Spectrum computes windowed FFT magnitudes. All scratch buffers are
// allocated at construction; Compute allocates only the output slice.
// Safe for concurrent use.
type Spectrum struct {
	size   int
	window []float64

	mu    sync.Mutex
	fft   *fourier.FFT
	real  []float64
	coeff []complex128
}

// NewSpectrum creates an analyzer for inputs of up to size samples. size must
// be a positive power of two.
func NewSpectrum(size int) (*Spectrum, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("analysis: fft size must be a positive power of two, got %d", size)
	}
	s := &Spectrum{
		size:   size,
		window: make([]float64, size),
		fft:    fourier.NewFFT(size),
		real:   make([]float64, size),
		coeff:  make([]complex128, size/2+1),
	}
	// Hann window keeps spectral leakage down on non-periodic frames.
	for i := range s.window {
		s.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return s, nil
}

// Size returns the FFT length.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of magnitude bins Compute produces (size/2 + 1).
func (s *Spectrum) Bins() int { return s.size/2 + 1 }

// Compute windows samples, zero-pads to the FFT length, and returns the
// magnitude of each non-negative frequency bin.
func (s *Spectrum) Compute(samples []float32) ([]float64, error) {
	if len(samples) > s.size {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(samples), s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.real {
		if i < len(samples) {
			s.real[i] = float64(samples[i]) * s.window[i]
		} else {
			s.real[i] = 0
		}
	}
	s.coeff = s.fft.Coefficients(s.coeff[:0], s.real)

	mags := make([]float64, len(s.coeff))
	for i, c := range s.coeff {
		mags[i] = math.Hypot(real(c), imag(c))
	}
	return mags, nil
}

// SpectrumTask wraps a pooled buffer for submission to the worker pool. Run
// releases the buffer back to its pool whether or not the FFT succeeds, so a
// failed analysis cycle can never leak pool capacity.
type SpectrumTask struct {
	Spectrum *Spectrum
	Buffer   *bufpool.Buffer
	Samples  int // valid samples at the front of Buffer.Samples
}

// Run implements the worker pool's task contract. The result value is the
// []float64 magnitude slice.
func (t *SpectrumTask) Run(ctx context.Context) (any, error) {
	defer t.Buffer.Release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := t.Samples
	if n > len(t.Buffer.Samples) {
		n = len(t.Buffer.Samples)
	}
	return t.Spectrum.Compute(t.Buffer.Samples[:n])
}
