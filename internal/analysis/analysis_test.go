package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/wavecore-audio/wavecore/internal/bufpool"
)

func TestNewSpectrumValidation(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1, 3, 1000} {
		if _, err := NewSpectrum(size); err == nil {
			t.Errorf("NewSpectrum(%d): expected error", size)
		}
	}
	s, err := NewSpectrum(1024)
	if err != nil {
		t.Fatalf("NewSpectrum(1024): %v", err)
	}
	if s.Bins() != 513 {
		t.Fatalf("Bins() = %d, want 513", s.Bins())
	}
}

func TestComputeSineBin(t *testing.T) {
	t.Parallel()

	const size = 1024
	s, err := NewSpectrum(size)
	if err != nil {
		t.Fatal(err)
	}

	// A sine at exactly bin 32 should dominate the spectrum.
	const bin = 32
	samples := make([]float32, size)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * bin * float64(i) / size))
	}

	mags, err := s.Compute(samples)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	if peak != bin {
		t.Fatalf("peak bin = %d, want %d", peak, bin)
	}
}

func TestComputeZeroPadsShortInput(t *testing.T) {
	t.Parallel()

	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}
	mags, err := s.Compute(make([]float32, 100))
	if err != nil {
		t.Fatalf("Compute short input: %v", err)
	}
	for i, m := range mags {
		if m != 0 {
			t.Fatalf("bin %d = %v, want 0 for silence", i, m)
		}
	}
}

func TestComputeOversized(t *testing.T) {
	t.Parallel()

	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Compute(make([]float32, 257)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestSpectrumTaskReleasesBuffer(t *testing.T) {
	t.Parallel()

	pool, err := bufpool.New(1, 256)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}

	buf, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	task := &SpectrumTask{Spectrum: s, Buffer: buf, Samples: 256}
	if _, err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pool.Available() != 1 {
		t.Fatalf("buffer not released: available = %d", pool.Available())
	}

	// Cancelled run still releases.
	buf, err = pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task = &SpectrumTask{Spectrum: s, Buffer: buf, Samples: 256}
	if _, err := task.Run(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
	if pool.Available() != 1 {
		t.Fatalf("buffer leaked on cancelled run: available = %d", pool.Available())
	}
}
