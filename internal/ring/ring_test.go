package ring_test

import (
	"sync"
	"testing"
	"time"

	"github.com/wavecore-audio/wavecore/internal/ring"
)

// newBuffer creates a buffer and unwraps its handles, failing the test on error.
func newBuffer(t *testing.T, capacityFrames, slotSamples int) (*ring.Buffer, *ring.Producer, *ring.Consumer) {
	t.Helper()
	b, err := ring.New(capacityFrames, slotSamples)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", capacityFrames, slotSamples, err)
	}
	p, c, err := b.Handles()
	if err != nil {
		t.Fatalf("Handles: %v", err)
	}
	return b, p, c
}

// frame builds a single-sample frame carrying the value v, so frames are
// distinguishable in ordering assertions.
func frame(v float32) []float32 {
	return []float32{v}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		capacity int
		slot     int
		wantErr  bool
	}{
		{"too small", 1, 4, true},
		{"zero slot", 8, 0, true},
		{"negative slot", 8, -1, true},
		{"minimal", 2, 1, false},
		{"non power of two rounds up", 100, 4, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ring.New(tc.capacity, tc.slot)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New(%d, %d) err = %v, wantErr %v", tc.capacity, tc.slot, err, tc.wantErr)
			}
		})
	}
}

func TestCapacityRoundsUpMinusReserved(t *testing.T) {
	t.Parallel()

	b, err := ring.New(100, 4)
	if err != nil {
		t.Fatal(err)
	}
	// 100 rounds up to 128 slots; one is reserved.
	if got := b.Capacity(); got != 127 {
		t.Fatalf("Capacity() = %d, want 127", got)
	}
}

func TestHandlesIssuedOnce(t *testing.T) {
	t.Parallel()

	b, _, _ := newBuffer(t, 8, 4)
	if _, _, err := b.Handles(); err != ring.ErrHandlesTaken {
		t.Fatalf("second Handles() err = %v, want ErrHandlesTaken", err)
	}
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	_, p, c := newBuffer(t, 16, 1)
	for i := 0; i < 10; i++ {
		if st := p.Write(frame(float32(i))); st != ring.Written {
			t.Fatalf("write %d: status %v", i, st)
		}
	}

	dst := make([]float32, 1)
	for i := 0; i < 10; i++ {
		n, st := c.Read(dst)
		if st != ring.Ready || n != 1 {
			t.Fatalf("read %d: n=%d status=%v", i, n, st)
		}
		if dst[0] != float32(i) {
			t.Fatalf("read %d: got %v, want %v (FIFO violated)", i, dst[0], float32(i))
		}
	}
	if _, st := c.Read(dst); st != ring.NotReady {
		t.Fatalf("read on empty: status %v, want NotReady", st)
	}
}

func TestWriteFullRejectsNewest(t *testing.T) {
	t.Parallel()

	_, p, c := newBuffer(t, 4, 1) // 3 usable slots
	for i := 0; i < 3; i++ {
		if st := p.Write(frame(float32(i))); st != ring.Written {
			t.Fatalf("write %d: status %v", i, st)
		}
	}

	// Buffer is full: further writes are rejected and the read cursor — and
	// therefore the buffered content — is unaffected.
	if st := p.Write(frame(99)); st != ring.WouldOverflow {
		t.Fatalf("write on full: status %v, want WouldOverflow", st)
	}

	dst := make([]float32, 1)
	for i := 0; i < 3; i++ {
		if _, st := c.Read(dst); st != ring.Ready {
			t.Fatalf("drain %d: status %v", i, st)
		}
		if dst[0] != float32(i) {
			t.Fatalf("drain %d: got %v, want %v", i, dst[0], float32(i))
		}
	}
}

// TestOverflowScenario1024 writes 2000 frames into a 1024-slot ring with no
// reads: exactly 1023 writes succeed, the rest report WouldOverflow, and the
// drainable content is the first 1023 frames (writes fail once full rather
// than evicting buffered data).
func TestOverflowScenario1024(t *testing.T) {
	t.Parallel()

	_, p, c := newBuffer(t, 1024, 1)

	written, rejected := 0, 0
	for i := 0; i < 2000; i++ {
		switch p.Write(frame(float32(i))) {
		case ring.Written:
			written++
		case ring.WouldOverflow:
			rejected++
		}
	}
	if written != 1023 {
		t.Fatalf("written = %d, want 1023", written)
	}
	if rejected != 977 {
		t.Fatalf("rejected = %d, want 977", rejected)
	}

	dst := make([]float32, 1)
	for i := 0; i < 1023; i++ {
		n, st := c.Read(dst)
		if st != ring.Ready || n != 1 {
			t.Fatalf("drain %d: n=%d status=%v", i, n, st)
		}
		if dst[0] != float32(i) {
			t.Fatalf("drain %d: got %v, want %v", i, dst[0], float32(i))
		}
	}
	if _, st := c.Read(dst); st != ring.NotReady {
		t.Fatalf("after drain: status %v, want NotReady", st)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	t.Parallel()

	_, p, _ := newBuffer(t, 8, 4)
	if st := p.Write(make([]float32, 5)); st != ring.WouldOverflow {
		t.Fatalf("oversized write: status %v, want WouldOverflow", st)
	}
}

func TestReadTruncatesToDst(t *testing.T) {
	t.Parallel()

	_, p, c := newBuffer(t, 8, 4)
	p.Write([]float32{1, 2, 3, 4})

	dst := make([]float32, 2)
	n, st := c.Read(dst)
	if st != ring.Ready || n != 2 {
		t.Fatalf("read: n=%d status=%v, want n=2 Ready", n, st)
	}
	if dst[0] != 1 || dst[1] != 2 {
		t.Fatalf("read: got %v, want [1 2]", dst)
	}
}

func TestReadWaitTimeout(t *testing.T) {
	t.Parallel()

	_, _, c := newBuffer(t, 8, 1)
	start := time.Now()
	n, st := c.ReadWait(make([]float32, 1), 20*time.Millisecond)
	if st != ring.Timeout || n != 0 {
		t.Fatalf("ReadWait on empty: n=%d status=%v, want Timeout", n, st)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("ReadWait returned after %v, before the timeout elapsed", elapsed)
	}
}

func TestReadWaitWakesOnWrite(t *testing.T) {
	t.Parallel()

	_, p, c := newBuffer(t, 8, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		dst := make([]float32, 1)
		n, st := c.ReadWait(dst, 5*time.Second)
		if st != ring.Ready || n != 1 || dst[0] != 7 {
			t.Errorf("ReadWait: n=%d status=%v dst=%v, want 1 Ready [7]", n, st, dst)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if st := p.Write(frame(7)); st != ring.Written {
		t.Fatalf("write: status %v", st)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadWait did not wake after write")
	}
}

func TestFreeAndBuffered(t *testing.T) {
	t.Parallel()

	b, p, c := newBuffer(t, 8, 1)
	if p.Free() != 7 || b.Buffered() != 0 {
		t.Fatalf("fresh buffer: Free=%d Buffered=%d", p.Free(), b.Buffered())
	}
	p.Write(frame(1))
	p.Write(frame(2))
	if p.Free() != 5 || b.Buffered() != 2 {
		t.Fatalf("after 2 writes: Free=%d Buffered=%d", p.Free(), b.Buffered())
	}
	c.Read(make([]float32, 1))
	if p.Free() != 6 || b.Buffered() != 1 {
		t.Fatalf("after 1 read: Free=%d Buffered=%d", p.Free(), b.Buffered())
	}
}

// TestConcurrentSPSC hammers the buffer from one producer goroutine and one
// consumer goroutine, asserting that every value read is in insertion order.
// Run with -race to exercise the memory-ordering contract.
func TestConcurrentSPSC(t *testing.T) {
	t.Parallel()

	const total = 100_000
	_, p, c := newBuffer(t, 64, 1)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if p.Write(frame(float32(i))) == ring.Written {
				i++
			}
		}
	}()

	go func() {
		defer wg.Done()
		dst := make([]float32, 1)
		next := float32(0)
		for read := 0; read < total; {
			if _, st := c.Read(dst); st == ring.Ready {
				if dst[0] != next {
					t.Errorf("out of order: got %v, want %v", dst[0], next)
					return
				}
				next++
				read++
			}
		}
	}()

	wg.Wait()
}
