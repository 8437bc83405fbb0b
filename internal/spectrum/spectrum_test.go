package spectrum

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	defer b.Close()

	// Must not block or panic.
	b.Publish([]float64{1, 2, 3})
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.Subscribers())
	}
}

func TestSubscribeAndReceive(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Wait for the server side to register the subscriber.
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}

	want := []float64{0.5, 1.25, 3}
	b.Publish(want)

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(f.Bins) != len(want) {
		t.Fatalf("bins = %v, want %v", f.Bins, want)
	}
	for i := range want {
		if f.Bins[i] != want[i] {
			t.Fatalf("bins[%d] = %v, want %v", i, f.Bins[i], want[i])
		}
	}
	if f.Timestamp == 0 {
		t.Fatal("timestamp not set")
	}
}

func TestSlowSubscriberGetsNewestFrame(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Burst faster than the client reads. The client must converge on a
	// recent frame, never an error or a stall.
	for i := 1; i <= 50; i++ {
		b.Publish([]float64{float64(i)})
	}

	var last Frame
	// Read whatever arrives; the final read should carry a high sequence.
	for {
		rctx, rcancel := context.WithTimeout(ctx, 200*time.Millisecond)
		_, data, err := conn.Read(rctx)
		rcancel()
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if len(last.Bins) == 0 {
		t.Fatal("no frames received")
	}
	if last.Bins[0] < 2 {
		t.Fatalf("last frame = %v, expected burst to advance past the first frame", last.Bins)
	}
}

func TestCloseDetachesSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(nil)

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	b.Close()

	if got := b.Subscribers(); got != 0 {
		t.Fatalf("subscribers after Close = %d, want 0", got)
	}

	// The server side closes the connection; the read must fail rather
	// than hang.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("read succeeded after broadcaster close")
	}
}
