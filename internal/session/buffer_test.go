package session

import (
	"testing"
	"time"
)

func TestBuffer_AppendAndDuration(t *testing.T) {
	b := NewBuffer(16000)
	if b.Len() != 0 || b.Duration() != 0 {
		t.Fatalf("new buffer: len=%d dur=%v", b.Len(), b.Duration())
	}
	b.Append(make([]float32, 8000))
	b.Append(make([]float32, 8000))
	if b.Len() != 16000 {
		t.Errorf("Len = %d, want 16000", b.Len())
	}
	if b.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", b.Duration())
	}
}

func TestBuffer_NextWindowAcrossChunks(t *testing.T) {
	b := NewBuffer(16000)
	b.Append(make([]float32, 300))
	if _, ok := b.NextWindow(512); ok {
		t.Fatal("NextWindow returned a window from 300 samples")
	}
	b.Append(make([]float32, 800))

	var n int
	for {
		w, ok := b.NextWindow(512)
		if !ok {
			break
		}
		if len(w) != 512 {
			t.Fatalf("window len = %d, want 512", len(w))
		}
		n++
	}
	if n != 2 {
		t.Errorf("got %d windows from 1100 samples, want 2", n)
	}

	// 76 unanalysed samples remain; 436 more complete a third window.
	b.Append(make([]float32, 436))
	if _, ok := b.NextWindow(512); !ok {
		t.Error("expected a third window after topping up")
	}
}

func TestBuffer_NextWindowInvalidSize(t *testing.T) {
	b := NewBuffer(16000)
	b.Append(make([]float32, 1024))
	if _, ok := b.NextWindow(0); ok {
		t.Error("NextWindow(0) should not return a window")
	}
}

func TestBuffer_DrainResetsCursor(t *testing.T) {
	b := NewBuffer(16000)
	b.Append([]float32{1, 2, 3, 4})
	_, _ = b.NextWindow(2)

	got := b.Drain()
	if len(got) != 4 || got[3] != 4 {
		t.Fatalf("Drain = %v", got)
	}
	if b.Len() != 0 || b.Duration() != 0 {
		t.Errorf("buffer not empty after Drain: len=%d", b.Len())
	}

	b.Append([]float32{5, 6})
	w, ok := b.NextWindow(2)
	if !ok || w[0] != 5 {
		t.Errorf("NextWindow after Drain = %v, %v; want [5 6], true", w, ok)
	}
	// The drained slice is not affected by later appends.
	if got[0] != 1 {
		t.Errorf("drained slice changed: %v", got)
	}
}

func TestBuffer_TrimAnalysed(t *testing.T) {
	tests := []struct {
		name      string
		keep      int
		wantLen   int
		wantFirst float32
	}{
		{name: "keep nothing", keep: 0, wantLen: 100, wantFirst: 1024},
		{name: "keep part", keep: 200, wantLen: 300, wantFirst: 824},
		{name: "keep more than analysed", keep: 5000, wantLen: 1124, wantFirst: 0},
		{name: "negative keep", keep: -1, wantLen: 100, wantFirst: 1024},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuffer(16000)
			ramp := make([]float32, 1124)
			for i := range ramp {
				ramp[i] = float32(i)
			}
			b.Append(ramp)
			b.NextWindow(512)
			b.NextWindow(512)

			b.TrimAnalysed(tc.keep)
			if b.Len() != tc.wantLen {
				t.Fatalf("Len = %d, want %d", b.Len(), tc.wantLen)
			}
			if got := b.Drain()[0]; got != tc.wantFirst {
				t.Errorf("first sample = %v, want %v", got, tc.wantFirst)
			}
		})
	}
}

func TestBuffer_TrimAnalysedKeepsCursor(t *testing.T) {
	b := NewBuffer(16000)
	b.Append(make([]float32, 700))
	b.NextWindow(512)
	b.TrimAnalysed(12)
	if b.Len() != 200 {
		t.Fatalf("Len = %d, want 200", b.Len())
	}
	if _, ok := b.NextWindow(512); ok {
		t.Fatal("trimmed samples were offered for analysis again")
	}
	b.Append(make([]float32, 324))
	if _, ok := b.NextWindow(512); !ok {
		t.Error("NextWindow after refill: want a window from 188 + 324 unanalysed samples")
	}
}
