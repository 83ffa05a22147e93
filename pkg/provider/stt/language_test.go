package stt_test

import (
	"testing"
	"time"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"TR", "tr"},
		{"english", "en"},
		{" Turkish ", "tr"},
		{"klingon", "klingon"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := stt.NormalizeLanguage(tc.in); got != tc.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSeconds(t *testing.T) {
	if got := stt.Seconds(1.25); got != 1250*time.Millisecond {
		t.Errorf("Seconds(1.25) = %v, want 1.25s", got)
	}
}
