package server

import (
	"slices"
	"testing"
)

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		want    []string
	}{
		{"empty allows all", nil, []string{"*"}},
		{"full origins become hosts", []string{"https://app.example.com", "http://localhost:3000"}, []string{"app.example.com", "localhost:3000"}},
		{"host patterns pass through", []string{"*.example.com"}, []string{"*.example.com"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := originPatterns(tc.origins); !slices.Equal(got, tc.want) {
				t.Errorf("originPatterns(%v) = %v, want %v", tc.origins, got, tc.want)
			}
		})
	}
}
