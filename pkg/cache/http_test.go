package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestTTLFromHeaders(t *testing.T) {
	fallback := 30 * time.Second

	tests := []struct {
		name    string
		headers http.Header
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "no headers uses fallback",
			headers: http.Header{},
			wantMin: fallback,
			wantMax: fallback,
		},
		{
			name:    "max-age",
			headers: http.Header{"Cache-Control": []string{"public, max-age=120"}},
			wantMin: 120 * time.Second,
			wantMax: 120 * time.Second,
		},
		{
			name:    "no-store disables caching",
			headers: http.Header{"Cache-Control": []string{"No-Store"}},
			wantMin: 0,
			wantMax: 0,
		},
		{
			name: "max-age wins over expires",
			headers: http.Header{
				"Cache-Control": []string{"max-age=10"},
				"Expires":       []string{time.Now().Add(time.Hour).Format(http.TimeFormat)},
			},
			wantMin: 10 * time.Second,
			wantMax: 10 * time.Second,
		},
		{
			name:    "expires in the future",
			headers: http.Header{"Expires": []string{time.Now().Add(5 * time.Minute).Format(http.TimeFormat)}},
			wantMin: 4*time.Minute + 57*time.Second,
			wantMax: 5 * time.Minute,
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{time.Now().Add(-time.Hour).Format(http.TimeFormat)}},
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "invalid expires uses fallback",
			headers: http.Header{"Expires": []string{"not a date"}},
			wantMin: fallback,
			wantMax: fallback,
		},
		{
			name:    "invalid max-age is ignored",
			headers: http.Header{"Cache-Control": []string{"max-age=soon"}},
			wantMin: fallback,
			wantMax: fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TTLFromHeaders(tt.headers, fallback)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTLFromHeaders() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
