package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: time.Now().Add(-1 * time.Second),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			expires: time.Now().Add(1 * time.Hour),
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			expires: time.Now().Add(-1 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	entry, err := NewEntry(map[string]int{"totalPages": 42}, time.Minute)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(entry.Value, &got); err != nil {
		t.Fatalf("Value is not valid JSON: %v", err)
	}
	if got["totalPages"] != 42 {
		t.Errorf("Value = %s, want totalPages 42", entry.Value)
	}
	if ttl := entry.TTL(); ttl <= 59*time.Second || ttl > time.Minute {
		t.Errorf("TTL() = %v, want about 1m", ttl)
	}
	if entry.Age() < 0 {
		t.Error("Age() must not be negative")
	}
}

func TestNewEntry_Unmarshalable(t *testing.T) {
	if _, err := NewEntry(make(chan int), time.Minute); err == nil {
		t.Error("NewEntry() with a channel should fail")
	}
}
