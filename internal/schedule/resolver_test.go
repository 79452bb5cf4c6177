package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNewResolver_Validation(t *testing.T) {
	tests := []struct {
		name        string
		checkpoints []int
		minute      int
		wantErr     bool
	}{
		{name: "valid four checkpoints", checkpoints: []int{4, 7, 10, 13}, minute: 30},
		{name: "valid single checkpoint", checkpoints: []int{9}, minute: 0},
		{name: "empty list", checkpoints: nil, minute: 30, wantErr: true},
		{name: "hour above range", checkpoints: []int{4, 24}, minute: 30, wantErr: true},
		{name: "negative hour", checkpoints: []int{-1, 7}, minute: 30, wantErr: true},
		{name: "unsorted hours", checkpoints: []int{7, 4}, minute: 30, wantErr: true},
		{name: "duplicate hours", checkpoints: []int{4, 4, 7}, minute: 30, wantErr: true},
		{name: "minute above range", checkpoints: []int{4}, minute: 60, wantErr: true},
		{name: "negative minute", checkpoints: []int{4}, minute: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.checkpoints, tt.minute, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewResolver() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	resolver, err := NewResolver([]int{4, 7, 10, 13}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "between first and second checkpoint",
			now:       date(2025, time.March, 10, 5, 12),
			wantStart: date(2025, time.March, 9, 13, 30),
			wantEnd:   date(2025, time.March, 10, 4, 30),
		},
		{
			name:      "before every checkpoint wraps to previous day",
			now:       date(2025, time.March, 10, 3, 0),
			wantStart: date(2025, time.March, 8, 10, 30),
			wantEnd:   date(2025, time.March, 9, 13, 30),
		},
		{
			name:      "hour exactly at checkpoint counts as passed",
			now:       date(2025, time.March, 10, 7, 0),
			wantStart: date(2025, time.March, 10, 4, 30),
			wantEnd:   date(2025, time.March, 10, 7, 30),
		},
		{
			name:      "after final checkpoint",
			now:       date(2025, time.March, 10, 22, 45),
			wantStart: date(2025, time.March, 10, 10, 30),
			wantEnd:   date(2025, time.March, 10, 13, 30),
		},
		{
			name:      "midnight wraps",
			now:       date(2025, time.March, 10, 0, 0),
			wantStart: date(2025, time.March, 8, 10, 30),
			wantEnd:   date(2025, time.March, 9, 13, 30),
		},
		{
			name:      "month boundary rollover",
			now:       date(2025, time.March, 1, 2, 0),
			wantStart: date(2025, time.February, 27, 10, 30),
			wantEnd:   date(2025, time.February, 28, 13, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := resolver.Resolve(tt.now)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !window.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %v, want %v", window.Start, tt.wantStart)
			}
			if !window.End.Equal(tt.wantEnd) {
				t.Errorf("End = %v, want %v", window.End, tt.wantEnd)
			}
			if !window.Start.Before(window.End) {
				t.Errorf("Start %v not before End %v", window.Start, window.End)
			}
		})
	}
}

func TestResolver_Resolve_SingleCheckpoint(t *testing.T) {
	resolver, err := NewResolver([]int{9}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// A single checkpoint always yields a window exactly 24 hours long,
	// whether or not today's checkpoint has passed.
	for hour := 0; hour < 24; hour++ {
		now := date(2025, time.June, 15, hour, 10)
		window, err := resolver.Resolve(now)
		if err != nil {
			t.Fatalf("Resolve(hour=%d): %v", hour, err)
		}
		if got := window.Duration(); got != 24*time.Hour {
			t.Errorf("hour=%d: window duration = %v, want 24h", hour, got)
		}
		if window.End.Hour() != 9 || window.End.Minute() != 30 {
			t.Errorf("hour=%d: End = %v, want HH:MM 09:30", hour, window.End)
		}
	}

	// Passed checkpoint ends today, unpassed ends yesterday.
	passed, _ := resolver.Resolve(date(2025, time.June, 15, 9, 0))
	if want := date(2025, time.June, 15, 9, 30); !passed.End.Equal(want) {
		t.Errorf("End = %v, want %v", passed.End, want)
	}
	unpassed, _ := resolver.Resolve(date(2025, time.June, 15, 8, 59))
	if want := date(2025, time.June, 14, 9, 30); !unpassed.End.Equal(want) {
		t.Errorf("End = %v, want %v", unpassed.End, want)
	}
}

func TestResolver_Resolve_Idempotent(t *testing.T) {
	resolver, err := NewResolver([]int{4, 7, 10, 13}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	now := date(2025, time.March, 10, 11, 47)
	first, err := resolver.Resolve(now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := resolver.Resolve(now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !first.Start.Equal(second.Start) || !first.End.Equal(second.End) {
		t.Errorf("Resolve not idempotent: %v vs %v", first, second)
	}
}

func TestResolver_Resolve_ZeroInstant(t *testing.T) {
	resolver, err := NewResolver([]int{9}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.Resolve(time.Time{}); err == nil {
		t.Error("expected error for zero instant")
	}
}

func TestResolver_Resolve_ConvertsToResolverZone(t *testing.T) {
	resolver, err := NewResolver([]int{4, 7, 10, 13}, 30, time.UTC)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// 10:45 IST is 05:15 UTC; the resolver must evaluate the UTC hour.
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, time.March, 10, 10, 45, 0, 0, ist)

	window, err := resolver.Resolve(now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := date(2025, time.March, 10, 4, 30); !window.End.Equal(want) {
		t.Errorf("End = %v, want %v", window.End, want)
	}
	if want := date(2025, time.March, 9, 13, 30); !window.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", window.Start, want)
	}
}
