package resolution

import (
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestNextCheckDelay(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	buffer := 5 * time.Minute

	tests := []struct {
		name     string
		endDates []*time.Time
		want     time.Duration
	}{
		{name: "empty", endDates: nil, want: 0},
		{name: "all-past", endDates: []*time.Time{ptr(now.Add(-time.Hour)), ptr(now.Add(-time.Minute))}, want: 0},
		{name: "dateless", endDates: []*time.Time{nil, nil}, want: 0},
		{name: "exactly-now-is-not-future", endDates: []*time.Time{ptr(now)}, want: 0},
		{
			name:     "single-future",
			endDates: []*time.Time{ptr(now.Add(2 * time.Hour))},
			want:     2*time.Hour + buffer,
		},
		{
			name: "earliest-future-wins",
			endDates: []*time.Time{
				ptr(now.Add(-3 * time.Hour)),
				ptr(now.Add(6 * time.Hour)),
				nil,
				ptr(now.Add(90 * time.Minute)),
			},
			want: 90*time.Minute + buffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextCheckDelay(now, tt.endDates, buffer); got != tt.want {
				t.Errorf("NextCheckDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	buffer := 5 * time.Minute

	tests := []struct {
		name    string
		endDate *time.Time
		want    bool
	}{
		{name: "dateless", endDate: nil, want: true},
		{name: "future", endDate: ptr(now.Add(time.Hour)), want: false},
		{name: "past-within-buffer", endDate: ptr(now.Add(-time.Minute)), want: false},
		{name: "past-at-buffer", endDate: ptr(now.Add(-buffer)), want: true},
		{name: "long-past", endDate: ptr(now.Add(-24 * time.Hour)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(tt.endDate, now, buffer); got != tt.want {
				t.Errorf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}
