package disbursement

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestComputeDeadline(t *testing.T) {
	tests := []struct {
		name   string
		issued time.Time
		months int
		want   time.Time
	}{
		{"clamps to non-leap february", date(2025, time.January, 31), 1, time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC)},
		{"clamps to leap february", date(2028, time.January, 31), 1, time.Date(2028, time.February, 29, 23, 59, 59, 0, time.UTC)},
		{"plain month", date(2025, time.March, 15), 2, time.Date(2025, time.May, 15, 23, 59, 59, 0, time.UTC)},
		{"clamps to 30-day month", date(2025, time.March, 31), 1, time.Date(2025, time.April, 30, 23, 59, 59, 0, time.UTC)},
		{"carries into next year", date(2025, time.November, 30), 3, time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC)},
		{"december plus one", date(2025, time.December, 31), 1, time.Date(2026, time.January, 31, 23, 59, 59, 0, time.UTC)},
		{"six months", date(2025, time.August, 31), 6, time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC)},
		{"twelve months", date(2024, time.February, 29), 12, time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeDeadline(tt.issued, tt.months)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeDeadlineKeepsLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	issued := time.Date(2025, time.January, 31, 8, 0, 0, 0, manila)

	got, err := ComputeDeadline(issued, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != manila {
		t.Errorf("location: got %v, want %v", got.Location(), manila)
	}
	if y, m, d := got.Date(); y != 2025 || m != time.February || d != 28 {
		t.Errorf("date: got %d-%02d-%02d", y, m, d)
	}
}

func TestComputeDeadlineRejects(t *testing.T) {
	if _, err := ComputeDeadline(date(2025, time.January, 1), 0); err == nil {
		t.Error("expected error for zero months")
	}
	if _, err := ComputeDeadline(time.Time{}, 1); err == nil {
		t.Error("expected error for zero issue date")
	}
}

func TestCovers(t *testing.T) {
	d := &Disbursement{
		IssuedAt: time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		Deadline: time.Date(2025, time.February, 28, 23, 59, 59, 0, time.UTC),
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"issue instant", d.IssuedAt, true},
		{"deadline instant", d.Deadline, true},
		{"same day as deadline", time.Date(2025, time.February, 28, 18, 0, 0, 0, time.UTC), true},
		{"before issue", d.IssuedAt.Add(-time.Second), false},
		{"after deadline", d.Deadline.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Covers(tt.at); got != tt.want {
				t.Errorf("Covers: got %v, want %v", got, tt.want)
			}
		})
	}
}
