package status

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 23, 59, 59, 0, time.UTC)
	tonight := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name         string
		balance      int64
		deadline     time.Time
		restructured bool
		want         Status
	}{
		{"overdue balance", 50000, yesterday, false, Overdue},
		{"paid beats overdue", 0, yesterday, false, Paid},
		{"negative balance is paid", -100, tonight, false, Paid},
		{"overdue beats recon", 50000, yesterday, true, Overdue},
		{"recon inside term", 50000, tonight, true, Recon},
		{"ongoing inside term", 50000, tonight, false, OnGoing},
		{"same-day deadline not overdue", 50000, tonight, false, OnGoing},
		{"zero deadline ignored", 50000, time.Time{}, false, OnGoing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.balance, tt.deadline, now, tt.restructured); got != tt.want {
				t.Errorf("Resolve: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"OnGoing", OnGoing, false},
		{"Ongoing", OnGoing, false},
		{"Active", OnGoing, false},
		{"", OnGoing, false},
		{"NoData", NoData, false},
		{"Recon", Recon, false},
		{"Overdue", Overdue, false},
		{"Paid", Paid, false},
		{"Closed", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutstanding(t *testing.T) {
	for _, s := range []Status{OnGoing, Recon, Overdue} {
		if !s.Outstanding() {
			t.Errorf("%s should be outstanding", s)
		}
	}
	for _, s := range []Status{NoData, Paid} {
		if s.Outstanding() {
			t.Errorf("%s should not be outstanding", s)
		}
	}
}
