package client

import (
	"testing"

	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

func TestCheck(t *testing.T) {
	loan := id.NewDisbursementID()

	tests := []struct {
		name    string
		client  Client
		wantErr bool
	}{
		{"new client", Client{Balance: types.PHP(0), Status: status.NoData}, false},
		{"ongoing loan", Client{Balance: types.PHP(5000), Status: status.OnGoing, CurrentDisbursementID: loan}, false},
		{"paid loan", Client{Balance: types.PHP(0), Status: status.Paid, CurrentDisbursementID: loan}, false},
		{"overdue loan", Client{Balance: types.PHP(100), Status: status.Overdue, CurrentDisbursementID: loan}, false},
		{"negative balance", Client{Balance: types.PHP(-1), Status: status.OnGoing, CurrentDisbursementID: loan}, true},
		{"paid with balance", Client{Balance: types.PHP(100), Status: status.Paid, CurrentDisbursementID: loan}, true},
		{"ongoing at zero", Client{Balance: types.PHP(0), Status: status.OnGoing, CurrentDisbursementID: loan}, true},
		{"balance without loan", Client{Balance: types.PHP(100), Status: status.NoData}, true},
		{"unknown status", Client{Balance: types.PHP(100), Status: "Closed", CurrentDisbursementID: loan}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.client.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListOptsMatches(t *testing.T) {
	c := &Client{Name: "Maria Santos", Nickname: "Yaya", Status: status.OnGoing}

	tests := []struct {
		name string
		opts ListOpts
		want bool
	}{
		{"empty filter", ListOpts{}, true},
		{"name substring", ListOpts{Search: "santos"}, true},
		{"nickname substring", ListOpts{Search: "YAY"}, true},
		{"no match", ListOpts{Search: "pedro"}, false},
		{"status match", ListOpts{Status: status.OnGoing}, true},
		{"status mismatch", ListOpts{Status: status.Paid}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(c); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}
