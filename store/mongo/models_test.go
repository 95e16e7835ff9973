package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

func TestClientModelFieldNames(t *testing.T) {
	c := &client.Client{
		ID:                    id.NewClientID(),
		Name:                  "Juan Dela Cruz",
		Balance:               types.PHP(120000),
		Status:                status.OnGoing,
		IsPrivate:             true,
		PIN:                   "9999",
		CurrentDisbursementID: id.NewDisbursementID(),
	}

	raw, err := bson.Marshal(toClientModel(c))
	if err != nil {
		t.Fatal(err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}

	for _, field := range []string{"_id", "ClientName", "Balance", "Status", "isPrivate", "ClientPIN", "CurrentDisbursementID"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("missing field %s", field)
		}
	}
	if doc["isPrivate"] != "Yes" {
		t.Errorf("isPrivate: got %v", doc["isPrivate"])
	}

	var m clientModel
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	back, err := fromClientModel(&m)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != c.ID || back.Balance != c.Balance || !back.IsPrivate || back.CurrentDisbursementID != c.CurrentDisbursementID {
		t.Errorf("round trip: %+v", back)
	}
}

func TestLegacyDisbursement(t *testing.T) {
	m := &disbursementModel{
		ID:          id.NewDisbursementID().String(),
		ClientID:    id.NewClientID().String(),
		Amount:      500000,
		MonthsToPay: 3,
		IssuedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Remarks:     "Recon",
		Status:      "Active",
	}

	d, err := fromDisbursementModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != disbursement.KindRecon {
		t.Errorf("kind from remarks: got %s", d.Kind)
	}
	if d.Status != status.OnGoing {
		t.Errorf("legacy status: got %s", d.Status)
	}
	if d.Amount.Currency != types.DefaultCurrency {
		t.Errorf("currency: got %q", d.Amount.Currency)
	}
}

func TestClientWithoutLoanIsNoData(t *testing.T) {
	m := &clientModel{ID: id.NewClientID().String(), Name: "New", Status: "", IsPrivate: "No"}
	c, err := fromClientModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != status.NoData || c.IsPrivate {
		t.Errorf("got status %s private %v", c.Status, c.IsPrivate)
	}
}
