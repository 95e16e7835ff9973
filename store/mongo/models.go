package mongo

import (
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
	"github.com/xraph/loanbook/user"
)

// Field names follow the collections the loan office already has in
// production, including their mixed casing.

// ==================== Client models ====================

type clientModel struct {
	ID                    string    `bson:"_id"`
	Name                  string    `bson:"ClientName"`
	Nickname              string    `bson:"Nickname"`
	Balance               int64     `bson:"Balance"`
	Currency              string    `bson:"Currency"`
	Status                string    `bson:"Status"`
	IsPrivate             string    `bson:"isPrivate"`
	PIN                   string    `bson:"ClientPIN,omitempty"`
	CurrentDisbursementID string    `bson:"CurrentDisbursementID,omitempty"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func toClientModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:                    c.ID.String(),
		Name:                  c.Name,
		Nickname:              c.Nickname,
		Balance:               c.Balance.Amount,
		Currency:              c.Balance.Currency,
		Status:                string(c.Status),
		IsPrivate:             yesNo(c.IsPrivate),
		PIN:                   c.PIN,
		CurrentDisbursementID: c.CurrentDisbursementID.String(),
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func fromClientModel(m *clientModel) (*client.Client, error) {
	clientID, err := id.ParseClientID(m.ID)
	if err != nil {
		return nil, err
	}
	current, err := id.FromString(m.CurrentDisbursementID)
	if err != nil {
		return nil, err
	}

	st := status.NoData
	if !current.IsNil() {
		if st, err = status.Parse(m.Status); err != nil {
			return nil, err
		}
	}

	currency := m.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	return &client.Client{
		Entity:                types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                    clientID,
		Name:                  m.Name,
		Nickname:              m.Nickname,
		Balance:               types.New(m.Balance, currency),
		Status:                st,
		IsPrivate:             m.IsPrivate == "Yes",
		PIN:                   m.PIN,
		CurrentDisbursementID: current,
	}, nil
}

// ==================== Disbursement models ====================

type disbursementModel struct {
	ID          string    `bson:"_id"`
	ClientID    string    `bson:"clientId"`
	Amount      int64     `bson:"Amount"`
	Interest    int64     `bson:"Interest"`
	Penalty     int64     `bson:"Penalty,omitempty"`
	Currency    string    `bson:"Currency"`
	MonthsToPay int       `bson:"MonthsToPay"`
	IssuedAt    time.Time `bson:"DateToday"`
	Deadline    time.Time `bson:"Deadline"`
	Kind        string    `bson:"LoanType"`
	Remarks     string    `bson:"Remarks"`
	Status      string    `bson:"Status"`
	PreviousID  string    `bson:"PreviousID,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toDisbursementModel(d *disbursement.Disbursement) *disbursementModel {
	return &disbursementModel{
		ID:          d.ID.String(),
		ClientID:    d.ClientID.String(),
		Amount:      d.Amount.Amount,
		Interest:    d.Interest.Amount,
		Penalty:     d.Penalty.Amount,
		Currency:    d.Amount.Currency,
		MonthsToPay: d.MonthsToPay,
		IssuedAt:    d.IssuedAt,
		Deadline:    d.Deadline,
		Kind:        string(d.Kind),
		Remarks:     d.Remarks,
		Status:      string(d.Status),
		PreviousID:  d.PreviousID.String(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromDisbursementModel(m *disbursementModel) (*disbursement.Disbursement, error) {
	dID, err := id.ParseDisbursementID(m.ID)
	if err != nil {
		return nil, err
	}
	clientID, err := id.ParseClientID(m.ClientID)
	if err != nil {
		return nil, err
	}
	prev, err := id.FromString(m.PreviousID)
	if err != nil {
		return nil, err
	}
	st, err := status.Parse(m.Status)
	if err != nil {
		return nil, err
	}

	// Older documents only carried the kind in Remarks.
	kind := disbursement.Kind(m.Kind)
	if kind == "" {
		kind = disbursement.KindRelease
		if m.Remarks == string(disbursement.KindRecon) {
			kind = disbursement.KindRecon
		}
	}

	currency := m.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	return &disbursement.Disbursement{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          dID,
		ClientID:    clientID,
		Amount:      types.New(m.Amount, currency),
		Interest:    types.New(m.Interest, currency),
		Penalty:     types.New(m.Penalty, currency),
		MonthsToPay: m.MonthsToPay,
		IssuedAt:    m.IssuedAt,
		Deadline:    m.Deadline,
		Kind:        kind,
		Remarks:     m.Remarks,
		Status:      st,
		PreviousID:  prev,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	ID             string    `bson:"_id"`
	ClientID       string    `bson:"clientId"`
	DisbursementID string    `bson:"DisbursementID"`
	Amount         int64     `bson:"Amount"`
	Currency       string    `bson:"Currency"`
	PaidAt         time.Time `bson:"DateToday"`
	RecordedBy     string    `bson:"UserID"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		ClientID:       p.ClientID.String(),
		DisbursementID: p.DisbursementID.String(),
		Amount:         p.Amount.Amount,
		Currency:       p.Amount.Currency,
		PaidAt:         p.PaidAt,
		RecordedBy:     p.RecordedBy.String(),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	pID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	clientID, err := id.ParseClientID(m.ClientID)
	if err != nil {
		return nil, err
	}
	dID, err := id.ParseDisbursementID(m.DisbursementID)
	if err != nil {
		return nil, err
	}
	recordedBy, err := id.FromString(m.RecordedBy)
	if err != nil {
		return nil, err
	}

	currency := m.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	return &payment.Payment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             pID,
		ClientID:       clientID,
		DisbursementID: dID,
		Amount:         types.New(m.Amount, currency),
		PaidAt:         m.PaidAt,
		RecordedBy:     recordedBy,
	}, nil
}

// ==================== User models ====================

type userModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	PIN       string    `bson:"PIN"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:        u.ID.String(),
		Name:      u.Name,
		PIN:       u.PIN,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) (*user.User, error) {
	userID, err := id.ParseUserID(m.ID)
	if err != nil {
		return nil, err
	}
	return &user.User{
		Entity: types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     userID,
		Name:   m.Name,
		PIN:    m.PIN,
	}, nil
}
