package sqlite

import (
	"fmt"
	"time"

	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
	"github.com/xraph/loanbook/user"
)

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

type scanner interface {
	Scan(dest ...any) error
}

// ==================== Client models ====================

const clientColumns = `id, name, nickname, balance, currency, status, is_private, pin,
	current_disbursement_id, created_at, updated_at`

type clientModel struct {
	ID                    string
	Name                  string
	Nickname              string
	Balance               int64
	Currency              string
	Status                string
	IsPrivate             bool
	PIN                   string
	CurrentDisbursementID string
	CreatedAt             string
	UpdatedAt             string
}

func toClientModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:                    c.ID.String(),
		Name:                  c.Name,
		Nickname:              c.Nickname,
		Balance:               c.Balance.Amount,
		Currency:              c.Balance.Currency,
		Status:                string(c.Status),
		IsPrivate:             c.IsPrivate,
		PIN:                   c.PIN,
		CurrentDisbursementID: c.CurrentDisbursementID.String(),
		CreatedAt:             formatTime(c.CreatedAt),
		UpdatedAt:             formatTime(c.UpdatedAt),
	}
}

func (m *clientModel) args() []any {
	return []any{m.ID, m.Name, m.Nickname, m.Balance, m.Currency, m.Status, m.IsPrivate, m.PIN,
		m.CurrentDisbursementID, m.CreatedAt, m.UpdatedAt}
}

func scanClient(row scanner) (*client.Client, error) {
	var m clientModel
	err := row.Scan(&m.ID, &m.Name, &m.Nickname, &m.Balance, &m.Currency, &m.Status, &m.IsPrivate,
		&m.PIN, &m.CurrentDisbursementID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fromClientModel(&m)
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
	st, err := status.Parse(m.Status)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}

	return &client.Client{
		Entity:                types.Entity{CreatedAt: created, UpdatedAt: updated},
		ID:                    clientID,
		Name:                  m.Name,
		Nickname:              m.Nickname,
		Balance:               types.New(m.Balance, m.Currency),
		Status:                st,
		IsPrivate:             m.IsPrivate,
		PIN:                   m.PIN,
		CurrentDisbursementID: current,
	}, nil
}

// ==================== Disbursement models ====================

const disbursementColumns = `id, client_id, amount, interest, penalty, currency, months_to_pay,
	issued_at, deadline, kind, remarks, status, previous_id, created_at, updated_at`

type disbursementModel struct {
	ID          string
	ClientID    string
	Amount      int64
	Interest    int64
	Penalty     int64
	Currency    string
	MonthsToPay int
	IssuedAt    string
	Deadline    string
	Kind        string
	Remarks     string
	Status      string
	PreviousID  string
	CreatedAt   string
	UpdatedAt   string
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
		IssuedAt:    formatTime(d.IssuedAt),
		Deadline:    formatTime(d.Deadline),
		Kind:        string(d.Kind),
		Remarks:     d.Remarks,
		Status:      string(d.Status),
		PreviousID:  d.PreviousID.String(),
		CreatedAt:   formatTime(d.CreatedAt),
		UpdatedAt:   formatTime(d.UpdatedAt),
	}
}

func (m *disbursementModel) args() []any {
	return []any{m.ID, m.ClientID, m.Amount, m.Interest, m.Penalty, m.Currency, m.MonthsToPay,
		m.IssuedAt, m.Deadline, m.Kind, m.Remarks, m.Status, m.PreviousID, m.CreatedAt, m.UpdatedAt}
}

func scanDisbursement(row scanner) (*disbursement.Disbursement, error) {
	var m disbursementModel
	err := row.Scan(&m.ID, &m.ClientID, &m.Amount, &m.Interest, &m.Penalty, &m.Currency, &m.MonthsToPay,
		&m.IssuedAt, &m.Deadline, &m.Kind, &m.Remarks, &m.Status, &m.PreviousID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fromDisbursementModel(&m)
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

	var times [4]time.Time
	for i, s := range []string{m.IssuedAt, m.Deadline, m.CreatedAt, m.UpdatedAt} {
		if times[i], err = parseTime(s); err != nil {
			return nil, fmt.Errorf("disbursement %s: %w", m.ID, err)
		}
	}

	return &disbursement.Disbursement{
		Entity:      types.Entity{CreatedAt: times[2], UpdatedAt: times[3]},
		ID:          dID,
		ClientID:    clientID,
		Amount:      types.New(m.Amount, m.Currency),
		Interest:    types.New(m.Interest, m.Currency),
		Penalty:     types.New(m.Penalty, m.Currency),
		MonthsToPay: m.MonthsToPay,
		IssuedAt:    times[0],
		Deadline:    times[1],
		Kind:        disbursement.Kind(m.Kind),
		Remarks:     m.Remarks,
		Status:      st,
		PreviousID:  prev,
	}, nil
}

// ==================== Payment models ====================

const paymentColumns = `id, client_id, disbursement_id, amount, currency, paid_at, recorded_by,
	created_at, updated_at`

type paymentModel struct {
	ID             string
	ClientID       string
	DisbursementID string
	Amount         int64
	Currency       string
	PaidAt         string
	RecordedBy     string
	CreatedAt      string
	UpdatedAt      string
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		ClientID:       p.ClientID.String(),
		DisbursementID: p.DisbursementID.String(),
		Amount:         p.Amount.Amount,
		Currency:       p.Amount.Currency,
		PaidAt:         formatTime(p.PaidAt),
		RecordedBy:     p.RecordedBy.String(),
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func (m *paymentModel) args() []any {
	return []any{m.ID, m.ClientID, m.DisbursementID, m.Amount, m.Currency, m.PaidAt, m.RecordedBy,
		m.CreatedAt, m.UpdatedAt}
}

func scanPayment(row scanner) (*payment.Payment, error) {
	var m paymentModel
	err := row.Scan(&m.ID, &m.ClientID, &m.DisbursementID, &m.Amount, &m.Currency, &m.PaidAt,
		&m.RecordedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fromPaymentModel(&m)
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

	var times [3]time.Time
	for i, s := range []string{m.PaidAt, m.CreatedAt, m.UpdatedAt} {
		if times[i], err = parseTime(s); err != nil {
			return nil, fmt.Errorf("payment %s: %w", m.ID, err)
		}
	}

	return &payment.Payment{
		Entity:         types.Entity{CreatedAt: times[1], UpdatedAt: times[2]},
		ID:             pID,
		ClientID:       clientID,
		DisbursementID: dID,
		Amount:         types.New(m.Amount, m.Currency),
		PaidAt:         times[0],
		RecordedBy:     recordedBy,
	}, nil
}

// ==================== User models ====================

const userColumns = `id, name, pin, created_at, updated_at`

func scanUser(row scanner) (*user.User, error) {
	var rawID, created, updated string
	u := new(user.User)
	if err := row.Scan(&rawID, &u.Name, &u.PIN, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if u.ID, err = id.ParseUserID(rawID); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return u, nil
}
