package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/client"
	"github.com/xraph/loanbook/disbursement"
	"github.com/xraph/loanbook/id"
	"github.com/xraph/loanbook/payment"
	"github.com/xraph/loanbook/status"
	"github.com/xraph/loanbook/types"
)

type profileInput struct {
	Name      string `json:"name"`
	Nickname  string `json:"nickname"`
	IsPrivate bool   `json:"is_private"`
	PIN       string `json:"pin"`
}

func (in profileInput) profile() client.Profile {
	return client.Profile{Name: in.Name, Nickname: in.Nickname, IsPrivate: in.IsPrivate, PIN: in.PIN}
}

type termsInput struct {
	Interest    string    `json:"interest"`
	MonthsToPay int       `json:"months_to_pay"`
	IssuedAt    time.Time `json:"issued_at"`
	Deadline    time.Time `json:"deadline"`
	Remarks     string    `json:"remarks"`
}

type disburseInput struct {
	termsInput
	Amount string `json:"amount"`
}

type payInput struct {
	DisbursementID string    `json:"disbursement_id"`
	Amount         string    `json:"amount"`
	PaidAt         time.Time `json:"paid_at"`
	Penalty        string    `json:"penalty"`
}

type amountInput struct {
	Amount string `json:"amount"`
}

type pinInput struct {
	PIN string `json:"pin"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.engine.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Clients
// ──────────────────────────────────────────────────

func (s *Server) listClients(c *gin.Context) {
	opts := client.ListOpts{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		st, err := status.Parse(raw)
		if err != nil {
			s.fail(c, badRequest("status", err))
			return
		}
		opts.Status = st
	}
	var err error
	if opts.Limit, opts.Offset, err = paging(c); err != nil {
		s.fail(c, err)
		return
	}

	clients, err := s.engine.ListClients(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

func (s *Server) createClient(c *gin.Context) {
	var in profileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	cl, err := s.engine.CreateClient(c.Request.Context(), in.profile())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

func (s *Server) clientView(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	view, err := s.engine.ClientView(c.Request.Context(), clientID, c.GetHeader(HeaderClientPIN))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) updateClient(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var in profileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	cl, err := s.engine.UpdateClientProfile(c.Request.Context(), sessionFrom(c), pinFrom(c), clientID, in.profile())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (s *Server) listClientDisbursements(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	opts := disbursement.ListOpts{ClientID: clientID}
	if opts.Limit, opts.Offset, err = paging(c); err != nil {
		s.fail(c, err)
		return
	}
	ds, err := s.engine.ListDisbursements(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disbursements": ds})
}

// ──────────────────────────────────────────────────
// Loans
// ──────────────────────────────────────────────────

func (s *Server) disburse(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var in disburseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	amount, err := s.money("amount", in.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	terms, err := s.terms(in.termsInput)
	if err != nil {
		s.fail(c, err)
		return
	}

	d, err := s.engine.Disburse(c.Request.Context(), sessionFrom(c), pinFrom(c), loanbook.DisburseRequest{
		ClientID: clientID,
		Amount:   amount,
		Terms:    terms,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) reconstruct(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var in termsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	terms, err := s.terms(in)
	if err != nil {
		s.fail(c, err)
		return
	}

	d, err := s.engine.Reconstruct(c.Request.Context(), sessionFrom(c), pinFrom(c), loanbook.ReconRequest{
		ClientID: clientID,
		Terms:    terms,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) updateTerms(c *gin.Context) {
	disbursementID, err := id.ParseDisbursementID(c.Param("id"))
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %s", loanbook.ErrDisbursementNotFound, c.Param("id")))
		return
	}
	var in termsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	terms, err := s.terms(in)
	if err != nil {
		s.fail(c, err)
		return
	}

	d, err := s.engine.UpdateDisbursementTerms(c.Request.Context(), sessionFrom(c), pinFrom(c), disbursementID, terms)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Server) pay(c *gin.Context) {
	clientID, err := clientParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var in payInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	req := loanbook.PayRequest{ClientID: clientID, PaidAt: in.PaidAt}
	if req.Amount, err = s.money("amount", in.Amount); err != nil {
		s.fail(c, err)
		return
	}
	if in.Penalty != "" {
		if req.Penalty, err = s.money("penalty", in.Penalty); err != nil {
			s.fail(c, err)
			return
		}
	}
	if in.DisbursementID != "" {
		if req.DisbursementID, err = id.ParseDisbursementID(in.DisbursementID); err != nil {
			s.fail(c, badRequest("disbursement_id", err))
			return
		}
	}

	p, err := s.engine.Pay(c.Request.Context(), sessionFrom(c), pinFrom(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) editPayment(c *gin.Context) {
	paymentID, err := paymentParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var in amountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	amount, err := s.money("amount", in.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	p, err := s.engine.EditPayment(c.Request.Context(), sessionFrom(c), pinFrom(c), paymentID, amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePayment(c *gin.Context) {
	paymentID, err := paymentParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.engine.DeletePayment(c.Request.Context(), sessionFrom(c), pinFrom(c), paymentID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listPayments filters by client_id, disbursement_id, or a single day
// (day=2006-01-02, in the server's local time).
func (s *Server) listPayments(c *gin.Context) {
	var opts payment.ListOpts
	var err error
	if raw := c.Query("client_id"); raw != "" {
		if opts.ClientID, err = id.ParseClientID(raw); err != nil {
			s.fail(c, badRequest("client_id", err))
			return
		}
	}
	if raw := c.Query("disbursement_id"); raw != "" {
		if opts.DisbursementID, err = id.ParseDisbursementID(raw); err != nil {
			s.fail(c, badRequest("disbursement_id", err))
			return
		}
	}
	if raw := c.Query("day"); raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			s.fail(c, badRequest("day", err))
			return
		}
		opts.From, opts.To = day, day.AddDate(0, 0, 1)
	}
	if opts.Limit, opts.Offset, err = paging(c); err != nil {
		s.fail(c, err)
		return
	}

	ps, err := s.engine.ListPayments(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	total := types.Zero(s.engine.Currency())
	for _, p := range ps {
		total = total.Add(p.Amount)
	}
	c.JSON(http.StatusOK, gin.H{"payments": ps, "total": total})
}

func (s *Server) verifyPin(c *gin.Context) {
	var in pinInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, badRequest("body", err))
		return
	}
	if err := s.engine.VerifyPin(c.Request.Context(), sessionFrom(c).UserID, in.PIN); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Parsing helpers
// ──────────────────────────────────────────────────

func (s *Server) money(field, raw string) (types.Money, error) {
	m, err := types.ParseMoney(raw, s.engine.Currency())
	if err != nil {
		return types.Money{}, badRequest(field, err)
	}
	return m, nil
}

func (s *Server) terms(in termsInput) (disbursement.Terms, error) {
	t := disbursement.Terms{
		MonthsToPay: in.MonthsToPay,
		IssuedAt:    in.IssuedAt,
		Deadline:    in.Deadline,
		Remarks:     in.Remarks,
	}
	if strings.TrimSpace(in.Interest) != "" {
		interest, err := s.money("interest", in.Interest)
		if err != nil {
			return t, err
		}
		t.Interest = interest
	}
	return t, nil
}

func clientParam(c *gin.Context) (id.ClientID, error) {
	clientID, err := id.ParseClientID(c.Param("id"))
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %s", loanbook.ErrClientNotFound, c.Param("id"))
	}
	return clientID, nil
}

func paymentParam(c *gin.Context) (id.PaymentID, error) {
	paymentID, err := id.ParsePaymentID(c.Param("id"))
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %s", loanbook.ErrPaymentNotFound, c.Param("id"))
	}
	return paymentID, nil
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, &loanbook.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, &loanbook.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
	}
	return limit, offset, nil
}
