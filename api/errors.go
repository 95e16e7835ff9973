package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/gate"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	switch loanbook.KindOf(err) {
	case loanbook.KindValidation:
		return http.StatusUnprocessableEntity
	case loanbook.KindPrecondition:
		if loanbook.IsNotFound(err) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case loanbook.KindAuth:
		if errors.Is(err, gate.ErrLocked) {
			return http.StatusLocked
		}
		return http.StatusUnauthorized
	case loanbook.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusOf(err)
	body := errorBody{Error: string(loanbook.KindOf(err)), Message: err.Error()}

	var verr *loanbook.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		body.Message = "internal error"
	}
	c.AbortWithStatusJSON(code, body)
}

func badRequest(field string, err error) error {
	return &loanbook.ValidationError{Field: field, Message: err.Error()}
}
