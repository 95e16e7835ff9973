package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/id"
)

const sessionKey = "loanbook.session"

// session resolves X-User-ID into a loanbook.Session. The PIN is checked by
// the engine, not here.
func (s *Server) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			s.fail(c, loanbook.ErrNoSession)
			return
		}
		userID, err := id.ParseUserID(raw)
		if err != nil {
			s.fail(c, loanbook.ErrNoSession)
			return
		}
		u, err := s.engine.Store().GetUser(c.Request.Context(), userID)
		if err != nil {
			if loanbook.IsNotFound(err) {
				err = loanbook.ErrNoSession
			}
			s.fail(c, err)
			return
		}
		c.Set(sessionKey, loanbook.Session{UserID: u.ID, Name: u.Name})
		c.Next()
	}
}

func sessionFrom(c *gin.Context) loanbook.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(loanbook.Session)
	return sess
}

func pinFrom(c *gin.Context) string {
	return c.GetHeader(HeaderPIN)
}

// logging logs one line per request.
func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
