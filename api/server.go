// Package api exposes the loan engine over HTTP with gin.
//
// Mutating routes need two headers: X-User-ID names the staff user and
// X-Confirm-PIN carries that user's PIN. Private clients are read with their
// own PIN in X-Client-PIN. Amounts are accepted as decimal strings in major
// units ("1,500.50") and returned as Money objects in minor units.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/loanbook"
)

// Header names.
const (
	HeaderUserID    = "X-User-ID"
	HeaderPIN       = "X-Confirm-PIN"
	HeaderClientPIN = "X-Client-PIN"
)

// Server holds the handlers for one engine.
type Server struct {
	engine   *loanbook.Engine
	logger   *slog.Logger
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBasePath mounts every route under path.
func WithBasePath(path string) Option {
	return func(s *Server) { s.basePath = "/" + strings.Trim(path, "/") }
}

// NewServer creates a Server for engine.
func NewServer(engine *loanbook.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.basePath == "/" {
		s.basePath = ""
	}
	return s
}

// Handler returns a gin engine serving every route.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.logging())
	s.Register(r.Group(s.basePath))
	return r
}

// Register adds the routes to g.
func (s *Server) Register(g *gin.RouterGroup) {
	g.GET("/health", s.health)

	g.GET("/clients", s.listClients)
	g.POST("/clients", s.createClient)
	g.GET("/clients/:id", s.clientView)
	g.GET("/clients/:id/disbursements", s.listClientDisbursements)
	g.GET("/payments", s.listPayments)

	staff := g.Group("")
	staff.Use(s.session())
	{
		staff.POST("/pin/verify", s.verifyPin)
		staff.PUT("/clients/:id", s.updateClient)
		staff.POST("/clients/:id/disburse", s.disburse)
		staff.POST("/clients/:id/recon", s.reconstruct)
		staff.POST("/clients/:id/payments", s.pay)
		staff.PUT("/payments/:id", s.editPayment)
		staff.DELETE("/payments/:id", s.deletePayment)
		staff.PUT("/disbursements/:id/terms", s.updateTerms)
	}
}
