// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/ledger-api/internal/accountdelivery"
	"github.com/go-petr/ledger-api/internal/accountrepo"
	"github.com/go-petr/ledger-api/internal/accountservice"
	"github.com/go-petr/ledger-api/internal/ledgerdelivery"
	"github.com/go-petr/ledger-api/internal/ledgerrepo"
	"github.com/go-petr/ledger-api/internal/ledgerservice"
	"github.com/go-petr/ledger-api/internal/middleware"
	"github.com/go-petr/ledger-api/pkg/configpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB     *sql.DB
	Engine *gin.Engine
	Config configpkg.Config
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config, publisher ledgerservice.Publisher) (*Server, error) {
	accountRepo := accountrepo.NewRepoPGS(conn)
	ledgerRepo := ledgerrepo.NewRepoPGS(conn)

	accountService := accountservice.New(accountRepo)
	ledgerService := ledgerservice.New(ledgerRepo, accountService, publisher)

	accountHandler := accountdelivery.NewHandler(accountService)
	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.POST("/accounts", accountHandler.Create)
	engine.GET("/accounts", accountHandler.List)
	engine.GET("/accounts/:id", accountHandler.Get)
	engine.DELETE("/accounts/:id", accountHandler.Delete)

	engine.POST("/accounts/:id/transactions", ledgerHandler.Record)
	engine.GET("/accounts/:id/transactions", ledgerHandler.List)
	engine.GET("/accounts/:id/balance", ledgerHandler.Balance)
	engine.GET("/accounts/:id/statement", ledgerHandler.Statement)

	engine.PUT("/transactions/:id", ledgerHandler.Amend)
	engine.DELETE("/transactions/:id", ledgerHandler.Delete)
	engine.POST("/transactions/recalculate", ledgerHandler.Recalculate)

	server := &Server{
		DB:     conn,
		Engine: engine,
		Config: config,
	}

	return server, nil
}
