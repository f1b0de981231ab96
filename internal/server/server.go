package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/config"
)

// Server hosts the IPP endpoint and the admin API on one listener.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

func New(cfg config.ServerConfig, endpoint *Endpoint, admin *AdminHandler, auth *AuthMiddleware, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	endpoint.Register(r)

	r.POST("/api/login", auth.Login)
	api := r.Group("/api", auth.RequireAuth())
	admin.RegisterRoutes(api)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log.WithField("component", "server"),
	}
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
