package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/merklebox/merklebox/internal/db"
)

// Server hosts the device-tree and content APIs. It is stateless per request;
// all shared mutable state lives in the sqlite store and the blob backend.
type Server struct {
	config   *Config
	services *Services
	server   *http.Server
}

func New(config *Config) (*Server, error) {
	sqlDB, err := db.NewSqliteDB(db.WithPath(config.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	services, err := NewServices(config, sqlDB)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:   config,
		services: services,
		server: &http.Server{
			Addr:    config.HTTP.Addr,
			Handler: SetupRoutes(services),
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("merklebox server start", "addr", s.config.HTTP.Addr)
	defer slog.Info("merklebox server stop")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.runHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.Stop(context.Background())
	})

	return g.Wait()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
