package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"taskboard/internal/config"
)

type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

func New(cfg config.ServerConfig, handler http.Handler, log *logrus.Entry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		log: log.WithField("component", "http_server"),
	}
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Serve listens on the configured address and blocks until the server is
// shut down. A clean shutdown returns nil.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(listener)
}

func (s *Server) ServeListener(listener net.Listener) error {
	s.log.WithField("addr", listener.Addr().String()).Info("http server listening")
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
