// Package server exposes sessions and the streaming relay over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/relay"
)

// Server routes HTTP requests to the store and the relay.
type Server struct {
	store    *internal.Store
	relay    *relay.Relay
	resolver Resolver
	mux      *http.ServeMux
}

// New wires the route table.
func New(store *internal.Store, rl *relay.Relay, resolver Resolver) *Server {
	s := &Server{
		store:    store,
		relay:    rl,
		resolver: resolver,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/stream", s.handleStream)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions/select", s.handleSelectSession)
	s.mux.HandleFunc("POST /api/sessions/new", s.handleNewSession)
	s.mux.HandleFunc("POST /api/sessions/rename", s.handleRenameSession)
	s.mux.HandleFunc("POST /api/sessions/pin", s.handlePinSession)
	s.mux.HandleFunc("POST /api/sessions/reorder", s.handleReorderSessions)
	s.mux.HandleFunc("POST /api/sessions/delete", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleListMessages)
	s.mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	s.mux.HandleFunc("POST /api/messages/delete", s.handleDeleteMessage)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	return s
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return withRequestLog(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout and waits for background
// title tasks.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration, ready func(net.Addr)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if ready != nil {
		ready(listener.Addr())
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log := internal.Logger()
	log.Info("http server listening", zap.String("address", listener.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("http server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	s.relay.Wait()
	log.Info("http server stopped")
	return err
}
