// Package server implements the HTTP/WS surface: REST routes under /api,
// the two WebSocket streams (device status, log), static file serving,
// and the session-cookie gate in front of everything but /login/logout.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"

	"github.com/desertwitch/netwatch/internal/config"
	"github.com/desertwitch/netwatch/internal/devices"
	"github.com/desertwitch/netwatch/internal/xlog"
)

const (
	tokenCookieName = "token"
	tokenLength     = 128
	tokenMaxAge     = 2592000 // seconds, 30 days
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Server binds the HTTP/WS API described in the external-interfaces
// design, routed with gorilla/mux and upgraded with gorilla/websocket.
type Server struct {
	router *mux.Router

	registry *devices.Devices
	conf     *config.Handle
	logbuf   *xlog.Log
	logger   *log.Logger

	fsys    afero.Fs
	dataDir string

	upgrader websocket.Upgrader

	tokMu  sync.Mutex
	tokens map[string]struct{}
}

// New constructs a Server and wires its full route table.
func New(registry *devices.Devices, conf *config.Handle, logbuf *xlog.Log, logger *log.Logger, fsys afero.Fs, dataDir, webDir string) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		conf:     conf,
		logbuf:   logbuf,
		logger:   logger,
		fsys:     fsys,
		dataDir:  dataDir,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		tokens:   make(map[string]struct{}),
	}

	s.routes(webDir)

	return s
}

// routes wires the full /api surface plus static file serving, gating
// every /api route other than /login with the session-cookie middleware.
func (s *Server) routes(webDir string) {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet)

	guarded := api.NewRoute().Subrouter()
	guarded.Use(s.requireAuth)

	guarded.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	guarded.HandleFunc("/settings", s.handlePostSettings).Methods(http.MethodPost)
	guarded.HandleFunc("/devices", s.handleGetDevices).Methods(http.MethodGet)
	guarded.HandleFunc("/device", s.handlePostDevice).Methods(http.MethodPost)
	guarded.HandleFunc("/device/{id}", s.handleDeleteDevice).Methods(http.MethodDelete)
	guarded.HandleFunc("/devices/status", s.handleDevicesStatusWS)
	guarded.HandleFunc("/log", s.handleLogWS)

	fileServer := http.FileServer(http.Dir(webDir))
	s.router.PathPrefix("/").Handler(noCacheMiddleware(fileServer))
}

// noCacheMiddleware sets Cache-Control: no-cache on static file responses.
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe binds addr and serves until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		defer xlog.RecoverGoPanic("http-server", s.logger)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err

			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failure shutting down HTTP server: %w", err)
		}

		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failure: %w", err)
		}

		return nil
	}
}

// newSessionToken mints a 128-char alphanumeric session token using
// crypto/rand; there is no session/cookie library anywhere in the example
// pool, so this is the one ambient concern built directly on the standard
// library.
func newSessionToken() (string, error) {
	b := make([]byte, tokenLength)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failure generating session token: %w", err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}

	return string(b), nil
}
