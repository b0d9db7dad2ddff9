// Package status serves a read-only HTTP view of a running gateway:
// the lifecycle state and the metrics snapshot.  Nothing reachable
// from here changes the run.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"execgate/internal/lifecycle"
	"execgate/internal/metrics"
	"execgate/util"
)

// Source reports the lifecycle status.  *lifecycle.Controller
// satisfies it.
type Source interface {
	Interrogate() lifecycle.Status
}

// Server is the status endpoint.
type Server struct {
	Addr    string
	Source  Source
	Metrics *metrics.Collector
	Logger  *util.Logger

	httpServer *http.Server
	listener   net.Listener
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", s.healthz)
	router.GET("/metrics", s.metrics)
	return router
}

// Start binds Addr and serves in the background until Close or ctx
// is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("status endpoint on %s: %w", s.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && s.Logger != nil {
			s.Logger.Error("status endpoint: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close() //nolint:errcheck
	}()

	if s.Logger != nil {
		s.Logger.Verbose("status endpoint on http://%s", ln.Addr())
	}
	return nil
}

// BoundAddr returns the listening address once started.
func (s *Server) BoundAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the server.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	var st lifecycle.Status
	if s.Source != nil {
		st = s.Source.Interrogate()
	}
	code := http.StatusOK
	if st.State != lifecycle.StateRunning {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
