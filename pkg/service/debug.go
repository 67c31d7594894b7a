package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/negroni/v3"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/signalling"
)

// DebugServer exposes the session state, live call stats and process metrics.
type DebugServer struct {
	session    Session
	roster     func() []signalling.ClientInfo
	logger     logger.Logger
	httpServer *http.Server
}

type stateResponse struct {
	State  string `json:"state"`
	PeerID string `json:"peerId,omitempty"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

func NewDebugServer(port uint32, session Session, roster func() []signalling.ClientInfo, l logger.Logger) *DebugServer {
	if l == nil {
		l = logger.GetLogger()
	}
	if roster == nil {
		roster = func() []signalling.ClientInfo { return nil }
	}
	s := &DebugServer{
		session: session,
		roster:  roster,
		logger:  l.WithName("debug"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/clients", s.clientsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *DebugServer) Handler(mux http.Handler) http.Handler {
	n := negroni.New()
	// always the first
	n.Use(negroni.NewRecovery())
	n.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	n.UseHandler(mux)
	return n
}

// Start serves until ctx is done.
func (s *DebugServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Infow("starting debug server", "address", s.httpServer.Addr)
		errChan <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *DebugServer) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:  s.session.State().String(),
		PeerID: s.session.PeerID(),
	})
}

func (s *DebugServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Stats(r.Context())
	switch {
	case errors.Is(err, rtc.ErrNoActiveCall):
		writeJSON(w, http.StatusConflict, errorResponse{StatusCode: http.StatusConflict, Error: err.Error()})
		return
	case err != nil:
		s.logger.Warnw("could not read call stats", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{StatusCode: http.StatusInternalServerError, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *DebugServer) clientsHandler(w http.ResponseWriter, _ *http.Request) {
	clients := s.roster()
	if clients == nil {
		clients = []signalling.ClientInfo{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
