// Package feed serves a controller over HTTP: the current state as JSON,
// sensor reports, a websocket stream of light states and Prometheus
// metrics.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/notify"
)

const (
	defaultSendBuffer = 16
	writeTimeout      = 10 * time.Second
)

// Options configure a Server
type Options struct {
	// Gatherer backs GET /metrics; the endpoint is absent when nil
	Gatherer prometheus.Gatherer
	// Logger defaults to slog.Default
	Logger *slog.Logger
	// SendBuffer is the number of light states queued per websocket client
	// before it is dropped as too slow
	SendBuffer int
}

// Server exposes one controller
type Server struct {
	ctrl     *junction.Controller
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	buffer   int
	upgrader websocket.Upgrader
	sub      notify.Subscription

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Message is the websocket payload for one light state
type Message struct {
	Lights junction.LightState `json:"lights"`
	Green  []junction.SensorID `json:"green"`
	Yellow []junction.SensorID `json:"yellow"`
}

// StateResponse is the body of GET /state
type StateResponse struct {
	Cycle   string                 `json:"cycle"`
	Phase   *junction.Phase        `json:"phase"`
	Lights  junction.LightState    `json:"lights"`
	Sensors []junction.SensorState `json:"sensors"`
}

// ReportRequest is the body of POST /sensors/{id}
type ReportRequest struct {
	Active *bool `json:"active"`
}

// New creates a server and subscribes it to ctrl
func New(ctrl *junction.Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}

	s := &Server{
		ctrl:     ctrl,
		gatherer: opts.Gatherer,
		logger:   opts.Logger.With("component", "feed"),
		buffer:   opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	s.sub = ctrl.Subscribe(s.broadcast)

	current := encode(ctrl.Current())
	s.mu.Lock()
	if s.last == nil {
		s.last = current
	}
	s.mu.Unlock()

	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /sensors/{id}", s.handleReport)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes the server
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("feed listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close unsubscribes from the controller and disconnects every websocket
// client
func (s *Server) Close() {
	s.ctrl.Unsubscribe(s.sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected websocket clients
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func encode(state junction.LightState) []byte {
	data, err := json.Marshal(Message{
		Lights: state,
		Green:  state.With(junction.Green),
		Yellow: state.With(junction.Yellow),
	})
	if err != nil {
		return nil
	}
	return data
}

// broadcast runs on the controller's publishing goroutine with the
// controller locked, so it never blocks: clients whose queue is full are
// dropped.
func (s *Server) broadcast(state junction.LightState) {
	data := encode(state)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = data
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			delete(s.clients, c)
			close(c.send)
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := StateResponse{
		Cycle:   s.ctrl.State(),
		Lights:  s.ctrl.Current(),
		Sensors: s.ctrl.Sensors(),
	}
	if phase, ok := s.ctrl.Phase(); ok {
		resp.Phase = &phase
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := junction.ParseSensorID(r.PathValue("id"))

	var req ReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Active == nil {
		http.Error(w, `body must be {"active": true|false}`, http.StatusBadRequest)
		return
	}

	err := s.ctrl.Report(id, *req.Active)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, junction.ErrUnknownSensor):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, junction.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, s.buffer)}
	if !s.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String(), "clients", s.Clients())

	go s.writeLoop(c)
	s.readLoop(c)
}

// register adds c and queues the latest light state for it
func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	if s.last != nil {
		c.send <- s.last
	}
	return true
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// readLoop discards inbound messages until the connection fails
func (s *Server) readLoop(c *client) {
	defer s.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
	}
}

// writeLoop is the only writer on c.conn
func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
