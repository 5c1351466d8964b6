// Package broadcast streams job snapshots to WebSocket clients.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"splitcat/internal/eta"
	"splitcat/internal/model"
)

const (
	Path = "/ws"

	writeTimeout    = 2 * time.Second
	shutdownTimeout = 2 * time.Second
	broadcastBuffer = 16
)

const (
	TypeJobStarted  = "job_started"
	TypeProgress    = "progress"
	TypeJobFinished = "job_finished"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type           string      `json:"type"`
	JobID          string      `json:"job_id"`
	Kind           model.Kind  `json:"kind"`
	State          model.State `json:"state"`
	Source         string      `json:"source,omitempty"`
	Destination    string      `json:"destination,omitempty"`
	CurrentBytes   uint64      `json:"current_bytes"`
	TotalBytes     uint64      `json:"total_bytes"`
	Percent        float64     `json:"percent"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	ETASeconds     *float64    `json:"eta_seconds,omitempty"`
	ETA            string      `json:"eta"`
	Status         string      `json:"status"`
	ExitCode       int         `json:"exit_code"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Hub fans messages out to every connected client. It implements
// render.Renderer so it can sit next to the terminal view.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	last       []byte

	spec     model.JobSpec
	upgrader websocket.Upgrader
	log      zerolog.Logger
	now      func() time.Time

	srv       *http.Server
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:     log.With().Str("component", "broadcast").Logger(),
		now:     time.Now,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job ended"),
					time.Now().Add(writeTimeout))
				_ = client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.last != nil {
				h.send(client, h.last)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				_ = client.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("websocket client disconnected")
		case message := <-h.broadcast:
			h.mu.Lock()
			h.last = message
			for client := range h.clients {
				h.send(client, message)
			}
			h.mu.Unlock()
		}
	}
}

// send must be called with h.mu held.
func (h *Hub) send(client *websocket.Conn, message []byte) {
	_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
		h.log.Debug().Err(err).Msg("websocket send failed")
		_ = client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.stop:
		_ = conn.Close()
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			select {
			case h.unregister <- conn:
			case <-h.stop:
			}
			return
		}
	}
}

// Listen serves Path on addr in the background and returns the bound address.
func (h *Hub) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.ServeWS)
	h.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Warn().Err(err).Msg("websocket server stopped")
		}
	}()
	h.log.Info().Str("addr", ln.Addr().String()).Str("path", Path).Msg("progress feed listening")
	return ln.Addr(), nil
}

// Close stops the server and disconnects every client.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if h.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err = h.srv.Shutdown(ctx)
			cancel()
		}
		close(h.stop)
		<-h.stopped
	})
	return err
}

func (h *Hub) Start(spec model.JobSpec, _ func()) {
	h.spec = spec
	h.publish(TypeJobStarted, model.Snapshot{
		JobID:      spec.ID,
		Kind:       spec.Kind,
		State:      model.StateRunning,
		TotalBytes: spec.TotalBytes,
		StartTime:  h.now(),
	}, false)
}

func (h *Hub) Update(s model.Snapshot) {
	h.publish(TypeProgress, s, false)
}

// Finish is delivered even when the broadcast buffer is full.
func (h *Hub) Finish(s model.Snapshot) {
	h.publish(TypeJobFinished, s, true)
}

func (h *Hub) publish(kind string, s model.Snapshot, must bool) {
	data, err := json.Marshal(h.message(kind, s))
	if err != nil {
		h.log.Warn().Err(err).Msg("marshal progress message")
		return
	}
	if must {
		select {
		case h.broadcast <- data:
		case <-h.stop:
		case <-time.After(writeTimeout):
			h.log.Warn().Msg("progress feed stalled, final message dropped")
		}
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

func (h *Hub) message(kind string, s model.Snapshot) Message {
	now := h.now()
	d, ok := eta.Estimate(s, now)
	msg := Message{
		Type:           kind,
		JobID:          s.JobID,
		Kind:           s.Kind,
		State:          s.State,
		Source:         h.spec.Source(),
		Destination:    h.spec.Destination,
		CurrentBytes:   s.CurrentBytes,
		TotalBytes:     s.TotalBytes,
		Percent:        s.Percent() * 100,
		ElapsedSeconds: s.Elapsed(now).Seconds(),
		ETA:            eta.Format(d, ok),
		Status:         eta.Message(s, now),
		ExitCode:       s.ExitCode,
		Timestamp:      now.UTC(),
	}
	if ok {
		secs := d.Seconds()
		msg.ETASeconds = &secs
	}
	return msg
}
