package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/metrics"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/view"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsMaxMessage   = 4096
)

// Message types pushed to dashboard clients.
const (
	MsgSnapshot = "snapshot"
	MsgSlot     = "slot"
	MsgField    = "field"
	MsgControl  = "control"
	MsgToast    = "toast"
)

// Message is one push to the shell page.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Snapshot is the full page state sent to a client when it connects.
type Snapshot struct {
	Elements []view.Element    `json:"elements"`
	Fields   map[string]string `json:"fields"`
	Controls []busy.Control    `json:"controls"`
	Toasts   []notify.Toast    `json:"toasts"`
}

// clientMessage is what the shell page sends: the value of an input field
// as the user types it.
type clientMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Hub fans document, control and toast changes out to every connected
// websocket client.
type Hub struct {
	doc      *view.Document
	controls *busy.Registry
	toasts   *notify.Center
	metrics  *metrics.Collector

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Message
	events     chan notify.Event
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	upgrader websocket.Upgrader
}

// NewHub subscribes to every source of page changes and starts the fan-out
// loop. The hub owns the control callback of controls.
func NewHub(doc *view.Document, controls *busy.Registry, toasts *notify.Center, m *metrics.Collector) *Hub {
	h := &Hub{
		doc:        doc,
		controls:   controls,
		toasts:     toasts,
		metrics:    m,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	doc.OnUpdate(func(u view.Update) {
		if u.Kind == view.UpdateField {
			h.publish(Message{Type: MsgField, Data: u})
			return
		}
		h.publish(Message{Type: MsgSlot, Data: u})
	})
	controls.OnChange(func(c busy.Control) {
		h.publish(Message{Type: MsgControl, Data: c})
	})
	h.events = toasts.Subscribe()

	h.wg.Add(2)
	go h.run()
	go h.forwardToasts()
	return h
}

// publish queues msg for every client. It never blocks; when the queue is
// full the message is dropped, clients catch up on their next snapshot.
func (h *Hub) publish(msg Message) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		slog.Debug("broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) forwardToasts() {
	defer h.wg.Done()
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.publish(Message{Type: MsgToast, Data: ev})
		case <-h.done:
			return
		}
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.ClientConnected()
			}
			slog.Debug("websocket client connected", "total", total)

			if err := h.write(conn, Message{Type: MsgSnapshot, Data: h.snapshot()}); err != nil {
				h.remove(conn)
			}

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				if err := h.write(c, msg); err != nil {
					slog.Debug("websocket write failed", "err", err)
					h.remove(c)
				}
			}

		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(time.Second))
				conn.Close()
				delete(h.clients, conn)
				if h.metrics != nil {
					h.metrics.ClientDisconnected()
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// write is only called from run, so each connection has a single writer.
func (h *Hub) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
	slog.Debug("websocket client disconnected", "total", total)
}

func (h *Hub) snapshot() Snapshot {
	return Snapshot{
		Elements: h.doc.Elements(),
		Fields:   h.doc.Fields(),
		Controls: h.controls.All(),
		Toasts:   h.toasts.Active(),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	go h.keepAlive(conn)
	go h.readLoop(conn)
}

// keepAlive pings the client until the connection goes away. Control
// frames may be written concurrently with run's writes.
func (h *Hub) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				h.drop(conn)
				return
			}
		}
	}
}

// readLoop applies field values typed in the browser and keeps the pong
// deadline fresh.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in websocket reader", "panic", r)
		}
		h.drop(conn)
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != MsgField {
			continue
		}
		if err := h.doc.SetValue(msg.ID, msg.Value); err != nil {
			slog.Debug("ignoring unknown field from client", "field", msg.ID)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Close disconnects every client and stops the fan-out loop. Safe to call
// multiple times.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.toasts.Unsubscribe(h.events)
		h.wg.Wait()
	})
}
