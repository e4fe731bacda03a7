package locator

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WorldInfo describes the static environment sent to new watchers
type WorldInfo struct {
	MinX      float64      `json:"minX"`
	MinY      float64      `json:"minY"`
	MaxX      float64      `json:"maxX"`
	MaxY      float64      `json:"maxY"`
	CellSize  float64      `json:"cellSize,omitempty"`
	Obstacles [][4]float64 `json:"obstacles"` // minX, minY, maxX, maxY
	Anchors   []Anchor     `json:"anchors"`
}

// NewWorldInfo summarizes a world for watchers
func NewWorldInfo(w *GridWorld) WorldInfo {
	b := w.Bound()
	info := WorldInfo{
		MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1],
		CellSize:  w.CellSize(),
		Obstacles: make([][4]float64, 0),
		Anchors:   w.Beacons(),
	}
	for _, o := range w.Obstacles() {
		info.Obstacles = append(info.Obstacles, [4]float64{o.Min[0], o.Min[1], o.Max[0], o.Max[1]})
	}
	return info
}

// HubMessage is the envelope of every websocket frame
type HubMessage struct {
	Type string      `json:"type"` // "init" or "cycle"
	Data interface{} `json:"data"`
}

// CycleFrame is the per-cycle payload streamed to watchers
type CycleFrame struct {
	Cycle     int        `json:"cycle"`
	Timestamp int64      `json:"timestamp"`
	Estimate  Estimate   `json:"estimate"`
	Agent     Agent      `json:"agent"`
	Particles []Particle `json:"particles"`
}

const (
	watcherBuffer = 4
	writeWait     = 5 * time.Second
)

// watcher is one connected websocket client
type watcher struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans cycle frames out to websocket watchers. Slow watchers miss frames
// instead of stalling the filter.
type Hub struct {
	info     WorldInfo
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	watchers map[string]*watcher
}

// NewHub creates a hub for the given world
func NewHub(info WorldInfo) *Hub {
	return &Hub{
		info: info,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		watchers: make(map[string]*watcher),
	}
}

// NumWatchers returns the number of connected watchers
func (h *Hub) NumWatchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// ServeHTTP upgrades the request and streams frames until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] Websocket upgrade failed: %v", err)
		return
	}

	wt := &watcher{id: uuid.NewString(), conn: conn, send: make(chan []byte, watcherBuffer)}
	if err := conn.WriteJSON(HubMessage{Type: "init", Data: h.info}); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.watchers[wt.id] = wt
	h.mu.Unlock()
	log.Printf("[HTTP] Watcher %s connected (%d total)", wt.id, h.NumWatchers())

	// Reading is required to notice the client closing the socket
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.remove(wt.id)
		conn.Close()
		log.Printf("[HTTP] Watcher %s disconnected", wt.id)
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case frame, ok := <-wt.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers, id)
}

// ObserveCycle broadcasts r to every watcher
func (h *Hub) ObserveCycle(r CycleResult) {
	h.mu.RLock()
	n := len(h.watchers)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	frame, err := json.Marshal(HubMessage{Type: "cycle", Data: CycleFrame{
		Cycle:     r.Cycle,
		Timestamp: r.Timestamp.UnixMilli(),
		Estimate:  r.Estimate,
		Agent:     r.Agent,
		Particles: r.Particles,
	}})
	if err != nil {
		log.Printf("[HTTP] Error encoding cycle frame: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, wt := range h.watchers {
		select {
		case wt.send <- frame:
		default:
		}
	}
}
