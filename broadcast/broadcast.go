package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/room"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	viewerBuffer   = 32
	publishBuffer  = 256
	maxViewerFrame = 512
)

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans room snapshots out to websocket viewers. New viewers get the
// latest snapshot of every room first. Viewers only watch; anything they
// send is discarded.
type Hub struct {
	upgrader websocket.Upgrader

	register   chan *viewer
	unregister chan *viewer
	publish    chan room.Snapshot

	viewers map[*viewer]struct{}
	latest  map[string][]byte
	count   atomic.Int64

	closeChan chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		publish:    make(chan room.Snapshot, publishBuffer),
		viewers:    make(map[*viewer]struct{}),
		latest:     make(map[string][]byte),
		closeChan:  make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish implements room.Broadcaster. Snapshots are dropped rather than
// stalling the room when the hub falls behind.
func (h *Hub) Publish(s room.Snapshot) {
	select {
	case h.publish <- s:
	default:
		logger.Log.Debugf("Display hub behind, dropped snapshot of room %s", s.Room)
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	return int(h.count.Load())
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closeChan) })
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case v := <-h.register:
			h.viewers[v] = struct{}{}
			h.count.Store(int64(len(h.viewers)))
			for _, data := range h.latest {
				h.deliver(v, data)
			}

		case v := <-h.unregister:
			h.drop(v)

		case s := <-h.publish:
			data, err := json.Marshal(s)
			if err != nil {
				logger.Log.Errorf("Encoding snapshot of room %s: %v", s.Room, err)
				continue
			}
			h.latest[s.Room] = data
			for v := range h.viewers {
				h.deliver(v, data)
			}

		case <-h.closeChan:
			for v := range h.viewers {
				h.drop(v)
			}
			return
		}
	}
}

func (h *Hub) deliver(v *viewer, data []byte) {
	select {
	case v.send <- data:
	default:
		logger.Log.Infof("Display viewer %s too slow, disconnecting", v.conn.RemoteAddr())
		h.drop(v)
	}
}

func (h *Hub) drop(v *viewer) {
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.send)
	h.count.Store(int64(len(h.viewers)))
}

// ServeHTTP upgrades the request and streams snapshots to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade display connection: %v", err)
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, viewerBuffer)}
	select {
	case h.register <- v:
	case <-h.closeChan:
		conn.Close()
		return
	}
	logger.Log.Infof("Display viewer connected from %s", conn.RemoteAddr())

	go h.writePump(v)
	h.readPump(v)
}

func (h *Hub) readPump(v *viewer) {
	defer func() {
		select {
		case h.unregister <- v:
		case <-h.closeChan:
		}
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxViewerFrame)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
