package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/jmwhea/matchup/common"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// watchHub tracks the websocket connections of clients that asked to be told
// when any profile changes, and fans profile-change events out to them.
type watchHub struct {
	mutex    sync.Mutex
	nextID   uint64
	watchers map[uint64]*websocket.Conn
}

func newWatchHub() *watchHub {
	return &watchHub{watchers: make(map[uint64]*websocket.Conn)}
}

func (h *watchHub) add(conn *websocket.Conn) uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	h.watchers[h.nextID] = conn
	return h.nextID
}

func (h *watchHub) remove(id uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if conn, exists := h.watchers[id]; exists {
		conn.Close()
		delete(h.watchers, id)
	}
}

// broadcast sends the event to every connected watcher, dropping any
// connection that fails to take the write.
func (h *watchHub) broadcast(event common.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("Failed to encode change event")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, conn := range h.watchers {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithField("watcher", id).WithError(err).Debug("Dropping watcher after failed write")
			conn.Close()
			delete(h.watchers, id)
		}
	}
}

// Upgrades the connection to a websocket and streams a ChangeEvent for every
// profile mutation until the client goes away. Replaces polling the profile
// endpoints for freshness.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 101 Switching Protocols: watch stream established
func (s *controlServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	s.mutex.Unlock()
	if !success {
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("user", uid).WithError(err).Warn("Failed to upgrade watch connection to websocket")
		return
	}

	id := s.watchers.add(conn)
	log.WithFields(log.Fields{
		"user":    uid,
		"address": r.RemoteAddr,
	}).Info("Watcher connected")

	// Watchers never send data; the read loop only notices the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.watchers.remove(id)
		log.WithField("user", uid).Info("Watcher disconnected")
	}()
}
