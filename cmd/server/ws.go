package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPushInterval = 100 * time.Millisecond
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// handleSessionStream handles GET /api/session/ws. The socket receives a
// SessionResponse whenever the snapshot changes and accepts KeyRequest
// messages, so a remote can drive the selector without polling.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.log.Infof("Remote connected from %s", getClientIP(r))

	closed := make(chan struct{})
	go s.readKeys(conn, closed)

	push := time.NewTicker(wsPushInterval)
	defer push.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	var last []byte
	for {
		select {
		case <-closed:
			s.log.Infof("Remote %s disconnected", getClientIP(r))
			return
		case <-r.Context().Done():
			return

		case <-push.C:
			data, err := json.Marshal(newSessionResponse(s.session.Render()))
			if err != nil {
				s.log.Errorf("Encoding session: %v", err)
				return
			}
			if bytes.Equal(data, last) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			last = data

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readKeys(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(wsReadLimit)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warnf("Websocket read error: %v", err)
			}
			return
		}

		var req KeyRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.log.Warnf("Invalid remote message: %v", err)
			continue
		}
		k, err := parseKey(req.Key)
		if err != nil {
			s.log.Warnf("Remote sent %v", err)
			continue
		}
		s.session.HandleKey(k)
	}
}
