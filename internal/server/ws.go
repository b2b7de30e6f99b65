package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/desertwitch/netwatch/internal/devices"
	"github.com/desertwitch/netwatch/internal/xlog"
)

// handleDevicesStatusWS implements the status stream endpoint (C6): a
// snapshot frame followed by one-element delta frames on every IPv4Status
// transition. Added/Removed events are ignored here; clients refresh the
// device list through GET /devices.
func (s *Server) handleDevicesStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshot, subID, ch := s.registry.SnapshotAndSubscribe()
	defer s.registry.Unsubscribe(subID)

	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	closed := make(chan struct{})
	go s.drainClientFrames(conn, closed)

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != devices.IPv4Status {
				continue
			}

			delta := []devices.StatusView{{ID: ev.DeviceID, Status: ev.New}}
			if err := conn.WriteJSON(delta); err != nil {
				return
			}
		}
	}
}

// handleLogWS streams the log façade: a snapshot of current entries
// followed by every entry logged afterward.
func (s *Server) handleLogWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.logbuf == nil {
		return
	}

	entries, ch := s.logbuf.Snapshot()
	defer s.logbuf.Unsubscribe(ch)

	if err := conn.WriteJSON(entries); err != nil {
		return
	}

	closed := make(chan struct{})
	go s.drainClientFrames(conn, closed)

	for {
		select {
		case <-closed:
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}

// drainClientFrames reads (and discards) client frames until a Close
// frame or read error, then closes the closed channel so the writer loop
// above unwinds. Send errors elsewhere are swallowed, per design: the
// socket is closing either way.
func (s *Server) drainClientFrames(conn *websocket.Conn, closed chan<- struct{}) {
	defer xlog.RecoverGoPanic("ws-reader", s.logger)
	defer close(closed)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
