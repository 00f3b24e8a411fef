package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{}

// wsSession serialises writes to one connection.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *wsSession) close(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, text), time.Now().Add(wsWriteWait))
	_ = s.conn.Close()
}

// readPump discards client frames and reports when the peer goes away.
func readPump(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return gone
}

// handleStateWS streams every state snapshot, starting with the current one.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := &wsSession{conn: conn}
	gone := readPump(conn)
	snaps, unsubscribe := s.state.Subscribe(16)
	defer unsubscribe()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				// dropped for falling behind
				sess.close("too slow")
				return
			}
			if err := sess.Send(snap); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := sess.ping(); err != nil {
				_ = conn.Close()
				return
			}
		case <-gone:
			_ = conn.Close()
			return
		}
	}
}

type runLine struct {
	RunID string `json:"run_id"`
	Line  string `json:"line"`
}

// handleRunWS replays a run's log and follows it until the run finishes, then
// sends the final snapshot.
func (s *Server) handleRunWS(w http.ResponseWriter, r *http.Request) {
	o, ok := s.runs.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := &wsSession{conn: conn}
	gone := readPump(conn)
	backlog, lines, cancel := o.Follow(256)
	defer cancel()

	for _, l := range backlog {
		if err := sess.Send(runLine{RunID: o.RunID(), Line: l}); err != nil {
			_ = conn.Close()
			return
		}
	}
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				_ = sess.Send(o.Status())
				sess.close("run finished")
				return
			}
			if err := sess.Send(runLine{RunID: o.RunID(), Line: l}); err != nil {
				_ = conn.Close()
				return
			}
		case <-gone:
			_ = conn.Close()
			return
		}
	}
}
