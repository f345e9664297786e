package webapp

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chunk-quiz/quiz"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type streamMessage struct {
	Event *quiz.Event    `json:"event,omitempty"`
	State *stateResponse `json:"state"`
}

// pending holds at most one undelivered event. A newer event replaces an
// older one; the client always redraws from the latest state anyway.
type pending struct {
	ready chan struct{}
	event quiz.Event
	mu    sync.Mutex
}

func newPending() *pending {
	return &pending{ready: make(chan struct{}, 1)}
}

func (p *pending) put(ev quiz.Event) {
	p.mu.Lock()
	p.event = ev
	p.mu.Unlock()
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *pending) take() quiz.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.event
}

// handleStream upgrades to a websocket and pushes the session state after
// every transition, starting with the current state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.lookup(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no quiz session; load the page first"})
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates := newPending()
	cancel := session.Subscribe(updates.put)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg streamMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug("websocket write failed", "err", err)
			return false
		}
		return true
	}

	state := s.buildState(session)
	if !send(streamMessage{State: &state}) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-updates.ready:
			ev := updates.take()
			state := s.buildState(session)
			if !send(streamMessage{Event: &ev, State: &state}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
