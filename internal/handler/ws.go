package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"novel-client/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST surface; the stream is read-only.
		return true
	},
}

// StateMessage is one frame of the state stream.
type StateMessage struct {
	Type string      `json:"type"`
	View engine.View `json:"view"`
}

// stateStream fans session state changes out to websocket subscribers.
// A slow subscriber is dropped rather than allowed to stall the rest.
type stateStream struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan engine.View
}

func newStateStream() *stateStream {
	return &stateStream{subs: make(map[uuid.UUID]chan engine.View)}
}

func (st *stateStream) subscribe() (uuid.UUID, chan engine.View) {
	ch := make(chan engine.View, 8)
	id := uuid.New()
	st.mu.Lock()
	st.subs[id] = ch
	st.mu.Unlock()
	return id, ch
}

func (st *stateStream) unsubscribe(id uuid.UUID) {
	st.mu.Lock()
	if ch, ok := st.subs[id]; ok {
		delete(st.subs, id)
		close(ch)
	}
	st.mu.Unlock()
}

func (st *stateStream) publish(v engine.View) {
	st.mu.Lock()
	for id, ch := range st.subs {
		select {
		case ch <- v:
		default:
			delete(st.subs, id)
			close(ch)
		}
	}
	st.mu.Unlock()
}

func (st *stateStream) closeAll() {
	st.mu.Lock()
	for id, ch := range st.subs {
		delete(st.subs, id)
		close(ch)
	}
	st.mu.Unlock()
}

// streamState upgrades the connection and pushes a view frame after
// every asynchronous state change. The first frame is sent immediately
// so the client never renders from nothing.
func (h *SessionHandler) streamState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	id, ch := s.stream.subscribe()
	defer s.stream.unsubscribe(id)

	if err := conn.WriteJSON(StateMessage{Type: "state", View: s.projectedView()}); err != nil {
		return
	}

	// Reader goroutine only to detect the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case v, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(StateMessage{Type: "state", View: v}); err != nil {
				return
			}
		}
	}
}
