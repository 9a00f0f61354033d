package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPingInterval  = time.Second
	wsAliveDeadline = 5 * time.Second
	wsWriteTimeout  = 5 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// write serializes data messages; gorilla allows one concurrent writer.
func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// keeper tracks live WebSocket clients.
type keeper struct {
	mx     sync.RWMutex
	active map[*websocket.Conn]*client
}

func newKeeper() *keeper {
	return &keeper{active: make(map[*websocket.Conn]*client)}
}

func (k *keeper) addConn(conn *websocket.Conn) *client {
	c := &client{id: uuid.NewString(), conn: conn}

	k.mx.Lock()
	defer k.mx.Unlock()
	k.active[conn] = c

	return c
}

func (k *keeper) count() int {
	k.mx.RLock()
	defer k.mx.RUnlock()
	return len(k.active)
}

func (k *keeper) walk(fn func(c *client)) {
	k.mx.RLock()
	clients := make([]*client, 0, len(k.active))
	for _, c := range k.active {
		clients = append(clients, c)
	}
	k.mx.RUnlock()

	for _, c := range clients {
		fn(c)
	}
}

func (k *keeper) close(conn *websocket.Conn) {
	k.mx.Lock()
	defer k.mx.Unlock()

	_ = conn.Close()
	delete(k.active, conn)
}

func (k *keeper) closeAll() {
	k.mx.Lock()
	defer k.mx.Unlock()

	for conn := range k.active {
		_ = conn.Close()
		delete(k.active, conn)
	}
}

// keep pings the client and drops it once pongs stop arriving. Incoming
// messages only count as liveness.
func (k *keeper) keep(conn *websocket.Conn) {
	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()
	defer k.close(conn)

	var mu sync.Mutex
	lastAlive := time.Now()
	touch := func() {
		mu.Lock()
		lastAlive = time.Now()
		mu.Unlock()
	}
	since := func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Since(lastAlive)
	}

	ponger := conn.PongHandler()
	conn.SetPongHandler(func(appData string) error {
		touch()
		return ponger(appData)
	})

	read := make(chan error, 1)
	go func() {
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				read <- err
				return
			}
			if mt == websocket.CloseMessage {
				read <- nil
				return
			}
			touch()
		}
	}()

	for {
		select {
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
			if since() > wsAliveDeadline {
				return
			}
		case <-read:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := s.keeper.addConn(conn)
	s.logger.Debug("websocket client connected", zap.String("client", c.id))

	if data, err := s.encodeState(); err == nil {
		if err := c.write(data); err != nil {
			s.keeper.close(conn)
			return
		}
	}

	go s.keeper.keep(conn)
}

// broadcast pushes the state to every WebSocket client after each change.
func (s *Server) broadcast(ctx context.Context) {
	changes, unsubscribe := s.view.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if s.keeper.count() == 0 {
				continue
			}
			data, err := s.encodeState()
			if err != nil {
				s.logger.Error("encode dashboard state", zap.Error(err))
				continue
			}
			s.keeper.walk(func(c *client) {
				if err := c.write(data); err != nil {
					s.logger.Debug("drop websocket client", zap.String("client", c.id), zap.Error(err))
					s.keeper.close(c.conn)
				}
			})
		}
	}
}

func (s *Server) encodeState() ([]byte, error) {
	return json.Marshal(newDashboardResponse(s.view.Snapshot()))
}
