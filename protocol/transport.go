// Copyright © 2024 Vortex Studio.

package protocol

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Host is the only out-of-scope surface a transport talks to: the embedded
// UI runtime on the other end of the wire (spec 4.L). Swapping in the real
// embedded-browser bridge means implementing a new Transport, never
// touching Bridge.
type Host interface {
	// Connected reports whether a UI client is currently attached.
	Connected() bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// WebsocketTransport carries Bridge's JSON request/response/push envelopes
// to a single connected UI client over a gorilla/websocket connection,
// grounded on the pack's websocket-upgrade-then-read/write-loop shape
// (helixml-helix's desktop websocket handlers).
type WebsocketTransport struct {
	bridge *Bridge
	conn   *websocket.Conn

	connected atomic.Bool
}

// NewWebsocketTransport upgrades r/w to a websocket connection and returns
// a transport ready to Serve.
func NewWebsocketTransport(bridge *Bridge, w http.ResponseWriter, r *http.Request) (*WebsocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	t := &WebsocketTransport{bridge: bridge, conn: conn}
	t.connected.Store(true)
	return t, nil
}

// Connected reports whether the underlying connection is still open. There
// is no reconnect — the host opens a fresh WebsocketTransport for the next
// UI session.
func (t *WebsocketTransport) Connected() bool { return t.connected.Load() }

// Serve runs the transport until the connection closes: one goroutine pumps
// Bridge.Outbound onto the wire, the calling goroutine reads inbound
// requests and hands them to Bridge.Dispatch. Serve blocks until the
// connection is gone, then closes it exactly once.
func (t *WebsocketTransport) Serve() {
	done := make(chan struct{})
	go t.writeLoop(done)
	defer func() {
		close(done)
		t.connected.Store(false)
		t.conn.Close()
	}()

	for {
		var req Request
		if err := t.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("protocol: websocket read error")
			}
			return
		}
		t.bridge.Dispatch(req)
	}
}

func (t *WebsocketTransport) writeLoop(done <-chan struct{}) {
	out := t.bridge.Outbound()
	for {
		select {
		case <-done:
			return
		case msg := <-out:
			buf, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("protocol: marshal outbound message failed")
				continue
			}
			t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				log.Warn().Err(err).Msg("protocol: websocket write error")
				return
			}
		}
	}
}
