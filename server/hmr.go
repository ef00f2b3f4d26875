package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	logx "github.com/ije/gox/log"
)

// HMRMessage is a hot-module-replacement protocol message, JSON-encoded on
// the wire. Type is one of "update", "error" and "reload".
type HMRMessage struct {
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// hmrBroadcaster fans file-change events into messages delivered to every
// connected browser client. The protocol is server-to-client only and
// fire-and-forget: no per-client queue, no acknowledgement.
type hmrBroadcaster struct {
	lock   sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	log    *logx.Logger

	// sendLock serializes broadcasts: the websocket library allows one
	// writer per connection, and a total send order is what gives every
	// client the same update sequence.
	sendLock sync.Mutex
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newHMRBroadcaster(log *logx.Logger) *hmrBroadcaster {
	return &hmrBroadcaster{conns: map[*websocket.Conn]struct{}{}, log: log}
}

// ServeUpgrade upgrades the request to a WebSocket and joins the client to
// the broadcast set until either side closes.
func (b *hmrBroadcaster) ServeUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		return
	}

	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		conn.Close()
		return
	}
	b.conns[conn] = struct{}{}
	b.lock.Unlock()

	// inbound messages from the browser are ignored; the read loop only
	// notices the close
	go func() {
		defer b.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *hmrBroadcaster) drop(conn *websocket.Conn) {
	b.lock.Lock()
	delete(b.conns, conn)
	b.lock.Unlock()
	conn.Close()
}

// Broadcast encodes the message once and writes it to every open client.
// Per-client write failures are discarded; the connection's own close event
// cleans it up.
func (b *hmrBroadcaster) Broadcast(msg HMRMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Errorf("hmr: encode message: %v", err)
		return
	}

	b.lock.RLock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.lock.RUnlock()

	b.sendLock.Lock()
	defer b.sendLock.Unlock()
	for _, conn := range conns {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// Close closes every client connection and refuses new joins. After Close no
// more sends are attempted.
func (b *hmrBroadcaster) Close() {
	b.lock.Lock()
	b.closed = true
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.conns = map[*websocket.Conn]struct{}{}
	b.lock.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// ClientCount reports the number of joined clients.
func (b *hmrBroadcaster) ClientCount() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.conns)
}
