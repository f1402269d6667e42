package broker

// Relay is the shared/distributed broker backend: it wraps an in-process Hub
// with a WebSocket link to a peer relay, so a Publish on this process is
// mirrored to the peer and a frame arriving from the peer is delivered to
// this process's local subscribers exactly as if it had been published
// locally. Two relays dialed at each other form the simplest possible
// federation; a hub-and-spoke topology just means every spoke dials the same
// peer URL.
//
// The read/write pump shape (ping/pong keepalive, write deadline, a bounded
// outbound queue) follows the same pattern a WebSocket fan-out connection
// uses for browser clients, applied here to a server-to-server link instead.
import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	relayWriteWait  = 10 * time.Second
	relayPongWait   = 60 * time.Second
	relayPingPeriod = (relayPongWait * 9) / 10
	relaySendBuffer = 256
)

// frame is the wire envelope exchanged between relays.
type frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Relay implements Broker by delegating local subscriptions to an embedded
// Hub while mirroring every locally-originated Publish across a WebSocket
// connection to a peer relay.
type Relay struct {
	hub  *Hub
	conn *websocket.Conn
	send chan frame
	done chan struct{}
}

// DialRelay connects outbound to a peer relay endpoint (ws:// or wss://) and
// starts the link. Frames arriving from the peer are published into hub.
func DialRelay(ctx context.Context, hub *Hub, url string) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return newRelay(hub, conn), nil
}

// AcceptRelay upgrades an inbound HTTP request to a WebSocket connection and
// starts the link, for the peer that dials this process.
func AcceptRelay(hub *Hub, w http.ResponseWriter, r *http.Request) (*Relay, error) {
	conn, err := relayUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newRelay(hub, conn), nil
}

func newRelay(hub *Hub, conn *websocket.Conn) *Relay {
	rl := &Relay{
		hub:  hub,
		conn: conn,
		send: make(chan frame, relaySendBuffer),
		done: make(chan struct{}),
	}
	go rl.readPump()
	go rl.writePump()
	return rl
}

// Publish mirrors payload to the peer and, per Broker's contract, also
// delivers it to this process's own local subscribers — a federated publish
// must reach local subscribers exactly like any other.
func (rl *Relay) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case rl.send <- frame{Channel: channel, Payload: raw}:
	default:
		log.Warn("dropping slow broker relay link", "channel", channel)
	}

	return rl.hub.Publish(ctx, channel, payload)
}

func (rl *Relay) Subscribe(channel string, handler Handler) (string, error) {
	return rl.hub.Subscribe(channel, handler)
}

func (rl *Relay) Unsubscribe(channel, subscriptionID string) error {
	return rl.hub.Unsubscribe(channel, subscriptionID)
}

// Close tears down the link and stops both pumps.
func (rl *Relay) Close() error {
	select {
	case <-rl.done:
	default:
		close(rl.done)
	}
	return rl.conn.Close()
}

// readPump decodes frames arriving from the peer and publishes each straight
// into the local hub — never back onto the wire, which would loop.
func (rl *Relay) readPump() {
	defer rl.Close()

	rl.conn.SetReadDeadline(time.Now().Add(relayPongWait))
	rl.conn.SetPongHandler(func(string) error {
		return rl.conn.SetReadDeadline(time.Now().Add(relayPongWait))
	})

	for {
		var f frame
		if err := rl.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("broker relay link closed unexpectedly", "err", err)
			}
			return
		}

		var payload any
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			log.Warn("broker relay dropped malformed frame", "channel", f.Channel, "err", err)
			continue
		}
		_ = rl.hub.Publish(context.Background(), f.Channel, payload)
	}
}

// writePump serialises outgoing frames onto the wire and sends periodic
// pings so readPump on the peer side can detect a stale link.
func (rl *Relay) writePump() {
	ticker := time.NewTicker(relayPingPeriod)
	defer func() {
		ticker.Stop()
		rl.conn.Close()
	}()

	for {
		select {
		case f, ok := <-rl.send:
			rl.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if !ok {
				_ = rl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := rl.conn.WriteJSON(f); err != nil {
				log.Warn("broker relay write error", "err", err)
				return
			}

		case <-ticker.C:
			rl.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := rl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-rl.done:
			return
		}
	}
}
