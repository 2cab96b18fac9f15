package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chat-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var (
	ErrPeerClosed   = errors.New("peer closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Peer wraps one websocket connection with a buffered outbound queue. Reads
// stay with the lifecycle handler; all writes funnel through the write pump
// so the connection only ever has one writer.
type Peer struct {
	ID   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewPeer(conn *websocket.Conn) *Peer {
	return &Peer{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Send enqueues a JSON frame. It never blocks: a full buffer means the
// consumer is not draining and the caller should treat the peer as dead.
func (p *Peer) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.enqueue(data)
}

// SendText enqueues a plain-text frame, used for terse diagnostics.
func (p *Peer) SendText(text string) error {
	return p.enqueue([]byte(text))
}

func (p *Peer) enqueue(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPeerClosed
	}
	select {
	case p.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close shuts the outbound queue; the write pump then sends a close frame
// and tears down the connection. Idempotent.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// WritePump drains the send queue onto the connection and keeps it alive
// with pings. Runs as a goroutine per connection.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on peer %s: %v", p.ID, err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
