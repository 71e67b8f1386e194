package chat

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// WSConfig tunes the websocket connection.
type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

func (c *WSConfig) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
}

// WSMessaging is the gorilla/websocket implementation of Messaging.
type WSMessaging struct {
	conn   *websocket.Conn
	cfg    WSConfig
	send   chan Frame
	inbox  chan domain.ChatMessage
	done   chan struct{}
	closed sync.Once
}

// DialMessaging connects to the messaging endpoint, authenticating with the
// join credential, and starts the read/write pumps.
func DialMessaging(ctx context.Context, endpoint string, credential domain.Credential, cfg WSConfig) (*WSMessaging, error) {
	cfg.applyDefaults()

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid messaging endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", string(credential))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial messaging channel: %w", err)
	}

	m := &WSMessaging{
		conn:  conn,
		cfg:   cfg,
		send:  make(chan Frame, 64),
		inbox: make(chan domain.ChatMessage, 256),
		done:  make(chan struct{}),
	}

	go m.readPump()
	go m.writePump()

	return m, nil
}

func (m *WSMessaging) readPump() {
	defer func() {
		m.Close()
		close(m.inbox)
	}()

	m.conn.SetReadLimit(m.cfg.MaxMessageSize)
	m.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	m.conn.SetPongHandler(func(string) error {
		m.conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		return nil
	})

	for {
		var f Frame
		if err := m.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Msg("messaging channel read error")
			}
			return
		}

		switch f.Type {
		case FrameChatMessage:
			select {
			case m.inbox <- f.ToChatMessage():
			default:
				// The inbox is the only delivery path (no local echo), so
				// a burst gets backpressure, not loss. Dropping is the last
				// resort for a consumer that stopped reading entirely.
				select {
				case m.inbox <- f.ToChatMessage():
				case <-m.done:
					return
				case <-time.After(m.cfg.WriteWait):
					l := log.L()
					l.Warn().Msg("chat inbox full, dropping message")
				}
			}
		case FrameError:
			l := log.L()
			l.Warn().Str("code", f.Code).Str("message", f.Message).Msg("messaging channel error frame")
		}
	}
}

func (m *WSMessaging) writePump() {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		m.conn.Close()
	}()

	for {
		select {
		case f, ok := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if !ok {
				m.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := m.conn.WriteJSON(f); err != nil {
				return
			}

		case <-ticker.C:
			m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-m.done:
			// Flush queued frames first: the presence withdrawal rides
			// this queue and must reach the wire before the close.
			m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			for {
				select {
				case f := <-m.send:
					if err := m.conn.WriteJSON(f); err != nil {
						return
					}
				default:
					m.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (m *WSMessaging) enqueue(f Frame) error {
	select {
	case <-m.done:
		return fmt.Errorf("messaging channel closed")
	case m.send <- f:
		return nil
	}
}

// JoinRoom implements Messaging.
func (m *WSMessaging) JoinRoom(roomID string) error {
	return m.enqueue(Frame{Type: FrameJoinRoom, RoomID: roomID})
}

// LeaveRoom implements Messaging.
func (m *WSMessaging) LeaveRoom(roomID string) error {
	return m.enqueue(Frame{Type: FrameLeaveRoom, RoomID: roomID})
}

// StartViewing implements Messaging.
func (m *WSMessaging) StartViewing(roomID string) error {
	return m.enqueue(Frame{Type: FrameStartViewing, RoomID: roomID})
}

// StopViewing implements Messaging.
func (m *WSMessaging) StopViewing(roomID string) error {
	return m.enqueue(Frame{Type: FrameStopViewing, RoomID: roomID})
}

// SendChat implements Messaging.
func (m *WSMessaging) SendChat(ctx context.Context, roomID, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("messaging channel closed")
	case m.send <- Frame{Type: FrameChatMessage, RoomID: roomID, Body: body}:
		return nil
	}
}

// Messages implements Messaging.
func (m *WSMessaging) Messages() <-chan domain.ChatMessage {
	return m.inbox
}

// Close implements Messaging. Safe to call multiple times.
func (m *WSMessaging) Close() error {
	m.closed.Do(func() {
		close(m.done)
	})
	return nil
}
