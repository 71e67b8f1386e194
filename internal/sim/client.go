package sim

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// WSConfig tunes the server side of the messaging channel.
type WSConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
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

// Client is one connected viewer on the messaging channel.
type Client struct {
	ID         string
	ViewerID   string
	ViewerName string
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	cfg        WSConfig
}

// NewClient wraps an upgraded websocket connection.
func NewClient(id, viewerID, viewerName string, hub *Hub, conn *websocket.Conn, cfg WSConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		ID:         id,
		ViewerID:   viewerID,
		ViewerName: viewerName,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		cfg:        cfg,
	}
}

// ReadPump consumes frames from the connection and hands them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldViewerID, c.ViewerID).Msg("websocket read error")
			}
			break
		}
		c.Hub.HandleFrame(c, data)
	}
}

// WritePump pushes outbound frames and keeps the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame marshals and enqueues one frame for this client.
func (c *Client) SendFrame(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
