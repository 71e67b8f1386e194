package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dacoband/stream-cart-live-session/internal/chat"
	"github.com/Dacoband/stream-cart-live-session/internal/domain"
	"github.com/Dacoband/stream-cart-live-session/internal/sim/store"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// Hub routes chat frames between connected viewers of the same room. One
// goroutine owns the room membership maps; registration, unregistration and
// broadcast all funnel through Run.
type Hub struct {
	registry *Registry
	history  *HistoryStore
	viewers  store.ViewerStore

	clients map[string]*Client
	rooms   map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomFrame

	// duplicateEvery > 0 re-delivers every Nth chat frame so clients'
	// dedup paths see real duplicate traffic.
	duplicateEvery int
	delivered      int

	mu sync.RWMutex
}

type roomFrame struct {
	roomID string
	data   []byte
	dup    bool
}

// NewHub creates a hub.
func NewHub(registry *Registry, history *HistoryStore, viewers store.ViewerStore, duplicateEvery int) *Hub {
	return &Hub{
		registry:       registry,
		history:        history,
		viewers:        viewers,
		clients:        make(map[string]*Client),
		rooms:          make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *roomFrame, 256),
		duplicateEvery: duplicateEvery,
	}
}

// Run owns the membership maps. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldViewerID, c.ViewerID).Msg("client registered")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				for roomID, members := range h.rooms {
					delete(members, c.ID)
					if len(members) == 0 {
						delete(h.rooms, roomID)
					}
				}
				delete(h.clients, c.ID)
				close(c.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldViewerID, c.ViewerID).Msg("client unregistered")

		case f := <-h.broadcast:
			h.deliver(f)
			if f.dup {
				h.deliver(f)
			}
		}
	}
}

func (h *Hub) deliver(f *roomFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[f.roomID] {
		select {
		case c.Send <- f.data:
		default:
			// Slow consumer; drop the frame rather than block the hub.
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// HandleFrame processes one inbound frame from a client.
func (h *Hub) HandleFrame(c *Client, data []byte) {
	var f chat.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.SendFrame(chat.Frame{Type: chat.FrameError, Code: "BAD_REQUEST", Message: "malformed frame"})
		return
	}

	ctx := context.Background()
	l := log.L().With().Str(log.FieldViewerID, c.ViewerID).Str(log.FieldRoomID, f.RoomID).Logger()

	switch f.Type {
	case chat.FrameJoinRoom:
		h.joinRoom(c, f.RoomID)

	case chat.FrameLeaveRoom:
		h.leaveRoom(c, f.RoomID)

	case chat.FrameStartViewing:
		if err := h.viewers.Add(ctx, f.RoomID, c.ViewerID); err != nil {
			l.Warn().Err(err).Msg("failed to record viewer")
		}

	case chat.FrameStopViewing:
		if err := h.viewers.Remove(ctx, f.RoomID, c.ViewerID); err != nil {
			l.Warn().Err(err).Msg("failed to withdraw viewer")
		}

	case chat.FrameChatMessage:
		h.handleChat(ctx, c, f)

	default:
		c.SendFrame(chat.Frame{Type: chat.FrameError, Code: "BAD_REQUEST", Message: "unknown frame type"})
	}
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[c.ID] = c
	l := log.L()
	l.Info().Str(log.FieldViewerID, c.ViewerID).Str(log.FieldRoomID, roomID).Msg("viewer joined room channel")
}

func (h *Hub) leaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	l := log.L()
	l.Info().Str(log.FieldViewerID, c.ViewerID).Str(log.FieldRoomID, roomID).Msg("viewer left room channel")
}

func (h *Hub) handleChat(ctx context.Context, c *Client, f chat.Frame) {
	room, err := h.registry.Get(f.RoomID)
	if err != nil {
		c.SendFrame(chat.Frame{Type: chat.FrameError, Code: "NOT_FOUND", Message: "room not found"})
		return
	}

	role := domain.RoleViewer
	if c.ViewerID == room.HostID {
		role = domain.RoleHost
	}

	now := time.Now()
	out := chat.Frame{
		Type:       chat.FrameChatMessage,
		RoomID:     f.RoomID,
		MessageID:  uuid.New().String(),
		SenderID:   c.ViewerID,
		SenderName: c.ViewerName,
		SenderRole: string(role),
		Body:       f.Body,
		SentAt:     now.UnixMilli(),
	}

	if err := h.history.Append(ctx, &MessageModel{
		ID:         out.MessageID,
		RoomID:     out.RoomID,
		SenderID:   out.SenderID,
		SenderName: out.SenderName,
		SenderRole: out.SenderRole,
		Body:       out.Body,
		SentAt:     now,
	}); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to persist chat message")
	}

	h.BroadcastFrame(out)
}

// BroadcastFrame fans a frame out to every member of its room, re-delivering
// every Nth chat frame when duplication is enabled.
func (h *Hub) BroadcastFrame(f chat.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}

	dup := false
	if h.duplicateEvery > 0 && f.Type == chat.FrameChatMessage {
		h.mu.Lock()
		h.delivered++
		dup = h.delivered%h.duplicateEvery == 0
		h.mu.Unlock()
	}

	h.broadcast <- &roomFrame{roomID: f.RoomID, data: data, dup: dup}
}

// BroadcastSentinel announces a possible room end to every viewer: a chat
// frame from the reserved all-zero sender.
func (h *Hub) BroadcastSentinel(roomID string) {
	h.BroadcastFrame(chat.Frame{
		Type:       chat.FrameChatMessage,
		RoomID:     roomID,
		MessageID:  uuid.New().String(),
		SenderID:   domain.SystemSenderID,
		SenderRole: string(domain.RoleSystem),
		SentAt:     time.Now().UnixMilli(),
	})
}

// ViewerCount returns the current countable viewers for a room.
func (h *Hub) ViewerCount(ctx context.Context, roomID string) int {
	n, err := h.viewers.Count(ctx, roomID)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to count viewers")
		return 0
	}
	return n
}
