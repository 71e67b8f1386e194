package sim

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// Server is the local development backend: the room API, the chat history
// API, and the messaging websocket, all in one process.
type Server struct {
	registry *Registry
	history  *HistoryStore
	hub      *Hub
	issuer   *CredentialIssuer
	wsCfg    WSConfig
	upgrader websocket.Upgrader
}

// NewServer wires the simulator.
func NewServer(registry *Registry, history *HistoryStore, hub *Hub, issuer *CredentialIssuer, wsCfg WSConfig) *Server {
	return &Server{
		registry: registry,
		history:  history,
		hub:      hub,
		issuer:   issuer,
		wsCfg:    wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local development tool; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorInfo  `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, apiResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, apiResponse{Success: false, Error: &errorInfo{Code: code, Message: message}})
}

// RegisterRoutes registers all routes.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", s.CreateRoom)
			rooms.GET("/:id", s.GetRoom)
			rooms.POST("/:id/join", s.JoinRoom)
			rooms.DELETE("/:id", s.CloseRoom)
			rooms.GET("/:id/messages", s.GetMessages)
		}
	}

	r.GET("/ws", s.ServeWS)
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
}

type createRoomRequest struct {
	Title    string `json:"title" binding:"required,min=1,max=200"`
	HostName string `json:"host_name"`
}

// CreateRoom opens a new live room.
func (s *Server) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.HostName == "" {
		req.HostName = "host"
	}

	room := s.registry.Create(req.Title, req.HostName)
	l := log.Ctx(c.Request.Context())
	l.Info().Str(log.FieldRoomID, room.ID).Msg("room created")
	respond(c, http.StatusCreated, room)
}

type roomResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	HostID      string     `json:"host_id"`
	IsLive      bool       `json:"is_live"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ViewerCount int        `json:"viewer_count"`
}

// GetRoom returns the room's current status.
func (s *Server) GetRoom(c *gin.Context) {
	room, err := s.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "room not found")
		return
	}

	respond(c, http.StatusOK, roomResponse{
		ID:          room.ID,
		Title:       room.Title,
		HostID:      room.HostID,
		IsLive:      room.IsLive,
		EndedAt:     room.EndedAt,
		ViewerCount: s.hub.ViewerCount(c.Request.Context(), room.ID),
	})
}

type joinResponse struct {
	JoinCredential string `json:"join_credential"`
}

// JoinRoom issues a short-lived join credential for a live room.
func (s *Server) JoinRoom(c *gin.Context) {
	room, err := s.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "room not found")
		return
	}
	if !room.IsLive {
		respondError(c, http.StatusConflict, "ROOM_NOT_LIVE", "room is not live")
		return
	}

	viewerID := uuid.New().String()
	credential, err := s.issuer.Issue(room.ID, viewerID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to issue join credential")
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to issue credential")
		return
	}

	respond(c, http.StatusOK, joinResponse{JoinCredential: credential})
}

// CloseRoom ends a broadcast and notifies every viewer with a sentinel.
func (s *Server) CloseRoom(c *gin.Context) {
	room, err := s.registry.Close(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "room not found")
		return
	}

	s.hub.BroadcastSentinel(room.ID)
	l := log.Ctx(c.Request.Context())
	l.Info().Str(log.FieldRoomID, room.ID).Msg("room closed")
	respond(c, http.StatusOK, room)
}

type historyItemResponse struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderType string    `json:"sender_type,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
}

// GetMessages serves the room's chat history, oldest first. The field is
// created_at here while newer services emit sent_at; clients accept both.
func (s *Server) GetMessages(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := s.registry.Get(roomID); err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "room not found")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	rows, err := s.history.ListByRoom(c.Request.Context(), roomID, limit)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to list messages")
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list messages")
		return
	}

	items := make([]historyItemResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, historyItemResponse{
			SenderID:   row.SenderID,
			SenderName: row.SenderName,
			SenderType: row.SenderRole,
			Message:    row.Body,
			CreatedAt:  row.SentAt,
			AvatarURL:  row.AvatarURL,
		})
	}

	respond(c, http.StatusOK, gin.H{"items": items})
}

// ServeWS upgrades the messaging channel. The join credential rides the
// token query parameter.
func (s *Server) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "token required")
		return
	}

	claims, err := s.issuer.Validate(token)
	if err != nil {
		if errors.Is(err, ErrExpiredCredential) {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "credential expired")
			return
		}
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credential")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	viewerName := "viewer-" + shortID(claims.ViewerID)
	client := NewClient(uuid.New().String(), claims.ViewerID, viewerName, s.hub, conn, s.wsCfg)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
