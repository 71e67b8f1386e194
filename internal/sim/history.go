package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MessageModel is the persisted chat message row.
type MessageModel struct {
	ID         string    `gorm:"primaryKey"`
	RoomID     string    `gorm:"index"`
	SenderID   string
	SenderName string
	SenderRole string
	Body       string
	SentAt     time.Time `gorm:"index"`
	AvatarURL  string
}

// TableName sets the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// HistoryStore persists the chat history with gorm over sqlite.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore opens (and migrates) the sqlite history database.
func NewHistoryStore(path string) (*HistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Append persists one chat message.
func (s *HistoryStore) Append(ctx context.Context, m *MessageModel) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListByRoom returns up to limit messages for a room, oldest first.
func (s *HistoryStore) ListByRoom(ctx context.Context, roomID string, limit int) ([]MessageModel, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return rows, nil
}
