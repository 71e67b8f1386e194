package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// LayerConfig wires a reliability layer for one session. Exactly one of
// Messaging and Dial must be set; Dial defers the connection to Start so
// the credential is acquired only when the session actually joins.
type LayerConfig struct {
	RoomID    string
	Messaging Messaging
	Dial      func(ctx context.Context) (Messaging, error)
	History   HistorySource
	Status    StatusResolver

	// OnChange is invoked after the ordered log changes.
	OnChange func()
	// OnRoomEnded is invoked at most once, after a sentinel message and a
	// re-resolved room status confirm the broadcast is over.
	OnRoomEnded func()

	// StatusCheckTimeout bounds the sentinel re-check. Default 5s.
	StatusCheckTimeout time.Duration
	// TeardownTimeout bounds the presence flush on Stop. Default 5s.
	TeardownTimeout time.Duration
}

// Layer maintains the reliable chat stream for one session: it seeds the
// ordered log from history, merges the live push channel with dedup, reacts
// to system sentinels, and announces viewer presence exactly once per
// session regardless of how often the consumer re-renders.
type Layer struct {
	cfg LayerConfig
	msg Messaging

	mu           sync.Mutex
	log          *Log
	sentinelSeen bool
	started      bool
	consuming    bool
	stopped      bool

	consumeDone chan struct{}
}

// NewLayer creates a reliability layer. The layer owns the message log; the
// log dies with the session.
func NewLayer(cfg LayerConfig) *Layer {
	if cfg.StatusCheckTimeout <= 0 {
		cfg.StatusCheckTimeout = 5 * time.Second
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = 5 * time.Second
	}
	return &Layer{
		cfg:         cfg,
		msg:         cfg.Messaging,
		log:         NewLog(),
		consumeDone: make(chan struct{}),
	}
}

// Start joins the room channel, announces presence, seeds the log from
// history, and begins consuming the push channel. Idempotent: only the
// first call has any effect.
func (l *Layer) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	logger := log.Ctx(ctx).With().Str(log.FieldRoomID, l.cfg.RoomID).Logger()

	if l.msg == nil {
		msg, err := l.cfg.Dial(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect messaging channel: %w", err)
		}
		l.mu.Lock()
		l.msg = msg
		l.mu.Unlock()
	}

	if err := l.msg.JoinRoom(l.cfg.RoomID); err != nil {
		return fmt.Errorf("failed to join room channel: %w", err)
	}
	if err := l.msg.StartViewing(l.cfg.RoomID); err != nil {
		return fmt.Errorf("failed to announce viewing: %w", err)
	}

	// History failure is non-fatal: the log stays empty and chat continues
	// live-only.
	history, err := l.cfg.History.LoadHistory(ctx, l.cfg.RoomID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load chat history, continuing live-only")
	} else {
		l.mu.Lock()
		l.log.Seed(history)
		l.mu.Unlock()
	}

	l.mu.Lock()
	l.consuming = true
	l.mu.Unlock()
	go l.consume()

	l.notify()
	return nil
}

func (l *Layer) consume() {
	defer close(l.consumeDone)

	for msg := range l.msg.Messages() {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			continue
		}
		l.mu.Unlock()

		if msg.IsSentinel() {
			l.handleSentinel()
			continue
		}

		l.mu.Lock()
		appended := l.log.Append(msg)
		l.mu.Unlock()

		if appended {
			l.notify()
		}
	}
}

// handleSentinel reacts to a system control message. The reaction is
// latched: a burst of sentinels triggers at most one status re-check and at
// most one termination signal per session.
func (l *Layer) handleSentinel() {
	l.mu.Lock()
	if l.sentinelSeen {
		l.mu.Unlock()
		return
	}
	l.sentinelSeen = true
	l.mu.Unlock()

	logger := log.L().With().Str(log.FieldRoomID, l.cfg.RoomID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StatusCheckTimeout)
	defer cancel()

	status, err := l.cfg.Status.ResolveRoom(ctx, l.cfg.RoomID)
	if err != nil {
		// Do not guess: leave the session in its current state.
		logger.Warn().Err(err).Msg("sentinel status re-check failed")
		return
	}

	if !status.IsLive {
		logger.Info().Msg("room confirmed ended by sentinel")
		if l.cfg.OnRoomEnded != nil {
			l.cfg.OnRoomEnded()
		}
	}
}

// Send submits a chat message. The message is not locally echoed; it
// arrives back through the push channel and is reconciled by dedup key.
func (l *Layer) Send(ctx context.Context, body string) error {
	l.mu.Lock()
	stopped := l.stopped
	msg := l.msg
	l.mu.Unlock()
	if stopped || msg == nil {
		return fmt.Errorf("chat layer not connected")
	}
	return msg.SendChat(ctx, l.cfg.RoomID, body)
}

// Messages returns a copy of the ordered log.
func (l *Layer) Messages() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.log.Messages()
}

// Stop tears the channel down in order: stop consuming the push channel,
// flush the presence withdrawal, then close the connection. Runs to
// completion on its own deadline even when the caller is already going
// away. Only the first call has any effect.
func (l *Layer) Stop() {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	consuming := l.consuming
	msg := l.msg
	l.mu.Unlock()

	if msg == nil {
		return
	}

	logger := log.L().With().Str(log.FieldRoomID, l.cfg.RoomID).Logger()

	if err := msg.StopViewing(l.cfg.RoomID); err != nil {
		logger.Warn().Err(err).Msg("failed to withdraw viewing presence")
	}
	if err := msg.LeaveRoom(l.cfg.RoomID); err != nil {
		logger.Warn().Err(err).Msg("failed to announce leave")
	}

	msg.Close()

	if consuming {
		select {
		case <-l.consumeDone:
		case <-time.After(l.cfg.TeardownTimeout):
			logger.Warn().Msg("chat teardown timed out waiting for push channel")
		}
	}
}

func (l *Layer) notify() {
	if l.cfg.OnChange != nil {
		l.cfg.OnChange()
	}
}
