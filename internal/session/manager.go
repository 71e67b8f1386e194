package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dacoband/stream-cart-live-session/internal/chat"
	"github.com/Dacoband/stream-cart-live-session/internal/domain"
	"github.com/Dacoband/stream-cart-live-session/internal/identity"
	"github.com/Dacoband/stream-cart-live-session/internal/media"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotLive        = errors.New("session is not live")
)

// Resolver is the identity surface the manager needs. Satisfied by
// identity.Resolver.
type Resolver interface {
	ResolveRoom(ctx context.Context, roomID string) (*domain.RoomStatus, error)
	AcquireJoinCredential(ctx context.Context, roomID string) (domain.Credential, error)
}

// ChatLayer is the chat surface the manager composes. Satisfied by
// chat.Layer.
type ChatLayer interface {
	Start(ctx context.Context) error
	Stop()
	Send(ctx context.Context, body string) error
	Messages() []domain.ChatMessage
}

// RoomFactory builds the media transport for one session. cred supplies a
// fresh credential per connection attempt.
type RoomFactory func(cred media.CredentialFunc) media.Room

// ChatFactory builds the chat reliability layer for one session.
type ChatFactory func(roomID string, onChange func(), onRoomEnded func()) ChatLayer

// Config holds the manager's tunables.
type Config struct {
	// RetryLimit bounds reconnect attempts. Exceeding it terminates the
	// session. Default 3.
	RetryLimit int
	// LoadTimeout bounds the initial status/credential fetches. Default 10s.
	LoadTimeout time.Duration
}

// Snapshot is the observable state handed to the UI.
type Snapshot struct {
	State            domain.LifecycleState
	Reason           domain.TerminationReason
	StatusLine       string
	Attempt          int
	Room             *domain.RoomStatus
	Messages         []domain.ChatMessage
	Render           media.RenderTarget
	ParticipantCount int
}

// Manager is the connection lifecycle state machine for one viewer's
// attachment to one room. Every event from every source — resolver results,
// media events, chat sentinel signals, the viewer leaving — is applied one
// at a time, which is what keeps the transition table sound.
type Manager struct {
	cfg      Config
	resolver Resolver
	newRoom  RoomFactory
	newChat  ChatFactory

	mu      sync.RWMutex
	state   domain.LifecycleState
	reason  domain.TerminationReason
	attempt int
	status  *domain.RoomStatus
	roomID  string
	roster  *media.Roster

	room media.Room
	chat ChatLayer

	credMu   sync.Mutex
	credOnce domain.Credential
	credUsed bool

	signals chan signal
	updates chan struct{}
	done    chan struct{}
	runOnce sync.Once
}

type signal int

const (
	signalLeave signal = iota
	signalRoomEnded
)

// NewManager creates an idle session coordinator.
func NewManager(cfg Config, resolver Resolver, newRoom RoomFactory, newChat ChatFactory) *Manager {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		newRoom:  newRoom,
		newChat:  newChat,
		state:    domain.StateIdle,
		roster:   media.NewRoster(),
		signals:  make(chan signal, 8),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start drives Idle → Loading → Connecting. Status is resolved first: a
// room that is not live short-circuits to a terminal ended presentation and
// the media connection is never attempted. The media connect and the chat
// join run in parallel once the credential is in hand.
func (m *Manager) Start(ctx context.Context, roomID string) error {
	m.mu.Lock()
	if m.state != domain.StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = domain.StateLoading
	m.roomID = roomID
	m.mu.Unlock()
	m.notify()

	logger := log.Ctx(ctx).With().Str(log.FieldRoomID, roomID).Logger()

	loadCtx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout)
	defer cancel()

	status, err := m.resolver.ResolveRoom(loadCtx, roomID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve room")
		m.terminate(domain.ReasonLoadError)
		return err
	}

	// Leave() may have terminated the session while the fetch was in
	// flight; a terminated session never moves again.
	m.mu.Lock()
	if m.state != domain.StateLoading {
		m.mu.Unlock()
		return nil
	}
	m.status = status
	m.mu.Unlock()

	if !status.IsLive {
		logger.Info().Msg("room is not live, session will not connect")
		m.terminate(domain.ReasonRoomEnded)
		return nil
	}

	credential, err := m.resolver.AcquireJoinCredential(loadCtx, roomID)
	if err != nil {
		if errors.Is(err, identity.ErrRoomNotLive) {
			logger.Info().Msg("room ended before join, session will not connect")
			m.terminate(domain.ReasonRoomEnded)
			return nil
		}
		logger.Error().Err(err).Msg("failed to acquire join credential")
		m.terminate(domain.ReasonLoadError)
		return err
	}

	m.credMu.Lock()
	m.credOnce = credential
	m.credMu.Unlock()

	m.mu.Lock()
	if m.state != domain.StateLoading {
		m.mu.Unlock()
		return nil
	}
	m.state = domain.StateConnecting
	m.room = m.newRoom(m.nextCredential)
	m.chat = m.newChat(roomID, m.notify, m.requestRoomEnded)
	room, chatLayer := m.room, m.chat
	m.mu.Unlock()
	m.notify()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Chat failure is not fatal to the video session.
		if err := chatLayer.Start(gctx); err != nil {
			logger.Warn().Err(err).Msg("chat layer failed to start, continuing without chat")
		}
		return nil
	})
	g.Go(func() error {
		return room.Connect(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("failed to open media connection")
		m.terminate(domain.ReasonLoadError)
		return err
	}

	m.runOnce.Do(func() { go m.run(room) })
	return nil
}

// nextCredential hands the transport the credential acquired during
// Loading exactly once; every later connection attempt gets a fresh one.
func (m *Manager) nextCredential(ctx context.Context) (domain.Credential, error) {
	m.credMu.Lock()
	if !m.credUsed && m.credOnce != "" {
		m.credUsed = true
		cred := m.credOnce
		m.credOnce = ""
		m.credMu.Unlock()
		return cred, nil
	}
	m.credMu.Unlock()
	return m.resolver.AcquireJoinCredential(ctx, m.roomID)
}

// run is the single serialization point: every media event and every
// coordinator signal is applied here, one at a time.
func (m *Manager) run(room media.Room) {
	for {
		select {
		case ev, ok := <-room.Events():
			if !ok {
				return
			}
			if m.applyMediaEvent(ev) {
				return
			}
		case s := <-m.signals:
			switch s {
			case signalLeave:
				m.terminate(domain.ReasonUserLeft)
			case signalRoomEnded:
				m.terminate(domain.ReasonSystemSignal)
			}
			return
		case <-m.done:
			return
		}
	}
}

// applyMediaEvent folds one media event into the state machine. Returns
// true when the session reached its terminal state.
func (m *Manager) applyMediaEvent(ev media.Event) bool {
	logger := log.L().With().Str(log.FieldRoomID, m.roomID).Logger()

	switch e := ev.(type) {
	case media.Connected:
		m.mu.Lock()
		if m.state == domain.StateTerminated {
			m.mu.Unlock()
			return true
		}
		// Connection established: counter resets, error banner clears.
		m.attempt = 0
		m.state = domain.StateLive
		m.mu.Unlock()
		logger.Info().Msg("media connection live")
		m.notify()
		return false

	case media.Disconnected:
		switch media.ClassifyReason(e.Reason) {
		case media.ClassManual:
			m.terminate(domain.ReasonUserLeft)
			return true
		case media.ClassFatal:
			// The host ended the broadcast; retrying is pointless no
			// matter what the attempt counter says.
			logger.Info().Str(log.FieldReason, string(e.Reason)).Msg("fatal media disconnect")
			m.terminate(domain.ReasonRoomEnded)
			return true
		default:
			// Counter, limit decision and state move together so a
			// concurrent Snapshot never sees Live with a non-zero counter.
			m.mu.Lock()
			if m.state == domain.StateTerminated {
				m.mu.Unlock()
				return true
			}
			m.attempt++
			attempt := m.attempt
			m.state = domain.StateReconnecting
			m.roster.Reset()
			m.mu.Unlock()

			if attempt > m.cfg.RetryLimit {
				logger.Warn().Int(log.FieldAttempt, attempt).Msg("reconnect attempts exhausted")
				m.terminate(domain.ReasonMaxRetriesExceeded)
				return true
			}

			logger.Warn().
				Str(log.FieldReason, string(e.Reason)).
				Int(log.FieldAttempt, attempt).
				Msg("media disconnected, transport reconnecting")
			m.notify()
			return false
		}

	default:
		m.mu.Lock()
		m.roster.Apply(ev)
		m.mu.Unlock()
		m.notify()
		return false
	}
}

// terminate moves to the terminal state and tears the session down in
// order: chat unsubscribe and presence flush first, media close last.
// Terminated is inert; later calls are no-ops.
func (m *Manager) terminate(reason domain.TerminationReason) {
	m.mu.Lock()
	if m.state == domain.StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = domain.StateTerminated
	m.reason = reason
	chatLayer := m.chat
	room := m.room
	m.mu.Unlock()

	logger := log.L().With().Str(log.FieldRoomID, m.roomID).Logger()
	logger.Info().Str(log.FieldReason, string(reason)).Msg("session terminated")

	if chatLayer != nil {
		chatLayer.Stop()
	}
	if room != nil {
		room.Close()
	}

	close(m.done)
	m.notify()
}

// SendChat submits a chat message for the room. The message is not locally
// echoed; it arrives back through the push channel.
func (m *Manager) SendChat(ctx context.Context, body string) error {
	m.mu.RLock()
	chatLayer := m.chat
	state := m.state
	m.mu.RUnlock()

	if state == domain.StateTerminated || chatLayer == nil {
		return ErrNotLive
	}
	return chatLayer.Send(ctx, body)
}

// Leave ends the session on the viewer's initiative. The teardown runs to
// completion even when the caller is already unmounting.
func (m *Manager) Leave() {
	select {
	case m.signals <- signalLeave:
	case <-m.done:
	default:
	}

	// When the run loop never started (session died during Loading or was
	// never started), terminate directly.
	m.mu.RLock()
	noLoop := m.room == nil
	m.mu.RUnlock()
	if noLoop {
		m.terminate(domain.ReasonUserLeft)
	}
}

// requestRoomEnded is the chat layer's confirmed-ended signal.
func (m *Manager) requestRoomEnded() {
	select {
	case m.signals <- signalRoomEnded:
	case <-m.done:
	default:
	}
}

// Updates returns a coalesced change-notification channel. Receivers call
// Snapshot for the current state.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// Done is closed once the session reaches its terminal state.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Snapshot returns the observable state for the UI.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []domain.ChatMessage
	if m.chat != nil {
		// Chat layer has its own lock; safe under read lock.
		msgs = m.chat.Messages()
	}

	participants := m.roster.Participants()
	return Snapshot{
		State:            m.state,
		Reason:           m.reason,
		StatusLine:       m.statusLine(),
		Attempt:          m.attempt,
		Room:             m.status,
		Messages:         msgs,
		Render:           media.SelectRenderTarget(participants),
		ParticipantCount: m.roster.Count(),
	}
}

// statusLine is the user-visible copy per state. Callers hold m.mu.
func (m *Manager) statusLine() string {
	switch m.state {
	case domain.StateIdle:
		return ""
	case domain.StateLoading:
		return "Loading live stream..."
	case domain.StateConnecting:
		return "Connecting to live stream..."
	case domain.StateLive:
		return ""
	case domain.StateReconnecting:
		return fmt.Sprintf("Connection lost, reconnecting (attempt %d of %d)...", m.attempt, m.cfg.RetryLimit)
	case domain.StateTerminated:
		switch m.reason {
		case domain.ReasonMaxRetriesExceeded:
			return "Connection lost. Please refresh to rejoin the stream."
		case domain.ReasonRoomEnded, domain.ReasonSystemSignal:
			if m.status != nil && m.status.EndedAt != nil {
				return fmt.Sprintf("This broadcast ended at %s.", m.status.EndedAt.Format(time.RFC1123))
			}
			return "This broadcast has ended."
		case domain.ReasonUserLeft:
			return "You left the stream."
		case domain.ReasonLoadError:
			return "Could not load the live stream. Please try again."
		default:
			return "The session has ended."
		}
	default:
		return ""
	}
}

func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

var _ ChatLayer = (*chat.Layer)(nil)
