package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
	"github.com/Dacoband/stream-cart-live-session/internal/identity"
	"github.com/Dacoband/stream-cart-live-session/internal/media"
)

type fakeResolver struct {
	mu         sync.Mutex
	status     *domain.RoomStatus
	resolveErr error
	credErr    error
	credCalls  int

	// Optional gates to hold a fetch in flight until the test releases it.
	resolveGate chan struct{}
	credGate    chan struct{}
}

func (f *fakeResolver) ResolveRoom(context.Context, string) (*domain.RoomStatus, error) {
	f.mu.Lock()
	gate := f.resolveGate
	status, err := f.status, f.resolveErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (f *fakeResolver) AcquireJoinCredential(context.Context, string) (domain.Credential, error) {
	f.mu.Lock()
	f.credCalls++
	calls := f.credCalls
	gate := f.credGate
	err := f.credErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return domain.Credential("cred-" + string(rune('0'+calls))), nil
}

func (f *fakeResolver) credentialCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credCalls
}

type fakeRoom struct {
	mu         sync.Mutex
	events     chan media.Event
	cred       media.CredentialFunc
	creds      []domain.Credential
	connectErr error
	closed     bool
	onClose    func()
}

func newFakeRoom(cred media.CredentialFunc) *fakeRoom {
	return &fakeRoom{events: make(chan media.Event, 16), cred: cred}
}

func (f *fakeRoom) Connect(ctx context.Context) error {
	c, err := f.cred(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.creds = append(f.creds, c)
	f.mu.Unlock()
	return f.connectErr
}

func (f *fakeRoom) Events() <-chan media.Event { return f.events }

func (f *fakeRoom) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

func (f *fakeRoom) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeChat struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	sent     []string
	startErr error
	onStop   func()
}

func (f *fakeChat) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.startErr
}

func (f *fakeChat) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.onStop != nil {
		f.onStop()
	}
}

func (f *fakeChat) Send(_ context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeChat) Messages() []domain.ChatMessage { return nil }

func (f *fakeChat) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type harness struct {
	mgr      *Manager
	resolver *fakeResolver
	room     *fakeRoom
	chat     *fakeChat
	endChat  func()
}

func newHarness(t *testing.T, cfg Config, resolver *fakeResolver) *harness {
	t.Helper()
	h := &harness{resolver: resolver, chat: &fakeChat{}}

	newRoom := func(cred media.CredentialFunc) media.Room {
		h.room = newFakeRoom(cred)
		return h.room
	}
	newChat := func(_ string, _ func(), onRoomEnded func()) ChatLayer {
		h.endChat = onRoomEnded
		return h.chat
	}

	h.mgr = NewManager(cfg, resolver, newRoom, newChat)
	return h
}

func liveResolver() *fakeResolver {
	return &fakeResolver{status: &domain.RoomStatus{RoomID: "room-1", IsLive: true}}
}

func waitState(t *testing.T, mgr *Manager, want domain.LifecycleState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, got %s", want, mgr.Snapshot().State)
}

func waitAttempt(t *testing.T, mgr *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Snapshot().Attempt == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("attempt never reached %d, got %d", want, mgr.Snapshot().Attempt)
}

func waitDone(t *testing.T, mgr *Manager) {
	t.Helper()
	select {
	case <-mgr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session never terminated")
	}
}

func TestStartResolvesAndGoesLive(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	assert.Equal(t, domain.StateConnecting, h.mgr.Snapshot().State)

	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	snap := h.mgr.Snapshot()
	assert.Empty(t, snap.StatusLine)
	assert.Zero(t, snap.Attempt)
	require.NotNil(t, snap.Room)
	assert.Equal(t, "room-1", snap.Room.RoomID)

	h.mgr.Leave()
	waitDone(t, h.mgr)
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	assert.ErrorIs(t, h.mgr.Start(context.Background(), "room-1"), ErrAlreadyStarted)

	h.mgr.Leave()
	waitDone(t, h.mgr)
}

func TestStartRoomNotLiveNeverConnects(t *testing.T) {
	ended := time.Now()
	resolver := &fakeResolver{status: &domain.RoomStatus{
		RoomID: "room-1", IsLive: false, EndedAt: &ended,
	}}
	h := newHarness(t, Config{}, resolver)

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	waitDone(t, h.mgr)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.StateTerminated, snap.State)
	assert.Equal(t, domain.ReasonRoomEnded, snap.Reason)
	assert.Contains(t, snap.StatusLine, "ended at")

	// Neither transport nor chat was ever built.
	assert.Nil(t, h.room)
	assert.Zero(t, resolver.credentialCalls())
}

func TestStartResolveErrorTerminatesWithLoadError(t *testing.T) {
	resolver := &fakeResolver{resolveErr: assert.AnError}
	h := newHarness(t, Config{}, resolver)

	require.Error(t, h.mgr.Start(context.Background(), "room-1"))
	waitDone(t, h.mgr)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.ReasonLoadError, snap.Reason)
	assert.Nil(t, h.room)
}

func TestStartJoinRejectedAsEndedPresentsEnded(t *testing.T) {
	resolver := liveResolver()
	resolver.credErr = identity.ErrRoomNotLive
	h := newHarness(t, Config{}, resolver)

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	waitDone(t, h.mgr)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.ReasonRoomEnded, snap.Reason)
	assert.Nil(t, h.room)
}

func TestChatFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	h.chat.startErr = assert.AnError

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	h.mgr.Leave()
	waitDone(t, h.mgr)
}

func TestTransientDisconnectsExhaustRetries(t *testing.T) {
	h := newHarness(t, Config{RetryLimit: 3}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	// Three drops stay within the limit.
	for i := 1; i <= 3; i++ {
		h.room.events <- media.Disconnected{Reason: media.ReasonConnectionLost}
		waitAttempt(t, h.mgr, i)
		snap := h.mgr.Snapshot()
		assert.Equal(t, domain.StateReconnecting, snap.State)
		assert.Contains(t, snap.StatusLine, "reconnecting")
	}

	// The fourth exceeds it.
	h.room.events <- media.Disconnected{Reason: media.ReasonConnectionLost}
	waitDone(t, h.mgr)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.ReasonMaxRetriesExceeded, snap.Reason)
	assert.Contains(t, snap.StatusLine, "refresh")
	assert.True(t, h.room.isClosed())
	assert.True(t, h.chat.isStopped())
}

func TestSuccessfulReconnectResetsCounter(t *testing.T) {
	h := newHarness(t, Config{RetryLimit: 3}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	for cycle := 0; cycle < 5; cycle++ {
		h.room.events <- media.Disconnected{Reason: media.ReasonConnectionLost}
		waitState(t, h.mgr, domain.StateReconnecting)
		h.room.events <- media.Connected{}
		waitState(t, h.mgr, domain.StateLive)
		assert.Zero(t, h.mgr.Snapshot().Attempt)
	}
}

func TestFatalDisconnectSkipsRetry(t *testing.T) {
	h := newHarness(t, Config{RetryLimit: 3}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	// Room deleted terminates immediately regardless of the attempt counter.
	h.room.events <- media.Disconnected{Reason: media.ReasonRoomDeleted}
	waitDone(t, h.mgr)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.ReasonRoomEnded, snap.Reason)
	assert.Zero(t, snap.Attempt)
}

func TestManualDisconnectTerminatesAsUserLeft(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.room.events <- media.Disconnected{Reason: media.ReasonClientInitiated}
	waitDone(t, h.mgr)

	assert.Equal(t, domain.ReasonUserLeft, h.mgr.Snapshot().Reason)
}

func TestLeaveTearsDownChatBeforeMedia(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())

	var mu sync.Mutex
	var order []string
	h.chat.onStop = func() {
		mu.Lock()
		order = append(order, "chat")
		mu.Unlock()
	}

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	h.room.onClose = func() {
		mu.Lock()
		order = append(order, "media")
		mu.Unlock()
	}

	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	h.mgr.Leave()
	waitDone(t, h.mgr)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"chat", "media"}, order)
	assert.Equal(t, domain.ReasonUserLeft, h.mgr.Snapshot().Reason)
}

func TestLeaveDuringStatusFetchStaysTerminated(t *testing.T) {
	resolver := liveResolver()
	resolver.resolveGate = make(chan struct{})
	h := newHarness(t, Config{}, resolver)

	errCh := make(chan error, 1)
	go func() { errCh <- h.mgr.Start(context.Background(), "room-1") }()
	waitState(t, h.mgr, domain.StateLoading)

	// The viewer navigates away while the status fetch is in flight.
	h.mgr.Leave()
	waitDone(t, h.mgr)

	close(resolver.resolveGate)
	require.NoError(t, <-errCh)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.StateTerminated, snap.State)
	assert.Equal(t, domain.ReasonUserLeft, snap.Reason)

	// Terminated stayed terminal: no credential fetch, no transport, no chat.
	assert.Zero(t, resolver.credentialCalls())
	assert.Nil(t, h.room)

	// A later termination signal is a no-op, not a second teardown.
	h.mgr.Leave()
	assert.Equal(t, domain.ReasonUserLeft, h.mgr.Snapshot().Reason)
}

func TestLeaveDuringCredentialFetchStaysTerminated(t *testing.T) {
	resolver := liveResolver()
	resolver.credGate = make(chan struct{})
	h := newHarness(t, Config{}, resolver)

	errCh := make(chan error, 1)
	go func() { errCh <- h.mgr.Start(context.Background(), "room-1") }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && resolver.credentialCalls() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, resolver.credentialCalls())

	h.mgr.Leave()
	waitDone(t, h.mgr)

	close(resolver.credGate)
	require.NoError(t, <-errCh)

	snap := h.mgr.Snapshot()
	assert.Equal(t, domain.StateTerminated, snap.State)
	assert.Equal(t, domain.ReasonUserLeft, snap.Reason)
	assert.Nil(t, h.room)

	h.mgr.Leave()
	assert.Equal(t, domain.ReasonUserLeft, h.mgr.Snapshot().Reason)
}

func TestLeaveBeforeStartTerminates(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	h.mgr.Leave()
	waitDone(t, h.mgr)
	assert.Equal(t, domain.ReasonUserLeft, h.mgr.Snapshot().Reason)
}

func TestChatConfirmedRoomEndTerminates(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.room.events <- media.Connected{}
	waitState(t, h.mgr, domain.StateLive)

	// The chat layer confirmed an end-of-room sentinel.
	h.endChat()
	waitDone(t, h.mgr)

	assert.Equal(t, domain.ReasonSystemSignal, h.mgr.Snapshot().Reason)
	assert.True(t, h.chat.isStopped())
	assert.True(t, h.room.isClosed())
}

func TestTerminateIsInert(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.mgr.Leave()
	waitDone(t, h.mgr)
	reason := h.mgr.Snapshot().Reason

	// Later signals do not change the terminal reason.
	h.mgr.Leave()
	h.endChat()
	assert.Equal(t, reason, h.mgr.Snapshot().Reason)
}

func TestCredentialUsedOncePerAttempt(t *testing.T) {
	resolver := liveResolver()
	h := newHarness(t, Config{}, resolver)
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	// The first connect consumed the credential acquired during Loading.
	assert.Equal(t, 1, resolver.credentialCalls())
	require.Len(t, h.room.creds, 1)

	// A transport redial must acquire a fresh one.
	require.NoError(t, h.room.Connect(context.Background()))
	assert.Equal(t, 2, resolver.credentialCalls())
	require.Len(t, h.room.creds, 2)
	assert.NotEqual(t, h.room.creds[0], h.room.creds[1])

	h.mgr.Leave()
	waitDone(t, h.mgr)
}

func TestSendChatRequiresActiveSession(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	assert.ErrorIs(t, h.mgr.SendChat(context.Background(), "early"), ErrNotLive)

	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))
	require.NoError(t, h.mgr.SendChat(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, h.chat.sent)

	h.mgr.Leave()
	waitDone(t, h.mgr)
	assert.ErrorIs(t, h.mgr.SendChat(context.Background(), "late"), ErrNotLive)
}

func TestSnapshotNeverObservesLiveWithRetries(t *testing.T) {
	h := newHarness(t, Config{RetryLimit: 100}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	stop := make(chan struct{})
	violations := make(chan Snapshot, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := h.mgr.Snapshot()
			if snap.State == domain.StateLive && snap.Attempt != 0 {
				select {
				case violations <- snap:
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		h.room.events <- media.Disconnected{Reason: media.ReasonConnectionLost}
		h.room.events <- media.Connected{}
	}
	waitState(t, h.mgr, domain.StateLive)

	close(stop)
	wg.Wait()
	select {
	case snap := <-violations:
		t.Fatalf("snapshot showed live state with attempt %d", snap.Attempt)
	default:
	}

	h.mgr.Leave()
	waitDone(t, h.mgr)
}

func TestRosterEventsUpdateSnapshot(t *testing.T) {
	h := newHarness(t, Config{}, liveResolver())
	require.NoError(t, h.mgr.Start(context.Background(), "room-1"))

	h.room.events <- media.Connected{}
	h.room.events <- media.ParticipantJoined{Participant: media.Participant{ID: "host"}}
	h.room.events <- media.TrackPublished{Track: media.Track{
		ID: "v1", ParticipantID: "host", Kind: media.TrackKindVideo, Source: media.SourceCamera,
	}}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := h.mgr.Snapshot()
		if snap.Render.State == media.RenderHostTrack {
			assert.Equal(t, "v1", snap.Render.Track.ID)
			assert.Equal(t, 1, snap.ParticipantCount)
			h.mgr.Leave()
			waitDone(t, h.mgr)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("render target never selected the host track")
}
