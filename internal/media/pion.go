package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

// PionConfig tunes the WebRTC room transport.
type PionConfig struct {
	ServerURL        string
	ICEServers       []string
	ReconnectBackoff time.Duration
	RequestTimeout   time.Duration
}

// PionRoom is a receive-only WebRTC subscription to the media server. It
// negotiates over HTTP (offer out, answer back, credential as bearer token)
// and owns its reconnection timing: on a transient drop it waits the
// configured backoff, acquires a fresh credential, and dials again until
// closed. Consumers observe the resulting Connected/Disconnected events.
type PionRoom struct {
	cfg  PionConfig
	cred CredentialFunc

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	closed bool

	httpClient *http.Client
}

// NewPionRoom creates a WebRTC room transport. cred is called once per
// connection attempt so a stale credential is never reused.
func NewPionRoom(cfg PionConfig, cred CredentialFunc) *PionRoom {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &PionRoom{
		cfg:        cfg,
		cred:       cred,
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Connect implements Room.
func (r *PionRoom) Connect(ctx context.Context) error {
	return r.dial(ctx)
}

// Events implements Room.
func (r *PionRoom) Events() <-chan Event {
	return r.events
}

// Close implements Room. No further events are emitted.
func (r *PionRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pc := r.pc
	r.pc = nil
	r.mu.Unlock()

	close(r.done)
	if pc != nil {
		pc.Close()
	}

	r.mu.Lock()
	close(r.events)
	r.mu.Unlock()
	return nil
}

func (r *PionRoom) dial(ctx context.Context) error {
	credential, err := r.cred(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire media credential: %w", err)
	}

	pc, err := r.newPeerConnection()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		pc.Close()
		return errors.New("media room closed")
	}
	r.pc = pc
	r.mu.Unlock()

	// Receive-only: one video and one audio transceiver.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return err
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	answerSDP, err := r.exchangeSDP(ctx, pc.LocalDescription().SDP, string(credential))
	if err != nil {
		pc.Close()
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		pc.Close()
		return err
	}

	return nil
}

func (r *PionRoom) newPeerConnection() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(pli)
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))

	iceServers := make([]webrtc.ICEServer, 0, len(r.cfg.ICEServers))
	for _, u := range r.cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := TrackKindAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = TrackKindVideo
		}
		r.emit(ParticipantJoined{Participant: Participant{ID: track.StreamID()}})
		r.emit(TrackPublished{Track: Track{
			ID:            track.ID(),
			ParticipantID: track.StreamID(),
			Kind:          kind,
			Source:        SourceCamera,
		}})
		// Keep the RTP flow drained; rendering happens elsewhere.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l := log.L()
		l.Debug().Str("connection_state", state.String()).Msg("media connection state changed")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			r.emit(Connected{})
		case webrtc.PeerConnectionStateFailed:
			r.emit(Disconnected{Reason: ReasonConnectionLost})
			go r.redial()
		}
	})

	return pc, nil
}

// redial waits the backoff and dials again with a fresh credential. A
// credential rejection meaning the room ended is surfaced as a fatal
// disconnect instead of another retry loop.
func (r *PionRoom) redial() {
	select {
	case <-r.done:
		return
	case <-time.After(r.cfg.ReconnectBackoff):
	}

	r.mu.Lock()
	old := r.pc
	r.pc = nil
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RequestTimeout)
	defer cancel()

	if err := r.dial(ctx); err != nil {
		l := log.L()
		if errors.Is(err, errRoomGone) {
			l.Info().Msg("media server reports room gone")
			r.emit(Disconnected{Reason: ReasonRoomDeleted})
			return
		}
		l.Warn().Err(err).Msg("media redial failed")
		r.emit(Disconnected{Reason: ReasonConnectionLost})
		go r.redial()
	}
}

var errRoomGone = errors.New("media room gone")

func (r *PionRoom) exchangeSDP(ctx context.Context, offerSDP, credential string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ServerURL, bytes.NewBufferString(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to negotiate with media server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound, http.StatusGone:
		return "", errRoomGone
	default:
		return "", fmt.Errorf("media server returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read media server answer: %w", err)
	}
	return string(body), nil
}

// emit delivers an event without ever blocking the transport callbacks.
func (r *PionRoom) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		l := log.L()
		l.Warn().Msg("media event buffer full, dropping event")
	}
}

var _ Room = (*PionRoom)(nil)
