package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomNotLive  = errors.New("room is not live")
	ErrForbidden    = errors.New("join forbidden")
)

// Resolver wraps the room service HTTP API. Both calls are point-in-time
// reads: nothing is cached, so callers re-resolve instead of trusting
// media-layer inference when deciding whether a room has ended.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
}

type roomPayload struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	HostID  string     `json:"host_id"`
	IsLive  bool       `json:"is_live"`
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

type joinPayload struct {
	JoinCredential string `json:"join_credential"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResolver creates a room service client.
func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResolveRoom fetches the room's current status. Idempotent and safe to
// call repeatedly.
func (r *Resolver) ResolveRoom(ctx context.Context, roomID string) (*domain.RoomStatus, error) {
	url := fmt.Sprintf("%s/api/v1/rooms/%s", r.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRoomNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("room service returned status: %d", resp.StatusCode)
	}

	var room roomPayload
	if err := decodeEnvelope(resp, &room); err != nil {
		return nil, err
	}

	return &domain.RoomStatus{
		RoomID:  room.ID,
		Title:   room.Title,
		HostID:  room.HostID,
		IsLive:  room.IsLive,
		EndedAt: room.EndedAt,
	}, nil
}

// AcquireJoinCredential requests a short-lived join grant for the room.
func (r *Resolver) AcquireJoinCredential(ctx context.Context, roomID string) (domain.Credential, error) {
	url := fmt.Sprintf("%s/api/v1/rooms/%s/join", r.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to join room: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrRoomNotFound
	case http.StatusForbidden:
		return "", ErrForbidden
	case http.StatusConflict:
		return "", ErrRoomNotLive
	default:
		return "", fmt.Errorf("room service returned status: %d", resp.StatusCode)
	}

	var join joinPayload
	if err := decodeEnvelope(resp, &join); err != nil {
		return "", err
	}
	if join.JoinCredential == "" {
		return "", errors.New("room service returned empty credential")
	}

	return domain.Credential(join.JoinCredential), nil
}

func decodeEnvelope(resp *http.Response, out interface{}) error {
	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success || env.Data == nil {
		if env.Error != nil {
			return fmt.Errorf("room service error: %s", env.Error.Message)
		}
		return errors.New("room service error: empty response")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
