package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

// HistoryClient fetches the chat history for a room. The history service
// has drifted across deployments: items may arrive bare or wrapped, and the
// timestamp field goes by three names. Everything is normalized into
// domain.ChatMessage here so ambiguous shapes never reach the reliability
// layer.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
	limit      int
}

// NewHistoryClient creates a chat history client. limit <= 0 uses the
// service default page size.
func NewHistoryClient(baseURL string, timeout time.Duration, limit int) *HistoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HistoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limit:      limit,
	}
}

type historyItem struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderType string    `json:"sender_type"`
	Message    string    `json:"message"`
	SentAt     *flexTime `json:"sent_at"`
	CreatedAt  *flexTime `json:"created_at"`
	Timestamp  *flexTime `json:"timestamp"`
	AvatarURL  string    `json:"avatar_url"`
}

// timestamp resolves the item's time: sent_at, then created_at, then
// timestamp, finally the current time when all are absent.
func (it historyItem) timestamp() time.Time {
	for _, t := range []*flexTime{it.SentAt, it.CreatedAt, it.Timestamp} {
		if t != nil && !t.Time.IsZero() {
			return t.Time
		}
	}
	return time.Now()
}

// flexTime accepts RFC3339 strings and unix-millisecond numbers.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("unrecognized timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

type historyEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Items   json.RawMessage `json:"items"`
	Error   *apiErrorInfo   `json:"error"`
}

type apiErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LoadHistory fetches and normalizes the room's chat history, oldest first
// as returned by the service. Failure here is non-fatal to the session: the
// caller degrades to an empty log and live-only chat.
func (c *HistoryClient) LoadHistory(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	url := fmt.Sprintf("%s/api/v1/rooms/%s/messages", c.baseURL, roomID)
	if c.limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, c.limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history service returned status: %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	items, err := extractItems(raw)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ChatMessage, 0, len(items))
	for _, it := range items {
		out = append(out, domain.ChatMessage{
			SenderID:   it.SenderID,
			SenderName: it.SenderName,
			Role:       domain.ParseSenderRole(it.SenderType),
			Body:       it.Message,
			SentAt:     it.timestamp(),
			AvatarURL:  it.AvatarURL,
		})
	}
	return out, nil
}

// extractItems accepts a bare array, {items: [...]}, or the standard
// {success, data: {items: [...]}} envelope.
func extractItems(raw json.RawMessage) ([]historyItem, error) {
	trimmed := bytesTrimLeft(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []historyItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode history items: %w", err)
		}
		return items, nil
	}

	var env historyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode history envelope: %w", err)
	}
	if env.Success != nil && !*env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("history service error: %s", env.Error.Message)
		}
		return nil, fmt.Errorf("history service error")
	}

	if env.Items != nil {
		return extractItems(env.Items)
	}
	if env.Data != nil {
		return extractItems(env.Data)
	}
	return nil, nil
}

func bytesTrimLeft(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}
