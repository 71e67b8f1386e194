package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

func historyServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms/room-1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestLoadHistoryBareArray(t *testing.T) {
	srv := historyServer(t, `[
		{"sender_id":"a","sender_name":"Ann","message":"hi","sent_at":"2026-08-28T10:00:00Z"},
		{"sender_id":"b","sender_name":"Bob","message":"yo","sent_at":"2026-08-28T10:00:01Z"}
	]`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, "Ann", msgs[0].SenderName)
	assert.Equal(t, domain.RoleViewer, msgs[0].Role)
}

func TestLoadHistoryWrappedEnvelope(t *testing.T) {
	srv := historyServer(t, `{"success":true,"data":{"items":[
		{"sender_id":"a","sender_type":"host","message":"welcome","sent_at":"2026-08-28T10:00:00Z"}
	]}}`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleHost, msgs[0].Role)
}

func TestLoadHistoryItemsWrapper(t *testing.T) {
	srv := historyServer(t, `{"items":[
		{"sender_id":"a","message":"one","created_at":"2026-08-28T10:00:00Z"}
	]}`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestLoadHistoryTimestampPreference(t *testing.T) {
	// sent_at wins over created_at; created_at wins over timestamp.
	srv := historyServer(t, `[
		{"sender_id":"a","message":"both","sent_at":"2026-08-28T10:00:05Z","created_at":"2026-08-28T09:00:00Z"},
		{"sender_id":"a","message":"created","created_at":"2026-08-28T09:30:00Z","timestamp":"2026-08-28T08:00:00Z"},
		{"sender_id":"a","message":"legacy","timestamp":"2026-08-28T08:15:00Z"}
	]`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "2026-08-28T10:00:05Z", msgs[0].SentAt.UTC().Format(time.RFC3339))
	assert.Equal(t, "2026-08-28T09:30:00Z", msgs[1].SentAt.UTC().Format(time.RFC3339))
	assert.Equal(t, "2026-08-28T08:15:00Z", msgs[2].SentAt.UTC().Format(time.RFC3339))
}

func TestLoadHistoryUnixMillisTimestamp(t *testing.T) {
	srv := historyServer(t, `[{"sender_id":"a","message":"ms","sent_at":1764324000000}]`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1764324000000), msgs[0].SentAt.UnixMilli())
}

func TestLoadHistoryMissingTimestampDefaultsToNow(t *testing.T) {
	srv := historyServer(t, `[{"sender_id":"a","message":"untimed"}]`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	before := time.Now()
	msgs, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].SentAt.Before(before))
}

func TestLoadHistoryErrorEnvelope(t *testing.T) {
	srv := historyServer(t, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"boom"}}`)
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	_, err := c.LoadHistory(context.Background(), "room-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoadHistoryHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 0)
	_, err := c.LoadHistory(context.Background(), "room-1")
	require.Error(t, err)
}

func TestLoadHistoryLimitQuery(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHistoryClient(srv.URL, time.Second, 25)
	_, err := c.LoadHistory(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "25", gotLimit)
}
