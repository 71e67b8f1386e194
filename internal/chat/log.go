package chat

import (
	"sort"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

// Log is the ordered, de-duplicated message log for one session. History
// seeds it sorted ascending by timestamp; live messages append in arrival
// order and are never re-sorted. The log is discarded with the session.
//
// Log is not safe for concurrent use; the owning Layer serializes access.
type Log struct {
	entries []domain.ChatMessage
	seen    map[domain.DedupKey]struct{}
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{
		seen: make(map[domain.DedupKey]struct{}),
	}
}

// Seed installs the history replay: sorts ascending by timestamp and
// registers every dedup key as seen. Duplicates within the history itself
// collapse to one entry.
func (l *Log) Seed(history []domain.ChatMessage) {
	msgs := make([]domain.ChatMessage, len(history))
	copy(msgs, history)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})

	for _, m := range msgs {
		key := m.Key()
		if _, dup := l.seen[key]; dup {
			continue
		}
		l.seen[key] = struct{}{}
		l.entries = append(l.entries, m)
	}
}

// Append adds a live-pushed message to the tail unless its dedup key has
// already been seen. Returns false when the message was a duplicate.
func (l *Log) Append(m domain.ChatMessage) bool {
	key := m.Key()
	if _, dup := l.seen[key]; dup {
		return false
	}
	l.seen[key] = struct{}{}
	l.entries = append(l.entries, m)
	return true
}

// Messages returns a copy of the ordered log.
func (l *Log) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}
