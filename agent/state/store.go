package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidThread   = errors.New("thread id is empty")
	ErrInvalidMessage  = errors.New("message is invalid")
	ErrListUnsupported = errors.New("store backend cannot list threads")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message is one entry of a thread. Seq and CreatedAt are assigned by the store.
type Message struct {
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Thread struct {
	ID           string    `json:"id"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the conversation checkpoint contract used by the coordinator.
// Load returns messages in append order; an unseen thread yields an empty slice.
type Store interface {
	Append(ctx context.Context, threadID string, msgs ...Message) error
	Load(ctx context.Context, threadID string) ([]Message, error)
	Close() error
}

// ThreadLister is implemented by backends that keep a thread index.
type ThreadLister interface {
	ListThreads(ctx context.Context, limit int) ([]Thread, error)
}

func NewThreadID() string {
	return uuid.NewString()
}

func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// Tail returns at most the last n messages; n <= 0 keeps everything.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func normalizeThreadID(threadID string) (string, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return "", ErrInvalidThread
	}
	return id, nil
}

// prepare validates msgs and stamps sequence numbers starting after lastSeq.
func prepare(msgs []Message, lastSeq int64, now time.Time) ([]Message, error) {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
		}
		m.Seq = lastSeq + int64(i) + 1
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out[i] = m
	}
	return out, nil
}
