package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps threads in process memory. Used when checkpointing is off
// and in tests; contents are lost at exit.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
	now     func() time.Time
}

type memoryThread struct {
	meta     Thread
	messages []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*memoryThread),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, threadID string, msgs ...Message) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	th, ok := s.threads[id]
	if !ok {
		th = &memoryThread{meta: Thread{ID: id, CreatedAt: now}}
	}
	stamped, err := prepare(msgs, int64(len(th.messages)), now)
	if err != nil {
		return err
	}

	th.messages = append(th.messages, stamped...)
	th.meta.MessageCount = int64(len(th.messages))
	th.meta.UpdatedAt = now
	s.threads[id] = th
	return nil
}

func (s *MemoryStore) Load(_ context.Context, threadID string) ([]Message, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[id]
	if !ok {
		return []Message{}, nil
	}
	out := make([]Message, len(th.messages))
	copy(out, th.messages)
	return out, nil
}

func (s *MemoryStore) ListThreads(_ context.Context, limit int) ([]Thread, error) {
	s.mu.RLock()
	out := make([]Thread, 0, len(s.threads))
	for _, th := range s.threads {
		out = append(out, th.meta)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
