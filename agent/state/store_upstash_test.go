package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeUpstash implements the RPUSH, LRANGE and EXPIRE commands of the REST API.
type fakeUpstash struct {
	mu       sync.Mutex
	lists    map[string][]string
	commands [][]any
	paths    []string
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *httptest.Server) {
	t.Helper()

	f := &fakeUpstash{lists: map[string][]string{}}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeUpstash) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)

	if r.URL.Path == "/multi-exec" {
		var cmds [][]any
		if err := json.NewDecoder(r.Body).Decode(&cmds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := make([]map[string]any, 0, len(cmds))
		for _, cmd := range cmds {
			out = append(out, map[string]any{"result": f.apply(cmd)})
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}

	var cmd []any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": f.apply(cmd)})
}

func (f *fakeUpstash) apply(cmd []any) any {
	f.commands = append(f.commands, cmd)
	key := fmt.Sprint(cmd[1])
	switch cmd[0] {
	case "RPUSH":
		for _, v := range cmd[2:] {
			f.lists[key] = append(f.lists[key], fmt.Sprint(v))
		}
		return len(f.lists[key])
	case "LRANGE":
		items := f.lists[key]
		if items == nil {
			return []string{}
		}
		return items
	case "EXPIRE":
		return 1
	default:
		return nil
	}
}

func newTestUpstashStore(t *testing.T, serverURL string, opts ...UpstashOption) *UpstashRedisStore {
	t.Helper()

	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: serverURL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashRedisStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		_, server := newFakeUpstash(t)
		return newTestUpstashStore(t, server.URL, WithHTTPClient(server.Client()))
	})
}

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: "conv:"}
	got, err := store.redisKey(" abc ")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "conv:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "conv:abc")
	}

	if _, err := store.redisKey("   "); !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidThread", err)
	}
}

func TestUpstashRedisStoreAppendIsOneTransaction(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server.URL,
		WithHTTPClient(server.Client()),
		WithKeyPrefix("conv:"),
		WithTTL(90*time.Minute),
	)

	err := store.Append(context.Background(), "thread-1",
		NewMessage(RoleUser, "q"),
		NewMessage(RoleAssistant, "a"),
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.paths) != 1 || fake.paths[0] != "/multi-exec" {
		t.Fatalf("paths = %v, want one /multi-exec call", fake.paths)
	}
	if len(fake.commands) != 2 {
		t.Fatalf("commands = %#v", fake.commands)
	}
	push := fake.commands[0]
	if push[0] != "RPUSH" || push[1] != "conv:thread-1" || len(push) != 4 {
		t.Fatalf("push = %#v", push)
	}
	expire := fake.commands[1]
	if expire[0] != "EXPIRE" || expire[2] != float64(5400) {
		t.Fatalf("expire = %#v", expire)
	}
}

func TestUpstashRedisStoreRejectsNegativeTTL(t *testing.T) {
	t.Parallel()

	_, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io", Token: "t"}, WithTTL(-time.Second))
	if err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestUpstashRedisStoreSurfacesCommandError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`)
	}))
	t.Cleanup(server.Close)

	store := newTestUpstashStore(t, server.URL, WithHTTPClient(server.Client()))
	if _, err := store.Load(context.Background(), "thread-1"); err == nil {
		t.Fatal("expected redis error")
	}
}
