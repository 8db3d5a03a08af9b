package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeThreadLifecycle(t *testing.T) {
	runner := newScriptedRunner()
	srv := httptest.NewServer(newRouter(runner, instantPolicy(), 0))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/threads", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	threadID := created["thread_id"]
	require.NotEmpty(t, threadID)

	resp, err = http.Post(srv.URL+"/v1/threads/"+threadID+"/messages", "application/json",
		strings.NewReader(`{"question":"What is total revenue by region?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer askResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	_ = resp.Body.Close()
	require.Equal(t, "answer to What is total revenue by region?", answer.Reply)
	require.Equal(t, 1, answer.Attempts)

	resp, err = http.Get(srv.URL + "/v1/threads/" + threadID + "/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	_ = resp.Body.Close()
	require.Len(t, history.Messages, 2)
	require.Equal(t, "user", history.Messages[0].Role)
}

func TestServeRejectsBlankQuestion(t *testing.T) {
	runner := newScriptedRunner()
	srv := httptest.NewServer(newRouter(runner, instantPolicy(), 0))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/threads/t1/messages", "application/json", strings.NewReader(`{"question":"  "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, runner.calls)
}

func TestServeReportsFailedTurn(t *testing.T) {
	runner := newScriptedRunner(errors.New("genie: 403 Forbidden"))
	srv := httptest.NewServer(newRouter(runner, instantPolicy(), 0))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/threads/t1/messages", "application/json", strings.NewReader(`{"question":"revenue?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Attempts)
	require.Contains(t, body.Error, "Sorry")
}

func TestServeHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(newRouter(newScriptedRunner(), instantPolicy(), 0))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestThreadLocksReleaseEntries(t *testing.T) {
	locks := newThreadLocks()
	unlock := locks.lock("t1")
	require.Len(t, locks.locks, 1)
	unlock()
	require.Empty(t, locks.locks)
}

func TestThreadLocksShareTrimmedID(t *testing.T) {
	locks := newThreadLocks()
	unlock := locks.lock(" t1 ")
	require.Contains(t, locks.locks, "t1")

	acquired := make(chan struct{})
	go func() {
		release := locks.lock("t1")
		close(acquired)
		release()
	}()

	require.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return locks.locks["t1"].refs == 2
	}, time.Second, time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("padded and plain ids must share one lock")
	default:
	}

	unlock()
	<-acquired
	require.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return len(locks.locks) == 0
	}, time.Second, time.Millisecond)
}
