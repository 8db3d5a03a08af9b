package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/Chative-Analytics-Router/agent/contract"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
	metricsx "github.com/tanpawarit/Chative-Analytics-Router/pkg/metrics"
)

const maxQuestionBytes = 64 << 10

type api struct {
	runner  turnRunner
	policy  retryx.Policy
	timeout time.Duration
	locks   *threadLocks
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	ThreadID  string               `json:"thread_id"`
	Reply     string               `json:"reply"`
	ToolCalls []contractx.ToolCall `json:"tool_calls,omitempty"`
	Attempts  int                  `json:"attempts"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts,omitempty"`
}

func newRouter(runner turnRunner, policy retryx.Policy, timeout time.Duration) http.Handler {
	a := &api{runner: runner, policy: policy, timeout: timeout, locks: newThreadLocks()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metricsx.Handler())

	r.Route("/v1/threads", func(r chi.Router) {
		r.Post("/", a.createThread)
		r.Post("/{threadID}/messages", a.postMessage)
		r.Get("/{threadID}/messages", a.listMessages)
	})
	return r
}

func (a *api) createThread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"thread_id": statex.NewThreadID()})
}

func (a *api) postMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var body askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: statex.ErrInvalidMessage.Error()})
		return
	}

	unlock := a.locks.lock(threadID)
	res := askWithRetry(r.Context(), a.runner, a.policy, a.timeout, threadID, body.Question)
	unlock()

	if !res.OK {
		err := res.Error()
		status := http.StatusBadGateway
		if errors.Is(err, statex.ErrInvalidThread) || errors.Is(err, statex.ErrInvalidMessage) {
			status = http.StatusBadRequest
		}
		log.Warn().Err(err).Str("thread_id", threadID).Int("attempts", res.Attempts).Msg("turn failed")
		writeJSON(w, status, errorResponse{Error: apology(res.Attempts, err), Attempts: res.Attempts})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ThreadID:  res.Value.ThreadID,
		Reply:     res.Value.Text,
		ToolCalls: res.Value.ToolCalls,
		Attempts:  res.Attempts,
	})
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	msgs, err := a.runner.History(r.Context(), threadID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, statex.ErrInvalidThread) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "messages": msgs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// threadLocks serializes turns per thread so appends follow arrival order.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock keys on the trimmed id, the same form the coordinator stores under.
func (t *threadLocks) lock(threadID string) func() {
	threadID = strings.TrimSpace(threadID)
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts.envFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(rt.coord, rt.policy, rt.timeout),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("http server listening")
				serverErrors <- srv.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				return err
			case sig := <-shutdown:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					_ = srv.Close()
					return err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from HTTP_ADDR)")
	return cmd
}
