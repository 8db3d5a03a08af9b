package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	retryx "github.com/tanpawarit/Chative-Analytics-Router/agent/retry"
	statex "github.com/tanpawarit/Chative-Analytics-Router/agent/state"
	"golang.org/x/term"
)

const chatHelp = "Commands: /new, /clear, /history, /thread, exit"

type chatSession struct {
	runner   turnRunner
	policy   retryx.Policy
	timeout  time.Duration
	threadID string
	render   func(string) string
	// tty enables terminal control sequences such as clear-screen.
	tty bool

	in  io.Reader
	out io.Writer

	// transcript is what the screen shows; /clear empties it without
	// touching stored memory.
	transcript []string
}

func (s *chatSession) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *chatSession) run(ctx context.Context) error {
	if s.threadID == "" {
		s.threadID = statex.NewThreadID()
	}
	if s.render == nil {
		s.render = func(md string) string { return md }
	}

	s.printf("Thread: %s\n%s\n", s.threadID, chatHelp)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		s.printf("\nYou: ")
		if !scanner.Scan() {
			s.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			s.printf("Bye.\n")
			return nil
		case "/new":
			s.threadID = statex.NewThreadID()
			s.transcript = nil
			s.printf("Started thread %s\n", s.threadID)
			continue
		case "/clear":
			s.transcript = nil
			if s.tty {
				s.printf("\033[H\033[2J")
			}
			s.printf("Screen cleared. Thread %s keeps its memory.\n", s.threadID)
			continue
		case "/thread":
			s.printf("%s\n", s.threadID)
			continue
		case "/history":
			s.printHistory(ctx)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.turn(ctx, line)
	}
}

func (s *chatSession) turn(ctx context.Context, question string) {
	res := askWithRetry(ctx, s.runner, s.policy, s.timeout, s.threadID, question)
	s.transcript = append(s.transcript, "You: "+question)
	if !res.OK {
		msg := apology(res.Attempts, res.Error())
		s.transcript = append(s.transcript, "Assistant: "+msg)
		s.printf("Assistant: %s\n", msg)
		return
	}
	s.transcript = append(s.transcript, "Assistant: "+res.Value.Text)
	s.printf("Assistant: %s\n", s.render(res.Value.Text))
}

func (s *chatSession) printHistory(ctx context.Context) {
	msgs, err := s.runner.History(ctx, s.threadID)
	if err != nil {
		s.printf("Could not load history: %v\n", err)
		return
	}
	if len(msgs) == 0 {
		s.printf("No stored messages for thread %s\n", s.threadID)
		return
	}
	for _, m := range msgs {
		s.printf("[%d] %s: %s\n", m.Seq, m.Role, m.Content)
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// markdownRenderer returns a glamour renderer when stdout is a terminal and
// the identity otherwise.
func markdownRenderer() func(string) string {
	plain := func(md string) string { return md }
	if !stdoutIsTerminal() {
		return plain
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return plain
	}
	return func(md string) string {
		out, err := r.Render(md)
		if err != nil {
			return md
		}
		return strings.TrimSpace(out)
	}
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive analytics chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts.envFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			s := &chatSession{
				runner:   rt.coord,
				policy:   rt.policy,
				timeout:  rt.timeout,
				threadID: opts.threadID,
				render:   markdownRenderer(),
				tty:      stdoutIsTerminal(),
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}
			return s.run(ctx)
		},
	}
}
