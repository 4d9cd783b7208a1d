package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	vai "github.com/vango-go/vai-convai/sdk"
)

// conversation is the part of *vai.Conversation the command loop drives.
type conversation interface {
	Start(ctx context.Context) error
	Stop() error
	ClearTranscript()
	ExportToDir(dir string) (string, error)
	Snapshot() vai.Snapshot
	Subscribe() (<-chan vai.Snapshot, func())
}

const helpText = `commands:
  start   connect to the agent
  stop    end the conversation (transcript is kept)
  clear   drop the transcript
  export  write the transcript to a timestamped file
  status  show connection state
  quit    stop and exit`

// lockedWriter serializes the command loop and the event printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}

type repl struct {
	conv  conversation
	cfg   cliConfig
	out   *lockedWriter
	start sync.WaitGroup
}

func runREPL(ctx context.Context, conv conversation, cfg cliConfig, stdin io.Reader, stdout io.Writer) error {
	r := &repl{conv: conv, cfg: cfg, out: &lockedWriter{w: stdout}}

	updates, cancel := conv.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		r.printUpdates(updates)
	}()
	defer func() {
		cancel()
		<-printed
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	r.out.printf("agent %s; type 'help' for commands", cfg.AgentID)
	for {
		select {
		case <-ctx.Done():
			return r.shutdown()
		case err := <-readErr:
			if stopErr := r.shutdown(); stopErr != nil {
				return stopErr
			}
			return err
		case line := <-lines:
			if done := r.dispatch(ctx, strings.TrimSpace(line)); done {
				return r.shutdown()
			}
		}
	}
}

func (r *repl) dispatch(ctx context.Context, line string) bool {
	cmd := strings.ToLower(line)
	switch cmd {
	case "":
	case "start":
		r.start.Add(1)
		go func() {
			defer r.start.Done()
			startCtx, cancel := context.WithTimeout(ctx, r.cfg.StartTimeout)
			defer cancel()
			err := r.conv.Start(startCtx)
			switch {
			case err == nil:
			case errors.Is(err, vai.ErrSessionSuperseded):
				r.out.printf("start abandoned")
			default:
				r.out.printf("error: start: %v", err)
			}
		}()
	case "stop":
		if err := r.conv.Stop(); err != nil {
			r.out.printf("error: stop: %v", err)
		}
	case "clear":
		r.conv.ClearTranscript()
		r.out.printf("transcript cleared")
	case "export":
		path, err := r.conv.ExportToDir(r.cfg.ExportDir)
		if err != nil {
			r.out.printf("error: export: %v", err)
			break
		}
		r.out.printf("transcript written to %s", path)
	case "status":
		r.out.printf("%s", formatStatus(r.conv.Snapshot()))
	case "help", "?":
		r.out.printf("%s", helpText)
	case "quit", "exit":
		return true
	default:
		r.out.printf("unknown command %q; type 'help'", line)
	}
	return false
}

// shutdown stops twice: a start goroutine that had not reached the
// controller yet may connect after the first Stop.
func (r *repl) shutdown() error {
	err := r.conv.Stop()
	r.start.Wait()
	if again := r.conv.Stop(); err == nil {
		err = again
	}
	return err
}

// printUpdates prints transitions and new transcript lines. Snapshots carry
// the whole transcript, so skipped snapshots lose nothing.
func (r *repl) printUpdates(updates <-chan vai.Snapshot) {
	prev := r.conv.Snapshot()
	printedEntries := prev.MessageCount
	for snap := range updates {
		if snap.Status != prev.Status {
			r.out.printf("[%s]", snap.Status)
			if snap.Status == vai.StatusDisconnected && snap.LastError != nil {
				r.out.printf("[error] %v", snap.LastError)
			}
		}
		if snap.Mode != prev.Mode && snap.Status == vai.StatusConnected {
			r.out.printf("[agent %s]", snap.Mode)
		}
		if len(snap.Transcript) < printedEntries {
			printedEntries = 0
		}
		for _, entry := range snap.Transcript[printedEntries:] {
			r.out.printf("%s: %s", entry.Label(), entry.Text)
		}
		printedEntries = len(snap.Transcript)
		prev = snap
	}
}

func formatStatus(s vai.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s mode=%s messages=%d", s.Status, s.Mode, s.MessageCount)
	if s.ConversationID != "" {
		fmt.Fprintf(&b, " conversation=%s", s.ConversationID)
	}
	if s.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", s.SessionID)
	}
	if s.LastError != nil {
		fmt.Fprintf(&b, " last_error=%q", s.LastError.Error())
	}
	return b.String()
}
