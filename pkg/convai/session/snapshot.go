package session

import (
	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

// Snapshot is an immutable view of controller state.
type Snapshot struct {
	Status Status
	Mode   Mode
	// Active is true while a stream handle is held.
	Active         bool
	SessionID      string
	ConversationID string
	Transcript     []transcript.Entry
	MessageCount   int
	// LastError is the failure that most recently forced the controller to
	// disconnected. It is cleared by the next Start.
	LastError error
}

// Speaking reports whether the agent is speaking.
func (s Snapshot) Speaking() bool {
	return s.Mode == ModeSpeaking
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:         c.status,
		Mode:           c.mode,
		Active:         c.current != nil,
		SessionID:      c.sessionID,
		ConversationID: c.conversationID,
		Transcript:     append([]transcript.Entry(nil), c.entries...),
		MessageCount:   len(c.entries),
		LastError:      c.lastErr,
	}
}

// Subscribe delivers a snapshot after every state change. Slow subscribers
// lose the oldest pending snapshots, never the newest. Call cancel to stop
// receiving; it closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
