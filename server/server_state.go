package server

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is how a session ended.
type Outcome int

const (
	// OutcomeDisconnected: the peer closed before sending a command.
	OutcomeDisconnected Outcome = iota
	OutcomeListed
	OutcomeSent
	OutcomeBadCommand
	OutcomeNotFound
	// OutcomeAborted: a transport or read error ended the session early.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeListed:
		return "listed"
	case OutcomeSent:
		return "sent"
	case OutcomeBadCommand:
		return "invalid command"
	case OutcomeNotFound:
		return "file not found"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Peer struct {
	IP   string
	Host string
}

type SessionInfo struct {
	ID        string
	Peer      Peer
	Command   string
	StartedAt time.Time
}

type ServerState struct {
	Addr     string
	Sessions map[string]SessionInfo
}

// Tally counts session outcomes and the bytes written on data channels
// from the event stream.
type Tally struct {
	mu       sync.Mutex
	opened   int
	outcomes map[Outcome]int
	sent     int64
	progress map[string]int
}

func (t *Tally) Record(ev ServerEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcomes == nil {
		t.outcomes = make(map[Outcome]int)
		t.progress = make(map[string]int)
	}
	switch ev := ev.(type) {
	case EventSessionOpen:
		t.opened++
	case EventTransferProgress:
		// Sent is cumulative per session
		t.sent += int64(ev.Sent - t.progress[ev.SessionID])
		t.progress[ev.SessionID] = ev.Sent
	case EventSessionClose:
		t.outcomes[ev.Outcome]++
		delete(t.progress, ev.SessionID)
	}
}

// Sent returns the bytes written on data channels so far.
func (t *Tally) Sent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func (t *Tally) Count(o Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcomes[o]
}

func (t *Tally) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("%d sessions: %d listed, %d sent (%d bytes), %d invalid, %d not found, %d aborted, %d disconnected",
		t.opened,
		t.outcomes[OutcomeListed],
		t.outcomes[OutcomeSent],
		t.sent,
		t.outcomes[OutcomeBadCommand],
		t.outcomes[OutcomeNotFound],
		t.outcomes[OutcomeAborted],
		t.outcomes[OutcomeDisconnected],
	)
}
