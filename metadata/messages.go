package metadata

import (
	"sync"

	"github.com/fork-archive-hub/lo-fi/hlc"
	"github.com/fork-archive-hub/lo-fi/patch"
)

// Message types the façade hands to whatever transport is wired in, per
// §6's external interface. The façade never opens a socket itself —
// on-the-wire transport is explicitly out of scope — it only produces
// these and lets a Sink carry them onward.
const (
	MessageOperation = "operation"
	MessageAck       = "ack"
)

// Message is one outbound notification: an "operation" message after a
// local insert, or an "ack" message from every Ack call (including the
// ones InsertRemoteOperations/InsertRemoteBaselines make).
type Message struct {
	Type       string
	ReplicaID  string
	Operations []patch.Operation
	Timestamp  hlc.Timestamp
}

// Sink receives every Message the façade emits. Send is called
// synchronously from the façade's own goroutine; a Sink that needs to
// fan out to a slow consumer should buffer or dispatch asynchronously
// itself.
type Sink interface {
	Send(Message)
}

// MemorySink is the default Sink: it appends every message to an
// in-process slice, grounded on eventsourced's in-memory event bus for
// callers (tests, single-process deployments) with no real transport
// wired up yet.
type MemorySink struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Send(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns every message sent so far, oldest first.
func (s *MemorySink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
