// Package hlc implements the hybrid logical clock that stamps every
// operation: timestamps are encoded so that lexical string comparison
// equals temporal ordering.
package hlc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Timestamp is a lexically-ordered stamp: wallMs.counter.replicaID.schemaVersion,
// each field fixed-width so that plain string comparison (Go's native
// "<") equals temporal ordering.
type Timestamp string

const (
	wallWidth    = 13 // milliseconds since epoch, valid until year 2286
	counterWidth = 10
	schemaWidth  = 5
	fieldSep     = "."
)

// Compare reports -1, 0, 1 the way a conventional comparator does.
func (t Timestamp) Compare(other Timestamp) int {
	return strings.Compare(string(t), string(other))
}

// Less reports whether t happened strictly before other.
func (t Timestamp) Less(other Timestamp) bool {
	return t.Compare(other) < 0
}

func encode(wallMs, counter uint64, replicaID string, schemaVersion int) Timestamp {
	return Timestamp(fmt.Sprintf("%0*d%s%0*d%s%s%s%0*d",
		wallWidth, wallMs, fieldSep,
		counterWidth, counter, fieldSep,
		replicaID, fieldSep,
		schemaWidth, schemaVersion))
}

// Decode splits a Timestamp back into its components.
func Decode(t Timestamp) (wallMs uint64, counter uint64, replicaID string, schemaVersion int, err error) {
	parts := strings.Split(string(t), fieldSep)
	if len(parts) != 4 {
		return 0, 0, "", 0, errors.Errorf("hlc: malformed timestamp %q", string(t))
	}
	wallMs, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, "", 0, errors.Wrap(err, "hlc: invalid wall clock field")
	}
	counter, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", 0, errors.Wrap(err, "hlc: invalid counter field")
	}
	replicaID = parts[2]
	sv, err := strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, "", 0, errors.Wrap(err, "hlc: invalid schema version field")
	}
	schemaVersion = sv
	return wallMs, counter, replicaID, schemaVersion, nil
}

// Clock is a single-writer hybrid logical clock owned by one replica.
// Now and Observe advance it, and SetSchemaVersion changes the schema
// version it stamps; per the concurrency contract in §5 the metadata
// façade is the sole caller.
type Clock struct {
	mu            sync.Mutex
	replicaID     string
	schemaVersion int
	wall          uint64
	counter       uint64
}

// New creates a clock for replicaID, initially stamped with schemaVersion.
func New(replicaID string, schemaVersion int) *Clock {
	return &Clock{replicaID: replicaID, schemaVersion: schemaVersion}
}

// wallNowMs is the only place wall-clock time enters the clock, isolated
// so tests can fake it by driving Observe instead.
var wallNowMs = func() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Now issues a new timestamp, strictly greater than any timestamp
// previously issued by or observed from this clock.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := wallNowMs()
	if now > c.wall {
		c.wall = now
		c.counter = 0
	} else {
		c.counter++
	}
	return encode(c.wall, c.counter, c.replicaID, c.schemaVersion)
}

// Observe folds a foreign timestamp into the clock: if it encodes a
// logical time ahead of the local clock, the local wall-clock component
// is raised accordingly so the next Now() exceeds it.
func (c *Clock) Observe(ts Timestamp) error {
	wall, counter, _, _, err := Decode(ts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if wall > c.wall || (wall == c.wall && counter > c.counter) {
		c.wall = wall
		c.counter = counter
	}
	return nil
}

// SetSchemaVersion updates the schema version stamped on future
// timestamps. It does not affect ordering of previously issued stamps.
func (c *Clock) SetSchemaVersion(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemaVersion = v
}

// ReplicaID returns the replica identifier this clock stamps with.
func (c *Clock) ReplicaID() string {
	return c.replicaID
}

// Snapshot returns the last wall/counter pair, for persistence across a
// process restart (rehydrate via Observe on reopen).
func (c *Clock) Snapshot() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return encode(c.wall, c.counter, c.replicaID, c.schemaVersion)
}
