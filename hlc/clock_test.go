package hlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowStrictlyIncreases(t *testing.T) {
	c := New("replica-a", 1)
	prev := c.Now()
	for i := 0; i < 50; i++ {
		next := c.Now()
		assert.True(t, prev.Less(next), "now() must strictly increase")
		prev = next
	}
}

func TestSameReplicaNeverCollides(t *testing.T) {
	c := New("replica-a", 1)
	seen := make(map[Timestamp]bool)
	for i := 0; i < 200; i++ {
		ts := c.Now()
		assert.False(t, seen[ts], "timestamp collision")
		seen[ts] = true
	}
}

func TestObserveRaisesClock(t *testing.T) {
	local := New("replica-a", 1)
	remote := New("replica-b", 1)

	future := remote.Now()
	for i := 0; i < 5; i++ {
		future = remote.Now()
	}

	require.NoError(t, local.Observe(future))
	issued := local.Now()
	assert.True(t, future.Less(issued), "issuing after Observe must exceed the observed stamp")
}

func TestLexicalOrderMatchesTemporalOrder(t *testing.T) {
	c := New("replica-a", 1)
	var prev Timestamp
	for i := 0; i < 20; i++ {
		ts := c.Now()
		if prev != "" {
			assert.Less(t, string(prev), string(ts))
		}
		prev = ts
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	c := New("replica-xyz", 3)
	ts := c.Now()

	wall, counter, replicaID, schemaVersion, err := Decode(ts)
	require.NoError(t, err)
	assert.Equal(t, "replica-xyz", replicaID)
	assert.Equal(t, 3, schemaVersion)
	assert.Greater(t, wall, uint64(0))
	_ = counter
}

func TestDecodeMalformed(t *testing.T) {
	_, _, _, _, err := Decode("not-a-timestamp")
	assert.Error(t, err)
}

func TestNewReplicaIDIsUniqueAndUsable(t *testing.T) {
	a, err := NewReplicaID()
	require.NoError(t, err)
	b, err := NewReplicaID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c := New(a, 1)
	assert.Equal(t, a, c.ReplicaID())
}
