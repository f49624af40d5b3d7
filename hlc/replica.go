package hlc

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NewReplicaID mints a fresh, globally-unique replica identifier for a
// process that doesn't have one assigned by its deployment (a new
// client opening a local-first store for the first time, say). UUIDv7
// is time-ordered, so replica ids sort roughly by creation time even
// though the clock itself never relies on that ordering.
func NewReplicaID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "hlc: generate replica id")
	}
	return id.String(), nil
}
