package pipeline

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID returns a short job token: the first eight hex digits of a
// random UUID. Valid as a storage workspace name.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
