package jobqueue

import (
	"context"
	"encoding/json"

	"github.com/michiel/ratchet-sub007/internal/domain"
)

// Executor runs a TaskDefinition's script against an input and returns its
// output. The jobqueue package depends only on this interface, not on any
// particular JS runtime, so the executor package can evolve independently.
type Executor interface {
	Execute(ctx context.Context, task *domain.TaskDefinition, input json.RawMessage) (json.RawMessage, error)
}
