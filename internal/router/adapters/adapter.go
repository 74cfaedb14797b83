package adapters

import (
	"context"
	"encoding/json"

	"github.com/af-corp/persona-assistant/internal/types"
)

// CompletionGateway performs a single upstream completion call against one
// resolved candidate. Implementations never retry; retry is expressed by the
// caller advancing to the next candidate.
type CompletionGateway interface {
	Complete(ctx context.Context, cand types.ModelCandidate, messages []types.Message) (*Completion, error)
}

// Completion is a successful upstream response.
type Completion struct {
	// Raw is the upstream JSON body, preserved for the client response.
	Raw        json.RawMessage
	Content    string
	Model      string
	StatusCode int
}
