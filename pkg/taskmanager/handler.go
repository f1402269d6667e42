package taskmanager

import (
	"context"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

// EchoHandler is the default, trivial agent handler: it replies with the
// configured prefix followed by the first text part of the inbound message.
// Spec non-goal: the core does not implement agent intelligence; richer
// behaviour is supplied by a caller-provided Handler.
type EchoHandler struct {
	Prefix string
}

func NewEchoHandler(prefix string) *EchoHandler {
	return &EchoHandler{Prefix: prefix}
}

func (h *EchoHandler) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	text := ""
	for _, part := range msg.Parts {
		if part.Type == a2a.PartTypeText {
			text = part.Text
			break
		}
	}
	return *a2a.NewTextMessage("agent", h.Prefix+text), nil
}
