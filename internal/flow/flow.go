// Package flow implements the conversation orchestration engine: a fixed
// priority-ordered registry of flow handlers, the per-user state machine
// dispatch loop, and the wiring to the response validator.
package flow

import (
	"context"

	"github.com/impulsalabs/ventaflow/internal/genai"
	"github.com/impulsalabs/ventaflow/internal/models"
)

// Handler is one conversational flow: a claim check plus a processor.
// Handlers never write the state store; they describe changes through the
// TurnOutcome's delta, which the engine applies and persists.
type Handler interface {
	// Type names the flow for logging and state ownership.
	Type() models.FlowType

	// CanClaim reports whether this handler should own the message.
	CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim

	// Process handles the message and returns the turn outcome. Collaborator
	// failures are recovered internally (canned fallbacks); a non-nil error
	// means the handler could not produce any outcome at all.
	Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error)
}

// Classifier categorizes free text and extracts optional profile fields.
// Implemented by genai.Client.
type Classifier interface {
	Classify(ctx context.Context, text, stateContext string) (genai.Classification, error)
}

// Generator drafts a candidate reply for a classified message.
// Implemented by genai.Client.
type Generator interface {
	Draft(ctx context.Context, text, stateContext, category string) (string, error)
}
