package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/impulsalabs/ventaflow/internal/advisor"
	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/store"
	"github.com/impulsalabs/ventaflow/internal/validator"
)

// defaultReplyText is sent in the unreachable-in-practice case where no
// handler claims a message.
const defaultReplyText = "Gracias por tu mensaje. ¿Me cuentas un poco más para poder ayudarte mejor?"

// Engine is the conversation orchestrator. For each inbound message it loads
// the user state, walks the registry in priority order, delegates to the
// first claiming handler, validates factual replies, and persists the updated
// state before reporting the outbound payloads to the caller.
//
// The engine is the sole writer of the state store. Turns for the same user
// are serialized with a per-user lock; different users proceed concurrently.
type Engine struct {
	store     store.Store
	catalog   catalog.Catalog
	validator *validator.Validator
	notifier  advisor.Notifier
	registry  []Handler

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewEngine creates an engine over the given collaborators. The registry must
// already be in priority order (see DefaultRegistry).
func NewEngine(st store.Store, cat catalog.Catalog, v *validator.Validator, notifier advisor.Notifier, registry []Handler) *Engine {
	slog.Debug("Creating flow engine", "handlers", len(registry))
	if v == nil {
		v = validator.New()
	}
	if notifier == nil {
		notifier = advisor.NewLogNotifier()
	}
	return &Engine{
		store:     st,
		catalog:   cat,
		validator: v,
		notifier:  notifier,
		registry:  registry,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// HandleInbound processes one inbound message end to end and returns the
// outbound payloads for the caller to deliver. When the returned error wraps
// models.ErrStorage the turn did not advance and the caller should treat it
// as retryable; no payloads are returned in that case.
func (e *Engine) HandleInbound(ctx context.Context, msg models.InboundMessage) ([]models.OutboundPayload, error) {
	if msg.UserID == "" {
		return nil, models.ErrEmptyUserID
	}

	// Serialize turns per user to prevent lost state updates on rapid
	// double-sends. Cross-user turns are not ordered.
	lock := e.userLock(msg.UserID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetUserState(msg.UserID)
	if err != nil {
		slog.Error("Engine failed to load user state", "error", err, "userID", msg.UserID)
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		slog.Info("Engine first contact, creating default state", "userID", msg.UserID)
		state = models.NewUserState(msg.UserID)
	}

	outcome := e.dispatch(ctx, msg, state)

	if outcome.AssertsFactualClaims {
		e.validatePayloads(ctx, outcome)
	}

	// Apply the handler's delta plus engine bookkeeping, then persist.
	// Durability precedes delivery: the caller only sees payloads after a
	// successful save.
	now := time.Now()
	outcome.Delta.Apply(state)
	state.AppendHistory(msg.Text, now)
	state.InteractionCount++
	state.PriorityScore += models.PriorityBumpTurn
	state.UpdatedAt = now

	if err := e.store.SaveUserState(*state); err != nil {
		slog.Error("Engine failed to save user state, turn not advanced", "error", err, "userID", msg.UserID)
		return nil, fmt.Errorf("save state: %w", err)
	}

	if outcome.Handoff != nil {
		// Best effort after durability; failure is logged, never user-visible.
		if err := e.notifier.Notify(ctx, *outcome.Handoff); err != nil {
			slog.Error("Engine advisor notification failed", "error", err, "userID", msg.UserID)
		}
	}

	return outcome.Payloads, nil
}

// dispatch walks the registry in fixed priority order and runs the first
// claiming handler. Exactly one handler processes each message.
func (e *Engine) dispatch(ctx context.Context, msg models.InboundMessage, state *models.UserState) *models.TurnOutcome {
	for _, handler := range e.registry {
		claim := handler.CanClaim(ctx, msg, state)
		if !claim.Claims {
			continue
		}
		slog.Info("Engine dispatching message", "userID", msg.UserID, "flow", handler.Type(), "reason", claim.Reason)
		outcome, err := handler.Process(ctx, msg, state)
		if err != nil || outcome == nil {
			slog.Error("Engine handler failed, substituting safe reply", "error", err, "flow", handler.Type(), "userID", msg.UserID)
			return &models.TurnOutcome{
				Payloads: []models.OutboundPayload{{Text: e.validator.SafeFallback()}},
			}
		}
		return outcome
	}

	// Unreachable in practice: the generic intent flow claims as catch-all.
	slog.Warn("Engine no handler claimed message", "userID", msg.UserID)
	return &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: defaultReplyText}},
	}
}

// validatePayloads routes each text payload through the response validator
// against the catalog snapshot for the referenced offering.
func (e *Engine) validatePayloads(ctx context.Context, outcome *models.TurnOutcome) {
	var offering *catalog.Offering
	authoritative := false
	if e.catalog != nil {
		authoritative = e.catalog.Authoritative()
		if outcome.OfferingID != "" {
			off, err := e.catalog.GetOffering(ctx, outcome.OfferingID)
			if err != nil {
				slog.Error("Engine catalog lookup failed during validation", "error", err, "offeringID", outcome.OfferingID)
			} else {
				offering = off
			}
		}
	}

	for i := range outcome.Payloads {
		if outcome.Payloads[i].Text == "" {
			continue
		}
		verdict := e.validator.Validate(outcome.Payloads[i].Text, offering, authoritative)
		if verdict.Approved {
			continue
		}
		slog.Info("Engine replacing rejected reply", "offeringID", outcome.OfferingID, "rejected", verdict.RejectedClaims)
		if verdict.RewrittenText != "" {
			outcome.Payloads[i].Text = verdict.RewrittenText
		} else {
			outcome.Payloads[i].Text = e.validator.SafeFallback()
		}
	}
}

// userLock returns the mutex serializing turns for one user.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}
