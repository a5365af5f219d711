package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// Orchestrator is the engine contract the dispatcher needs: one call per
// inbound message, payloads back on success.
type Orchestrator interface {
	HandleInbound(ctx context.Context, msg models.InboundMessage) ([]models.OutboundPayload, error)
}

// Dispatcher pumps inbound messages from a Service into the orchestration
// engine and delivers the resulting payloads back through the same service.
type Dispatcher struct {
	service Service
	engine  Orchestrator
}

// NewDispatcher creates a dispatcher connecting service and engine.
func NewDispatcher(service Service, engine Orchestrator) *Dispatcher {
	return &Dispatcher{service: service, engine: engine}
}

// Run consumes the service's inbound channel until the context is cancelled
// or the channel closes. Each message is processed to completion before the
// next one is read; per-user ordering within the channel is preserved.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping, context cancelled")
			return
		case msg, ok := <-d.service.Inbound():
			if !ok {
				slog.Info("Dispatcher stopping, inbound channel closed")
				return
			}
			d.handle(ctx, msg)
		}
	}
}

// handle runs one message through the engine and sends the replies. A storage
// failure means the turn did not advance; nothing is sent so WhatsApp-level
// retries see a consistent conversation.
func (d *Dispatcher) handle(ctx context.Context, msg models.InboundMessage) {
	payloads, err := d.engine.HandleInbound(ctx, msg)
	if err != nil {
		if errors.Is(err, models.ErrStorage) {
			slog.Error("Dispatcher turn not advanced, storage failure", "error", err, "from", msg.UserID)
		} else {
			slog.Error("Dispatcher engine error", "error", err, "from", msg.UserID)
		}
		return
	}

	for _, payload := range payloads {
		if err := d.service.SendMessage(ctx, msg.UserID, payload.Text); err != nil {
			slog.Error("Dispatcher failed to send reply", "error", err, "to", msg.UserID)
			continue
		}
		if payload.ResourceRef != "" {
			// Resource attachments are delivered as a follow-up text pointer.
			if err := d.service.SendMessage(ctx, msg.UserID, "📎 "+payload.ResourceRef); err != nil {
				slog.Error("Dispatcher failed to send resource ref", "error", err, "to", msg.UserID)
			}
		}
	}
}
