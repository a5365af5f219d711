// Package advisor delivers human-handoff notifications produced by the
// referral flow.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/util"
)

// Notifier receives the structured handoff record when a user asks for a
// human advisor.
type Notifier interface {
	Notify(ctx context.Context, record models.HandoffRecord) error
}

// Sender is the minimal outbound-message capability the messaging notifier
// needs.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// MessagingNotifier forwards handoff records to a configured advisor number
// through the messaging gateway.
type MessagingNotifier struct {
	sender        Sender
	advisorNumber string
}

// NewMessagingNotifier creates a notifier that messages the given advisor number.
func NewMessagingNotifier(sender Sender, advisorNumber string) *MessagingNotifier {
	slog.Debug("Creating MessagingNotifier", "advisor_set", advisorNumber != "")
	return &MessagingNotifier{sender: sender, advisorNumber: advisorNumber}
}

// Notify formats the record and sends it to the advisor.
func (n *MessagingNotifier) Notify(ctx context.Context, record models.HandoffRecord) error {
	if n.advisorNumber == "" {
		return fmt.Errorf("advisor number not configured")
	}
	ref := util.GenerateHandoffRef()
	body := formatHandoff(record, ref)
	if err := n.sender.SendMessage(ctx, n.advisorNumber, body); err != nil {
		slog.Error("MessagingNotifier failed to deliver handoff", "error", err, "userID", record.UserID, "ref", ref)
		return fmt.Errorf("failed to notify advisor for %s: %w", record.UserID, err)
	}
	slog.Info("MessagingNotifier handoff delivered", "userID", record.UserID, "urgency", record.Urgency, "ref", ref)
	return nil
}

// LogNotifier records handoffs in the log only. Used when no advisor number
// is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the handoff record.
func (n *LogNotifier) Notify(ctx context.Context, record models.HandoffRecord) error {
	slog.Info("Handoff requested (no advisor configured)",
		"userID", record.UserID, "name", record.DisplayName,
		"urgency", record.Urgency, "message", record.Message)
	return nil
}

// formatHandoff renders the advisor-facing summary message.
func formatHandoff(record models.HandoffRecord, ref string) string {
	var b strings.Builder
	b.WriteString("🔔 Nuevo contacto solicita asesoría\n")
	fmt.Fprintf(&b, "Referencia: %s\n", ref)
	fmt.Fprintf(&b, "Usuario: %s\n", record.UserID)
	if record.DisplayName != "" {
		fmt.Fprintf(&b, "Nombre: %s\n", record.DisplayName)
	}
	if record.Role != "" {
		fmt.Fprintf(&b, "Puesto: %s\n", record.Role)
	}
	if record.OfferingID != "" {
		fmt.Fprintf(&b, "Interesado en: %s\n", record.OfferingID)
	}
	fmt.Fprintf(&b, "Urgencia: %s\n", record.Urgency)
	fmt.Fprintf(&b, "Mensaje: %s", record.Message)
	return b.String()
}
