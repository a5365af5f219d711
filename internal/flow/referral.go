package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/impulsalabs/ventaflow/internal/models"
)

const (
	referralAckText = "¡Por supuesto! 🤝 Ya avisé a nuestro equipo; un asesor te contactará " +
		"por este mismo medio muy pronto. Mientras tanto, aquí sigo para cualquier duda."

	referralAckUrgentText = "¡Entendido, es urgente! 🚨 Ya avisé a nuestro equipo con prioridad " +
		"alta; un asesor te contactará lo antes posible."
)

// Phrases that explicitly ask for a human.
var referralPhrases = []string{
	"asesor", "asesora", "asesoria",
	"hablar con alguien", "hablar con una persona", "hablar con un humano",
	"persona real", "un humano", "atencion humana",
	"que me llamen", "llamenme", "marquenme", "quiero una llamada",
	"vendedor", "ejecutivo de ventas", "representante",
}

// Wording that raises the handoff urgency.
var urgentWords = []string{"urge", "urgente", "ahora mismo", "hoy mismo", "cuanto antes", "ya mismo", "inmediato"}

// ReferralHandler detects explicit human-assistance requests and emits a
// handoff record for the advisor notifier. Single turn, no flow cursor.
type ReferralHandler struct{}

// NewReferralHandler creates the human-handoff handler.
func NewReferralHandler() *ReferralHandler {
	return &ReferralHandler{}
}

// Type identifies the referral flow.
func (h *ReferralHandler) Type() models.FlowType {
	return models.FlowReferral
}

// CanClaim claims when the message explicitly asks for a human advisor.
func (h *ReferralHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if isReferralRequest(msg.Text) {
		return models.Claimed("human_requested")
	}
	return models.Declined()
}

// Process acknowledges the request and emits the handoff record. The engine
// forwards the record to the advisor notifier after the state is persisted.
func (h *ReferralHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	urgency := models.UrgencyNormal
	ack := referralAckText
	if isUrgent(msg.Text) {
		urgency = models.UrgencyHigh
		ack = referralAckUrgentText
	}
	slog.Info("ReferralHandler handoff requested", "userID", state.UserID, "urgency", urgency)

	outcome := &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: ack}},
		Handoff: &models.HandoffRecord{
			UserID:      state.UserID,
			DisplayName: state.DisplayName,
			Role:        state.Role,
			OfferingID:  state.SelectedOfferingID,
			Urgency:     urgency,
			Message:     msg.Text,
			RequestedAt: time.Now(),
		},
	}
	outcome.Delta.AddProfileTags = []string{"referral_requested"}
	outcome.Delta.PriorityBump = models.PriorityBumpReferral
	return outcome, nil
}

func isReferralRequest(text string) bool {
	folded := foldAccents(strings.ToLower(text))
	for _, p := range referralPhrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

func isUrgent(text string) bool {
	folded := foldAccents(strings.ToLower(text))
	for _, w := range urgentWords {
		if strings.Contains(folded, w) {
			return true
		}
	}
	return false
}
