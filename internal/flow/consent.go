package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// Consent flow steps.
const (
	consentStepRequested = 0
	consentStepName      = 1
	consentStepRole      = 2
)

// User-facing consent flow texts.
const (
	consentRequestText = "¡Hola! 👋 Soy el asistente de Impulsa Digital. Me encantaría compartirte " +
		"información sobre nuestros programas de ventas digitales.\n\n" +
		"¿Estás de acuerdo en que conversemos por este medio? Responde *Acepto* para " +
		"continuar o *No* si prefieres que no te contactemos."

	consentRepromptText = "Disculpa, no entendí tu respuesta. Responde *Acepto* si quieres que " +
		"conversemos, o *No* si prefieres que no te contactemos."

	consentDeclineText = "Entendido, no te contactaremos. 🙏 Si cambias de opinión, aquí estaré; " +
		"escríbeme cuando gustes."

	askNameText = "¡Excelente! 🎉 Para darte una atención más personal, ¿cómo te llamas?"

	askNameRepromptText = "Disculpa, no logré registrar tu nombre. ¿Me lo compartes de nuevo?"

	askRoleTemplate = "Mucho gusto, %s. 🤝 ¿A qué te dedicas? Por ejemplo: Gerente de Ventas, " +
		"Directora de Marketing, dueño de negocio..."

	roleRepromptText = "Para recomendarte lo más útil necesito conocer tu ocupación. " +
		"Algunos ejemplos: *Director de Marketing*, *dueña de negocio*, *vendedor independiente*, " +
		"*freelancer*. ¿Cuál es tu puesto o actividad?"

	consentCompleteTemplate = "¡Gracias, %s! ✅ Quedaste registrado. En un momento te muestro " +
		"los programas que tenemos para ti."
)

// Replies recognized as consent acceptance or decline.
var (
	consentYesWords = []string{"acepto", "si", "sí", "claro", "ok", "okay", "vale", "de acuerdo", "dale", "por supuesto", "yes"}
	consentNoWords  = []string{"no", "no gracias", "no quiero", "no acepto", "nope"}
)

// ConsentHandler runs the compliance-first consent state machine:
// idle → requested → awaiting_name → awaiting_role → completed.
// It claims unconditionally while consent is not accepted, which is what
// guarantees registry rule 1.
type ConsentHandler struct{}

// NewConsentHandler creates the consent flow handler.
func NewConsentHandler() *ConsentHandler {
	return &ConsentHandler{}
}

// Type identifies the consent flow.
func (h *ConsentHandler) Type() models.FlowType {
	return models.FlowConsent
}

// CanClaim claims every message until consent is accepted. Once accepted the
// flow is absorbing: it never claims again for this user.
func (h *ConsentHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if state.ConsentStatus != models.ConsentAccepted {
		return models.Claimed("consent_pending")
	}
	return models.Declined()
}

// Process advances the consent state machine by one turn.
func (h *ConsentHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	// Mid-flow positions are read from the persisted cursor, not from the
	// message text: replies are interpreted positionally.
	if state.ActiveFlow == models.FlowConsent {
		switch state.AwaitingInputKind {
		case models.InputKindConsentAnswer:
			return h.processConsentAnswer(msg, state), nil
		case models.InputKindName:
			return h.processName(msg, state), nil
		case models.InputKindRole:
			return h.processRole(msg, state), nil
		}
	}
	// First contact, or a previously declined user writing again: request
	// consent (idle → requested).
	return h.requestConsent(state), nil
}

func (h *ConsentHandler) requestConsent(state *models.UserState) *models.TurnOutcome {
	slog.Info("ConsentHandler requesting consent", "userID", state.UserID, "previous", state.ConsentStatus)
	outcome := &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: consentRequestText}},
	}
	outcome.Delta.ConsentStatus = models.ConsentPtr(models.ConsentRequested)
	outcome.Delta.SetFlow(models.FlowConsent, consentStepRequested, models.InputKindConsentAnswer)
	return outcome
}

func (h *ConsentHandler) processConsentAnswer(msg models.InboundMessage, state *models.UserState) *models.TurnOutcome {
	answer := normalizeAnswer(msg.Text)
	switch {
	case matchesAny(answer, consentYesWords):
		slog.Info("ConsentHandler consent granted, asking name", "userID", state.UserID)
		outcome := &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: askNameText}},
		}
		outcome.Delta.SetFlow(models.FlowConsent, consentStepName, models.InputKindName)
		return outcome
	case matchesAny(answer, consentNoWords):
		slog.Info("ConsentHandler consent declined", "userID", state.UserID)
		outcome := &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: consentDeclineText}},
		}
		outcome.Delta.ConsentStatus = models.ConsentPtr(models.ConsentDeclined)
		outcome.Delta.ClearFlow()
		return outcome
	default:
		slog.Debug("ConsentHandler unrecognized consent answer, re-prompting", "userID", state.UserID)
		return &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: consentRepromptText}},
		}
	}
}

func (h *ConsentHandler) processName(msg models.InboundMessage, state *models.UserState) *models.TurnOutcome {
	name := strings.TrimSpace(msg.Text)
	if !usableName(name) {
		// Fall back to the channel-provided profile name when the reply is
		// unusable.
		name = strings.TrimSpace(msg.ProfileName)
	}
	if !usableName(name) {
		slog.Debug("ConsentHandler no usable name, re-prompting", "userID", state.UserID)
		return &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: askNameRepromptText}},
		}
	}

	slog.Info("ConsentHandler name captured, asking role", "userID", state.UserID)
	outcome := &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: fmt.Sprintf(askRoleTemplate, name)}},
	}
	outcome.Delta.DisplayName = models.StringPtr(name)
	outcome.Delta.SetFlow(models.FlowConsent, consentStepRole, models.InputKindRole)
	return outcome
}

func (h *ConsentHandler) processRole(msg models.InboundMessage, state *models.UserState) *models.TurnOutcome {
	if !models.IsValidRole(msg.Text) {
		slog.Debug("ConsentHandler invalid role candidate, re-prompting", "userID", state.UserID, "candidate", msg.Text)
		return &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: roleRepromptText}},
		}
	}

	role := models.CanonicalRole(msg.Text)
	name := state.DisplayName
	if name == "" {
		name = "gracias"
	}
	slog.Info("ConsentHandler consent flow completed", "userID", state.UserID, "role", role)
	outcome := &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: fmt.Sprintf(consentCompleteTemplate, name)}},
	}
	outcome.Delta.Role = models.StringPtr(role)
	outcome.Delta.ConsentStatus = models.ConsentPtr(models.ConsentAccepted)
	outcome.Delta.ClearFlow()
	return outcome
}

// normalizeAnswer lowercases and strips punctuation for yes/no matching.
func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;:!¡¿?\"'")
	return strings.Join(strings.Fields(s), " ")
}

func matchesAny(answer string, words []string) bool {
	for _, w := range words {
		if answer == w {
			return true
		}
	}
	return false
}

// usableName rejects empty and numeric-only name candidates.
func usableName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
