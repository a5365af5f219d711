package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// faqEntry maps trigger keywords to a canned answer.
type faqEntry struct {
	keywords []string
	answer   string
}

// Canned answers for common questions, used when the classifier is disabled
// or could not route the message. Answers stay qualitative so they never need
// catalog verification.
var faqEntries = []faqEntry{
	{
		keywords: []string{"hola", "buenos dias", "buenas tardes", "buenas noches", "que tal", "saludos"},
		answer:   "¡Hola! 😊 Soy el asistente de Impulsa Digital. Puedo contarte de nuestros programas de ventas digitales, precios y horarios. ¿Qué te interesa?",
	},
	{
		keywords: []string{"precio", "costo", "cuanto cuesta", "cuánto cuesta", "inversion", "vale"},
		answer:   "Tenemos programas para distintos presupuestos, con facilidades de pago. ¿Te muestro las opciones para darte el detalle de cada una?",
	},
	{
		keywords: []string{"horario", "cuando empieza", "fechas", "duracion", "duración"},
		answer:   "Los horarios son flexibles y todas las lecciones quedan grabadas para que avances a tu ritmo. ¿Quieres que te muestre los programas?",
	},
	{
		keywords: []string{"certificado", "diploma", "constancia"},
		answer:   "Sí, al completar cualquiera de nuestros programas recibes un certificado digital de finalización. 🎓",
	},
	{
		keywords: []string{"pago", "tarjeta", "transferencia", "meses sin intereses", "factura"},
		answer:   "Aceptamos tarjeta, transferencia y pagos en parcialidades; también emitimos factura. Un asesor puede ayudarte con tu inscripción.",
	},
	{
		keywords: []string{"gracias", "perfecto", "genial", "excelente"},
		answer:   "¡Con mucho gusto! 🙌 Si necesitas algo más, aquí estoy.",
	},
}

// FAQHandler is the last-resort canned answer table. It claims only what its
// keywords recognize; anything else falls through to the engine's default
// reply.
type FAQHandler struct{}

// NewFAQHandler creates the FAQ fallback handler.
func NewFAQHandler() *FAQHandler {
	return &FAQHandler{}
}

// Type identifies the FAQ flow.
func (h *FAQHandler) Type() models.FlowType {
	return models.FlowFAQ
}

// CanClaim claims when the message matches a known FAQ keyword.
func (h *FAQHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if answerFor(msg.Text) != "" {
		return models.Claimed("faq_keyword")
	}
	return models.Declined()
}

// Process replies with the canned answer for the first matching entry.
func (h *FAQHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	answer := answerFor(msg.Text)
	if answer == "" {
		answer = faqEntries[0].answer
	}
	slog.Debug("FAQHandler answering", "userID", state.UserID)
	return &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: answer}},
	}, nil
}

func answerFor(text string) string {
	folded := foldAccents(strings.ToLower(text))
	for _, e := range faqEntries {
		for _, kw := range e.keywords {
			if strings.Contains(folded, foldAccents(kw)) {
				return e.answer
			}
		}
	}
	return ""
}
