package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/genai"
	"github.com/impulsalabs/ventaflow/internal/models"
)

// Classification categories the policy table knows about.
const (
	categoryGreeting  = "greeting"
	categoryPricing   = "pricing"
	categoryContent   = "content"
	categorySchedule  = "schedule"
	categoryObjection = "objection"
	categoryReferral  = "referral"
	categoryFarewell  = "farewell"
	categoryQuestion  = "question"
	categoryUnknown   = "unknown"
)

// intentPolicy is one row of the category policy table.
type intentPolicy struct {
	// generate asks the text generator to draft the reply; canned is used
	// when generation fails or is disabled.
	generate bool
	// assertsClaims routes the reply through the response validator.
	assertsClaims bool
	canned        string
}

var intentPolicies = map[string]intentPolicy{
	categoryGreeting: {canned: "¡Hola de nuevo! 😊 ¿En qué te puedo ayudar hoy?"},
	categoryPricing: {generate: true, assertsClaims: true,
		canned: "Con gusto te comparto los precios. ¿De cuál programa te gustaría conocer el costo?"},
	categoryContent: {generate: true, assertsClaims: true,
		canned: "Nuestros programas cubren ventas digitales de principio a fin. ¿Quieres que te detalle alguno?"},
	categorySchedule: {generate: true, assertsClaims: true,
		canned: "Los horarios son flexibles y las lecciones quedan grabadas. ¿Te comparto más detalles?"},
	categoryObjection: {generate: true,
		canned: "Te entiendo, es una decisión importante. 😊 Si me cuentas qué te detiene, busco la mejor opción para ti."},
	categoryFarewell: {canned: "¡Gracias por escribir! 👋 Aquí estaré cuando quieras retomar la conversación."},
	categoryQuestion: {generate: true,
		canned: "Buena pregunta. Déjame conectarte con la información correcta; ¿me das un poco más de detalle?"},
	categoryUnknown: {canned: "No estoy seguro de haber entendido. 🙈 Puedo contarte de nuestros programas, " +
		"precios y horarios, o ponerte en contacto con un asesor."},
}

// IntentHandler routes free-form messages through the intent classifier and a
// per-category policy table. Collaborator failures degrade to canned replies;
// the user never sees an error.
type IntentHandler struct {
	classifier Classifier
	generator  Generator
}

// NewIntentHandler creates the classifier-backed generic conversation handler.
func NewIntentHandler(classifier Classifier, generator Generator) *IntentHandler {
	return &IntentHandler{classifier: classifier, generator: generator}
}

// Type identifies the intent flow.
func (h *IntentHandler) Type() models.FlowType {
	return models.FlowIntent
}

// CanClaim claims any remaining message when a classifier is configured.
// Without one the FAQ fallback owns the tail of the registry.
func (h *IntentHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if h.classifier == nil {
		return models.Declined()
	}
	return models.Claimed("generic_conversation")
}

// Process classifies the message, merges any extracted profile fields, and
// replies per the category policy.
func (h *IntentHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	classification := h.classify(ctx, msg, state)
	category := classification.Category
	slog.Info("IntentHandler classified message", "userID", state.UserID, "category", category, "confidence", classification.Confidence)

	// A referral detected by the classifier (phrasing the keyword handler
	// missed) still produces a real handoff.
	if category == categoryReferral {
		referral := NewReferralHandler()
		return referral.Process(ctx, msg, state)
	}

	policy, ok := intentPolicies[category]
	if !ok {
		category = categoryUnknown
		policy = intentPolicies[categoryUnknown]
	}

	outcome := &models.TurnOutcome{}
	h.mergeExtractedFields(classification.ExtractedFields, state, outcome)

	text := policy.canned
	if policy.generate && h.generator != nil {
		draft, err := h.generator.Draft(ctx, msg.Text, stateContext(state), category)
		if err != nil {
			slog.Error("IntentHandler draft failed, using canned reply", "userID", state.UserID, "category", category, "error", err)
		} else if strings.TrimSpace(draft) != "" {
			text = draft
		}
	}

	outcome.Payloads = []models.OutboundPayload{{Text: text}}
	if policy.assertsClaims {
		outcome.AssertsFactualClaims = true
		outcome.OfferingID = state.SelectedOfferingID
	}
	return outcome, nil
}

func (h *IntentHandler) classify(ctx context.Context, msg models.InboundMessage, state *models.UserState) genai.Classification {
	classification, err := h.classifier.Classify(ctx, msg.Text, stateContext(state))
	if err != nil {
		slog.Error("IntentHandler classification failed", "userID", state.UserID, "error", err)
		return genai.Classification{Category: categoryUnknown}
	}
	return classification
}

// mergeExtractedFields folds classifier-extracted profile fields into the
// delta, each behind its own validity gate. Existing values are never
// overwritten by extraction.
func (h *IntentHandler) mergeExtractedFields(fields map[string]string, state *models.UserState, outcome *models.TurnOutcome) {
	if len(fields) == 0 {
		return
	}
	if name := strings.TrimSpace(fields["name"]); name != "" && state.DisplayName == "" && usableName(name) {
		outcome.Delta.DisplayName = models.StringPtr(name)
	}
	if role := strings.TrimSpace(fields["role"]); role != "" && state.Role == "" && models.IsValidRole(role) {
		outcome.Delta.Role = models.StringPtr(models.CanonicalRole(role))
	}
	if interest := strings.TrimSpace(fields["interest"]); interest != "" {
		outcome.Delta.AddProfileTags = append(outcome.Delta.AddProfileTags, "interest:"+strings.ToLower(interest))
	}
}

// stateContext is the compact profile summary handed to the GenAI collaborators.
func stateContext(state *models.UserState) string {
	var parts []string
	if state.DisplayName != "" {
		parts = append(parts, "nombre: "+state.DisplayName)
	}
	if state.Role != "" {
		parts = append(parts, "ocupación: "+state.Role)
	}
	if state.SelectedOfferingID != "" {
		parts = append(parts, "programa seleccionado: "+state.SelectedOfferingID)
	}
	if len(parts) == 0 {
		return "sin datos de perfil"
	}
	return fmt.Sprintf("perfil del usuario (%s)", strings.Join(parts, ", "))
}
