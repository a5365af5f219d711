package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/models"
)

const (
	offerListHeader = "Estos son nuestros programas: 📚\n\n"
	offerListFooter = "\n¿Cuál te interesa? Puedes responder con el número, el nombre o el nivel."

	selectionRepromptText = "No logré identificar el programa. Respóndeme con el número de la " +
		"lista, el nombre o el nivel (básico, intermedio, avanzado)."

	selectionAmbiguousText = "Tu respuesta coincide con más de un programa. 😅 ¿Me dices el " +
		"número de la lista para estar seguros?"

	selectionConfirmTemplate = "¡Gran elección! ✨ *%s* (nivel %s): $%.0f %s, %d semanas, " +
		"%d lecciones.\n\n%s\n\n¿Quieres inscribirte o tienes alguna pregunta?"
)

// Interest phrases that open the offering presentation.
var offerInterestWords = []string{
	"curso", "cursos", "programa", "programas", "opciones", "catálogo", "catalogo",
	"oferta", "ofertas", "inscribir", "inscripción", "inscripcion", "me interesa",
	"qué tienen", "que tienen", "qué ofrecen", "que ofrecen", "mostrar", "muéstrame", "muestrame",
}

// Short affirmations treated as "show me" when nothing is selected yet.
var offerAffirmations = []string{"si", "sí", "ok", "okay", "va", "vale", "claro", "dale", "por favor", "adelante"}

// OnboardingHandler presents the catalog and resolves the user's selection:
// offer_presented → awaiting_selection → confirmed.
type OnboardingHandler struct {
	catalog  catalog.Catalog
	fallback catalog.Catalog
}

// NewOnboardingHandler creates the offering-selection handler. fallback is
// consulted when the primary catalog errors or is empty.
func NewOnboardingHandler(cat, fallback catalog.Catalog) *OnboardingHandler {
	return &OnboardingHandler{catalog: cat, fallback: fallback}
}

// Type identifies the onboarding flow.
func (h *OnboardingHandler) Type() models.FlowType {
	return models.FlowOnboarding
}

// CanClaim claims mid-selection turns, and fresh turns where a user without a
// selected offering asks to see the programs (or just affirms after the
// consent flow promised them).
func (h *OnboardingHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if state.ActiveFlow == models.FlowOnboarding {
		return models.Claimed("selection_pending")
	}
	if state.SelectedOfferingID != "" || state.ActiveFlow != models.FlowNone {
		return models.Declined()
	}
	text := strings.ToLower(msg.Text)
	for _, w := range offerInterestWords {
		if strings.Contains(text, w) {
			return models.Claimed("offer_interest")
		}
	}
	if matchesAny(normalizeAnswer(msg.Text), offerAffirmations) {
		return models.Claimed("offer_affirmation")
	}
	return models.Declined()
}

// Process either presents the offering list or resolves a pending selection.
func (h *OnboardingHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	offerings := h.offerings(ctx)
	if len(offerings) == 0 {
		return nil, fmt.Errorf("no offerings available to present")
	}

	if state.ActiveFlow == models.FlowOnboarding && state.AwaitingInputKind == models.InputKindSelection {
		return h.processSelection(msg, state, offerings), nil
	}
	return h.presentOfferings(state, offerings), nil
}

func (h *OnboardingHandler) presentOfferings(state *models.UserState, offerings []catalog.Offering) *models.TurnOutcome {
	slog.Info("OnboardingHandler presenting offerings", "userID", state.UserID, "count", len(offerings))
	var b strings.Builder
	b.WriteString(offerListHeader)
	for i, o := range offerings {
		fmt.Fprintf(&b, "%d. *%s* (nivel %s)\n", i+1, o.Name, o.Level)
	}
	b.WriteString(offerListFooter)

	outcome := &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: b.String()}},
	}
	outcome.Delta.SetFlow(models.FlowOnboarding, 0, models.InputKindSelection)
	return outcome
}

func (h *OnboardingHandler) processSelection(msg models.InboundMessage, state *models.UserState, offerings []catalog.Offering) *models.TurnOutcome {
	matches := resolveSelection(msg.Text, offerings)
	switch len(matches) {
	case 1:
		o := matches[0]
		slog.Info("OnboardingHandler selection confirmed", "userID", state.UserID, "offering", o.ID)
		outcome := &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{
				Text: fmt.Sprintf(selectionConfirmTemplate, o.Name, o.Level,
					o.PriceAmount, o.Currency, o.DurationWeeks, o.LessonCount, o.Summary),
				ResourceRef: o.ResourceRef,
			}},
			AssertsFactualClaims: true,
			OfferingID:           o.ID,
		}
		outcome.Delta.SelectedOfferingID = models.StringPtr(o.ID)
		outcome.Delta.ClearFlow()
		outcome.Delta.PriorityBump = models.PriorityBumpSelection
		return outcome
	case 0:
		slog.Debug("OnboardingHandler selection unresolved, re-prompting", "userID", state.UserID, "text", msg.Text)
		return &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: selectionRepromptText}},
		}
	default:
		slog.Debug("OnboardingHandler selection ambiguous, re-prompting", "userID", state.UserID, "matches", len(matches))
		return &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{Text: selectionAmbiguousText}},
		}
	}
}

// offerings returns the primary catalog listing, or the fallback's when the
// primary errors or is empty.
func (h *OnboardingHandler) offerings(ctx context.Context) []catalog.Offering {
	if h.catalog != nil {
		offerings, err := h.catalog.ListOfferings(ctx)
		if err != nil {
			slog.Error("OnboardingHandler primary catalog listing failed, using fallback", "error", err)
		} else if len(offerings) > 0 {
			return offerings
		}
	}
	if h.fallback == nil {
		return nil
	}
	offerings, err := h.fallback.ListOfferings(ctx)
	if err != nil {
		slog.Error("OnboardingHandler fallback catalog listing failed", "error", err)
		return nil
	}
	return offerings
}

var ordinalWords = map[string]int{
	"1": 1, "uno": 1, "primero": 1, "primera": 1, "el primero": 1, "la primera": 1,
	"2": 2, "dos": 2, "segundo": 2, "segunda": 2, "el segundo": 2, "la segunda": 2,
	"3": 3, "tres": 3, "tercero": 3, "tercera": 3, "el tercero": 3, "la tercera": 3,
	"4": 4, "cuatro": 4, "cuarto": 4, "cuarta": 4,
	"5": 5, "cinco": 5, "quinto": 5, "quinta": 5,
}

// resolveSelection matches the reply against the presented list by ordinal,
// level keyword, or partial name, in that order. Matching is accent-folded so
// "basico" selects the "básico" level.
func resolveSelection(text string, offerings []catalog.Offering) []catalog.Offering {
	answer := foldAccents(normalizeAnswer(text))
	if answer == "" {
		return nil
	}

	if n, ok := ordinalWords[answer]; ok {
		if n >= 1 && n <= len(offerings) {
			return offerings[n-1 : n]
		}
		return nil
	}

	var byLevel []catalog.Offering
	for _, o := range offerings {
		level := foldAccents(strings.ToLower(o.Level))
		if level != "" && strings.Contains(answer, level) {
			byLevel = append(byLevel, o)
		}
	}
	if len(byLevel) > 0 {
		return byLevel
	}

	var byName []catalog.Offering
	for _, o := range offerings {
		name := foldAccents(strings.ToLower(o.Name))
		if strings.Contains(name, answer) || strings.Contains(answer, name) {
			byName = append(byName, o)
		}
	}
	return byName
}

var accentFolder = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u")

func foldAccents(s string) string {
	return accentFolder.Replace(s)
}
