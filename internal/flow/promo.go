package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/models"
)

const (
	promoReplyTemplate = "¡Tu código *#%s* es válido! 🎟️ Aplica para *%s* (nivel %s): " +
		"$%.0f %s, %d semanas, %d lecciones.\n\n¿Te gustaría inscribirte o tienes alguna duda?"

	promoUnknownTemplate = "Hmm, no reconozco el código *#%s*. 🤔 Los códigos vigentes son: %s. " +
		"Revisa que esté bien escrito, ¡o pregúntame por nuestros programas!"

	promoUnknownNoCodesText = "Hmm, no reconozco ese código. 🤔 Por ahora no tenemos códigos " +
		"vigentes, ¡pero con gusto te cuento de nuestros programas!"
)

// PromoHandler resolves '#' markers as promo codes. It claims any marker the
// campaign handler passed over, so unknown markers get a graceful reply
// instead of falling through to intent classification.
type PromoHandler struct {
	catalog catalog.Catalog
}

// NewPromoHandler creates the promo code handler.
func NewPromoHandler(cat catalog.Catalog) *PromoHandler {
	return &PromoHandler{catalog: cat}
}

// Type identifies the promo flow.
func (h *PromoHandler) Type() models.FlowType {
	return models.FlowPromo
}

// CanClaim claims whenever the message carries any '#' marker.
func (h *PromoHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if len(ExtractMarkers(msg.Text)) == 0 {
		return models.Declined()
	}
	return models.Claimed("marker_present")
}

// Process resolves the first marker against catalog promo codes. A recognized
// code selects the tied offering, clears any in-progress flow cursor, and
// bumps the user's priority; an unknown marker lists the currently valid codes.
func (h *PromoHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	markers := ExtractMarkers(msg.Text)
	if len(markers) == 0 {
		return nil, fmt.Errorf("no marker in message")
	}

	for _, marker := range markers {
		offering, code := h.matchPromo(ctx, marker)
		if code == "" {
			continue
		}
		slog.Info("PromoHandler promo code redeemed", "userID", state.UserID, "code", code, "offering", offering.ID)
		outcome := &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{
				Text: fmt.Sprintf(promoReplyTemplate, code, offering.Name, offering.Level,
					offering.PriceAmount, offering.Currency, offering.DurationWeeks, offering.LessonCount),
				ResourceRef: offering.ResourceRef,
			}},
			AssertsFactualClaims: true,
			OfferingID:           offering.ID,
		}
		outcome.Delta.SelectedOfferingID = models.StringPtr(offering.ID)
		outcome.Delta.ClearFlow()
		outcome.Delta.AddProfileTags = []string{"promo:" + strings.ToLower(code)}
		outcome.Delta.PriorityBump = models.PriorityBumpSelection
		return outcome, nil
	}

	slog.Info("PromoHandler unknown marker", "userID", state.UserID, "marker", markers[0])
	codes := h.validCodes(ctx)
	text := promoUnknownNoCodesText
	if len(codes) > 0 {
		text = fmt.Sprintf(promoUnknownTemplate, markers[0], strings.Join(codes, ", "))
	}
	return &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: text}},
	}, nil
}

func (h *PromoHandler) matchPromo(ctx context.Context, marker string) (*catalog.Offering, string) {
	if h.catalog == nil {
		return nil, ""
	}
	offerings, err := h.catalog.ListOfferings(ctx)
	if err != nil {
		slog.Error("PromoHandler failed to list offerings", "error", err)
		return nil, ""
	}
	for i := range offerings {
		if code, ok := offerings[i].CanonicalPromoCode(marker); ok {
			return &offerings[i], code
		}
	}
	return nil, ""
}

// validCodes returns the distinct promo codes across the catalog, sorted for
// stable replies.
func (h *PromoHandler) validCodes(ctx context.Context) []string {
	if h.catalog == nil {
		return nil
	}
	offerings, err := h.catalog.ListOfferings(ctx)
	if err != nil {
		slog.Error("PromoHandler failed to list offerings", "error", err)
		return nil
	}
	seen := make(map[string]bool)
	var codes []string
	for _, o := range offerings {
		for _, code := range o.PromoCodes {
			key := strings.ToLower(code)
			if seen[key] {
				continue
			}
			seen[key] = true
			codes = append(codes, "#"+code)
		}
	}
	sort.Strings(codes)
	return codes
}
