package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/models"
)

const campaignReplyTemplate = "¡Qué gusto que llegues por la campaña *%s*! 🚀 El programa " +
	"relacionado es *%s*: %s\n\n¿Quieres que te cuente más detalles?"

// CampaignHandler resolves '#' markers that name a campaign tag. It owns the
// campaign namespace; promo codes fall through to the promo handler.
type CampaignHandler struct {
	catalog catalog.Catalog
}

// NewCampaignHandler creates the campaign marker handler.
func NewCampaignHandler(cat catalog.Catalog) *CampaignHandler {
	return &CampaignHandler{catalog: cat}
}

// Type identifies the campaign flow.
func (h *CampaignHandler) Type() models.FlowType {
	return models.FlowCampaign
}

// CanClaim claims when the message carries a marker matching a known campaign
// tag in the catalog.
func (h *CampaignHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if h.catalog == nil {
		return models.Declined()
	}
	for _, marker := range ExtractMarkers(msg.Text) {
		if _, tag := h.matchCampaign(ctx, marker); tag != "" {
			return models.Claimed("campaign_marker:" + tag)
		}
	}
	return models.Declined()
}

// Process replies with the offering tied to the campaign tag, selects that
// offering, and tags the user profile with the campaign for later
// segmentation. The flow cursor is cleared so the next turn falls through to
// generic conversation.
func (h *CampaignHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	for _, marker := range ExtractMarkers(msg.Text) {
		offering, tag := h.matchCampaign(ctx, marker)
		if tag == "" {
			continue
		}
		slog.Info("CampaignHandler campaign marker matched", "userID", state.UserID, "tag", tag, "offering", offering.ID)
		outcome := &models.TurnOutcome{
			Payloads: []models.OutboundPayload{{
				Text:        fmt.Sprintf(campaignReplyTemplate, tag, offering.Name, offering.Summary),
				ResourceRef: offering.ResourceRef,
			}},
			AssertsFactualClaims: true,
			OfferingID:           offering.ID,
		}
		outcome.Delta.SelectedOfferingID = models.StringPtr(offering.ID)
		outcome.Delta.ClearFlow()
		outcome.Delta.AddProfileTags = []string{"campaign:" + strings.ToLower(tag)}
		outcome.Delta.PriorityBump = models.PriorityBumpSelection
		return outcome, nil
	}
	return nil, fmt.Errorf("campaign marker no longer resolvable")
}

// matchCampaign returns the offering and canonical tag for a marker, or an
// empty tag when no offering carries it.
func (h *CampaignHandler) matchCampaign(ctx context.Context, marker string) (*catalog.Offering, string) {
	offerings, err := h.catalog.ListOfferings(ctx)
	if err != nil {
		slog.Error("CampaignHandler failed to list offerings", "error", err)
		return nil, ""
	}
	for i := range offerings {
		if tag, ok := offerings[i].CanonicalCampaignTag(marker); ok {
			return &offerings[i], tag
		}
	}
	return nil, ""
}
