// Package catalog provides read-only access to offering facts for VentaFlow.
//
// The catalog is the source of truth the response validator checks factual
// claims against. The engine never writes to it.
package catalog

import (
	"context"
	"strings"
)

// Offering is one sellable catalog entity (course, program, bundle).
type Offering struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Level         string   `json:"level"` // e.g. "básico", "intermedio", "avanzado"
	PriceAmount   float64  `json:"price_amount"`
	Currency      string   `json:"currency"`
	DurationWeeks int      `json:"duration_weeks"`
	LessonCount   int      `json:"lesson_count"`
	Summary       string   `json:"summary,omitempty"`
	ResourceRef   string   `json:"resource_ref,omitempty"` // brochure/document pointer
	CampaignTags  []string `json:"campaign_tags,omitempty"`
	PromoCodes    []string `json:"promo_codes,omitempty"`
}

// Catalog is the read-only offering lookup contract.
type Catalog interface {
	// GetOffering returns the offering with the given id, or nil when unknown.
	GetOffering(ctx context.Context, id string) (*Offering, error)

	// ListOfferings returns all offerings.
	ListOfferings(ctx context.Context) ([]Offering, error)

	// Search returns offerings whose name, level, or summary matches the query.
	Search(ctx context.Context, query string) ([]Offering, error)

	// Authoritative reports whether this catalog's data may verify factual
	// claims. Fallback catalogs return false so the validator treats their
	// snapshot as non-verifying.
	Authoritative() bool
}

// CanonicalCampaignTag matches token against the offering's campaign markers
// case-insensitively and returns the catalog casing of the matched tag.
func (o *Offering) CanonicalCampaignTag(token string) (string, bool) {
	return canonicalFold(o.CampaignTags, token)
}

// CanonicalPromoCode matches token against the offering's promo codes
// case-insensitively and returns the catalog casing of the matched code.
func (o *Offering) CanonicalPromoCode(token string) (string, bool) {
	return canonicalFold(o.PromoCodes, token)
}

func canonicalFold(haystack []string, needle string) (string, bool) {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return s, true
		}
	}
	return "", false
}
