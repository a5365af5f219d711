package catalog

import (
	"context"
	"strings"
)

// StaticCatalog is the in-process fallback used when the real catalog store is
// unavailable. It is deliberately non-authoritative: the response validator
// must never verify a specific factual claim against this data.
type StaticCatalog struct {
	offerings []Offering
}

// NewStaticCatalog creates a static catalog with the default offering list.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{offerings: defaultOfferings()}
}

// NewStaticCatalogWith creates a static catalog with explicit offerings (tests).
func NewStaticCatalogWith(offerings []Offering) *StaticCatalog {
	return &StaticCatalog{offerings: offerings}
}

// GetOffering returns the offering with the given id, or nil.
func (c *StaticCatalog) GetOffering(ctx context.Context, id string) (*Offering, error) {
	for i := range c.offerings {
		if strings.EqualFold(c.offerings[i].ID, id) {
			o := c.offerings[i]
			return &o, nil
		}
	}
	return nil, nil
}

// ListOfferings returns all offerings.
func (c *StaticCatalog) ListOfferings(ctx context.Context) ([]Offering, error) {
	out := make([]Offering, len(c.offerings))
	copy(out, c.offerings)
	return out, nil
}

// Search matches query against name, level, and summary.
func (c *StaticCatalog) Search(ctx context.Context, query string) ([]Offering, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	var out []Offering
	for _, o := range c.offerings {
		if strings.Contains(strings.ToLower(o.Name), query) ||
			strings.Contains(strings.ToLower(o.Level), query) ||
			strings.Contains(strings.ToLower(o.Summary), query) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Authoritative is false: static data never verifies factual claims.
func (c *StaticCatalog) Authoritative() bool {
	return false
}

// defaultOfferings is the small built-in list shown when the catalog store is
// down. Names only; downstream validation treats every specific number here
// as unverified.
func defaultOfferings() []Offering {
	return []Offering{
		{ID: "curso-basico", Name: "Curso Básico de Ventas Digitales", Level: "básico"},
		{ID: "curso-intermedio", Name: "Curso Intermedio de Ventas Digitales", Level: "intermedio"},
		{ID: "curso-avanzado", Name: "Curso Avanzado de Ventas Digitales", Level: "avanzado"},
	}
}
