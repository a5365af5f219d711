package flow

import (
	"log/slog"

	"github.com/impulsalabs/ventaflow/internal/catalog"
)

// RegistryConfig carries the collaborators the flow handlers depend on.
type RegistryConfig struct {
	Catalog    catalog.Catalog
	Fallback   catalog.Catalog // non-authoritative list shown when Catalog is down
	Classifier Classifier
	Generator  Generator
}

// DefaultRegistry builds the flow handlers in their fixed business priority
// order: compliance first, monetizable triggers next, generic conversation
// last. The order is never changed at runtime; the engine walks it front to
// back and the first claiming handler wins.
func DefaultRegistry(cfg RegistryConfig) []Handler {
	if cfg.Fallback == nil {
		cfg.Fallback = catalog.NewStaticCatalog()
	}
	registry := []Handler{
		NewConsentHandler(),
		NewCampaignHandler(cfg.Catalog),
		NewPromoHandler(cfg.Catalog),
		NewOnboardingHandler(cfg.Catalog, cfg.Fallback),
		NewReferralHandler(),
		NewIntentHandler(cfg.Classifier, cfg.Generator),
		NewFAQHandler(),
	}
	slog.Debug("Flow registry built", "handlers", len(registry))
	return registry
}
