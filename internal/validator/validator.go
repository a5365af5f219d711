// Package validator cross-checks generated reply text against catalog facts.
//
// The policy is deliberately asymmetric: persuasive and qualitative language is
// always approved; only specific, checkable numeric claims (a number attached
// to a currency, duration, or count unit) can cause rejection, and only when
// they contradict the catalog or no verified data exists for the entity.
package validator

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/models"
)

// DefaultSafeFallback is the pre-approved reply used when a rejected candidate
// cannot be rewritten around its offending claims.
const DefaultSafeFallback = "Déjame confirmar ese detalle con el equipo para darte la información exacta. " +
	"Mientras tanto, ¿hay algo más en lo que te pueda apoyar?"

// claimKind distinguishes the unit families we know how to verify.
type claimKind string

const (
	claimPrice    claimKind = "price"
	claimDuration claimKind = "duration"
	claimCount    claimKind = "count"
)

// claim is one extracted number-plus-unit assertion.
type claim struct {
	kind  claimKind
	value float64 // duration normalized to weeks
	text  string  // original matched text, for logging and verdicts
}

var (
	// "$4,999", "$ 4999.00"
	currencySymbolRe = regexp.MustCompile(`\$\s*([0-9][0-9.,]*)`)
	// "4999 MXN", "120 dólares", "99 pesos"
	currencyWordRe = regexp.MustCompile(`(?i)\b([0-9][0-9.,]*)\s*(mxn|usd|eur|pesos|d[oó]lares|euros)\b`)
	// "8 semanas" / "8 weeks"
	weeksRe = regexp.MustCompile(`(?i)\b([0-9]+)\s*(semanas?|weeks?)\b`)
	// "2 meses" / "2 months"
	monthsRe = regexp.MustCompile(`(?i)\b([0-9]+)\s*(mes(?:es)?|months?)\b`)
	// "24 lecciones", "10 módulos", "12 sesiones", "6 clases"
	countRe = regexp.MustCompile(`(?i)\b([0-9]+)\s*(lecciones?|lessons?|m[oó]dulos?|modules?|sesiones?|sessions?|clases?)\b`)
)

// Validator checks candidate replies against an offering snapshot.
type Validator struct {
	safeFallback string
}

// New creates a Validator with the default safe fallback text.
func New() *Validator {
	return &Validator{safeFallback: DefaultSafeFallback}
}

// NewWithFallback creates a Validator with custom safe fallback text.
func NewWithFallback(fallback string) *Validator {
	return &Validator{safeFallback: fallback}
}

// SafeFallback returns the pre-approved fallback reply.
func (v *Validator) SafeFallback() string {
	return v.safeFallback
}

// Validate checks candidate text against the offering snapshot for the turn.
// offering may be nil (no catalog data for the referenced entity) and
// authoritative reports whether the snapshot came from the real catalog store
// rather than the static fallback list.
func (v *Validator) Validate(candidate string, offering *catalog.Offering, authoritative bool) models.ValidationVerdict {
	claims := extractClaims(candidate)
	if len(claims) == 0 {
		// Qualitative language only: always approved.
		return models.ValidationVerdict{Approved: true}
	}

	var rejected []string
	for _, c := range claims {
		if !claimVerified(c, offering, authoritative) {
			rejected = append(rejected, c.text)
		}
	}
	if len(rejected) == 0 {
		return models.ValidationVerdict{Approved: true}
	}

	slog.Info("Validator rejected unverifiable claims",
		"rejected", strings.Join(rejected, "; "),
		"offering_known", offering != nil,
		"authoritative", authoritative)
	return models.ValidationVerdict{
		Approved:       false,
		RewrittenText:  v.rewrite(offering),
		RejectedClaims: rejected,
	}
}

// rewrite produces the hedging replacement for a rejected candidate.
func (v *Validator) rewrite(offering *catalog.Offering) string {
	if offering != nil {
		return fmt.Sprintf("Sobre %s: déjame confirmar ese dato específico para no darte información imprecisa. "+
			"¿Te gustaría que un asesor te comparta los detalles verificados?", offering.Name)
	}
	return v.safeFallback
}

// claimVerified reports whether a single claim is backed by the snapshot.
// Snapshots from the static fallback verify nothing, and a missing offering
// means the text states specifics with no backing data.
func claimVerified(c claim, offering *catalog.Offering, authoritative bool) bool {
	if offering == nil || !authoritative {
		return false
	}
	switch c.kind {
	case claimPrice:
		return offering.PriceAmount > 0 && floatEquals(c.value, offering.PriceAmount)
	case claimDuration:
		return offering.DurationWeeks > 0 && int(math.Round(c.value)) == offering.DurationWeeks
	case claimCount:
		return offering.LessonCount > 0 && int(math.Round(c.value)) == offering.LessonCount
	}
	return false
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

// extractClaims pulls every number-plus-unit assertion out of the text.
func extractClaims(text string) []claim {
	var claims []claim

	for _, m := range currencySymbolRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok {
			claims = append(claims, claim{kind: claimPrice, value: v, text: m[0]})
		}
	}
	for _, m := range currencyWordRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok {
			claims = append(claims, claim{kind: claimPrice, value: v, text: m[0]})
		}
	}
	for _, m := range weeksRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok {
			claims = append(claims, claim{kind: claimDuration, value: v, text: m[0]})
		}
	}
	for _, m := range monthsRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok {
			// Normalize months to weeks for comparison.
			claims = append(claims, claim{kind: claimDuration, value: v * 4, text: m[0]})
		}
	}
	for _, m := range countRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok {
			claims = append(claims, claim{kind: claimCount, value: v, text: m[0]})
		}
	}
	return claims
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimRight(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
