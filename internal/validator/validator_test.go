package validator

import (
	"strings"
	"testing"

	"github.com/impulsalabs/ventaflow/internal/catalog"
)

func testOffering() *catalog.Offering {
	return &catalog.Offering{
		ID:            "curso-avanzado",
		Name:          "Curso Avanzado de Ventas Digitales",
		PriceAmount:   4999,
		Currency:      "MXN",
		DurationWeeks: 8,
		LessonCount:   24,
	}
}

func TestValidateApprovesMatchingPrice(t *testing.T) {
	v := New()
	verdict := v.Validate("El curso cuesta $4,999 MXN y vale cada peso.", testOffering(), true)
	if !verdict.Approved {
		t.Errorf("matching price should be approved, rejected claims: %v", verdict.RejectedClaims)
	}
}

func TestValidateRejectsContradictingPrice(t *testing.T) {
	v := New()
	verdict := v.Validate("El curso cuesta solo $2,999.", testOffering(), true)
	if verdict.Approved {
		t.Fatal("contradicting price must be rejected")
	}
	if len(verdict.RejectedClaims) != 1 {
		t.Errorf("expected one rejected claim, got %v", verdict.RejectedClaims)
	}
	if verdict.RewrittenText == "" {
		t.Error("rejection must carry a rewritten text")
	}
	if !strings.Contains(verdict.RewrittenText, "Curso Avanzado") {
		t.Errorf("rewrite should reference the offering: %q", verdict.RewrittenText)
	}
}

func TestValidateApprovesQualitativeLanguage(t *testing.T) {
	v := New()
	texts := []string{
		"Es una inversión excelente para tu negocio, los resultados hablan por sí solos.",
		"Nuestros alumnos logran resultados increíbles, ¡te va a encantar!",
	}
	for _, text := range texts {
		// Approved even with no offering data at all.
		if verdict := v.Validate(text, nil, false); !verdict.Approved {
			t.Errorf("qualitative text should always be approved: %q", text)
		}
	}
}

func TestValidateRejectsSpecificsWithoutBackingData(t *testing.T) {
	v := New()
	verdict := v.Validate("Son 24 lecciones en 8 semanas.", nil, true)
	if verdict.Approved {
		t.Fatal("specifics with no catalog entity must be rejected")
	}
	if verdict.RewrittenText != v.SafeFallback() {
		t.Errorf("with no offering the rewrite should be the safe fallback, got %q", verdict.RewrittenText)
	}
}

func TestValidateRejectsClaimsAgainstNonAuthoritativeSnapshot(t *testing.T) {
	v := New()
	verdict := v.Validate("Dura 8 semanas.", testOffering(), false)
	if verdict.Approved {
		t.Error("non-authoritative snapshots must not verify factual claims")
	}
}

func TestValidateDurationAndCountMatching(t *testing.T) {
	v := New()
	off := testOffering()

	if verdict := v.Validate("Dura 8 semanas con 24 lecciones.", off, true); !verdict.Approved {
		t.Errorf("matching duration and count should be approved: %v", verdict.RejectedClaims)
	}
	if verdict := v.Validate("Dura 2 meses.", off, true); !verdict.Approved {
		t.Errorf("2 months should normalize to 8 weeks and be approved: %v", verdict.RejectedClaims)
	}
	if verdict := v.Validate("Dura 12 semanas.", off, true); verdict.Approved {
		t.Error("wrong duration must be rejected")
	}
	if verdict := v.Validate("Incluye 30 módulos.", off, true); verdict.Approved {
		t.Error("wrong count must be rejected")
	}
}

func TestValidateMixedClaimsRejectsOnAnyContradiction(t *testing.T) {
	v := New()
	verdict := v.Validate("Cuesta $4,999 e incluye 99 lecciones.", testOffering(), true)
	if verdict.Approved {
		t.Fatal("one contradicted claim is enough to reject")
	}
	if len(verdict.RejectedClaims) != 1 {
		t.Errorf("only the contradicted claim should be listed: %v", verdict.RejectedClaims)
	}
}

func TestExtractClaimsCurrencyWords(t *testing.T) {
	claims := extractClaims("Vale 4999 pesos, unos 250 dólares.")
	if len(claims) != 2 {
		t.Fatalf("expected 2 currency claims, got %d: %+v", len(claims), claims)
	}
	for _, c := range claims {
		if c.kind != claimPrice {
			t.Errorf("expected price claim, got %s for %q", c.kind, c.text)
		}
	}
}
