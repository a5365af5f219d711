package flow

import (
	"context"
	"testing"

	"github.com/impulsalabs/ventaflow/internal/models"
)

func TestReferralHandlerDetection(t *testing.T) {
	h := NewReferralHandler()

	cases := []struct {
		text string
		want bool
	}{
		{"quiero hablar con un asesor", true},
		{"¿me puede atender una persona real?", true},
		{"que me llamen por favor", true},
		{"necesito un humano", true},
		{"cuánto cuesta el curso", false},
		{"hola buenas", false},
	}
	for _, tc := range cases {
		claim := h.CanClaim(context.Background(), models.InboundMessage{Text: tc.text}, acceptedState())
		if claim.Claims != tc.want {
			t.Errorf("CanClaim(%q) = %v, want %v", tc.text, claim.Claims, tc.want)
		}
	}
}

func TestReferralHandlerOutcome(t *testing.T) {
	h := NewReferralHandler()
	state := acceptedState()
	state.DisplayName = "Ana"
	state.Role = "Directora de Marketing"
	state.SelectedOfferingID = "curso-avanzado"

	outcome, err := h.Process(context.Background(), models.InboundMessage{UserID: testUserID, Text: "quiero hablar con un asesor"}, state)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.Handoff == nil {
		t.Fatal("expected handoff record")
	}
	if outcome.Handoff.Urgency != models.UrgencyNormal {
		t.Errorf("expected normal urgency, got %s", outcome.Handoff.Urgency)
	}
	if outcome.Handoff.DisplayName != "Ana" || outcome.Handoff.OfferingID != "curso-avanzado" {
		t.Errorf("handoff missing profile context: %+v", outcome.Handoff)
	}
	if outcome.Delta.PriorityBump != models.PriorityBumpReferral {
		t.Errorf("expected referral priority bump, got %d", outcome.Delta.PriorityBump)
	}
}

func TestReferralHandlerUrgencyFromWording(t *testing.T) {
	h := NewReferralHandler()
	outcome, err := h.Process(context.Background(), models.InboundMessage{UserID: testUserID, Text: "me urge hablar con un asesor hoy mismo"}, acceptedState())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.Handoff.Urgency != models.UrgencyHigh {
		t.Errorf("expected high urgency, got %s", outcome.Handoff.Urgency)
	}
}
