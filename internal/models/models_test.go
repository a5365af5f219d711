package models

import (
	"testing"
	"time"
)

func TestNewUserStateDefaults(t *testing.T) {
	s := NewUserState("5215550001111")
	if s.ConsentStatus != ConsentNotRequested {
		t.Errorf("expected consent %q, got %q", ConsentNotRequested, s.ConsentStatus)
	}
	if s.ActiveFlow != FlowNone {
		t.Errorf("expected no active flow, got %q", s.ActiveFlow)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("default state should validate: %v", err)
	}
}

func TestUserStateValidateInvariants(t *testing.T) {
	s := NewUserState("u1")
	s.ActiveFlow = FlowConsent
	s.FlowStep = 0
	if err := s.Validate(); err == nil {
		t.Error("active flow without awaiting input kind should be invalid")
	}
	s.AwaitingInputKind = InputKindConsentAnswer
	if err := s.Validate(); err != nil {
		t.Errorf("well-formed active flow should validate: %v", err)
	}
	s.FlowStep = -1
	if err := s.Validate(); err == nil {
		t.Error("negative flow step with active flow should be invalid")
	}
}

func TestAppendHistoryEvictsOldest(t *testing.T) {
	s := NewUserState("u1")
	base := time.Now()
	for i := 0; i < MaxHistoryEntries+5; i++ {
		s.AppendHistory("msg", base.Add(time.Duration(i)*time.Second))
	}
	if len(s.History) != MaxHistoryEntries {
		t.Fatalf("expected history capped at %d, got %d", MaxHistoryEntries, len(s.History))
	}
	// The oldest 5 entries must have been evicted.
	if !s.History[0].Timestamp.Equal(base.Add(5 * time.Second)) {
		t.Errorf("expected oldest surviving entry at +5s, got %v", s.History[0].Timestamp)
	}
}

func TestStateDeltaApply(t *testing.T) {
	s := NewUserState("u1")
	s.ProfileTags = []string{"pyme"}

	delta := StateDelta{
		DisplayName:    StringPtr("Ana"),
		ConsentStatus:  ConsentPtr(ConsentAccepted),
		AddProfileTags: []string{"pyme", "marketing"},
		PriorityBump:   PriorityBumpSelection,
	}
	delta.SetFlow(FlowOnboarding, 1, InputKindSelection)
	delta.Apply(s)

	if s.DisplayName != "Ana" {
		t.Errorf("display name not applied: %q", s.DisplayName)
	}
	if s.ConsentStatus != ConsentAccepted {
		t.Errorf("consent not applied: %q", s.ConsentStatus)
	}
	if s.ActiveFlow != FlowOnboarding || s.FlowStep != 1 || s.AwaitingInputKind != InputKindSelection {
		t.Errorf("flow position not applied: %q step %d awaiting %q", s.ActiveFlow, s.FlowStep, s.AwaitingInputKind)
	}
	if len(s.ProfileTags) != 2 {
		t.Errorf("expected tags de-duplicated to 2, got %v", s.ProfileTags)
	}
	if s.PriorityScore != PriorityBumpSelection {
		t.Errorf("expected priority %d, got %d", PriorityBumpSelection, s.PriorityScore)
	}
}

func TestStateDeltaClearFlow(t *testing.T) {
	s := NewUserState("u1")
	s.ActiveFlow = FlowConsent
	s.FlowStep = 2
	s.AwaitingInputKind = InputKindRole

	var delta StateDelta
	delta.ClearFlow()
	delta.Apply(s)

	if s.ActiveFlow != FlowNone || s.FlowStep != 0 || s.AwaitingInputKind != "" {
		t.Errorf("flow not cleared: %q step %d awaiting %q", s.ActiveFlow, s.FlowStep, s.AwaitingInputKind)
	}
}

func TestNilDeltaApplyIsNoop(t *testing.T) {
	s := NewUserState("u1")
	var d *StateDelta
	d.Apply(s) // must not panic
	if s.UserID != "u1" {
		t.Error("state mutated by nil delta")
	}
}
