// Package models defines the core data structures for VentaFlow.
//
// It includes the per-user conversation state, the flow routing types, and the
// payloads exchanged between the orchestration engine and its collaborators.
package models

import (
	"errors"
	"strings"
	"time"
)

// ConsentStatus tracks where a user is in the consent handshake.
type ConsentStatus string

const (
	// ConsentNotRequested means the user has never been asked for consent.
	ConsentNotRequested ConsentStatus = "not_requested"
	// ConsentRequested means consent was asked and an answer is pending.
	ConsentRequested ConsentStatus = "requested"
	// ConsentAccepted means the user agreed to converse.
	ConsentAccepted ConsentStatus = "accepted"
	// ConsentDeclined means the user declined; they may retry later.
	ConsentDeclined ConsentStatus = "declined"
)

// FlowType names the handler that owns a user's next turn.
type FlowType string

const (
	// FlowNone indicates no flow currently owns the conversation.
	FlowNone FlowType = ""
	// FlowConsent is the consent collection flow.
	FlowConsent FlowType = "consent"
	// FlowCampaign handles recognized campaign marker tokens.
	FlowCampaign FlowType = "campaign"
	// FlowPromo handles recognized promotional code tokens.
	FlowPromo FlowType = "promo"
	// FlowOnboarding presents offerings and records the user's selection.
	FlowOnboarding FlowType = "onboarding"
	// FlowReferral hands the user off to a human advisor.
	FlowReferral FlowType = "referral"
	// FlowIntent is the classifier-backed generic conversation flow.
	FlowIntent FlowType = "intent"
	// FlowFAQ is the canned-answer fallback flow.
	FlowFAQ FlowType = "faq"
)

// Input kinds describe what a flow expects the user's next reply to be.
const (
	InputKindConsentAnswer = "consent_answer"
	InputKindName          = "name"
	InputKindRole          = "role"
	InputKindSelection     = "selection"
)

// MaxHistoryEntries caps the per-user history snapshot; oldest entries are evicted.
const MaxHistoryEntries = 20

// Priority score bumps applied by the engine. Monotonic, advisory only.
const (
	PriorityBumpTurn      = 1
	PriorityBumpSelection = 5
	PriorityBumpReferral  = 10
)

// Error variables for failure modes the engine and its callers distinguish.
var (
	// ErrStorage indicates the user state store was unreachable or a write failed.
	// Turns that surface this error did not advance and should be retried.
	ErrStorage = errors.New("user state storage failure")
	// ErrCollaboratorTimeout indicates an external service exceeded its time bound.
	ErrCollaboratorTimeout = errors.New("collaborator call timed out")
	// ErrCollaboratorUnavailable indicates an external service failed outright.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrEmptyUserID indicates an inbound message without a usable sender identity.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)

// HistoryEntry is one recent turn kept in the bounded history snapshot.
type HistoryEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// UserState is one end-user's conversation continuity across turns.
// The orchestration engine is its sole writer; handlers describe changes
// through a StateDelta and never mutate the stored record directly.
type UserState struct {
	UserID             string         `json:"user_id"`
	DisplayName        string         `json:"display_name,omitempty"`
	Role               string         `json:"role,omitempty"`
	ConsentStatus      ConsentStatus  `json:"consent_status"`
	ActiveFlow         FlowType       `json:"active_flow,omitempty"`
	FlowStep           int            `json:"flow_step"`
	AwaitingInputKind  string         `json:"awaiting_input_kind,omitempty"`
	SelectedOfferingID string         `json:"selected_offering_id,omitempty"`
	InteractionCount   int            `json:"interaction_count"`
	PriorityScore      int            `json:"priority_score"`
	ProfileTags        []string       `json:"profile_tags,omitempty"`
	History            []HistoryEntry `json:"history,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewUserState creates the default record for a first-contact user.
func NewUserState(userID string) *UserState {
	now := time.Now()
	return &UserState{
		UserID:        userID,
		ConsentStatus: ConsentNotRequested,
		ActiveFlow:    FlowNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AppendHistory adds a turn to the bounded history snapshot, evicting the
// oldest entry once the cap is reached.
func (s *UserState) AppendHistory(text string, ts time.Time) {
	s.History = append(s.History, HistoryEntry{Text: text, Timestamp: ts})
	if len(s.History) > MaxHistoryEntries {
		s.History = s.History[len(s.History)-MaxHistoryEntries:]
	}
}

// HasProfileTag reports whether the tag is already present.
func (s *UserState) HasProfileTag(tag string) bool {
	for _, t := range s.ProfileTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a user state record.
func (s *UserState) Validate() error {
	if s.UserID == "" {
		return ErrEmptyUserID
	}
	if s.ActiveFlow != FlowNone {
		if s.FlowStep < 0 {
			return errors.New("active flow requires a non-negative flow step")
		}
		if s.AwaitingInputKind == "" {
			return errors.New("active flow requires an awaiting input kind")
		}
	}
	return nil
}

// InboundMessage is one pre-parsed message from the gateway.
type InboundMessage struct {
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
	ProfileName string `json:"profile_name,omitempty"` // channel-provided display name, may be empty
	Time        int64  `json:"time"`
}

// OutboundPayload is one message to be delivered back to the user.
// ResourceRef, when set, asks the caller to attach a supplementary resource
// (brochure, image); delivery of the attachment is the caller's concern.
type OutboundPayload struct {
	Text        string `json:"text"`
	ResourceRef string `json:"resource_ref,omitempty"`
}

// FlowClaim is the transient result of a handler's claim check.
type FlowClaim struct {
	Claims bool   `json:"claims"`
	Reason string `json:"reason,omitempty"`
}

// Claimed builds a positive claim with a short reason code.
func Claimed(reason string) FlowClaim {
	return FlowClaim{Claims: true, Reason: reason}
}

// Declined builds a negative claim.
func Declined() FlowClaim {
	return FlowClaim{}
}

// StateDelta describes the state changes a handler requests for the turn.
// Nil pointer fields are left untouched; the engine applies the delta
// atomically together with its own bookkeeping before any payload is
// reported to the caller.
type StateDelta struct {
	DisplayName        *string        `json:"display_name,omitempty"`
	Role               *string        `json:"role,omitempty"`
	ConsentStatus      *ConsentStatus `json:"consent_status,omitempty"`
	ActiveFlow         *FlowType      `json:"active_flow,omitempty"`
	FlowStep           *int           `json:"flow_step,omitempty"`
	AwaitingInputKind  *string        `json:"awaiting_input_kind,omitempty"`
	SelectedOfferingID *string        `json:"selected_offering_id,omitempty"`
	AddProfileTags     []string       `json:"add_profile_tags,omitempty"`
	PriorityBump       int            `json:"priority_bump,omitempty"`
}

// Apply merges the delta into the state. Tag additions are de-duplicated.
func (d *StateDelta) Apply(s *UserState) {
	if d == nil {
		return
	}
	if d.DisplayName != nil {
		s.DisplayName = *d.DisplayName
	}
	if d.Role != nil {
		s.Role = *d.Role
	}
	if d.ConsentStatus != nil {
		s.ConsentStatus = *d.ConsentStatus
	}
	if d.ActiveFlow != nil {
		s.ActiveFlow = *d.ActiveFlow
	}
	if d.FlowStep != nil {
		s.FlowStep = *d.FlowStep
	}
	if d.AwaitingInputKind != nil {
		s.AwaitingInputKind = *d.AwaitingInputKind
	}
	if d.SelectedOfferingID != nil {
		s.SelectedOfferingID = *d.SelectedOfferingID
	}
	for _, tag := range d.AddProfileTags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !s.HasProfileTag(tag) {
			s.ProfileTags = append(s.ProfileTags, tag)
		}
	}
	s.PriorityScore += d.PriorityBump
}

// SetFlow is a convenience that points the delta at a flow position.
func (d *StateDelta) SetFlow(flow FlowType, step int, awaiting string) {
	d.ActiveFlow = &flow
	d.FlowStep = &step
	d.AwaitingInputKind = &awaiting
}

// ClearFlow releases ownership of the conversation.
func (d *StateDelta) ClearFlow() {
	d.SetFlow(FlowNone, 0, "")
}

// StringPtr returns a pointer to s, for building delta fields.
func StringPtr(s string) *string { return &s }

// ConsentPtr returns a pointer to c, for building delta fields.
func ConsentPtr(c ConsentStatus) *ConsentStatus { return &c }

// ValidationVerdict is the transient output of the response validator.
type ValidationVerdict struct {
	Approved       bool     `json:"approved"`
	RewrittenText  string   `json:"rewritten_text,omitempty"`
	RejectedClaims []string `json:"rejected_claims,omitempty"`
}

// HandoffUrgency tags how pressing a human-assistance request appears.
type HandoffUrgency string

const (
	// UrgencyNormal is the default handoff urgency.
	UrgencyNormal HandoffUrgency = "normal"
	// UrgencyHigh marks requests whose wording asks for immediate attention.
	UrgencyHigh HandoffUrgency = "high"
)

// HandoffRecord is the structured notification emitted when a user asks to
// reach a human advisor.
type HandoffRecord struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name,omitempty"`
	Role        string         `json:"role,omitempty"`
	OfferingID  string         `json:"offering_id,omitempty"`
	Urgency     HandoffUrgency `json:"urgency"`
	Message     string         `json:"message"`
	RequestedAt time.Time      `json:"requested_at"`
}

// TurnOutcome is what a handler produces for one processed message.
type TurnOutcome struct {
	// Payloads are the outbound messages for the user, in send order.
	Payloads []OutboundPayload
	// Delta is applied to the user state by the engine before persisting.
	Delta StateDelta
	// AssertsFactualClaims routes Payloads through the response validator.
	AssertsFactualClaims bool
	// OfferingID names the catalog entity the factual claims refer to.
	OfferingID string
	// Handoff, when set, is forwarded to the advisor notifier.
	Handoff *HandoffRecord
}
