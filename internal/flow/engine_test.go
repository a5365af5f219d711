package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/store"
	"github.com/impulsalabs/ventaflow/internal/validator"
)

const testUserID = "+5215512345678"

func send(t *testing.T, te *testEngine, text string) []models.OutboundPayload {
	t.Helper()
	payloads, err := te.engine.HandleInbound(context.Background(), models.InboundMessage{
		UserID: testUserID,
		Text:   text,
	})
	if err != nil {
		t.Fatalf("HandleInbound(%q) failed: %v", text, err)
	}
	if len(payloads) == 0 {
		t.Fatalf("HandleInbound(%q) returned no payloads", text)
	}
	return payloads
}

// The canonical six-step journey: greeting, consent, name, an invalid role
// reply, a valid role, then a promo code redemption.
func TestEngineConsentThenPromoJourney(t *testing.T) {
	te := newTestEngine(nil, nil)

	// Turn 1: first contact triggers the consent request.
	payloads := send(t, te, "Hola")
	if !strings.Contains(payloads[0].Text, "Acepto") {
		t.Errorf("expected consent request, got %q", payloads[0].Text)
	}
	state := mustState(t, te.store, testUserID)
	if state.ConsentStatus != models.ConsentRequested {
		t.Errorf("expected consent requested, got %s", state.ConsentStatus)
	}
	if state.ActiveFlow != models.FlowConsent || state.AwaitingInputKind != models.InputKindConsentAnswer {
		t.Errorf("expected consent flow awaiting answer, got flow=%s awaiting=%s", state.ActiveFlow, state.AwaitingInputKind)
	}

	// Turn 2: acceptance moves to the name question.
	payloads = send(t, te, "Acepto")
	if !strings.Contains(payloads[0].Text, "llamas") {
		t.Errorf("expected name question, got %q", payloads[0].Text)
	}

	// Turn 3: name captured, role question next.
	payloads = send(t, te, "Ana")
	if !strings.Contains(payloads[0].Text, "Ana") {
		t.Errorf("expected role question addressing Ana, got %q", payloads[0].Text)
	}
	state = mustState(t, te.store, testUserID)
	if state.DisplayName != "Ana" {
		t.Errorf("expected display name Ana, got %q", state.DisplayName)
	}

	// Turn 4: "si" is not a role; the flow re-prompts without advancing.
	payloads = send(t, te, "si")
	if !strings.Contains(payloads[0].Text, "ocupación") {
		t.Errorf("expected role re-prompt, got %q", payloads[0].Text)
	}
	state = mustState(t, te.store, testUserID)
	if state.Role != "" {
		t.Errorf("expected no role stored after invalid reply, got %q", state.Role)
	}
	if state.AwaitingInputKind != models.InputKindRole {
		t.Errorf("expected flow still awaiting role, got %q", state.AwaitingInputKind)
	}

	// Turn 5: valid role completes consent.
	send(t, te, "Directora de Marketing")
	state = mustState(t, te.store, testUserID)
	if state.ConsentStatus != models.ConsentAccepted {
		t.Errorf("expected consent accepted, got %s", state.ConsentStatus)
	}
	if state.Role != "Directora de Marketing" {
		t.Errorf("expected canonical role, got %q", state.Role)
	}
	if state.ActiveFlow != models.FlowNone {
		t.Errorf("expected no active flow after completion, got %s", state.ActiveFlow)
	}

	// Turn 6: promo code resolves the offering and survives validation
	// because the claims match the catalog.
	payloads = send(t, te, "#PromoXYZ")
	text := payloads[0].Text
	for _, want := range []string{"Curso Avanzado", "4999", "8 semanas", "24 lecciones"} {
		if !strings.Contains(text, want) {
			t.Errorf("promo reply missing %q: %q", want, text)
		}
	}
	if payloads[0].ResourceRef != "brochures/avanzado.pdf" {
		t.Errorf("expected brochure resource ref, got %q", payloads[0].ResourceRef)
	}
	state = mustState(t, te.store, testUserID)
	if state.SelectedOfferingID != "curso-avanzado" {
		t.Errorf("expected selected offering curso-avanzado, got %q", state.SelectedOfferingID)
	}
	if !state.HasProfileTag("promo:promoxyz") {
		t.Errorf("expected promo profile tag, got %v", state.ProfileTags)
	}
	if state.InteractionCount != 6 {
		t.Errorf("expected 6 interactions, got %d", state.InteractionCount)
	}
	// 6 turn bumps plus the selection bump.
	if state.PriorityScore != 6*models.PriorityBumpTurn+models.PriorityBumpSelection {
		t.Errorf("unexpected priority score %d", state.PriorityScore)
	}
	if len(state.History) != 6 {
		t.Errorf("expected 6 history entries, got %d", len(state.History))
	}
}

// Consent outranks campaign markers: a pending consent answer is consumed by
// the consent flow even when the text carries a recognizable marker.
func TestEnginePriorityConsentBeforeCampaign(t *testing.T) {
	te := newTestEngine(nil, nil)

	send(t, te, "Hola")
	payloads := send(t, te, "#VeranoDigital")

	// The marker is not a consent answer, so the consent flow re-prompts.
	if !strings.Contains(payloads[0].Text, "Acepto") {
		t.Errorf("expected consent re-prompt, got %q", payloads[0].Text)
	}
	state := mustState(t, te.store, testUserID)
	if state.ConsentStatus != models.ConsentRequested {
		t.Errorf("expected consent still requested, got %s", state.ConsentStatus)
	}
	if state.SelectedOfferingID != "" {
		t.Errorf("marker must not resolve during consent, got %q", state.SelectedOfferingID)
	}
}

func TestEngineExactlyOneHandlerProcesses(t *testing.T) {
	first := &countingHandler{flow: models.FlowCampaign, claims: true, reply: "primero"}
	second := &countingHandler{flow: models.FlowPromo, claims: true, reply: "segundo"}
	third := &countingHandler{flow: models.FlowFAQ, claims: false, reply: "tercero"}

	engine := NewEngine(store.NewInMemoryStore(), newFakeCatalog(), nil, nil, []Handler{first, second, third})
	payloads, err := engine.HandleInbound(context.Background(), models.InboundMessage{UserID: testUserID, Text: "hola"})
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}

	if first.processed != 1 || second.processed != 0 || third.processed != 0 {
		t.Errorf("expected only first handler to process, got %d/%d/%d", first.processed, second.processed, third.processed)
	}
	if payloads[0].Text != "primero" {
		t.Errorf("expected first handler reply, got %q", payloads[0].Text)
	}
}

// Durability precedes delivery: a failed save yields an error and no payloads.
func TestEngineSaveFailureReturnsNoPayloads(t *testing.T) {
	te := newTestEngine(nil, nil)
	failing := &failingSaveStore{Store: te.store}
	engine := NewEngine(failing, te.catalog, nil, nil, DefaultRegistry(RegistryConfig{Catalog: te.catalog}))

	payloads, err := engine.HandleInbound(context.Background(), models.InboundMessage{UserID: testUserID, Text: "Hola"})
	if !errors.Is(err, models.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if payloads != nil {
		t.Errorf("expected no payloads on save failure, got %v", payloads)
	}
	if state, _ := te.store.GetUserState(testUserID); state != nil {
		t.Errorf("expected no persisted state, got %+v", state)
	}
}

func TestEngineEmptyUserIDRejected(t *testing.T) {
	te := newTestEngine(nil, nil)
	_, err := te.engine.HandleInbound(context.Background(), models.InboundMessage{Text: "Hola"})
	if !errors.Is(err, models.ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
}

// A handler error never reaches the user: the engine substitutes the safe
// fallback text and the turn still advances.
func TestEngineHandlerErrorSubstitutesSafeReply(t *testing.T) {
	failing := &erroringHandler{}
	engine := NewEngine(store.NewInMemoryStore(), newFakeCatalog(), nil, nil, []Handler{failing})

	payloads, err := engine.HandleInbound(context.Background(), models.InboundMessage{UserID: testUserID, Text: "hola"})
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if payloads[0].Text != validator.DefaultSafeFallback {
		t.Errorf("expected safe fallback, got %q", payloads[0].Text)
	}
}

type erroringHandler struct{}

func (h *erroringHandler) Type() models.FlowType { return models.FlowIntent }

func (h *erroringHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	return models.Claimed("always")
}

func (h *erroringHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	return nil, errors.New("boom")
}

// Factual replies are checked against the catalog; a handler asserting a
// wrong price has its reply replaced.
func TestEngineValidatesFactualReplies(t *testing.T) {
	lying := &countingHandler{flow: models.FlowPromo, claims: true, reply: "El curso cuesta $9999 MXN."}
	lyingOutcome := &factualHandler{inner: lying, offeringID: "curso-avanzado"}
	cat := newFakeCatalog()
	engine := NewEngine(store.NewInMemoryStore(), cat, nil, nil, []Handler{lyingOutcome})

	payloads, err := engine.HandleInbound(context.Background(), models.InboundMessage{UserID: testUserID, Text: "precio?"})
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if strings.Contains(payloads[0].Text, "9999") {
		t.Errorf("contradicted price must not be delivered: %q", payloads[0].Text)
	}
}

// factualHandler marks its inner handler's reply as a factual claim.
type factualHandler struct {
	inner      *countingHandler
	offeringID string
}

func (h *factualHandler) Type() models.FlowType { return h.inner.Type() }

func (h *factualHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	return h.inner.CanClaim(ctx, msg, state)
}

func (h *factualHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	outcome, err := h.inner.Process(ctx, msg, state)
	if outcome != nil {
		outcome.AssertsFactualClaims = true
		outcome.OfferingID = h.offeringID
	}
	return outcome, err
}

// Referral requests reach the advisor notifier after the state is saved.
func TestEngineReferralNotifiesAdvisor(t *testing.T) {
	te := newTestEngine(nil, nil)
	completeConsent(t, te)

	payloads := send(t, te, "Quiero hablar con un asesor, es urgente")
	if !strings.Contains(payloads[0].Text, "urgente") {
		t.Errorf("expected urgent acknowledgement, got %q", payloads[0].Text)
	}

	if len(te.notifier.records) != 1 {
		t.Fatalf("expected 1 handoff record, got %d", len(te.notifier.records))
	}
	record := te.notifier.records[0]
	if record.UserID != testUserID {
		t.Errorf("expected handoff for %s, got %s", testUserID, record.UserID)
	}
	if record.Urgency != models.UrgencyHigh {
		t.Errorf("expected high urgency, got %s", record.Urgency)
	}

	state := mustState(t, te.store, testUserID)
	if !state.HasProfileTag("referral_requested") {
		t.Errorf("expected referral tag, got %v", state.ProfileTags)
	}
}

// completeConsent walks a user through the consent flow.
func completeConsent(t *testing.T, te *testEngine) {
	t.Helper()
	send(t, te, "Hola")
	send(t, te, "Acepto")
	send(t, te, "Ana")
	send(t, te, "Directora de Marketing")
}

// A notifier failure is swallowed: the user still gets the acknowledgement.
func TestEngineNotifierFailureNotUserVisible(t *testing.T) {
	te := newTestEngine(nil, nil)
	te.notifier.err = errors.New("advisor channel down")
	completeConsent(t, te)

	payloads := send(t, te, "quiero hablar con un asesor")
	if len(payloads) == 0 || payloads[0].Text == "" {
		t.Fatalf("expected acknowledgement despite notifier failure")
	}
}

// Redeeming a promo code mid-onboarding releases the flow cursor: the next
// message must not be consumed by the onboarding selection parser.
func TestEnginePromoDuringOnboardingReleasesFlow(t *testing.T) {
	te := newTestEngine(nil, nil)
	completeConsent(t, te)

	send(t, te, "quiero ver los cursos")
	state := mustState(t, te.store, testUserID)
	if state.ActiveFlow != models.FlowOnboarding {
		t.Fatalf("expected onboarding in progress, got %q", state.ActiveFlow)
	}

	send(t, te, "#PromoXYZ")
	state = mustState(t, te.store, testUserID)
	if state.ActiveFlow != models.FlowNone || state.AwaitingInputKind != "" {
		t.Fatalf("expected flow released after redemption: flow=%q awaiting=%q", state.ActiveFlow, state.AwaitingInputKind)
	}
	if state.SelectedOfferingID != "curso-avanzado" {
		t.Fatalf("expected selected offering persisted, got %q", state.SelectedOfferingID)
	}

	payloads := send(t, te, "gracias")
	if strings.Contains(payloads[0].Text, "No logré identificar") {
		t.Errorf("follow-up consumed by onboarding re-prompt: %q", payloads[0].Text)
	}
}

// A campaign marker persists the selected offering like a promo redemption.
func TestEngineCampaignMarkerSelectsOffering(t *testing.T) {
	te := newTestEngine(nil, nil)
	completeConsent(t, te)

	send(t, te, "#VeranoDigital")
	state := mustState(t, te.store, testUserID)
	if state.SelectedOfferingID != "curso-avanzado" {
		t.Errorf("expected campaign marker to select offering, got %q", state.SelectedOfferingID)
	}
	if state.ActiveFlow != models.FlowNone {
		t.Errorf("expected no active flow after campaign resolution, got %q", state.ActiveFlow)
	}
}

// Rapid double-sends for one user must not lose state updates.
func TestEngineConcurrentTurnsSameUser(t *testing.T) {
	te := newTestEngine(nil, nil)

	const turns = 20
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := te.engine.HandleInbound(context.Background(), models.InboundMessage{
				UserID: testUserID,
				Text:   "Hola",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("HandleInbound failed: %v", err)
		}
	}

	state := mustState(t, te.store, testUserID)
	if state.InteractionCount != turns {
		t.Errorf("expected %d interactions recorded, got %d", turns, state.InteractionCount)
	}
}

// A declined user is re-asked for consent on their next message.
func TestEngineDeclineThenReturn(t *testing.T) {
	te := newTestEngine(nil, nil)

	send(t, te, "Hola")
	send(t, te, "No")
	state := mustState(t, te.store, testUserID)
	if state.ConsentStatus != models.ConsentDeclined {
		t.Fatalf("expected declined, got %s", state.ConsentStatus)
	}

	payloads := send(t, te, "Hola de nuevo")
	if !strings.Contains(payloads[0].Text, "Acepto") {
		t.Errorf("expected fresh consent request, got %q", payloads[0].Text)
	}
	state = mustState(t, te.store, testUserID)
	if state.ConsentStatus != models.ConsentRequested {
		t.Errorf("expected requested again, got %s", state.ConsentStatus)
	}
}
