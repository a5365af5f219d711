package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/genai"
	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/store"
)

// testOfferings is the catalog fixture shared across flow tests.
func testOfferings() []catalog.Offering {
	return []catalog.Offering{
		{
			ID: "curso-basico", Name: "Curso Básico de Ventas Digitales", Level: "básico",
			PriceAmount: 1999, Currency: "MXN", DurationWeeks: 4, LessonCount: 12,
			Summary: "Fundamentos de venta en canales digitales.",
		},
		{
			ID: "curso-intermedio", Name: "Curso Intermedio de Ventas Digitales", Level: "intermedio",
			PriceAmount: 3499, Currency: "MXN", DurationWeeks: 6, LessonCount: 18,
			Summary: "Embudos de venta y automatización.",
		},
		{
			ID: "curso-avanzado", Name: "Curso Avanzado de Ventas Digitales", Level: "avanzado",
			PriceAmount: 4999, Currency: "MXN", DurationWeeks: 8, LessonCount: 24,
			Summary:      "Estrategia comercial completa para equipos.",
			ResourceRef:  "brochures/avanzado.pdf",
			CampaignTags: []string{"VeranoDigital"},
			PromoCodes:   []string{"PromoXYZ"},
		},
	}
}

// fakeCatalog is an in-memory catalog with a controllable authoritative flag.
type fakeCatalog struct {
	offerings     []catalog.Offering
	authoritative bool
	listErr       error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{offerings: testOfferings(), authoritative: true}
}

func (c *fakeCatalog) GetOffering(ctx context.Context, id string) (*catalog.Offering, error) {
	for i := range c.offerings {
		if c.offerings[i].ID == id {
			o := c.offerings[i]
			return &o, nil
		}
	}
	return nil, nil
}

func (c *fakeCatalog) ListOfferings(ctx context.Context) ([]catalog.Offering, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]catalog.Offering, len(c.offerings))
	copy(out, c.offerings)
	return out, nil
}

func (c *fakeCatalog) Search(ctx context.Context, query string) ([]catalog.Offering, error) {
	var out []catalog.Offering
	for _, o := range c.offerings {
		if strings.Contains(strings.ToLower(o.Name), strings.ToLower(query)) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Authoritative() bool { return c.authoritative }

// failingSaveStore delegates reads and fails every save.
type failingSaveStore struct {
	store.Store
}

func (s *failingSaveStore) SaveUserState(state models.UserState) error {
	return fmt.Errorf("%w: disk full", models.ErrStorage)
}

// scriptedClassifier returns a fixed classification or error.
type scriptedClassifier struct {
	classification genai.Classification
	err            error
	calls          int
}

func (c *scriptedClassifier) Classify(ctx context.Context, text, stateContext string) (genai.Classification, error) {
	c.calls++
	if c.err != nil {
		return genai.Classification{}, c.err
	}
	return c.classification, nil
}

// scriptedGenerator returns a fixed draft or error.
type scriptedGenerator struct {
	draft string
	err   error
	calls int
}

func (g *scriptedGenerator) Draft(ctx context.Context, text, stateContext, category string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.draft, nil
}

// recordingNotifier captures handoff records.
type recordingNotifier struct {
	mu      sync.Mutex
	records []models.HandoffRecord
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, record models.HandoffRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.records = append(n.records, record)
	return nil
}

// countingHandler records how many times Process ran, for claim-exclusivity tests.
type countingHandler struct {
	flow      models.FlowType
	claims    bool
	processed int
	reply     string
}

func (h *countingHandler) Type() models.FlowType { return h.flow }

func (h *countingHandler) CanClaim(ctx context.Context, msg models.InboundMessage, state *models.UserState) models.FlowClaim {
	if h.claims {
		return models.Claimed("scripted")
	}
	return models.Declined()
}

func (h *countingHandler) Process(ctx context.Context, msg models.InboundMessage, state *models.UserState) (*models.TurnOutcome, error) {
	h.processed++
	return &models.TurnOutcome{
		Payloads: []models.OutboundPayload{{Text: h.reply}},
	}, nil
}

// testEngine bundles an engine over in-memory fakes.
type testEngine struct {
	engine   *Engine
	store    store.Store
	catalog  *fakeCatalog
	notifier *recordingNotifier
}

func newTestEngine(classifier Classifier, generator Generator) *testEngine {
	st := store.NewInMemoryStore()
	cat := newFakeCatalog()
	notifier := &recordingNotifier{}
	registry := DefaultRegistry(RegistryConfig{
		Catalog:    cat,
		Classifier: classifier,
		Generator:  generator,
	})
	return &testEngine{
		engine:   NewEngine(st, cat, nil, notifier, registry),
		store:    st,
		catalog:  cat,
		notifier: notifier,
	}
}

func mustState(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, st store.Store, userID string) *models.UserState {
	t.Helper()
	state, err := st.GetUserState(userID)
	if err != nil {
		t.Fatalf("GetUserState failed: %v", err)
	}
	if state == nil {
		t.Fatalf("expected persisted state for %s", userID)
	}
	return state
}
