package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// fakeService is an in-memory Service recording outbound sends.
type fakeService struct {
	inbound chan models.InboundMessage
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	To   string
	Body string
}

func newFakeService() *fakeService {
	return &fakeService{inbound: make(chan models.InboundMessage, 10)}
}

func (s *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (s *fakeService) SendMessage(ctx context.Context, to, body string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *fakeService) Start(ctx context.Context) error            { return nil }
func (s *fakeService) Stop() error                                { close(s.inbound); return nil }
func (s *fakeService) Inbound() <-chan models.InboundMessage      { return s.inbound }

// scriptedEngine returns fixed payloads or a fixed error.
type scriptedEngine struct {
	payloads []models.OutboundPayload
	err      error
	handled  []models.InboundMessage
}

func (e *scriptedEngine) HandleInbound(ctx context.Context, msg models.InboundMessage) ([]models.OutboundPayload, error) {
	e.handled = append(e.handled, msg)
	if e.err != nil {
		return nil, e.err
	}
	return e.payloads, nil
}

func runDispatcher(t *testing.T, service *fakeService, engine *scriptedEngine) {
	t.Helper()
	d := NewDispatcher(service, engine)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	service.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after channel close")
	}
}

func TestDispatcherDeliversReplies(t *testing.T) {
	service := newFakeService()
	engine := &scriptedEngine{payloads: []models.OutboundPayload{
		{Text: "hola"},
		{Text: "detalles", ResourceRef: "brochures/avanzado.pdf"},
	}}
	service.inbound <- models.InboundMessage{UserID: "5215512345678", Text: "#PromoXYZ"}

	runDispatcher(t, service, engine)

	if len(engine.handled) != 1 {
		t.Fatalf("expected 1 handled message, got %d", len(engine.handled))
	}
	if len(service.sent) != 3 {
		t.Fatalf("expected 3 sends (2 texts + 1 resource ref), got %d", len(service.sent))
	}
	if service.sent[0].Body != "hola" || service.sent[1].Body != "detalles" {
		t.Errorf("unexpected send order: %v", service.sent)
	}
	if service.sent[2].Body != "📎 brochures/avanzado.pdf" {
		t.Errorf("expected resource ref follow-up, got %q", service.sent[2].Body)
	}
	for _, s := range service.sent {
		if s.To != "5215512345678" {
			t.Errorf("reply sent to wrong recipient: %q", s.To)
		}
	}
}

// A storage failure leaves the conversation silent: the turn did not advance
// and no payload exists to deliver.
func TestDispatcherStorageFailureSendsNothing(t *testing.T) {
	service := newFakeService()
	engine := &scriptedEngine{err: fmt.Errorf("save state: %w", models.ErrStorage)}
	service.inbound <- models.InboundMessage{UserID: "5215512345678", Text: "hola"}

	runDispatcher(t, service, engine)

	if len(service.sent) != 0 {
		t.Errorf("expected no sends on storage failure, got %v", service.sent)
	}
}

func TestDispatcherContinuesAfterSendFailure(t *testing.T) {
	service := newFakeService()
	engine := &scriptedEngine{payloads: []models.OutboundPayload{{Text: "hola"}}}
	service.sendErr = fmt.Errorf("network down")
	service.inbound <- models.InboundMessage{UserID: "111111", Text: "uno"}
	service.inbound <- models.InboundMessage{UserID: "222222", Text: "dos"}

	runDispatcher(t, service, engine)

	if len(engine.handled) != 2 {
		t.Errorf("send failure must not stop the dispatcher, handled %d", len(engine.handled))
	}
}
