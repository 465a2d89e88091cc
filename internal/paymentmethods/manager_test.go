package paymentmethods

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/gateway"
	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type stubBackend struct {
	created  []types.CreatePaymentMethodRequest
	deleted  []string
	saved    []types.SavedPaymentMethod
	createFn func(req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error)
}

func (s *stubBackend) CreatePaymentMethod(ctx context.Context, req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error) {
	s.created = append(s.created, req)
	if s.createFn != nil {
		return s.createFn(req)
	}
	return &types.SavedPaymentMethod{ID: req.Token, Last4: req.Last4, Email: req.Email, Brand: req.Brand}, nil
}

func (s *stubBackend) ListPaymentMethods(ctx context.Context) ([]types.SavedPaymentMethod, error) {
	return s.saved, nil
}

func (s *stubBackend) DeletePaymentMethod(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubBackend) calls() int {
	return len(s.created) + len(s.deleted)
}

type addressGate struct {
	selected bool
}

func (a addressGate) Require() (address.Snapshot, error) {
	if !a.selected {
		return address.Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "please select an address")
	}
	return address.Snapshot{ID: 7, Selected: true}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
}

func newManager(t *testing.T, backend *stubBackend, gw gateway.Gateway, selected bool) *Manager {
	t.Helper()
	m, err := NewManager(ManagerParams{
		Backend:   backend,
		Gateway:   gw,
		Addresses: addressGate{selected: selected},
		Now:       fixedNow,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func card() checkout.CardInput {
	return checkout.CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123", Name: "Asha Rao"}
}

func TestCreateWithoutAddressMakesNoCalls(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{}
	gw := gateway.NewFake()
	m := newManager(t, backend, gw, false)

	_, err := m.CreateFromGateway(context.Background(), card(), "asha@example.com", true)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = m.SelectSaved(context.Background(), types.SavedPaymentMethod{ID: "pm_saved"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.Calls() != 0 || backend.calls() != 0 {
		t.Fatalf("expected zero network calls, got gateway=%d backend=%d", gw.Calls(), backend.calls())
	}
	if m.State().Phase != enums.PaymentMethodPhaseIdle {
		t.Fatalf("expected idle, got %s", m.State().Phase)
	}
}

func TestCreateFromGatewayReady(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{}
	m := newManager(t, backend, gateway.NewFake(), true)

	method, err := m.CreateFromGateway(context.Background(), card(), "asha@example.com", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if method.Last4 != "4242" || method.Email != "asha@example.com" || method.Source != enums.PaymentMethodSourceGateway {
		t.Fatalf("unexpected method %+v", method)
	}
	if len(backend.created) != 1 || !backend.created[0].Save || backend.created[0].Email != "asha@example.com" {
		t.Fatalf("unexpected backend request %+v", backend.created)
	}
	if m.State().Phase != enums.PaymentMethodPhaseReady {
		t.Fatalf("expected ready, got %s", m.State().Phase)
	}
}

func TestSecondResolutionWhileReadyConflicts(t *testing.T) {
	t.Parallel()

	m := newManager(t, &stubBackend{}, gateway.NewFake(), true)
	if _, err := m.SelectSaved(context.Background(), types.SavedPaymentMethod{ID: "pm_saved", Last4: "4444"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	_, err := m.CreateFromGateway(context.Background(), card(), "asha@example.com", false)
	if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	method, ok := m.Peek()
	if !ok || method.ID != "pm_saved" {
		t.Fatalf("ready method must survive the rejected attempt, got %+v", method)
	}
}

func TestGatewayRejectionSurfacesMessage(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{}
	m := newManager(t, backend, gateway.NewFake(), true)

	input := card()
	input.Number = gateway.DeclinedCardNumber
	_, err := m.CreateFromGateway(context.Background(), input, "asha@example.com", false)
	if !pkgerrors.Is(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "Your card was declined." {
		t.Fatalf("expected verbatim gateway message, got %q", msg)
	}
	state := m.State()
	if state.Phase != enums.PaymentMethodPhaseFailed || state.Err == nil {
		t.Fatalf("expected failed state, got %+v", state)
	}
	if len(backend.created) != 0 {
		t.Fatal("rejected token must not be registered")
	}

	if _, err := m.CreateFromGateway(context.Background(), card(), "asha@example.com", false); err != nil {
		t.Fatalf("failed state must be retryable: %v", err)
	}
}

func TestInvalidCardFailsBeforeGateway(t *testing.T) {
	t.Parallel()

	gw := gateway.NewFake()
	m := newManager(t, &stubBackend{}, gw, true)

	input := card()
	input.ExpYear = 2020
	_, err := m.CreateFromGateway(context.Background(), input, "asha@example.com", false)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.Calls() != 0 {
		t.Fatal("invalid card must not reach the gateway")
	}
}

func TestConsumeReturnsToIdle(t *testing.T) {
	t.Parallel()

	m := newManager(t, &stubBackend{}, gateway.NewFake(), true)
	if _, err := m.Consume(); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error with nothing ready, got %v", err)
	}
	if _, err := m.SelectSaved(context.Background(), types.SavedPaymentMethod{ID: "pm_saved"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	method, err := m.Consume()
	if err != nil || method.ID != "pm_saved" {
		t.Fatalf("consume: %+v %v", method, err)
	}
	if _, ok := m.Peek(); ok {
		t.Fatal("consumed method must not be ready")
	}
	if _, err := m.Consume(); err == nil {
		t.Fatal("a method can be consumed only once")
	}
}

func TestDeleteResetsReadyReference(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{}
	m := newManager(t, backend, gateway.NewFake(), true)
	if _, err := m.SelectSaved(context.Background(), types.SavedPaymentMethod{ID: "pm_a"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := m.Delete(context.Background(), "pm_b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := m.Peek(); !ok {
		t.Fatal("deleting another card must keep the ready method")
	}
	if err := m.Delete(context.Background(), "pm_a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.State().Phase != enums.PaymentMethodPhaseIdle {
		t.Fatalf("expected idle after deleting ready card, got %s", m.State().Phase)
	}
	if len(backend.deleted) != 2 {
		t.Fatalf("expected 2 deletes, got %v", backend.deleted)
	}
}

func TestAbortDuringCreationDiscardsResult(t *testing.T) {
	t.Parallel()

	var m *Manager
	backend := &stubBackend{}
	backend.createFn = func(req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error) {
		m.Abort(pkgerrors.New(pkgerrors.CodeAuthExpired, "session expired"))
		return &types.SavedPaymentMethod{ID: req.Token}, nil
	}
	m = newManager(t, backend, gateway.NewFake(), true)

	_, err := m.CreateFromGateway(context.Background(), card(), "asha@example.com", false)
	if !pkgerrors.Is(err, pkgerrors.CodeCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if _, ok := m.Peek(); ok {
		t.Fatal("aborted creation must not produce a ready method")
	}
}

func TestListSaved(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{saved: []types.SavedPaymentMethod{{ID: "pm_1", Last4: "4242"}}}
	m := newManager(t, backend, gateway.NewFake(), false)
	saved, err := m.ListSaved(context.Background())
	if err != nil || len(saved) != 1 {
		t.Fatalf("list: %v %v", saved, err)
	}
}
