package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/charges"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/target"
	"github.com/angelmondragon/storefront-checkout/internal/gateway"
	"github.com/angelmondragon/storefront-checkout/internal/paymentmethods"
	"github.com/angelmondragon/storefront-checkout/internal/receipts"
	"github.com/angelmondragon/storefront-checkout/internal/session"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type fakeBackend struct {
	mu            sync.Mutex
	cart          *types.Cart
	products      map[int64]types.Product
	addresses     map[int64]types.Address
	created       []types.CreatePaymentMethodRequest
	charges       []types.ChargeRequest
	calls         int
	tokenValid    bool
	unauthorized  bool
	chargeErr     error
	beforeCharge  func()
	onAuthFailure func(ctx context.Context, err error)
	hang          chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tokenValid: true,
		cart: &types.Cart{ID: 1, Items: []types.CartItem{
			{ID: 1, Product: types.Product{ID: 1, Name: "Lamp", Price: decimal.NewFromInt(100), Stock: 5}, Quantity: 2},
			{ID: 2, Product: types.Product{ID: 2, Name: "Mug", Price: decimal.NewFromInt(50), Stock: 5}, Quantity: 1},
		}},
		products: map[int64]types.Product{
			5: {ID: 5, Name: "Phone", Price: decimal.RequireFromString("999.99"), Stock: 10},
		},
		addresses: map[int64]types.Address{
			7: {ID: 7, Name: "Asha Rao", HouseNo: "12B", Landmark: "Clock Tower", City: "Pune", State: "MH", PinCode: "411001"},
		},
	}
}

func (f *fakeBackend) enter(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	unauthorized := f.unauthorized
	hook := f.onAuthFailure
	hang := f.hang
	f.mu.Unlock()
	if hang != nil {
		select {
		case <-hang:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if unauthorized {
		err := pkgerrors.New(pkgerrors.CodeAuthExpired, "session expired")
		if hook != nil {
			hook(ctx, err)
		}
		return err
	}
	return nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) ValidateToken(ctx context.Context) (*types.TokenValidation, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return &types.TokenValidation{Valid: f.tokenValid, UserID: "user-1", Email: "asha@example.com"}, nil
}

func (f *fakeBackend) GetCart(ctx context.Context) (*types.Cart, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.cart, nil
}

func (f *fakeBackend) AddCartItem(ctx context.Context, productID int64, quantity int) (*types.Cart, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.cart.Items = append(f.cart.Items, types.CartItem{
		ID:       int64(len(f.cart.Items) + 1),
		Product:  types.Product{ID: productID, Name: "Extra", Price: decimal.NewFromInt(30), Stock: 5},
		Quantity: quantity,
	})
	return f.cart, nil
}

func (f *fakeBackend) RemoveCartItem(ctx context.Context, itemID int64) (*types.Cart, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.cart, nil
}

func (f *fakeBackend) GetProduct(ctx context.Context, id int64) (*types.Product, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	product, ok := f.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &product, nil
}

func (f *fakeBackend) GetAddress(ctx context.Context, id int64) (*types.Address, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	addr, ok := f.addresses[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return &addr, nil
}

func (f *fakeBackend) CreatePaymentMethod(ctx context.Context, req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.created = append(f.created, req)
	f.mu.Unlock()
	return &types.SavedPaymentMethod{ID: req.Token, Last4: req.Last4, Email: req.Email, Brand: req.Brand}, nil
}

func (f *fakeBackend) ListPaymentMethods(ctx context.Context) ([]types.SavedPaymentMethod, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return []types.SavedPaymentMethod{{ID: "pm_saved", Last4: "4444", Brand: "mastercard"}}, nil
}

func (f *fakeBackend) DeletePaymentMethod(ctx context.Context, id string) error {
	return f.enter(ctx)
}

func (f *fakeBackend) CreateCharge(ctx context.Context, req types.ChargeRequest, key string) (*types.ChargeResponse, error) {
	if f.beforeCharge != nil {
		f.beforeCharge()
	}
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, req)
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return &types.ChargeResponse{OrderID: "ord_1", OrderedItem: req.OrderedItem, TotalPrice: req.TotalPrice, Status: "paid"}, nil
}

type recordedReceipts struct {
	mu       sync.Mutex
	receipts []receipts.Receipt
}

func (r *recordedReceipts) Record(ctx context.Context, receipt receipts.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
	return nil
}

type harness struct {
	backend    *fakeBackend
	gateway    *gateway.Fake
	guard      *session.Guard
	cart       *cart.Store
	receipts   *recordedReceipts
	controller *Controller
	loginCalls int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, configure func(*ControllerParams)) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{backend: newFakeBackend(), gateway: gateway.NewFake(), receipts: &recordedReceipts{}}

	guard, err := session.NewGuard(session.GuardParams{
		Store: session.NewMemoryStore(),
		Reauth: session.ReauthFunc(func(context.Context, error) error {
			h.loginCalls++
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if err := guard.Establish(ctx, session.Session{Token: "opaque-token", UserID: "user-1", Email: "asha@example.com"}); err != nil {
		t.Fatalf("establish: %v", err)
	}
	h.guard = guard
	h.backend.onAuthFailure = guard.HandleAuthFailure

	h.cart, err = cart.NewStore(h.backend, nil)
	if err != nil {
		t.Fatalf("cart store: %v", err)
	}
	guard.Register(h.cart)

	resolver, err := target.NewResolver(target.ResolverParams{Products: h.backend, Cart: h.cart})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	addresses, err := address.NewSelection(h.backend, nil)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	methods, err := paymentmethods.NewManager(paymentmethods.ManagerParams{
		Backend:   h.backend,
		Gateway:   h.gateway,
		Addresses: addresses,
	})
	if err != nil {
		t.Fatalf("methods: %v", err)
	}
	orchestrator, err := charges.NewOrchestrator(charges.OrchestratorParams{
		Backend:      h.backend,
		Addresses:    addresses,
		SessionEmail: guard.Email,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	params := ControllerParams{
		Guard:          guard,
		Tokens:         h.backend,
		Resolver:       resolver,
		Addresses:      addresses,
		PaymentMethods: methods,
		Charges:        orchestrator,
		Receipts:       h.receipts,
	}
	if configure != nil {
		configure(&params)
	}
	h.controller, err = NewController(params)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	t.Cleanup(h.controller.Close)

	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func visa() PaymentInput {
	return PaymentInput{
		Card: pkgcheckout.CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2099, CVC: "123", Name: "Asha Rao"},
		Save: true,
	}
}

func TestCartCheckoutEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, err := h.controller.ResolveTarget(ctx, target.Route{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !state.Target.Amount().Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("expected 250.00, got %s", state.Target.Amount())
	}
	if h.controller.Phase() != enums.CheckoutPhaseAwaitingPaymentMethod {
		t.Fatalf("unexpected phase %s", h.controller.Phase())
	}

	h.controller.SelectAddress(7)
	if _, err := h.controller.CreatePaymentMethod(ctx, visa()); err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	if h.controller.Phase() != enums.CheckoutPhaseAwaitingCharge {
		t.Fatalf("expected awaiting charge, got %s", h.controller.Phase())
	}

	status, err := h.controller.SubmitCharge(ctx)
	if err != nil {
		t.Fatalf("submit charge: %v", err)
	}
	if !status.Amount.Equal(decimal.RequireFromString("250.00")) || status.ItemDescriptor != "Multiple Items" {
		t.Fatalf("unexpected status %+v", status)
	}
	if h.controller.Phase() != enums.CheckoutPhaseDone {
		t.Fatalf("expected done, got %s", h.controller.Phase())
	}
	if h.controller.State().Charge.Status != enums.ChargeStatusSucceeded {
		t.Fatalf("expected succeeded charge, got %s", h.controller.State().Charge.Status)
	}

	charge := h.backend.charges[0]
	if charge.Email != "asha@example.com" || charge.CardNumber != "4242" || charge.Address != "12B, near Clock Tower, Pune, MH, 411001" {
		t.Fatalf("unexpected charge record %+v", charge)
	}
	if len(h.receipts.receipts) != 1 || h.receipts.receipts[0].UserID != "user-1" {
		t.Fatalf("expected one receipt, got %+v", h.receipts.receipts)
	}

	_, err = h.controller.SubmitCharge(ctx)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error on second charge, got %v", err)
	}
	if len(h.backend.charges) != 1 {
		t.Fatalf("expected a single charge request, got %d", len(h.backend.charges))
	}
}

func TestSingleProductTarget(t *testing.T) {
	h := newHarness(t)

	state, err := h.controller.ResolveTarget(context.Background(), target.Route{ProductID: "5", Quantity: "3"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !state.Target.Amount().Equal(decimal.RequireFromString("2999.97")) {
		t.Fatalf("expected 2999.97, got %s", state.Target.Amount())
	}

	_, err = h.controller.ResolveTarget(context.Background(), target.Route{ProductID: "5", Quantity: "11"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for quantity over stock, got %v", err)
	}
}

func TestPaymentMethodWithoutAddressMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before := h.backend.callCount()

	_, err := h.controller.CreatePaymentMethod(ctx, visa())
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = h.controller.SelectSavedPaymentMethod(ctx, types.SavedPaymentMethod{ID: "pm_saved"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.backend.callCount() != before || h.gateway.Calls() != 0 {
		t.Fatal("expected zero network calls without an address")
	}
}

func TestUnauthorizedChargeDiscardsVisitState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)
	if _, err := h.controller.CreatePaymentMethod(ctx, visa()); err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	h.backend.beforeCharge = func() {
		h.backend.mu.Lock()
		h.backend.unauthorized = true
		h.backend.mu.Unlock()
	}
	_, err := h.controller.SubmitCharge(ctx)
	if !pkgerrors.Is(err, pkgerrors.CodeAuthExpired) {
		t.Fatalf("expected auth expired, got %v", err)
	}

	view := h.controller.State()
	if view.Phase != enums.CheckoutPhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", view.Phase)
	}
	if view.PaymentMethod.Phase == enums.PaymentMethodPhaseReady {
		t.Fatal("ready payment method must be discarded")
	}
	if view.Charge.Status == enums.ChargeStatusCharging {
		t.Fatal("pending charge must be discarded")
	}
	if h.guard.Valid() || h.loginCalls != 1 {
		t.Fatalf("expected session invalidated and login requested, valid=%v login=%d", h.guard.Valid(), h.loginCalls)
	}

	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); !pkgerrors.Is(err, pkgerrors.CodeAuthExpired) {
		t.Fatalf("expected further operations to be refused, got %v", err)
	}
}

func TestAmountFrozenWhenMethodReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)
	if _, err := h.controller.CreatePaymentMethod(ctx, visa()); err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	if err := h.cart.Add(ctx, 9, 1); err != nil {
		t.Fatalf("cart add: %v", err)
	}
	if got := h.controller.State().Target.Target.Amount(); !got.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("expected target to follow the cart, got %s", got)
	}

	status, err := h.controller.SubmitCharge(ctx)
	if err != nil {
		t.Fatalf("submit charge: %v", err)
	}
	if !status.Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected frozen amount 250, got %s", status.Amount)
	}
}

func TestChargeFailureReturnsToAwaitingPaymentMethod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)
	if _, err := h.controller.CreatePaymentMethod(ctx, visa()); err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	h.backend.chargeErr = pkgerrors.New(pkgerrors.CodeBackend, "Your card was declined.")
	_, err := h.controller.SubmitCharge(ctx)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Message() != "Your card was declined." {
		t.Fatalf("expected verbatim decline, got %v", err)
	}
	if h.controller.Phase() != enums.CheckoutPhaseAwaitingPaymentMethod {
		t.Fatalf("expected awaiting payment method, got %s", h.controller.Phase())
	}

	if _, err := h.controller.SubmitCharge(ctx); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error without a fresh method, got %v", err)
	}

	h.backend.chargeErr = nil
	if _, err := h.controller.SelectSavedPaymentMethod(ctx, types.SavedPaymentMethod{ID: "pm_saved", Last4: "4444"}); err != nil {
		t.Fatalf("select saved: %v", err)
	}
	if _, err := h.controller.SubmitCharge(ctx); err != nil {
		t.Fatalf("retry charge: %v", err)
	}
}

func TestDifferentBillingEmailIgnoresSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)

	input := visa()
	input.Email = "someone.else@example.com"
	if _, err := h.controller.CreatePaymentMethod(ctx, input); err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	created := h.backend.created[0]
	if created.Save || created.Email != "someone.else@example.com" {
		t.Fatalf("unexpected payment method request %+v", created)
	}

	if _, err := h.controller.SubmitCharge(ctx); err != nil {
		t.Fatalf("submit charge: %v", err)
	}
	if h.backend.charges[0].Email != "someone.else@example.com" {
		t.Fatalf("expected billing email on charge, got %q", h.backend.charges[0].Email)
	}
}

func TestGatewayDeclineKeepsAwaitingPaymentMethod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)

	input := visa()
	input.Card.Number = gateway.DeclinedCardNumber
	_, err := h.controller.CreatePaymentMethod(ctx, input)
	if !pkgerrors.Is(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	view := h.controller.State()
	if view.Phase != enums.CheckoutPhaseAwaitingPaymentMethod || view.PaymentMethod.Phase != enums.PaymentMethodPhaseFailed {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestDeleteReadyMethodReturnsToAwaitingPaymentMethod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)

	saved, err := h.controller.SavedPaymentMethods(ctx)
	if err != nil || len(saved) != 1 {
		t.Fatalf("saved methods: %v %v", saved, err)
	}
	if _, err := h.controller.SelectSavedPaymentMethod(ctx, saved[0]); err != nil {
		t.Fatalf("select saved: %v", err)
	}
	if err := h.controller.DeletePaymentMethod(ctx, saved[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if h.controller.Phase() != enums.CheckoutPhaseAwaitingPaymentMethod {
		t.Fatalf("expected awaiting payment method, got %s", h.controller.Phase())
	}
}

func TestCloseAbandonsVisit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var phases []enums.CheckoutPhase
	h.controller.Subscribe(func(v View) { phases = append(phases, v.Phase) })
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	h.controller.Close()
	if h.controller.Phase() != enums.CheckoutPhaseAbandoned {
		t.Fatalf("expected abandoned, got %s", h.controller.Phase())
	}
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); !pkgerrors.Is(err, pkgerrors.CodeCanceled) {
		t.Fatalf("expected canceled after close, got %v", err)
	}
	if len(phases) == 0 || phases[len(phases)-1] != enums.CheckoutPhaseAbandoned {
		t.Fatalf("expected subscribers to see abandoned, got %v", phases)
	}
}

func TestStartWithInvalidTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	h.controller.Close()

	h.backend.tokenValid = false
	resolver, _ := target.NewResolver(target.ResolverParams{Products: h.backend, Cart: h.cart})
	addresses, _ := address.NewSelection(h.backend, nil)
	methods, _ := paymentmethods.NewManager(paymentmethods.ManagerParams{Backend: h.backend, Gateway: h.gateway, Addresses: addresses})
	orchestrator, _ := charges.NewOrchestrator(charges.OrchestratorParams{Backend: h.backend, Addresses: addresses})
	controller, err := NewController(ControllerParams{
		Guard:          h.guard,
		Tokens:         h.backend,
		Resolver:       resolver,
		Addresses:      addresses,
		PaymentMethods: methods,
		Charges:        orchestrator,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	defer controller.Close()

	if err := controller.Start(context.Background()); !pkgerrors.Is(err, pkgerrors.CodeAuthExpired) {
		t.Fatalf("expected auth expired, got %v", err)
	}
	if controller.Phase() != enums.CheckoutPhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", controller.Phase())
	}
}

func TestPaymentMethodRefusedAfterCharge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)
	if _, err := h.controller.CreatePaymentMethod(ctx, visa()); err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	if _, err := h.controller.SubmitCharge(ctx); err != nil {
		t.Fatalf("submit charge: %v", err)
	}
	gatewayCalls := h.gateway.Calls()
	registrations := len(h.backend.created)

	_, err := h.controller.CreatePaymentMethod(ctx, visa())
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error after charge, got %v", err)
	}
	_, err = h.controller.SelectSavedPaymentMethod(ctx, types.SavedPaymentMethod{ID: "pm_saved"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for saved card after charge, got %v", err)
	}
	if h.gateway.Calls() != gatewayCalls || len(h.backend.created) != registrations {
		t.Fatalf("expected no new card calls, gateway %d->%d registrations %d->%d",
			gatewayCalls, h.gateway.Calls(), registrations, len(h.backend.created))
	}

	view := h.controller.State()
	if view.Phase != enums.CheckoutPhaseDone {
		t.Fatalf("expected done, got %s", view.Phase)
	}
	if view.PaymentMethod.Phase == enums.PaymentMethodPhaseReady {
		t.Fatal("payment method must not stay ready once the visit is paid")
	}
}

func TestUnauthorizedDuringPaymentMethodCreation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.controller.ResolveTarget(ctx, target.Route{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.controller.SelectAddress(7)

	h.backend.mu.Lock()
	h.backend.unauthorized = true
	h.backend.mu.Unlock()

	_, err := h.controller.CreatePaymentMethod(ctx, visa())
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeAuthExpired {
		t.Fatalf("expected auth expired outermost, got %s (%v)", code, err)
	}
	if msg := pkgerrors.UserMessage(err); msg != "please login to continue" {
		t.Fatalf("unexpected user message %q", msg)
	}

	view := h.controller.State()
	if view.Phase != enums.CheckoutPhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", view.Phase)
	}
	if view.PaymentMethod.Phase != enums.PaymentMethodPhaseIdle {
		t.Fatalf("expected idle payment method, got %s", view.PaymentMethod.Phase)
	}
	if h.guard.Valid() {
		t.Fatal("expected session invalidated")
	}
}

func TestUnauthorizedDuringTargetResolution(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.backend.mu.Lock()
	h.backend.unauthorized = true
	h.backend.mu.Unlock()

	_, err := h.controller.ResolveTarget(ctx, target.Route{})
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeAuthExpired {
		t.Fatalf("expected auth expired outermost, got %s (%v)", code, err)
	}

	view := h.controller.State()
	if view.Phase != enums.CheckoutPhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", view.Phase)
	}
	if view.PaymentMethod.Phase != enums.PaymentMethodPhaseIdle {
		t.Fatalf("expected idle payment method, got %s", view.PaymentMethod.Phase)
	}
	if snap := h.cart.Snapshot(); snap.Loaded || len(snap.Items) != 0 {
		t.Fatalf("expected cart cleared, got %+v", snap)
	}
}

func TestRequestTimeoutSurfacesAsTimeout(t *testing.T) {
	t.Parallel()
	h := newHarnessWith(t, func(p *ControllerParams) {
		p.RequestTimeout = 30 * time.Millisecond
	})

	hang := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.hang = hang
	h.backend.mu.Unlock()
	t.Cleanup(func() { close(hang) })

	_, err := h.controller.ResolveTarget(context.Background(), target.Route{})
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeTimeout {
		t.Fatalf("expected timeout, got %s (%v)", code, err)
	}
	if h.controller.Phase() == enums.CheckoutPhaseUnauthenticated {
		t.Fatal("a timeout must not end the session")
	}
}
