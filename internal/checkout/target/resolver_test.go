package target

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type fakeBackend struct {
	mu           sync.Mutex
	cart         *types.Cart
	cartErr      error
	products     map[int64]types.Product
	cartCalls    int
	productCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cart: &types.Cart{ID: 1, Items: []types.CartItem{
			{ID: 1, Product: types.Product{ID: 1, Name: "Lamp", Price: decimal.NewFromInt(100), Stock: 5}, Quantity: 2},
			{ID: 2, Product: types.Product{ID: 2, Name: "Mug", Price: decimal.NewFromInt(50), Stock: 5}, Quantity: 1},
		}},
		products: map[int64]types.Product{
			5: {ID: 5, Name: "Phone", Price: decimal.RequireFromString("999.99"), Stock: 10},
			6: {ID: 6, Name: "Sold out", Price: decimal.NewFromInt(10), Stock: 0},
		},
	}
}

func (f *fakeBackend) GetCart(ctx context.Context) (*types.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartCalls++
	if f.cartErr != nil {
		return nil, f.cartErr
	}
	copied := *f.cart
	copied.Items = append([]types.CartItem(nil), f.cart.Items...)
	return &copied, nil
}

func (f *fakeBackend) AddCartItem(ctx context.Context, productID int64, quantity int) (*types.Cart, error) {
	f.mu.Lock()
	f.cart.Items = append(f.cart.Items, types.CartItem{
		ID:       int64(len(f.cart.Items) + 1),
		Product:  types.Product{ID: productID, Name: "Extra", Price: decimal.NewFromInt(30), Stock: 5},
		Quantity: quantity,
	})
	f.mu.Unlock()
	return f.GetCart(ctx)
}

func (f *fakeBackend) RemoveCartItem(ctx context.Context, itemID int64) (*types.Cart, error) {
	f.mu.Lock()
	kept := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	f.mu.Unlock()
	return f.GetCart(ctx)
}

func (f *fakeBackend) GetProduct(ctx context.Context, id int64) (*types.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	product, ok := f.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &product, nil
}

func newResolver(t *testing.T, backend *fakeBackend) (*Resolver, *cart.Store) {
	t.Helper()
	store, err := cart.NewStore(backend, nil)
	if err != nil {
		t.Fatalf("cart store: %v", err)
	}
	r, err := NewResolver(ResolverParams{Products: backend, Cart: store})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	t.Cleanup(r.Close)
	return r, store
}

func TestCartAmountSumsLines(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t, newFakeBackend())
	state := r.Resolve(context.Background(), Route{})
	if !state.Ready() {
		t.Fatalf("expected ready, got %s (%v)", state.Phase, state.Err)
	}
	if !state.Target.Amount().Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("expected 250.00, got %s", state.Target.Amount())
	}
	if state.Target.Descriptor() != MultipleItemsLabel {
		t.Fatalf("unexpected descriptor %q", state.Target.Descriptor())
	}
}

func TestEmptyCartAmountIsZero(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.cart.Items = nil
	r, _ := newResolver(t, backend)
	state := r.Resolve(context.Background(), Route{})
	if !state.Ready() || !state.Target.Amount().IsZero() {
		t.Fatalf("expected a ready zero amount, got %+v", state)
	}
}

func TestSingleProductQuantities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		quantity string
		amount   string
		clamped  bool
		code     pkgerrors.Code
	}{
		{name: "explicit", quantity: "3", amount: "2999.97"},
		{name: "default", quantity: "", amount: "999.99"},
		{name: "zero clamps", quantity: "0", amount: "999.99", clamped: true},
		{name: "negative clamps", quantity: "-1", amount: "999.99", clamped: true},
		{name: "at stock", quantity: "10", amount: "9999.90"},
		{name: "over stock", quantity: "11", code: pkgerrors.CodeValidation},
		{name: "not a number", quantity: "two", code: pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newResolver(t, newFakeBackend())
			state := r.Resolve(context.Background(), Route{ProductID: "5", Quantity: tc.quantity})
			if tc.code != "" {
				if state.Phase != enums.TargetPhaseError || !pkgerrors.Is(state.Err, tc.code) {
					t.Fatalf("expected %s error, got %s (%v)", tc.code, state.Phase, state.Err)
				}
				if state.Target != nil {
					t.Fatal("expected no target on error")
				}
				return
			}
			if !state.Ready() {
				t.Fatalf("expected ready, got %s (%v)", state.Phase, state.Err)
			}
			if !state.Target.Amount().Equal(decimal.RequireFromString(tc.amount)) {
				t.Fatalf("expected %s, got %s", tc.amount, state.Target.Amount())
			}
			if state.Clamped != tc.clamped {
				t.Fatalf("expected clamped=%v", tc.clamped)
			}
			if state.Target.Descriptor() != "Phone" {
				t.Fatalf("unexpected descriptor %q", state.Target.Descriptor())
			}
		})
	}
}

func TestInvalidQuantityMakesNoProductCall(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	r, _ := newResolver(t, backend)
	r.Resolve(context.Background(), Route{ProductID: "5", Quantity: "1.5"})
	if backend.productCalls != 0 {
		t.Fatalf("expected no product fetch, got %d", backend.productCalls)
	}
}

func TestOutOfStockAndMissingProduct(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t, newFakeBackend())
	state := r.Resolve(context.Background(), Route{ProductID: "6"})
	if !pkgerrors.Is(state.Err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of stock validation error, got %v", state.Err)
	}
	state = r.Resolve(context.Background(), Route{ProductID: "404"})
	if !pkgerrors.Is(state.Err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", state.Err)
	}
	state = r.Resolve(context.Background(), Route{ProductID: "abc"})
	if !pkgerrors.Is(state.Err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for a malformed id, got %v", state.Err)
	}
}

func TestSameRouteIsFetchedOnce(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	r, _ := newResolver(t, backend)
	ctx := context.Background()
	r.Resolve(ctx, Route{ProductID: "5", Quantity: "2"})
	r.Resolve(ctx, Route{ProductID: "5", Quantity: "2"})
	if backend.productCalls != 1 {
		t.Fatalf("expected one product fetch, got %d", backend.productCalls)
	}
	r.Resolve(ctx, Route{ProductID: "5", Quantity: "3"})
	if backend.productCalls != 2 {
		t.Fatalf("expected a fetch for the new route, got %d", backend.productCalls)
	}

	r.Resolve(ctx, Route{})
	r.Resolve(ctx, Route{})
	if backend.cartCalls != 1 {
		t.Fatalf("expected one cart fetch, got %d", backend.cartCalls)
	}
	r.Refresh(ctx)
	if backend.cartCalls != 2 {
		t.Fatalf("expected refresh to fetch, got %d", backend.cartCalls)
	}
}

func TestCartMutationsRecomputeTarget(t *testing.T) {
	t.Parallel()

	r, store := newResolver(t, newFakeBackend())
	ctx := context.Background()
	r.Resolve(ctx, Route{})

	var seen []State
	r.Subscribe(func(s State) { seen = append(seen, s) })

	if err := store.Add(ctx, 9, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := r.State().Target.Amount(); !got.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("expected 280 after add, got %s", got)
	}
	if err := store.Remove(ctx, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := r.State().Target.Amount(); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected 80 after remove, got %s", got)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two published states, got %d", len(seen))
	}

	store.Abort(pkgerrors.New(pkgerrors.CodeAuthExpired, "session expired"))
	if state := r.State(); state.Phase != enums.TargetPhaseLoading || state.Target != nil {
		t.Fatalf("expected dropped cart to reset target, got %+v", state)
	}
}

func TestCartFetchFailureIsDisplayOnly(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.cartErr = pkgerrors.New(pkgerrors.CodeBackend, "cart unavailable")
	r, _ := newResolver(t, backend)
	state := r.Resolve(context.Background(), Route{})
	if state.Phase != enums.TargetPhaseError || !pkgerrors.Is(state.Err, pkgerrors.CodeBackend) {
		t.Fatalf("expected backend error state, got %s (%v)", state.Phase, state.Err)
	}
	if r.State().Phase != enums.TargetPhaseError {
		t.Fatal("expected the error to be kept in state")
	}
}

func TestClosedResolverRefuses(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	r, store := newResolver(t, backend)
	r.Resolve(context.Background(), Route{})
	r.Close()

	state := r.Resolve(context.Background(), Route{ProductID: "5"})
	if !pkgerrors.Is(state.Err, pkgerrors.CodeCanceled) {
		t.Fatalf("expected canceled, got %v", state.Err)
	}
	if err := store.Add(context.Background(), 9, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := r.State().Target.Amount(); !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("closed resolver must not follow the cart, got %s", got)
	}
}
