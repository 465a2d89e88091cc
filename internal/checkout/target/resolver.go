package target

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type ProductFetcher interface {
	GetProduct(ctx context.Context, productID int64) (*types.Product, error)
}

// CartSource is satisfied by cart.Store.
type CartSource interface {
	Fetch(ctx context.Context) ([]cart.LineItem, error)
	Subscribe(fn func(cart.Snapshot)) func()
}

type ResolverParams struct {
	Products ProductFetcher
	Cart     CartSource
	Logger   *logger.Logger
}

// Resolver turns route inputs into a checkout Target. A settled route is
// not fetched again; cart changes published by the store are folded into
// a resolved cart target without another request.
type Resolver struct {
	products ProductFetcher
	cart     CartSource
	logger   *logger.Logger

	unsubscribe func()

	mu      sync.Mutex
	seq     uint64
	closed  bool
	state   State
	nextSub int
	subs    map[int]func(State)
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product fetcher required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart source required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	r := &Resolver{
		products: params.Products,
		cart:     params.Cart,
		logger:   params.Logger,
		state:    State{Phase: enums.TargetPhaseLoading},
		subs:     map[int]func(State){},
	}
	r.unsubscribe = params.Cart.Subscribe(r.onCart)
	return r, nil
}

// Resolve settles the target for route. Resolving the route that is
// already resolved returns the settled state.
func (r *Resolver) Resolve(ctx context.Context, route Route) State {
	r.mu.Lock()
	if r.state.Ready() && r.state.Route == route {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.mu.Unlock()
	return r.resolve(ctx, route)
}

// Refresh fetches the current route again.
func (r *Resolver) Refresh(ctx context.Context) State {
	r.mu.Lock()
	route := r.state.Route
	r.mu.Unlock()
	return r.resolve(ctx, route)
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for every state change and returns its cancel func.
func (r *Resolver) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Close stops following the cart. Resolutions still in flight are dropped.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.seq++
	r.mu.Unlock()
	r.unsubscribe()
}

func (r *Resolver) resolve(ctx context.Context, route Route) State {
	ctx = r.logger.WithComponent(ctx, "target")
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return State{Route: route, Phase: enums.TargetPhaseError, Err: pkgerrors.New(pkgerrors.CodeCanceled, "checkout visit closed")}
	}
	r.seq++
	seq := r.seq
	r.state = State{Route: route, Phase: enums.TargetPhaseLoading}
	r.mu.Unlock()
	r.publish()

	var state State
	if route.IsCart() {
		state = r.resolveCart(ctx, route)
	} else {
		state = r.resolveSingle(ctx, route)
	}
	if state.Err != nil {
		r.logger.Warn(r.logger.WithField(ctx, "code", string(pkgerrors.CodeOf(state.Err))), "checkout target not resolved")
	}

	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		return State{Route: route, Phase: enums.TargetPhaseError, Err: pkgerrors.New(pkgerrors.CodeCanceled, "checkout target superseded")}
	}
	r.state = state
	r.mu.Unlock()
	r.publish()
	return state
}

func (r *Resolver) resolveSingle(ctx context.Context, route Route) State {
	failed := func(err error) State {
		return State{Route: route, Phase: enums.TargetPhaseError, Err: err}
	}

	productID, err := strconv.ParseInt(strings.TrimSpace(route.ProductID), 10, 64)
	if err != nil || productID <= 0 {
		return failed(pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": route.ProductID}))
	}
	qty, clamped, err := pkgcheckout.ParseQuantity(route.Quantity)
	if err != nil {
		return failed(err)
	}
	if clamped {
		r.logger.Warn(r.logger.WithField(ctx, "quantity", route.Quantity), "quantity below 1 clamped to 1")
	}

	product, err := r.products.GetProduct(ctx, productID)
	if err != nil {
		return failed(err)
	}
	if product == nil {
		return failed(pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
	}
	err = pkgcheckout.ValidateStock([]pkgcheckout.StockValidationInput{{
		ProductID:   product.ID,
		ProductName: product.Name,
		Stock:       product.Stock,
		Quantity:    qty,
	}})
	if err != nil {
		return failed(err)
	}
	return State{
		Route:   route,
		Phase:   enums.TargetPhaseReady,
		Target:  Single{Product: *product, Quantity: qty},
		Clamped: clamped,
	}
}

func (r *Resolver) resolveCart(ctx context.Context, route Route) State {
	items, err := r.cart.Fetch(ctx)
	if err != nil {
		return State{Route: route, Phase: enums.TargetPhaseError, Err: err}
	}
	return State{Route: route, Phase: enums.TargetPhaseReady, Target: Cart{Items: items}}
}

// onCart recomputes a resolved cart target from the shared store. A cart
// dropped by the store sends the target back to loading.
func (r *Resolver) onCart(snap cart.Snapshot) {
	r.mu.Lock()
	if r.closed || !r.state.Route.IsCart() || r.state.Phase != enums.TargetPhaseReady {
		r.mu.Unlock()
		return
	}
	if snap.Loaded {
		r.state.Target = Cart{Items: snap.Items}
	} else {
		r.state = State{Route: r.state.Route, Phase: enums.TargetPhaseLoading}
	}
	r.mu.Unlock()
	r.publish()
}

func (r *Resolver) publish() {
	r.mu.Lock()
	state := r.state
	subs := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}
