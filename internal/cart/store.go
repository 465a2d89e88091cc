package cart

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const fetchKeyPrefix = "cart:"

// LineItem is one product line in the shopper's cart.
type LineItem struct {
	ID        int64
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Image     string
}

// Subtotal is UnitPrice times Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is an immutable view of the cart handed to subscribers.
type Snapshot struct {
	Items   []LineItem
	Version uint64
	Loaded  bool
}

// Total sums the line subtotals of the snapshot.
func (s Snapshot) Total() decimal.Decimal {
	return Total(s.Items)
}

// Total sums unit price times quantity over items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Backend is the cart slice of the storefront REST surface.
type Backend interface {
	GetCart(ctx context.Context) (*types.Cart, error)
	AddCartItem(ctx context.Context, productID int64, quantity int) (*types.Cart, error)
	RemoveCartItem(ctx context.Context, itemID int64) (*types.Cart, error)
}

// Store is the single shared copy of the cart. Reads return copies;
// every change is published to subscribers.
type Store struct {
	backend Backend
	logger  *logger.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	items   []LineItem
	loaded  bool
	version uint64
	nextSub int
	subs    map[int]func(Snapshot)

	// epoch changes on every Abort; responses from an older epoch are dropped.
	epoch      uint64
	session    context.Context
	endSession context.CancelFunc
	abortCause error
}

func NewStore(backend Backend, logg *logger.Logger) (*Store, error) {
	if backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart backend required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	s := &Store{backend: backend, logger: logg, subs: map[int]func(Snapshot){}}
	s.session, s.endSession = context.WithCancel(context.Background())
	return s, nil
}

// Fetch loads the cart from the backend. Concurrent callers share one
// request. The shared request outlives a single caller's cancellation but
// not the session: Abort cancels it and discards a late response.
func (s *Store) Fetch(ctx context.Context) ([]LineItem, error) {
	epoch, session := s.currentEpoch()
	ch := s.group.DoChan(fetchKeyPrefix+strconv.FormatUint(epoch, 10), func() (any, error) {
		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(session, cancel)
		defer stop()

		cart, err := s.backend.GetCart(fetchCtx)
		if err != nil {
			if session.Err() != nil {
				return nil, s.staleError()
			}
			return nil, err
		}
		if !s.replaceIfEpoch(cart, epoch) {
			return nil, s.staleError()
		}
		return nil, nil
	})
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, ctx.Err(), "cart fetch timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeCanceled, ctx.Err(), "cart fetch canceled")
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn(s.logger.WithComponent(ctx, "cart"), "cart fetch failed")
			return nil, res.Err
		}
		return s.Items(), nil
	}
}

// EnsureLoaded returns the cached cart, fetching it on first use.
func (s *Store) EnsureLoaded(ctx context.Context) ([]LineItem, error) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return s.Items(), nil
	}
	return s.Fetch(ctx)
}

// Add puts quantity units of a product in the cart.
func (s *Store) Add(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	epoch, _ := s.currentEpoch()
	cart, err := s.backend.AddCartItem(ctx, productID, quantity)
	if err != nil {
		return err
	}
	if !s.replaceIfEpoch(cart, epoch) {
		return s.staleError()
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, itemID int64) error {
	if itemID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart item id is required")
	}
	epoch, _ := s.currentEpoch()
	cart, err := s.backend.RemoveCartItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !s.replaceIfEpoch(cart, epoch) {
		return s.staleError()
	}
	return nil
}

// Items returns a copy of the current line items.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LineItem(nil), s.items...)
}

func (s *Store) Total() decimal.Decimal {
	return Total(s.Items())
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Items: append([]LineItem(nil), s.items...), Version: s.version, Loaded: s.loaded}
}

// Subscribe registers fn for every cart change and returns its cancel func.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Abort drops the cached cart when the session ends. Requests still in
// flight are canceled and their responses are never applied.
func (s *Store) Abort(reason error) {
	s.mu.Lock()
	s.items = nil
	s.loaded = false
	s.version++
	s.epoch++
	s.abortCause = reason
	s.endSession()
	s.session, s.endSession = context.WithCancel(context.Background())
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	publish(subs, snap)
}

func (s *Store) currentEpoch() (uint64, context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, s.session
}

// replaceIfEpoch applies cart unless Abort ran since epoch was read.
func (s *Store) replaceIfEpoch(cart *types.Cart, epoch uint64) bool {
	items := fromCart(cart)
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.items = items
	s.loaded = true
	s.version++
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()
	publish(subs, snap)
	return true
}

func (s *Store) staleError() error {
	s.mu.RLock()
	cause := s.abortCause
	s.mu.RUnlock()
	if pkgerrors.Is(cause, pkgerrors.CodeAuthExpired) {
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, cause, pkgerrors.MetadataFor(pkgerrors.CodeAuthExpired).PublicMessage)
	}
	return pkgerrors.Wrap(pkgerrors.CodeCanceled, cause, "cart changed by session end")
}

func (s *Store) snapshotLocked() (Snapshot, []func(Snapshot)) {
	snap := Snapshot{Items: append([]LineItem(nil), s.items...), Version: s.version, Loaded: s.loaded}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return snap, subs
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		items := append([]LineItem(nil), snap.Items...)
		fn(Snapshot{Items: items, Version: snap.Version, Loaded: snap.Loaded})
	}
}

func fromCart(cart *types.Cart) []LineItem {
	if cart == nil {
		return nil
	}
	items := make([]LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := LineItem{
			ID:        item.ID,
			ProductID: item.Product.ID,
			Name:      strings.TrimSpace(item.Product.Name),
			UnitPrice: item.Product.Price,
			Quantity:  item.Quantity,
		}
		if item.Product.Image != nil {
			line.Image = *item.Product.Image
		}
		items = append(items, line)
	}
	return items
}
