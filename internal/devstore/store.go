package devstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const (
	// DeclinedLast4 makes a charge fail the way a declined test card does.
	DeclinedLast4 = "0002"
	// InsufficientFundsLast4 makes a charge fail for lack of funds.
	InsufficientFundsLast4 = "9995"

	// DefaultAddressID is the address every shopper is seeded with.
	DefaultAddressID int64 = 7

	chargeStatusSucceeded = "succeeded"
)

// Order is a paid charge as the dev backend records it.
type Order struct {
	ID            string
	UserID        string
	Email         string
	PaymentMethod string
	OrderedItem   string
	Address       string
	TotalPrice    decimal.Decimal
	PaidStatus    bool
	IsDelivered   bool
	DeliveredAt   string
	CreatedAt     time.Time
}

type paymentMethod struct {
	record types.SavedPaymentMethod
	saved  bool
}

type cartLine struct {
	id        int64
	productID int64
	quantity  int
}

// Store is the in-memory state behind the dev backend. Carts, addresses,
// payment methods and orders are kept per user id.
type Store struct {
	mu         sync.Mutex
	products   map[int64]types.Product
	carts      map[string][]cartLine
	addresses  map[string]map[int64]types.Address
	methods    map[string][]paymentMethod
	orders     map[string][]Order
	nextItemID int64
	now        func() time.Time
}

// New returns an empty store. Use Seed to load the demo catalog.
func New() *Store {
	return &Store{
		products:  map[int64]types.Product{},
		carts:     map[string][]cartLine{},
		addresses: map[string]map[int64]types.Address{},
		methods:   map[string][]paymentMethod{},
		orders:    map[string][]Order{},
		now:       time.Now,
	}
}

// Seed loads the demo catalog.
func (s *Store) Seed() {
	for _, p := range demoCatalog() {
		s.PutProduct(p)
	}
}

// PutProduct inserts or replaces a catalog entry.
func (s *Store) PutProduct(p types.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutAddress stores an address in the user's address book.
func (s *Store) PutAddress(userID string, addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addressBookLocked(userID)[addr.ID] = addr
}

func (s *Store) Product(id int64) (types.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return types.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return p, nil
}

func (s *Store) Cart(userID string) types.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked(userID)
}

// AddToCart adds quantity units of a product, merging with an existing line.
func (s *Store) AddToCart(userID string, productID int64, quantity int) (types.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, ok := s.products[productID]
	if !ok {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	lines := s.carts[userID]
	for i := range lines {
		if lines[i].productID != productID {
			continue
		}
		if lines[i].quantity+quantity > product.Stock {
			return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "not enough stock")
		}
		lines[i].quantity += quantity
		return s.cartLocked(userID), nil
	}

	if quantity > product.Stock {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "not enough stock")
	}
	s.nextItemID++
	s.carts[userID] = append(lines, cartLine{id: s.nextItemID, productID: productID, quantity: quantity})
	return s.cartLocked(userID), nil
}

func (s *Store) RemoveFromCart(userID string, itemID int64) (types.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	for i := range lines {
		if lines[i].id == itemID {
			s.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return s.cartLocked(userID), nil
		}
	}
	return types.Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
}

func (s *Store) Address(userID string, id int64) (types.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.addressBookLocked(userID)[id]
	if !ok {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return addr, nil
}

// CreatePaymentMethod registers a gateway token. Only methods created with
// Save are listed afterwards, but every method can be charged.
func (s *Store) CreatePaymentMethod(userID string, req types.CreatePaymentMethodRequest) (types.SavedPaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return types.SavedPaymentMethod{}, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	for _, m := range s.methods[userID] {
		if m.record.ID == token {
			return types.SavedPaymentMethod{}, pkgerrors.New(pkgerrors.CodeConflict, "payment method already exists")
		}
	}

	record := types.SavedPaymentMethod{
		ID:    token,
		Last4: req.Last4,
		Brand: req.Brand,
		Email: strings.TrimSpace(req.Email),
	}
	s.methods[userID] = append(s.methods[userID], paymentMethod{record: record, saved: req.Save})
	return record, nil
}

func (s *Store) ListPaymentMethods(userID string) []types.SavedPaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.SavedPaymentMethod, 0, len(s.methods[userID]))
	for _, m := range s.methods[userID] {
		if m.saved {
			out = append(out, m.record)
		}
	}
	return out
}

func (s *Store) DeletePaymentMethod(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	methods := s.methods[userID]
	for i := range methods {
		if methods[i].record.ID == id {
			s.methods[userID] = append(methods[:i:i], methods[i+1:]...)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
}

// Charge records a paid order. Test card numbers ending in DeclinedLast4 or
// InsufficientFundsLast4 fail with a gateway error.
func (s *Store) Charge(userID string, req types.ChargeRequest) (types.ChargeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !req.Amount.IsPositive() {
		return types.ChargeResponse{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !req.TotalPrice.IsZero() && !req.TotalPrice.Equal(req.Amount) {
		return types.ChargeResponse{}, pkgerrors.New(pkgerrors.CodeValidation, "total price does not match amount")
	}

	var method *paymentMethod
	for i := range s.methods[userID] {
		if s.methods[userID][i].record.ID == req.PaymentMethod {
			method = &s.methods[userID][i]
			break
		}
	}
	if method == nil {
		return types.ChargeResponse{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	last4 := req.CardNumber
	if last4 == "" {
		last4 = method.record.Last4
	}
	switch {
	case strings.HasSuffix(last4, DeclinedLast4):
		return types.ChargeResponse{}, pkgerrors.New(pkgerrors.CodeGateway, "Your card was declined.")
	case strings.HasSuffix(last4, InsufficientFundsLast4):
		return types.ChargeResponse{}, pkgerrors.New(pkgerrors.CodeGateway, "Your card has insufficient funds.")
	}

	deliveredAt := req.DeliveredAt
	if deliveredAt == "" {
		deliveredAt = types.DeliveredAtPending
	}
	order := Order{
		ID:            "ord_" + uuid.NewString(),
		UserID:        userID,
		Email:         req.Email,
		PaymentMethod: req.PaymentMethod,
		OrderedItem:   req.OrderedItem,
		Address:       req.Address,
		TotalPrice:    req.Amount,
		PaidStatus:    true,
		IsDelivered:   req.IsDelivered,
		DeliveredAt:   deliveredAt,
		CreatedAt:     s.now().UTC(),
	}
	s.orders[userID] = append(s.orders[userID], order)

	return types.ChargeResponse{
		OrderID:     order.ID,
		OrderedItem: order.OrderedItem,
		TotalPrice:  order.TotalPrice,
		Status:      chargeStatusSucceeded,
	}, nil
}

// Orders returns the user's orders, oldest first.
func (s *Store) Orders(userID string) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.orders[userID]...)
}

func (s *Store) cartLocked(userID string) types.Cart {
	lines := s.carts[userID]
	cart := types.Cart{Items: make([]types.CartItem, 0, len(lines)), TotalPrice: decimal.Zero}
	for _, line := range lines {
		product := s.products[line.productID]
		cart.Items = append(cart.Items, types.CartItem{ID: line.id, Product: product, Quantity: line.quantity})
		cart.TotalPrice = cart.TotalPrice.Add(product.Price.Mul(decimal.NewFromInt(int64(line.quantity))))
	}
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ID < cart.Items[j].ID })
	cart.TotalPrice = cart.TotalPrice.Round(2)
	return cart
}

// addressBookLocked returns the user's address book, seeding the default
// address the first time a user is seen.
func (s *Store) addressBookLocked(userID string) map[int64]types.Address {
	book, ok := s.addresses[userID]
	if !ok {
		book = map[int64]types.Address{DefaultAddressID: defaultAddress()}
		s.addresses[userID] = book
	}
	return book
}
