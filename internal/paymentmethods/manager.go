package paymentmethods

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/gateway"
	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// PaymentMethod is the instrument a charge will be made against.
type PaymentMethod struct {
	ID     string
	Last4  string
	Email  string
	Brand  string
	Saved  bool
	Source enums.PaymentMethodSource
}

// State is the manager's current phase. Method is set only when Ready,
// Err only when Failed.
type State struct {
	Phase  enums.PaymentMethodPhase
	Method *PaymentMethod
	Err    error
}

type Backend interface {
	CreatePaymentMethod(ctx context.Context, req types.CreatePaymentMethodRequest) (*types.SavedPaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]types.SavedPaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error
}

// AddressGate is satisfied by address.Selection.
type AddressGate interface {
	Require() (address.Snapshot, error)
}

type ManagerParams struct {
	Backend   Backend
	Gateway   gateway.Gateway
	Addresses AddressGate
	Logger    *logger.Logger
	Now       func() time.Time
}

// Manager resolves exactly one payment method per checkout attempt.
type Manager struct {
	backend   Backend
	gateway   gateway.Gateway
	addresses AddressGate
	logger    *logger.Logger
	now       func() time.Time

	mu    sync.Mutex
	gen   uint64
	state State
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method backend required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "card gateway required")
	}
	if params.Addresses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address gate required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Manager{
		backend:   params.Backend,
		gateway:   params.Gateway,
		addresses: params.Addresses,
		logger:    params.Logger,
		now:       params.Now,
		state:     State{Phase: enums.PaymentMethodPhaseIdle},
	}, nil
}

// CreateFromGateway tokenizes card through the gateway and registers the
// token with the backend.
func (m *Manager) CreateFromGateway(ctx context.Context, card checkout.CardInput, billingEmail string, save bool) (PaymentMethod, error) {
	if _, err := m.addresses.Require(); err != nil {
		return PaymentMethod{}, err
	}
	gen, err := m.begin()
	if err != nil {
		return PaymentMethod{}, err
	}

	billingEmail = strings.TrimSpace(billingEmail)
	if strings.TrimSpace(card.Email) == "" {
		card.Email = billingEmail
	}
	if err := checkout.ValidateCard(card, m.now()); err != nil {
		return PaymentMethod{}, m.fail(ctx, gen, err)
	}

	token, err := m.gateway.Tokenize(ctx, card)
	if err != nil {
		return PaymentMethod{}, m.fail(ctx, gen, err)
	}

	saved, err := m.backend.CreatePaymentMethod(ctx, types.CreatePaymentMethodRequest{
		Token: token.ID,
		Email: card.Email,
		Save:  save,
		Last4: token.Last4,
		Brand: token.Brand,
	})
	if err != nil {
		return PaymentMethod{}, m.fail(ctx, gen, err)
	}

	method := PaymentMethod{
		ID:     saved.ID,
		Last4:  firstNonEmpty(saved.Last4, token.Last4),
		Email:  firstNonEmpty(saved.Email, card.Email),
		Brand:  firstNonEmpty(saved.Brand, token.Brand),
		Saved:  save,
		Source: enums.PaymentMethodSourceGateway,
	}
	if method.ID == "" {
		method.ID = token.ID
	}
	return m.ready(ctx, gen, method)
}

// SelectSaved resolves a card already on file without a gateway trip.
func (m *Manager) SelectSaved(ctx context.Context, saved types.SavedPaymentMethod) (PaymentMethod, error) {
	if _, err := m.addresses.Require(); err != nil {
		return PaymentMethod{}, err
	}
	if strings.TrimSpace(saved.ID) == "" {
		return PaymentMethod{}, pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}
	gen, err := m.begin()
	if err != nil {
		return PaymentMethod{}, err
	}
	if err := ctx.Err(); err != nil {
		return PaymentMethod{}, m.fail(ctx, gen, pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "payment method selection canceled"))
	}
	return m.ready(ctx, gen, PaymentMethod{
		ID:     saved.ID,
		Last4:  saved.Last4,
		Email:  saved.Email,
		Brand:  saved.Brand,
		Saved:  true,
		Source: enums.PaymentMethodSourceSaved,
	})
}

// Consume hands the ready method to a charge attempt and returns the
// manager to Idle.
func (m *Manager) Consume() (PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != enums.PaymentMethodPhaseReady || m.state.Method == nil {
		return PaymentMethod{}, pkgerrors.New(pkgerrors.CodeValidation, "please add a payment method")
	}
	method := *m.state.Method
	m.gen++
	m.state = State{Phase: enums.PaymentMethodPhaseIdle}
	return method, nil
}

// Peek returns the ready method without consuming it.
func (m *Manager) Peek() (PaymentMethod, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != enums.PaymentMethodPhaseReady || m.state.Method == nil {
		return PaymentMethod{}, false
	}
	return *m.state.Method, true
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	if state.Method != nil {
		method := *state.Method
		state.Method = &method
	}
	return state
}

// ListSaved returns the shopper's cards on file.
func (m *Manager) ListSaved(ctx context.Context) ([]types.SavedPaymentMethod, error) {
	return m.backend.ListPaymentMethods(ctx)
}

// Delete removes a card on file. A Ready state pointing at it is reset.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}
	if err := m.backend.DeletePaymentMethod(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == enums.PaymentMethodPhaseReady && m.state.Method != nil && m.state.Method.ID == id {
		m.gen++
		m.state = State{Phase: enums.PaymentMethodPhaseIdle}
		m.logger.Info(m.logger.WithField(ctx, "payment_method_id", id), "ready payment method deleted")
	}
	return nil
}

// Abort discards any ready or in-flight method.
func (m *Manager) Abort(reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.state = State{Phase: enums.PaymentMethodPhaseIdle}
}

func (m *Manager) begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state.Phase {
	case enums.PaymentMethodPhaseReady:
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment method is already ready")
	case enums.PaymentMethodPhaseCreating:
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment method is already being created")
	}
	m.gen++
	m.state = State{Phase: enums.PaymentMethodPhaseCreating}
	return m.gen, nil
}

func (m *Manager) ready(ctx context.Context, gen uint64, method PaymentMethod) (PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return PaymentMethod{}, pkgerrors.New(pkgerrors.CodeCanceled, "payment method creation was interrupted")
	}
	m.state = State{Phase: enums.PaymentMethodPhaseReady, Method: &method}
	m.logger.Info(m.logger.WithFields(ctx, map[string]any{
		"payment_method_source": method.Source.String(),
		"last4":                 method.Last4,
	}), "payment method ready")
	return method, nil
}

func (m *Manager) fail(ctx context.Context, gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "payment method creation was interrupted")
	}
	m.state = State{Phase: enums.PaymentMethodPhaseFailed, Err: err}
	m.logger.Warn(m.logger.WithField(ctx, "error", err.Error()), "payment method failed")
	return err
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
