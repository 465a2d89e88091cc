package charges

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/target"
	"github.com/angelmondragon/storefront-checkout/internal/paymentmethods"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type Backend interface {
	CreateCharge(ctx context.Context, req types.ChargeRequest, idempotencyKey string) (*types.ChargeResponse, error)
}

type AddressLookup interface {
	Lookup(ctx context.Context, id int64) (*types.Address, error)
}

// PaymentSource is satisfied by paymentmethods.Manager.
type PaymentSource interface {
	Peek() (paymentmethods.PaymentMethod, bool)
	Consume() (paymentmethods.PaymentMethod, error)
}

// Request is one charge attempt. Amount is the frozen checkout amount.
type Request struct {
	Target  target.Target
	Amount  decimal.Decimal
	Address address.Snapshot
}

// Result describes a successful charge.
type Result struct {
	OrderID        string
	ItemDescriptor string
	Amount         decimal.Decimal
	Email          string
	ShippingLine   string
	PaymentMethod  paymentmethods.PaymentMethod
}

type State struct {
	Status enums.ChargeStatus
	Result *Result
	Err    error
}

type OrchestratorParams struct {
	Backend      Backend
	Addresses    AddressLookup
	SessionEmail func() string
	Metrics      *metrics.CheckoutMetrics
	Logger       *logger.Logger
	NewKey       func() string
	Now          func() time.Time
}

// Orchestrator issues the single charge of a checkout attempt.
type Orchestrator struct {
	backend      Backend
	addresses    AddressLookup
	sessionEmail func() string
	metrics      *metrics.CheckoutMetrics
	logger       *logger.Logger
	newKey       func() string
	now          func() time.Time

	mu    sync.Mutex
	gen   uint64
	state State
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "charge backend required")
	}
	if params.Addresses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address lookup required")
	}
	if params.SessionEmail == nil {
		params.SessionEmail = func() string { return "" }
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.NewKey == nil {
		params.NewKey = uuid.NewString
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Orchestrator{
		backend:      params.Backend,
		addresses:    params.Addresses,
		sessionEmail: params.SessionEmail,
		metrics:      params.Metrics,
		logger:       params.Logger,
		newKey:       params.NewKey,
		now:          params.Now,
		state:        State{Status: enums.ChargeStatusIdle},
	}, nil
}

// Charge validates preconditions, consumes the ready payment method and
// posts the charge. Precondition failures never reach the network.
func (o *Orchestrator) Charge(ctx context.Context, req Request, methods PaymentSource) (Result, error) {
	if err := o.checkStatus(); err != nil {
		return Result{}, err
	}
	if !req.Address.Selected {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "please select an address")
	}
	if req.Target == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "nothing to pay for")
	}
	if !req.Amount.IsPositive() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if methods == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "please add a payment method")
	}
	method, ok := methods.Peek()
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "please add a payment method")
	}
	email := strings.TrimSpace(method.Email)
	if email == "" {
		email = strings.TrimSpace(o.sessionEmail())
	}
	if email == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "billing email is required")
	}

	addr, err := o.addresses.Lookup(ctx, req.Address.ID)
	if err != nil {
		return Result{}, err
	}

	gen, err := o.begin()
	if err != nil {
		return Result{}, err
	}
	method, err = methods.Consume()
	if err != nil {
		o.settle(ctx, gen, nil, err)
		return Result{}, err
	}

	amount := req.Amount.Round(2)
	descriptor := req.Target.Descriptor()
	record := types.ChargeRequest{
		Email:         email,
		PaymentMethod: method.ID,
		Amount:        amount,
		Name:          addr.Name,
		CardNumber:    method.Last4,
		Address:       addr.ShippingLine(),
		OrderedItem:   descriptor,
		PaidStatus:    true,
		TotalPrice:    amount,
		IsDelivered:   false,
		DeliveredAt:   types.DeliveredAtPending,
	}
	key := o.newKey()
	ctx = o.logger.WithFields(ctx, map[string]any{
		"idempotency_key": key,
		"amount":          amount.StringFixed(2),
		"ordered_item":    descriptor,
	})

	started := o.now()
	resp, err := o.backend.CreateCharge(ctx, record, key)
	o.metrics.ObserveCharge(o.now().Sub(started), err)
	if err != nil {
		return Result{}, o.settle(ctx, gen, nil, err)
	}

	result := Result{
		ItemDescriptor: descriptor,
		Amount:         amount,
		Email:          email,
		ShippingLine:   record.Address,
		PaymentMethod:  method,
	}
	if resp != nil {
		result.OrderID = resp.OrderID
	}
	if err := o.settle(ctx, gen, &result, nil); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset returns the orchestrator to Idle for a new visit.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.state = State{Status: enums.ChargeStatusIdle}
}

// Abort discards a pending charge. A completed charge is kept.
func (o *Orchestrator) Abort(reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Status == enums.ChargeStatusSucceeded {
		return
	}
	o.gen++
	o.state = State{Status: enums.ChargeStatusIdle}
}

func (o *Orchestrator) checkStatus() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state.Status {
	case enums.ChargeStatusSucceeded:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment already completed")
	case enums.ChargeStatusCharging:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a charge is already in progress")
	}
	return nil
}

func (o *Orchestrator) begin() (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state.Status {
	case enums.ChargeStatusSucceeded:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "payment already completed")
	case enums.ChargeStatusCharging:
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "a charge is already in progress")
	}
	o.gen++
	o.state = State{Status: enums.ChargeStatusCharging}
	return o.gen, nil
}

func (o *Orchestrator) settle(ctx context.Context, gen uint64, result *Result, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		if err == nil {
			err = pkgerrors.New(pkgerrors.CodeCanceled, "charge was interrupted")
		}
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "charge was interrupted")
	}
	if err != nil {
		o.state = State{Status: enums.ChargeStatusFailed, Err: err}
		o.logger.Error(ctx, "charge failed", err)
		return err
	}
	o.state = State{Status: enums.ChargeStatusSucceeded, Result: result}
	o.logger.Info(o.logger.WithField(ctx, "order_id", result.OrderID), "charge succeeded")
	return nil
}
