package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/charges"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/target"
	"github.com/angelmondragon/storefront-checkout/internal/paymentmethods"
	"github.com/angelmondragon/storefront-checkout/internal/receipts"
	"github.com/angelmondragon/storefront-checkout/internal/session"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// PaymentInput is what the shopper submits on the card form. Email, when
// set, bills a different card holder than the signed-in shopper.
type PaymentInput struct {
	Card  pkgcheckout.CardInput
	Email string
	Save  bool
}

// PaymentStatus is the confirmation shown after a successful charge.
type PaymentStatus struct {
	ItemDescriptor string
	Amount         decimal.Decimal
	OrderID        string
}

// View is a point-in-time picture of the whole visit.
type View struct {
	VisitID       uuid.UUID
	Phase         enums.CheckoutPhase
	Target        target.State
	Address       address.Snapshot
	PaymentMethod paymentmethods.State
	Charge        charges.State
	Amount        decimal.Decimal
	AmountFrozen  bool
	Status        *PaymentStatus
}

type SessionGuard interface {
	Valid() bool
	Current() (session.Session, bool)
	Email() string
	Register(p session.Abortable) func()
	HandleAuthFailure(ctx context.Context, err error)
}

type TokenValidator interface {
	ValidateToken(ctx context.Context) (*types.TokenValidation, error)
}

type TargetResolver interface {
	Resolve(ctx context.Context, route target.Route) target.State
	Refresh(ctx context.Context) target.State
	State() target.State
	Subscribe(fn func(target.State)) func()
	Close()
}

type ReceiptRecorder interface {
	Record(ctx context.Context, r receipts.Receipt) error
}

type ControllerParams struct {
	Guard          SessionGuard
	Tokens         TokenValidator
	Resolver       TargetResolver
	Addresses      *address.Selection
	PaymentMethods *paymentmethods.Manager
	Charges        *charges.Orchestrator
	Receipts       ReceiptRecorder
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Controller runs one checkout visit. It composes the target resolver,
// address selection, payment method manager and charge orchestrator and
// tracks the coarse phase of the visit.
type Controller struct {
	guard     SessionGuard
	tokens    TokenValidator
	resolver  TargetResolver
	addresses *address.Selection
	methods   *paymentmethods.Manager
	charges   *charges.Orchestrator
	receipts  ReceiptRecorder
	metrics   *metrics.CheckoutMetrics
	logger    *logger.Logger
	timeout   time.Duration
	now       func() time.Time
	visitID   uuid.UUID

	visitCtx    context.Context
	cancelVisit context.CancelFunc
	unregister  []func()

	mu           sync.Mutex
	gen          uint64
	phase        enums.CheckoutPhase
	amount       decimal.Decimal
	amountFrozen bool
	status       *PaymentStatus
	nextSub      int
	subs         map[int]func(View)
}

func NewController(params ControllerParams) (*Controller, error) {
	switch {
	case params.Guard == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session guard required")
	case params.Tokens == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token validator required")
	case params.Resolver == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "target resolver required")
	case params.Addresses == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address selection required")
	case params.PaymentMethods == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method manager required")
	case params.Charges == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "charge orchestrator required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	visitCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		guard:       params.Guard,
		tokens:      params.Tokens,
		resolver:    params.Resolver,
		addresses:   params.Addresses,
		methods:     params.PaymentMethods,
		charges:     params.Charges,
		receipts:    params.Receipts,
		metrics:     params.Metrics,
		logger:      params.Logger,
		timeout:     params.RequestTimeout,
		now:         params.Now,
		visitID:     uuid.New(),
		visitCtx:    visitCtx,
		cancelVisit: cancel,
		phase:       enums.CheckoutPhaseResolvingTarget,
		subs:        map[int]func(View){},
	}
	c.unregister = []func(){
		params.Guard.Register(params.PaymentMethods),
		params.Guard.Register(params.Charges),
		params.Guard.Register(c),
	}
	if !params.Guard.Valid() {
		c.Abort(pkgerrors.New(pkgerrors.CodeAuthExpired, "please login to continue"))
	}
	return c, nil
}

// VisitID identifies this visit in logs and receipts.
func (c *Controller) VisitID() uuid.UUID {
	return c.visitID
}

// Start confirms the session with the backend and resets any charge left
// over from an earlier visit.
func (c *Controller) Start(ctx context.Context) error {
	opCtx, done, gen, err := c.begin(ctx, "start")
	if err != nil {
		return err
	}
	defer done()

	validation, err := c.tokens.ValidateToken(opCtx)
	if err == nil && (validation == nil || !validation.Valid) {
		err = pkgerrors.New(pkgerrors.CodeAuthExpired, "please login to continue")
		c.guard.HandleAuthFailure(opCtx, err)
	}
	if err := c.settle(gen, err); err != nil {
		return err
	}
	c.charges.Reset()
	c.logger.Info(opCtx, "checkout visit started")
	c.publish()
	return nil
}

// ResolveTarget resolves what is being bought from the route inputs.
// Target errors are returned and also kept in the view.
func (c *Controller) ResolveTarget(ctx context.Context, route target.Route) (target.State, error) {
	opCtx, done, gen, err := c.begin(ctx, "resolve_target")
	if err != nil {
		return target.State{}, err
	}
	defer done()

	previous := c.resolver.State()
	state := c.resolver.Resolve(opCtx, route)
	if err := c.settle(gen, state.Err); err != nil {
		return state, err
	}

	routeChanged := previous.Ready() && previous.Route != route
	if routeChanged && c.Phase() == enums.CheckoutPhaseAwaitingCharge {
		c.methods.Abort(pkgerrors.New(pkgerrors.CodeStateConflict, "checkout items changed"))
	}

	c.mu.Lock()
	switch {
	case c.phase == enums.CheckoutPhaseAwaitingCharge && routeChanged:
		c.amountFrozen = false
		c.amount = decimal.Zero
		c.setPhaseLocked(opCtx, enums.CheckoutPhaseAwaitingPaymentMethod)
	case c.phase == enums.CheckoutPhaseResolvingTarget:
		if _, ready := c.methods.Peek(); ready && state.Target != nil {
			c.amount = state.Target.Amount()
			c.amountFrozen = true
			c.setPhaseLocked(opCtx, enums.CheckoutPhaseAwaitingCharge)
		} else {
			c.setPhaseLocked(opCtx, enums.CheckoutPhaseAwaitingPaymentMethod)
		}
	}
	c.mu.Unlock()
	c.publish()
	return state, nil
}

// Refresh re-fetches the current target.
func (c *Controller) Refresh(ctx context.Context) (target.State, error) {
	opCtx, done, gen, err := c.begin(ctx, "refresh_target")
	if err != nil {
		return target.State{}, err
	}
	defer done()

	state := c.resolver.Refresh(opCtx)
	if err := c.settle(gen, state.Err); err != nil {
		return state, err
	}
	c.publish()
	return state, nil
}

// SelectAddress records the shipping address. A zero id clears it.
func (c *Controller) SelectAddress(id int64) address.Snapshot {
	snap := c.addresses.Select(id)
	c.publish()
	return snap
}

// CreatePaymentMethod tokenizes a new card for this visit.
func (c *Controller) CreatePaymentMethod(ctx context.Context, in PaymentInput) (paymentmethods.PaymentMethod, error) {
	if err := c.requireOpenPayment(); err != nil {
		return paymentmethods.PaymentMethod{}, err
	}
	opCtx, done, gen, err := c.begin(ctx, "create_payment_method")
	if err != nil {
		return paymentmethods.PaymentMethod{}, err
	}
	defer done()

	billingEmail, save := c.billing(in)
	in.Card.Email = billingEmail
	method, err := c.methods.CreateFromGateway(opCtx, in.Card, billingEmail, save)
	if err := c.settle(gen, err); err != nil {
		c.publish()
		return paymentmethods.PaymentMethod{}, err
	}
	c.onMethodReady(opCtx)
	return method, nil
}

// SelectSavedPaymentMethod uses a card already on file for this visit.
func (c *Controller) SelectSavedPaymentMethod(ctx context.Context, saved types.SavedPaymentMethod) (paymentmethods.PaymentMethod, error) {
	if err := c.requireOpenPayment(); err != nil {
		return paymentmethods.PaymentMethod{}, err
	}
	opCtx, done, gen, err := c.begin(ctx, "select_saved_payment_method")
	if err != nil {
		return paymentmethods.PaymentMethod{}, err
	}
	defer done()

	if strings.TrimSpace(saved.Email) == "" {
		saved.Email = c.guard.Email()
	}
	method, err := c.methods.SelectSaved(opCtx, saved)
	if err := c.settle(gen, err); err != nil {
		c.publish()
		return paymentmethods.PaymentMethod{}, err
	}
	c.onMethodReady(opCtx)
	return method, nil
}

// SubmitCharge charges the ready payment method for the frozen amount.
func (c *Controller) SubmitCharge(ctx context.Context) (PaymentStatus, error) {
	opCtx, done, gen, err := c.begin(ctx, "submit_charge")
	if err != nil {
		return PaymentStatus{}, err
	}
	defer done()

	targetState := c.resolver.State()
	c.mu.Lock()
	amount := c.amount
	if !c.amountFrozen && targetState.Target != nil {
		amount = targetState.Target.Amount()
	}
	c.mu.Unlock()

	result, err := c.charges.Charge(opCtx, charges.Request{
		Target:  targetState.Target,
		Amount:  amount,
		Address: c.addresses.Snapshot(),
	}, c.methods)
	if err := c.settle(gen, err); err != nil {
		if c.charges.State().Status == enums.ChargeStatusFailed {
			c.mu.Lock()
			c.amountFrozen = false
			c.amount = decimal.Zero
			if c.phase == enums.CheckoutPhaseAwaitingCharge {
				c.setPhaseLocked(opCtx, enums.CheckoutPhaseAwaitingPaymentMethod)
			}
			c.mu.Unlock()
		}
		c.publish()
		return PaymentStatus{}, err
	}

	status := PaymentStatus{
		ItemDescriptor: result.ItemDescriptor,
		Amount:         result.Amount,
		OrderID:        result.OrderID,
	}
	c.mu.Lock()
	c.status = &status
	c.setPhaseLocked(opCtx, enums.CheckoutPhaseDone)
	c.mu.Unlock()
	c.methods.Abort(pkgerrors.New(pkgerrors.CodeValidation, "payment already completed"))

	c.recordReceipt(opCtx, result)
	c.publish()
	return status, nil
}

// DeletePaymentMethod removes a saved card. If it was the ready method the
// visit goes back to awaiting a payment method.
func (c *Controller) DeletePaymentMethod(ctx context.Context, id string) error {
	opCtx, done, gen, err := c.begin(ctx, "delete_payment_method")
	if err != nil {
		return err
	}
	defer done()

	err = c.methods.Delete(opCtx, id)
	if err := c.settle(gen, err); err != nil {
		return err
	}
	c.mu.Lock()
	if _, ready := c.methods.Peek(); !ready && c.phase == enums.CheckoutPhaseAwaitingCharge {
		c.amountFrozen = false
		c.amount = decimal.Zero
		c.setPhaseLocked(opCtx, enums.CheckoutPhaseAwaitingPaymentMethod)
	}
	c.mu.Unlock()
	c.publish()
	return nil
}

// SavedPaymentMethods lists the shopper's cards on file.
func (c *Controller) SavedPaymentMethods(ctx context.Context) ([]types.SavedPaymentMethod, error) {
	opCtx, done, gen, err := c.begin(ctx, "list_payment_methods")
	if err != nil {
		return nil, err
	}
	defer done()

	saved, err := c.methods.ListSaved(opCtx)
	if err := c.settle(gen, err); err != nil {
		return nil, err
	}
	return saved, nil
}

func (c *Controller) Phase() enums.CheckoutPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns a snapshot of the visit.
func (c *Controller) State() View {
	targetState := c.resolver.State()
	c.mu.Lock()
	defer c.mu.Unlock()
	view := View{
		VisitID:       c.visitID,
		Phase:         c.phase,
		Target:        targetState,
		Address:       c.addresses.Snapshot(),
		PaymentMethod: c.methods.State(),
		Charge:        c.charges.State(),
		Amount:        c.amount,
		AmountFrozen:  c.amountFrozen,
	}
	if !c.amountFrozen && targetState.Target != nil {
		view.Amount = targetState.Target.Amount()
	}
	if c.status != nil {
		status := *c.status
		view.Status = &status
	}
	return view
}

// Subscribe registers fn for every change of the visit.
func (c *Controller) Subscribe(fn func(View)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Abort is called by the session guard when the session ends.
func (c *Controller) Abort(reason error) {
	c.mu.Lock()
	if c.phase == enums.CheckoutPhaseUnauthenticated || c.phase == enums.CheckoutPhaseAbandoned {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.amountFrozen = false
	c.amount = decimal.Zero
	ctx := c.logger.WithVisitID(context.Background(), c.visitID.String())
	if reason != nil {
		ctx = c.logger.WithField(ctx, "reason", reason.Error())
	}
	c.setPhaseLocked(ctx, enums.CheckoutPhaseUnauthenticated)
	c.mu.Unlock()

	c.cancelVisit()
	c.publish()
}

// Close ends the visit. In-flight operations are canceled and their
// results discarded. A finished or unauthenticated visit keeps its phase.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	if c.phase != enums.CheckoutPhaseDone && c.phase != enums.CheckoutPhaseUnauthenticated && c.phase != enums.CheckoutPhaseAbandoned {
		c.setPhaseLocked(c.logger.WithVisitID(context.Background(), c.visitID.String()), enums.CheckoutPhaseAbandoned)
	}
	unregister := c.unregister
	c.unregister = nil
	c.mu.Unlock()

	c.cancelVisit()
	for _, fn := range unregister {
		fn()
	}
	c.resolver.Close()
	c.publish()
}

// begin derives the context of one operation from the caller and the visit,
// and captures the visit generation.
func (c *Controller) begin(ctx context.Context, op string) (context.Context, func(), uint64, error) {
	c.mu.Lock()
	phase, gen := c.phase, c.gen
	c.mu.Unlock()

	switch phase {
	case enums.CheckoutPhaseUnauthenticated:
		return nil, nil, 0, pkgerrors.New(pkgerrors.CodeAuthExpired, "please login to continue")
	case enums.CheckoutPhaseAbandoned:
		return nil, nil, 0, pkgerrors.New(pkgerrors.CodeCanceled, "checkout visit closed")
	}

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.visitCtx, cancel)
	var cancelTimeout context.CancelFunc = func() {}
	if c.timeout > 0 {
		opCtx, cancelTimeout = context.WithTimeout(opCtx, c.timeout)
	}
	opCtx = c.logger.WithVisitID(opCtx, c.visitID.String())
	opCtx = c.logger.WithField(opCtx, "op", op)
	if s, ok := c.guard.Current(); ok && s.UserID != "" {
		opCtx = c.logger.WithUserID(opCtx, s.UserID)
	}

	done := func() {
		cancelTimeout()
		stop()
		cancel()
	}
	return opCtx, done, gen, nil
}

// requireOpenPayment rejects new payment methods once the visit is paid.
func (c *Controller) requireOpenPayment() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == enums.CheckoutPhaseDone {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment already completed")
	}
	return nil
}

// settle discards results of operations that outlived their visit generation.
func (c *Controller) settle(gen uint64, err error) error {
	c.mu.Lock()
	current, phase := c.gen, c.phase
	c.mu.Unlock()

	if gen == current && c.guard.Valid() {
		return err
	}
	if phase == enums.CheckoutPhaseUnauthenticated || !c.guard.Valid() {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeAuthExpired {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, err, "please login to continue")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "checkout visit closed")
	}
	return pkgerrors.New(pkgerrors.CodeCanceled, "checkout visit closed")
}

func (c *Controller) billing(in PaymentInput) (string, bool) {
	sessionEmail := strings.TrimSpace(c.guard.Email())
	override := strings.TrimSpace(in.Email)
	if override == "" {
		override = strings.TrimSpace(in.Card.Email)
	}
	if override == "" || strings.EqualFold(override, sessionEmail) {
		return sessionEmail, in.Save
	}
	return override, false
}

func (c *Controller) onMethodReady(ctx context.Context) {
	targetState := c.resolver.State()
	c.mu.Lock()
	if targetState.Target != nil && c.phase == enums.CheckoutPhaseAwaitingPaymentMethod {
		c.amount = targetState.Target.Amount()
		c.amountFrozen = true
		c.setPhaseLocked(c.logger.WithField(ctx, "amount", c.amount.StringFixed(2)), enums.CheckoutPhaseAwaitingCharge)
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) recordReceipt(ctx context.Context, result charges.Result) {
	if c.receipts == nil {
		return
	}
	s, _ := c.guard.Current()
	err := c.receipts.Record(context.WithoutCancel(ctx), receipts.Receipt{
		VisitID:         c.visitID,
		UserID:          s.UserID,
		OrderID:         result.OrderID,
		ItemDescriptor:  result.ItemDescriptor,
		Amount:          result.Amount,
		Email:           result.Email,
		PaymentMethodID: result.PaymentMethod.ID,
		Last4:           result.PaymentMethod.Last4,
		ShippingLine:    result.ShippingLine,
		PaidAt:          c.now(),
	})
	if err != nil {
		c.logger.Error(ctx, "failed to record receipt", err)
	}
}

func (c *Controller) setPhaseLocked(ctx context.Context, phase enums.CheckoutPhase) {
	if c.phase == phase {
		return
	}
	from := c.phase
	c.phase = phase
	c.metrics.ObservePhase(phase.String())
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"from": from.String(),
		"to":   phase.String(),
	}), "checkout phase changed")
}

func (c *Controller) publish() {
	view := c.State()
	c.mu.Lock()
	subs := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(view)
	}
}
