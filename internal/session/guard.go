package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-checkout/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

// Abortable is anything holding in-flight checkout state that must be
// discarded when the session ends.
type Abortable interface {
	Abort(reason error)
}

// Reauthenticator sends the shopper back to login once the session is gone.
type Reauthenticator interface {
	RequireLogin(ctx context.Context, reason error) error
}

// ReauthFunc adapts a function to Reauthenticator.
type ReauthFunc func(ctx context.Context, reason error) error

func (f ReauthFunc) RequireLogin(ctx context.Context, reason error) error {
	return f(ctx, reason)
}

// GuardParams groups dependencies for the session guard.
type GuardParams struct {
	Store   Store
	Reauth  Reauthenticator
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
}

// Guard owns the shopper session. It hands out the bearer token, and on
// any authentication failure it tears down every registered participant,
// clears the persisted session and asks for a new login.
type Guard struct {
	store   Store
	reauth  Reauthenticator
	logger  *logger.Logger
	metrics *metrics.CheckoutMetrics
	now     func() time.Time

	mu           sync.Mutex
	current      *Session
	done         chan struct{}
	nextID       int
	participants map[int]Abortable
}

func NewGuard(params GuardParams) (*Guard, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store required")
	}
	g := &Guard{
		store:        params.Store,
		reauth:       params.Reauth,
		logger:       params.Logger,
		metrics:      params.Metrics,
		now:          params.Now,
		participants: map[int]Abortable{},
		done:         closedChan(),
	}
	if g.logger == nil {
		g.logger = logger.Nop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func sessionExpired(msg string) *pkgerrors.Error {
	if msg == "" {
		msg = pkgerrors.MetadataFor(pkgerrors.CodeAuthExpired).PublicMessage
	}
	return pkgerrors.New(pkgerrors.CodeAuthExpired, msg)
}

// Establish makes s the active session and persists it.
func (g *Guard) Establish(ctx context.Context, s Session) error {
	s = s.normalized()
	if s.Token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session token is required")
	}
	if err := g.store.Save(ctx, s); err != nil {
		return err
	}
	g.activate(s)
	g.logger.Info(g.logger.WithUserID(ctx, s.UserID), "session established")
	return nil
}

// Restore activates the persisted session, if any.
func (g *Guard) Restore(ctx context.Context) error {
	s, err := g.store.Load(ctx)
	if err != nil {
		return err
	}
	if s == nil || s.normalized().Token == "" {
		return sessionExpired("please login to continue")
	}
	g.activate(s.normalized())
	return nil
}

func (g *Guard) activate(s Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil {
		select {
		case <-g.done:
		default:
			close(g.done)
		}
	}
	g.current = &s
	g.done = make(chan struct{})
}

// Valid reports whether a session is active. Fetched checkout data must not
// be applied once this turns false.
func (g *Guard) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// Done is closed when the current session ends.
func (g *Guard) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Current returns a copy of the active session.
func (g *Guard) Current() (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return Session{}, false
	}
	return *g.current, true
}

// Email is the signed-in shopper's email, used as the default billing email.
func (g *Guard) Email() string {
	s, _ := g.Current()
	return s.Email
}

// Token returns the bearer token. A token whose exp claim has passed ends
// the session locally instead of waiting for the backend to refuse it.
func (g *Guard) Token(ctx context.Context) (string, error) {
	s, ok := g.Current()
	if !ok {
		return "", sessionExpired("")
	}
	if exp, hasExp, err := auth.PeekExpiry(s.Token); err == nil && hasExp && !g.now().Before(exp) {
		reason := sessionExpired("")
		_ = g.Invalidate(ctx, reason)
		return "", reason
	}
	return s.Token, nil
}

// Register adds a participant to abort on invalidation. The returned func
// removes it again.
func (g *Guard) Register(p Abortable) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.participants[id] = p
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.participants, id)
	}
}

// HandleAuthFailure is the backend client's 401 hook.
func (g *Guard) HandleAuthFailure(ctx context.Context, err error) {
	if err == nil {
		err = sessionExpired("")
	}
	if invErr := g.Invalidate(ctx, err); invErr != nil {
		g.logger.Error(ctx, "session teardown incomplete", invErr)
	}
}

// Invalidate ends the session: Done is closed, participants are aborted,
// the stored session is cleared and login is requested. Only the first call
// per session does any work.
func (g *Guard) Invalidate(ctx context.Context, reason error) error {
	g.mu.Lock()
	if g.current == nil {
		g.mu.Unlock()
		return nil
	}
	userID := g.current.UserID
	g.current = nil
	close(g.done)
	participants := make([]Abortable, 0, len(g.participants))
	for _, p := range g.participants {
		participants = append(participants, p)
	}
	g.mu.Unlock()

	if reason == nil {
		reason = sessionExpired("")
	}
	ctx = g.logger.WithUserID(ctx, userID)
	g.logger.Warn(g.logger.WithField(ctx, "reason", reason.Error()), "session invalidated")
	g.metrics.IncSessionExpired()

	for _, p := range participants {
		p.Abort(reason)
	}

	// the caller's context may already be canceled by the teardown above
	cleanupCtx := context.WithoutCancel(ctx)
	var errs error
	errs = multierr.Append(errs, g.store.Clear(cleanupCtx))
	if g.reauth != nil {
		errs = multierr.Append(errs, g.reauth.RequireLogin(cleanupCtx, reason))
	}
	return errs
}
