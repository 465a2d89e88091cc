package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Stripe-style test numbers the fake declines.
const (
	DeclinedCardNumber     = "4000000000000002"
	InsufficientCardNumber = "4000000000009995"
)

// Fake is an in-process gateway for local runs and tests.
type Fake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func NewFake() *Fake {
	return &Fake{}
}

// FailWith makes every following Tokenize call return err.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns how many times Tokenize ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Provider() string {
	return "fake"
}

func (f *Fake) Tokenize(ctx context.Context, card checkout.CardInput) (Token, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return Token{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Token{}, pkgerrors.Wrap(pkgerrors.CodeCanceled, ctxErr, "tokenization canceled")
	}
	switch strings.ReplaceAll(card.Number, " ", "") {
	case DeclinedCardNumber:
		return Token{}, pkgerrors.New(pkgerrors.CodeGateway, "Your card was declined.")
	case InsufficientCardNumber:
		return Token{}, pkgerrors.New(pkgerrors.CodeGateway, "Your card has insufficient funds.")
	}
	last4 := card.Last4()
	if last4 == "" {
		last4 = "1111"
	}
	return Token{ID: "pm_fake_" + uuid.NewString(), Last4: last4, Brand: "visa", Provider: f.Provider()}, nil
}
