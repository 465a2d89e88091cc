package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/angelmondragon/storefront-checkout/internal/address"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/charges"
	"github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/target"
	"github.com/angelmondragon/storefront-checkout/internal/gateway"
	"github.com/angelmondragon/storefront-checkout/internal/paymentmethods"
	"github.com/angelmondragon/storefront-checkout/internal/receipts"
	"github.com/angelmondragon/storefront-checkout/internal/session"
	"github.com/angelmondragon/storefront-checkout/pkg/backend"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
)

const historyLimit = 20

type visitOptions struct {
	productID    string
	quantity     string
	cartAdds     string
	addressID    int64
	card         pkgcheckout.CardInput
	billingEmail string
	save         bool
	savedMethod  string
	listSaved    bool
	history      bool
}

type cartAdd struct {
	productID int64
	quantity  int
}

// parseCartAdds reads "2:2,3:1" into product/quantity pairs.
func parseCartAdds(raw string) ([]cartAdd, error) {
	var out []cartAdd
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qty, found := strings.Cut(part, ":")
		if !found {
			qty = "1"
		}
		productID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || productID <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id in -cart-add").WithDetails(map[string]any{"value": part})
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity in -cart-add").WithDetails(map[string]any{"value": part})
		}
		out = append(out, cartAdd{productID: productID, quantity: quantity})
	}
	return out, nil
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, guard *session.Guard, m *metrics.CheckoutMetrics, opts visitOptions) error {
	adds, err := parseCartAdds(opts.cartAdds)
	if err != nil {
		return err
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTokenSource(guard),
		backend.WithAuthFailureHandler(guard.HandleAuthFailure),
		backend.WithLogger(logg),
	)
	if err != nil {
		return err
	}

	if err := establishSession(ctx, cfg, guard, client); err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing receipts database", err)
		}
	}()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	if err := migrate.Up(ctx, sqlDB, cfg.DB.Driver); err != nil {
		return err
	}
	receiptSvc, err := receipts.NewService(receipts.ServiceParams{
		Repo:     receipts.NewRepository(dbClient.DB()),
		Currency: cfg.Checkout.Currency,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	if opts.history {
		current, _ := guard.Current()
		return printHistory(ctx, receiptSvc, current.UserID)
	}

	gw, err := gateway.New(ctx, *cfg, logg)
	if err != nil {
		return err
	}

	cartStore, err := cart.NewStore(client, logg)
	if err != nil {
		return err
	}
	defer guard.Register(cartStore)()

	resolver, err := target.NewResolver(target.ResolverParams{Products: client, Cart: cartStore, Logger: logg})
	if err != nil {
		return err
	}
	addresses, err := address.NewSelection(client, logg)
	if err != nil {
		return err
	}
	methods, err := paymentmethods.NewManager(paymentmethods.ManagerParams{
		Backend:   client,
		Gateway:   gateway.NewInstrumented(gw, m),
		Addresses: addresses,
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	orchestrator, err := charges.NewOrchestrator(charges.OrchestratorParams{
		Backend:      client,
		Addresses:    addresses,
		SessionEmail: guard.Email,
		Metrics:      m,
		Logger:       logg,
	})
	if err != nil {
		return err
	}
	ctrl, err := checkout.NewController(checkout.ControllerParams{
		Guard:          guard,
		Tokens:         client,
		Resolver:       resolver,
		Addresses:      addresses,
		PaymentMethods: methods,
		Charges:        orchestrator,
		Receipts:       receiptSvc,
		Metrics:        m,
		Logger:         logg,
		RequestTimeout: cfg.Backend.RequestTimeout,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	if opts.listSaved {
		saved, err := ctrl.SavedPaymentMethods(ctx)
		if err != nil {
			return err
		}
		for _, method := range saved {
			fmt.Printf("%s  %s ****%s  %s\n", method.ID, method.Brand, method.Last4, method.Email)
		}
		return nil
	}

	for _, add := range adds {
		if err := cartStore.Add(ctx, add.productID, add.quantity); err != nil {
			return err
		}
	}

	state, err := ctrl.ResolveTarget(ctx, target.Route{ProductID: opts.productID, Quantity: opts.quantity})
	if err != nil {
		return err
	}
	fmt.Printf("Checking out %s for %s\n", state.Target.Descriptor(), state.Target.Amount().StringFixed(2))

	ctrl.SelectAddress(opts.addressID)

	if opts.savedMethod != "" {
		if err := selectSaved(ctx, ctrl, opts.savedMethod); err != nil {
			return err
		}
	} else {
		method, err := ctrl.CreatePaymentMethod(ctx, checkout.PaymentInput{
			Card:  opts.card,
			Email: opts.billingEmail,
			Save:  opts.save,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Card ****%s ready\n", method.Last4)
	}

	status, err := ctrl.SubmitCharge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Payment successful: %s, %s (order %s)\n", status.ItemDescriptor, status.Amount.StringFixed(2), status.OrderID)
	return nil
}

// establishSession restores the persisted session, falling back to the
// token from config, then fills in the user from the backend.
func establishSession(ctx context.Context, cfg *config.Config, guard *session.Guard, client *backend.Client) error {
	if err := guard.Restore(ctx); err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeAuthExpired) || cfg.Session.Token == "" {
			return err
		}
		if err := guard.Establish(ctx, session.Session{Token: cfg.Session.Token, Email: cfg.Session.Email}); err != nil {
			return err
		}
	}

	current, _ := guard.Current()
	if current.UserID != "" && current.Email != "" {
		return nil
	}
	validation, err := client.ValidateToken(ctx)
	if err != nil {
		return err
	}
	if validation == nil || !validation.Valid {
		err := pkgerrors.New(pkgerrors.CodeAuthExpired, "please login to continue")
		guard.HandleAuthFailure(ctx, err)
		return err
	}
	if current.UserID == "" {
		current.UserID = validation.UserID
	}
	if current.Email == "" {
		current.Email = validation.Email
	}
	return guard.Establish(ctx, current)
}

func selectSaved(ctx context.Context, ctrl *checkout.Controller, id string) error {
	saved, err := ctrl.SavedPaymentMethods(ctx)
	if err != nil {
		return err
	}
	for _, method := range saved {
		if method.ID == id {
			if _, err := ctrl.SelectSavedPaymentMethod(ctx, method); err != nil {
				return err
			}
			fmt.Printf("Using saved card ****%s\n", method.Last4)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "saved payment method not found")
}

func printHistory(ctx context.Context, svc *receipts.Service, userID string) error {
	rows, err := svc.History(ctx, userID, historyLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "No receipts yet.")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%s  %-16s %10s %s  order %s\n", r.PaidAt.Format("2006-01-02 15:04"), r.ItemDescriptor, r.Amount.StringFixed(2), strings.ToUpper(r.Currency), r.OrderID)
	}
	return nil
}
