package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-checkout/internal/session"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront", Output: os.Stderr})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	reg := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)
	if cfg.App.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.App.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped unexpectedly", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	store, closeStore, err := sessionStore(ctx, cfg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap session store", err)
		os.Exit(1)
	}
	defer closeStore()

	guard, err := session.NewGuard(session.GuardParams{
		Store: store,
		Reauth: session.ReauthFunc(func(context.Context, error) error {
			fmt.Fprintln(os.Stderr, "Your session has expired. Please log in again.")
			return nil
		}),
		Logger:  logg,
		Metrics: checkoutMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create session guard", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logg, guard, checkoutMetrics, opts); err != nil {
		logg.Debug(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "checkout visit failed")
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if !cfg.Session.UsesRedis() {
		return session.NewMemoryStore(), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	store, err := session.NewRedisStore(client, cfg.Session.Key, cfg.Session.TTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func parseFlags() visitOptions {
	var opts visitOptions
	flag.StringVar(&opts.productID, "product", "", "product id to buy; empty checks out the cart")
	flag.StringVar(&opts.quantity, "qty", "", "quantity for -product")
	flag.StringVar(&opts.cartAdds, "cart-add", "", "comma separated product:qty pairs added to the cart first")
	flag.Int64Var(&opts.addressID, "address", 0, "shipping address id")
	flag.StringVar(&opts.card.Number, "card-number", "", "card number (stripe, fake)")
	flag.IntVar(&opts.card.ExpMonth, "exp-month", 0, "card expiry month")
	flag.IntVar(&opts.card.ExpYear, "exp-year", 0, "card expiry year")
	flag.StringVar(&opts.card.CVC, "cvc", "", "card security code")
	flag.StringVar(&opts.card.Nonce, "nonce", "", "card nonce (square)")
	flag.StringVar(&opts.card.Name, "name", "", "card holder name")
	flag.StringVar(&opts.card.PostalCode, "postal-code", "", "billing postal code")
	flag.StringVar(&opts.billingEmail, "email", "", "billing email when paying for someone else")
	flag.BoolVar(&opts.save, "save", false, "save the card for later visits")
	flag.StringVar(&opts.savedMethod, "saved-method", "", "pay with a saved payment method id")
	flag.BoolVar(&opts.listSaved, "list-saved", false, "list saved payment methods and exit")
	flag.BoolVar(&opts.history, "history", false, "print local receipts and exit")
	flag.Parse()
	return opts
}

func userMessage(err error) string {
	if pkgerrors.As(err) == nil {
		return err.Error()
	}
	msg := pkgerrors.UserMessage(err)
	if pkgerrors.Retryable(err) {
		msg += " You can try again."
	}
	return msg
}
