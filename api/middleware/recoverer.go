package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope carrying the request id.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":  fmt.Sprint(rec),
						"method": r.Method,
						"path":   r.URL.Path,
					})
					logg.Error(ctx, "panic.recovered", err)
				}
				typed := pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic")
				if reqID := RequestIDFromContext(r.Context()); reqID != "" {
					typed = typed.WithDetails(map[string]any{"request_id": reqID})
				}
				responses.WriteError(ctx, logg, w, typed)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
