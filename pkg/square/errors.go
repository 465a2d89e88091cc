package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// mapError turns SDK failures into typed errors. Card rejections carry
// Square's detail text so the shopper sees it unchanged.
func mapError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}

	code := codeForStatus(apiErr.StatusCode)
	for _, item := range decodeErrors(apiErr) {
		switch {
		case item == nil:
			continue
		case item.Category == sq.ErrorCategoryPaymentMethodError:
			msg := strings.TrimSpace(derefString(item.Detail))
			if msg == "" {
				msg = string(item.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
		case item.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case item.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeUnauthorized
		}
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

// decodeErrors reads the errors array Square returns in the response body.
func decodeErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(inner.Error()), &body); err != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusPaymentRequired:
		return pkgerrors.CodeGateway
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
