package errors

import "net/http"

type Code string

// Codes shared by the API, the dev backend and the checkout client.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Checkout-side codes. Gateway errors carry the processor's decline text;
// backend errors carry the server's message.
const (
	CodeGateway     Code = "GATEWAY_ERROR"
	CodeBackend     Code = "BACKEND_ERROR"
	CodeAuthExpired Code = "AUTH_EXPIRED"
	CodeTimeout     Code = "TIMEOUT"
	CodeCanceled    Code = "CANCELED"
)

// statusClientClosedRequest is nginx's code for a caller that went away.
const statusClientClosedRequest = 499

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", true},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true},
	CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true},

	CodeGateway:     {http.StatusPaymentRequired, true, "card could not be processed", false},
	CodeBackend:     {http.StatusBadGateway, false, "request failed", true},
	CodeAuthExpired: {http.StatusUnauthorized, false, "session expired, please login again", false},
	CodeTimeout:     {http.StatusGatewayTimeout, true, "request timed out", false},
	CodeCanceled:    {statusClientClosedRequest, false, "request canceled", false},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}
