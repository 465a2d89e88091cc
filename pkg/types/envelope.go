package types

// SuccessEnvelope wraps every 2xx body the dev backend writes.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error object inside an ErrorEnvelope. Details is only
// present for codes that expose them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the failure body. Detail and Message cover backends that
// answer with a flat {"detail": "..."} or {"message": "..."} instead.
type ErrorEnvelope struct {
	Error   *APIError `json:"error,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Message string    `json:"message,omitempty"`
}
