package types

// SuccessEnvelope wraps every successful JSON response except the access
// arbitration RPC, which returns its flat player shape directly.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error body. Details is only populated for codes
// whose metadata allows it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps failed responses.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
