package gatewaysdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes the gateway itself emits. Backend workers choose their own
// bodies; those surface as *WorkerError.
const (
	ErrorCodeUnauthenticated     = "unauthenticated"
	ErrorCodeExpired             = "expired"
	ErrorCodeInvalidCredential   = "invalid_credential"
	ErrorCodeBadRequest          = "bad_request"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeConflict            = "conflict"
	ErrorCodeRateLimited         = "rate_limit_exceeded"
	ErrorCodeUpstreamUnavailable = "upstream_unavailable"
	ErrorCodeGatewayTimeout      = "gateway_timeout"
	ErrorCodeInternal            = "internal"
)

// Error is a gateway error response.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// WorkerError is a non-2xx reply relayed verbatim from a backend worker.
type WorkerError struct {
	StatusCode int
	Body       string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker replied %d: %s", e.StatusCode, e.Body)
}

// StepUpRequiredError is returned by SignIn when the account has TOTP
// enabled. Pass State to CompleteStepUp.
type StepUpRequiredError struct {
	State    string
	Location string
}

func (e *StepUpRequiredError) Error() string {
	return "step-up code required"
}

// IsCode reports whether err is a gateway *Error with the given code.
func IsCode(err error, code string) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// parseErrorResponse turns a non-success response into *Error, or into
// *WorkerError when the body does not look like a gateway error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		return &WorkerError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return &Error{
		StatusCode:  resp.StatusCode,
		Code:        er.Error,
		Description: er.ErrorDescription,
	}
}
