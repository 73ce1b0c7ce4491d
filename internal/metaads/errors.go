package metaads

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned before any request when the tenant's
// credentials are incomplete.
var ErrMissingCredentials = errors.New("ad platform credentials incomplete")

// Error codes the platform uses for temporary conditions. Calls failing with
// one of these are retried.
var retryableCodes = map[int]bool{
	1:   true, // unknown, temporary
	2:   true, // service unavailable
	4:   true, // app rate limit
	17:  true, // user rate limit
	32:  true, // page rate limit
	613: true, // custom throttle
}

// OAuth codes mean the token is bad. Never retried.
var oauthCodes = map[int]bool{
	190: true,
	102: true,
	467: true,
}

var hints = map[int]string{
	190: "Invalid or expired token. Renew the access token.",
	100: "Invalid parameter. Check the fields sent.",
	17:  "User rate limit reached. Wait before trying again.",
	4:   "Application rate limit reached.",
	32:  "Page rate limit reached.",
}

const defaultHint = "Check the request parameters and the token permissions."

// APIError is an error returned by the Graph API.
type APIError struct {
	// HTTPStatus is the response status code. Zero for transport failures.
	HTTPStatus int

	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	UserTitle string `json:"error_user_title"`
	UserMsg   string `json:"error_user_msg"`
	TraceID   string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (subcode=%d): %s", e.Code, e.Subcode, e.Message)
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	if oauthCodes[e.Code] {
		return false
	}
	if retryableCodes[e.Code] {
		return true
	}
	// A 5xx without a platform code is an outage, not a bad request.
	return e.Code == 0 && e.HTTPStatus >= 500
}

// OAuth reports whether the token was rejected.
func (e *APIError) OAuth() bool {
	return oauthCodes[e.Code]
}

// Hint returns a remediation hint keyed by the error code.
func (e *APIError) Hint() string {
	if h, ok := hints[e.Code]; ok {
		return h
	}
	return defaultHint
}

// Describe formats the decoded reason and hint for callers and audit logs.
func (e *APIError) Describe() string {
	return fmt.Sprintf("Meta API Error %d (subcode=%d): %s. Hint: %s", e.Code, e.Subcode, e.Message, e.Hint())
}

// IsRetryable classifies any error returned by a single attempt. Transport
// failures are retried; unknown errors are not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var tErr *transportError
	return errors.As(err, &tErr)
}

// Describe returns the caller-facing reason for err: the decoded reason and
// hint for platform errors, or a generic transport message.
func Describe(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Describe()
	}
	var tErr *transportError
	if errors.As(err, &tErr) {
		return "Meta API unreachable: " + tErr.Err.Error()
	}
	return err.Error()
}

// transportError wraps network failures so they are classified retryable.
type transportError struct {
	Err error
}

func (e *transportError) Error() string { return "graph api transport: " + e.Err.Error() }

func (e *transportError) Unwrap() error { return e.Err }
