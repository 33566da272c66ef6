package errors

// ErrorCode is a machine-readable error identifier returned to frontends so
// checkout pages can branch on failures without parsing messages.
type ErrorCode string

// Validation errors (request input).
const (
	ErrCodeMissingField     ErrorCode = "missing_field"
	ErrCodeInvalidField     ErrorCode = "invalid_field"
	ErrCodeInvalidAmount    ErrorCode = "invalid_amount"
	ErrCodeInvalidEmail     ErrorCode = "invalid_email"
	ErrCodeMissingReference ErrorCode = "missing_reference"
)

// Payment lifecycle errors.
const (
	ErrCodePaymentNotFound   ErrorCode = "payment_not_found"
	ErrCodeDuplicateReference ErrorCode = "duplicate_reference"
	ErrCodePaymentPending    ErrorCode = "payment_pending"
	ErrCodePaymentFailed     ErrorCode = "payment_failed"
)

// Human-verification errors.
const (
	ErrCodeCaptchaInvalid     ErrorCode = "captcha_invalid"
	ErrCodeCaptchaUnavailable ErrorCode = "captcha_unavailable"
)

// External service errors.
const (
	ErrCodeGatewayError   ErrorCode = "gateway_error"
	ErrCodeGatewayTimeout ErrorCode = "gateway_timeout"
	ErrCodeNetworkError   ErrorCode = "network_error"
)

// Internal/system errors.
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable reports whether the client should retry the request.
// Transient gateway/network conditions are retryable; validation failures
// and terminal payment states are not.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeGatewayError,
		ErrCodeGatewayTimeout,
		ErrCodeNetworkError,
		ErrCodeCaptchaUnavailable,
		ErrCodePaymentPending:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount,
		ErrCodeInvalidEmail,
		ErrCodeMissingReference,
		ErrCodeCaptchaInvalid,
		ErrCodePaymentFailed:
		return 400

	case ErrCodePaymentNotFound:
		return 404

	case ErrCodeDuplicateReference:
		return 409

	case ErrCodeGatewayError,
		ErrCodeGatewayTimeout,
		ErrCodeNetworkError:
		return 502

	case ErrCodeCaptchaUnavailable:
		return 503

	default:
		return 500
	}
}
