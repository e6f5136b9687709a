package apierrors

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes returned to API clients
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeAffiliateNotFound     = "AFFILIATE_NOT_FOUND"
	CodeAffiliateExists       = "AFFILIATE_EXISTS"
	CodeAffiliateInactive     = "AFFILIATE_INACTIVE"
	CodeInvalidCode           = "INVALID_AFFILIATE_CODE"
	CodeCodeTaken             = "AFFILIATE_CODE_TAKEN"
	CodeInvalidMode           = "INVALID_COMMISSION_MODE"
	CodeSameMode              = "SAME_COMMISSION_MODE"
	CodeCooldownActive        = "COOLDOWN_ACTIVE"
	CodeNotDiscountMode       = "NOT_DISCOUNT_MODE"
	CodeInvalidSource         = "INVALID_POINTS_SOURCE"
	CodeInvalidSale           = "INVALID_SALE"
	CodeCommissionNotFound    = "COMMISSION_NOT_FOUND"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeLedgerHalted          = "LEDGER_HALTED"
	CodeAggregateMismatch     = "AGGREGATE_MISMATCH"
	CodePotNotFound           = "POT_NOT_FOUND"
	CodePayoutNotFound        = "PAYOUT_NOT_FOUND"
	CodePayoutPending         = "PAYOUT_ALREADY_PENDING"
	CodeBelowMinimumPayout    = "BELOW_MINIMUM_PAYOUT"
	CodeMissingPayoutEmail    = "MISSING_PAYOUT_EMAIL"
	CodePaymentProviderError  = "PAYMENT_PROVIDER_ERROR"
	CodeEmailServiceError     = "EMAIL_SERVICE_ERROR"
	CodeLedgerWriteFailed     = "LEDGER_WRITE_FAILED"
	CodeDistributionInFlight  = "DISTRIBUTION_IN_PROGRESS"
	CodeInvalidWebhookPayload = "INVALID_WEBHOOK_PAYLOAD"
	CodeReservedCode          = "AFFILIATE_CODE_RESERVED"
	CodeReferrerNotFound      = "REFERRER_NOT_FOUND"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodeInvalidDiscount       = "INVALID_DISCOUNT_AMOUNT"
	CodeDuplicateOrder        = "DUPLICATE_ORDER"
	CodeNothingToSettle       = "NOTHING_TO_SETTLE"
	CodeHaltNotFound          = "HALT_NOT_FOUND"
	CodeFutureDate            = "FUTURE_DATE"
	CodeMissingPayoutAccount  = "MISSING_PAYOUT_ACCOUNT"
	CodePayoutNotPending      = "PAYOUT_NOT_PENDING"
	CodePayoutNotProcessing   = "PAYOUT_NOT_PROCESSING"
	CodeProviderNotConfigured = "PAYOUT_PROVIDER_NOT_CONFIGURED"
	CodeSettlementFailed      = "SETTLEMENT_FAILED"
	CodeDuplicate             = "DUPLICATE"
	CodeJobQueueUnavailable   = "JOB_QUEUE_UNAVAILABLE"
)

// APIError is an error that knows its HTTP representation
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// WithDetails attaches extra response fields
func (e *APIError) WithDetails(details map[string]any) *APIError {
	e.Details = details
	return e
}

func NotFound(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusNotFound, Code: code, Message: message}
}

func BadRequest(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: code, Message: message}
}

func Unauthorized(message string) *APIError {
	return &APIError{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func Forbidden(message string) *APIError {
	return &APIError{StatusCode: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func Conflict(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusConflict, Code: code, Message: message}
}

func TooManyRequests(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusTooManyRequests, Code: code, Message: message}
}

func UnprocessableEntity(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusUnprocessableEntity, Code: code, Message: message}
}

// ServiceUnavailable keeps the internal error for logging only
func ServiceUnavailable(code, message string, err error) *APIError {
	return &APIError{StatusCode: http.StatusServiceUnavailable, Code: code, Message: message, Err: err}
}

// InternalError sanitizes the message - never exposes internal details
func InternalError(err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    "An internal error occurred. Please try again later.",
		Err:        err,
	}
}
