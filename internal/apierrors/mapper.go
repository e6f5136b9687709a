package apierrors

import (
	"errors"
	"net/http"
	"strings"

	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	commissionsProcessor "commission-engine/internal/commissions/processor"
	payoutsProcessor "commission-engine/internal/payouts/processor"
	poolsProcessor "commission-engine/internal/pools/processor"
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
)

// MapError converts domain/processor errors to APIErrors.
// This function centralizes all error mapping logic to ensure consistent
// error responses across the entire API.
//
// If the error is already an APIError, it returns it as-is.
// If the error is a known domain error, it maps it to an appropriate APIError.
// If the error is unknown, it returns a sanitized InternalError (500).
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	// Check if already an APIError
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	// Cooldowns carry the next allowed date
	var cooldown *affiliatesProcessor.CooldownError
	if errors.As(err, &cooldown) {
		return TooManyRequests(CodeCooldownActive, "Commission settings are in their 30 day cooldown").WithDetails(map[string]any{
			"days_remaining": cooldown.DaysRemaining,
			"next_available": cooldown.NextAvailable.Format("2006-01-02"),
		})
	}

	// Halts win over any domain error they wrap
	if errors.Is(err, store.ErrLedgerHalted) {
		return &APIError{
			StatusCode: http.StatusLocked,
			Code:       CodeLedgerHalted,
			Message:    "Ledger is halted pending reconciliation. An operator must resolve the halt.",
			Err:        err,
		}
	}

	switch {
	// Map affiliate processor errors
	case errors.Is(err, affiliatesProcessor.ErrAffiliateNotFound):
		return NotFound(CodeAffiliateNotFound, "Affiliate not found")

	case errors.Is(err, affiliatesProcessor.ErrAffiliateExists):
		return Conflict(CodeAffiliateExists, "User is already an affiliate")

	case errors.Is(err, affiliatesProcessor.ErrAffiliateInactive):
		return Forbidden("Affiliate is not active")

	case errors.Is(err, affiliatesProcessor.ErrInvalidCode):
		return BadRequest(CodeInvalidCode, "Affiliate code must be 4-12 uppercase letters or digits")

	case errors.Is(err, affiliatesProcessor.ErrReservedCode):
		return BadRequest(CodeReservedCode, "Affiliate code is reserved")

	case errors.Is(err, affiliatesProcessor.ErrCodeTaken):
		return Conflict(CodeCodeTaken, "Affiliate code already taken")

	case errors.Is(err, affiliatesProcessor.ErrReferrerNotFound):
		return BadRequest(CodeReferrerNotFound, "Referrer code not found")

	case errors.Is(err, affiliatesProcessor.ErrInvalidStatus):
		return BadRequest(CodeInvalidStatus, "Invalid affiliate status. Valid values: active, suspended, inactive")

	case errors.Is(err, affiliatesProcessor.ErrInvalidMode):
		return BadRequest(CodeInvalidMode, "Invalid commission mode. Valid values: cash, discount")

	case errors.Is(err, affiliatesProcessor.ErrSameMode):
		return BadRequest(CodeSameMode, "Affiliate is already in that commission mode")

	case errors.Is(err, affiliatesProcessor.ErrCooldownActive):
		return TooManyRequests(CodeCooldownActive, "Commission settings are in their 30 day cooldown")

	case errors.Is(err, affiliatesProcessor.ErrNotDiscountMode):
		return BadRequest(CodeNotDiscountMode, "Affiliate is not in discount mode")

	case errors.Is(err, affiliatesProcessor.ErrInvalidDiscountAmount):
		return BadRequest(CodeInvalidDiscount, "Discount amount must be positive")

	// Map reward points errors
	case errors.Is(err, rewardsProcessor.ErrInvalidSource):
		return BadRequest(CodeInvalidSource, "Invalid points source. Valid values: sale, self_purchase, adjustment")

	case errors.Is(err, rewardsProcessor.ErrAffiliateNotFound):
		return NotFound(CodeAffiliateNotFound, "Affiliate not found")

	case errors.Is(err, rewardsProcessor.ErrLedgerWriteFailed):
		return InternalError(err)

	// Map commission ledger errors
	case errors.Is(err, commissionsProcessor.ErrAggregateMismatch):
		return InternalError(err)

	case errors.Is(err, commissionsProcessor.ErrCommissionNotFound):
		return NotFound(CodeCommissionNotFound, "Commission not found")

	case errors.Is(err, commissionsProcessor.ErrInvalidTransition):
		return Conflict(CodeInvalidTransition, "Commission is not in a state that allows this change")

	case errors.Is(err, commissionsProcessor.ErrInvalidSale):
		return BadRequest(CodeInvalidSale, "Invalid sale")

	case errors.Is(err, commissionsProcessor.ErrDuplicateOrder):
		return Conflict(CodeDuplicateOrder, "Order already recorded")

	case errors.Is(err, commissionsProcessor.ErrNothingToSettle):
		return BadRequest(CodeNothingToSettle, "No commissions to settle")

	case errors.Is(err, commissionsProcessor.ErrAffiliateNotFound):
		return NotFound(CodeAffiliateNotFound, "Affiliate not found")

	case errors.Is(err, commissionsProcessor.ErrHaltNotFound):
		return NotFound(CodeHaltNotFound, "Ledger halt not found")

	// Map pool errors
	case errors.Is(err, poolsProcessor.ErrPotNotFound):
		return NotFound(CodePotNotFound, "Annual pot not found")

	case errors.Is(err, poolsProcessor.ErrDistributionInFlight):
		return Conflict(CodeDistributionInFlight, "A distribution for this period is already running")

	case errors.Is(err, poolsProcessor.ErrFutureDate):
		return BadRequest(CodeFutureDate, "Cannot distribute a day that has not finished")

	// Map payout errors
	case errors.Is(err, payoutsProcessor.ErrAffiliateNotFound):
		return NotFound(CodeAffiliateNotFound, "Affiliate not found")

	case errors.Is(err, payoutsProcessor.ErrAffiliateInactive):
		return Forbidden("Affiliate is not active")

	case errors.Is(err, payoutsProcessor.ErrMissingPayoutEmail):
		return BadRequest(CodeMissingPayoutEmail, "Set a payout email before requesting a payout")

	case errors.Is(err, payoutsProcessor.ErrMissingPayoutAccount):
		return UnprocessableEntity(CodeMissingPayoutAccount, "Affiliate has no connected payout account")

	case errors.Is(err, payoutsProcessor.ErrPayoutPending):
		return Conflict(CodePayoutPending, "A payout request is already open")

	case errors.Is(err, payoutsProcessor.ErrBelowMinimum):
		return BadRequest(CodeBelowMinimumPayout, "Payable balance is below the payout minimum")

	case errors.Is(err, payoutsProcessor.ErrPayoutNotFound):
		return NotFound(CodePayoutNotFound, "Payout request not found")

	case errors.Is(err, payoutsProcessor.ErrPayoutNotPending):
		return Conflict(CodePayoutNotPending, "Payout request is not pending")

	case errors.Is(err, payoutsProcessor.ErrPayoutNotProcessing):
		return Conflict(CodePayoutNotProcessing, "Payout request is not processing")

	case errors.Is(err, payoutsProcessor.ErrProviderNotConfigured):
		return ServiceUnavailable(CodeProviderNotConfigured, "Payouts are not configured", err)

	case errors.Is(err, payoutsProcessor.ErrProviderFailed):
		return &APIError{StatusCode: http.StatusBadGateway, Code: CodePaymentProviderError, Message: "Payment provider rejected the transfer", Err: err}

	case errors.Is(err, payoutsProcessor.ErrSettlementFailed):
		return &APIError{StatusCode: http.StatusInternalServerError, Code: CodeSettlementFailed, Message: "Transfer sent but settlement failed. The ledger has been halted.", Err: err}

	// Map store errors
	case errors.Is(err, store.ErrNotFound):
		return NotFound(CodeNotFound, "Resource not found")

	case errors.Is(err, store.ErrDuplicate):
		return Conflict(CodeDuplicate, "Resource already exists")

	// Check for common external service errors by message content
	default:
		return mapExternalServiceError(err)
	}
}

// mapExternalServiceError attempts to identify external service errors
// and map them to appropriate service-specific error responses.
func mapExternalServiceError(err error) *APIError {
	errMsg := strings.ToLower(err.Error())

	// Stripe/payment errors
	if strings.Contains(errMsg, "stripe") || strings.Contains(errMsg, "payment") {
		return ServiceUnavailable(
			CodePaymentProviderError,
			"Payment provider is temporarily unavailable. Please try again later.",
			err,
		)
	}

	// Email service errors (Resend)
	if strings.Contains(errMsg, "resend") || strings.Contains(errMsg, "email service") {
		return ServiceUnavailable(
			CodeEmailServiceError,
			"Email service is temporarily unavailable. Please try again later.",
			err,
		)
	}

	// Default: Unknown error - return sanitized 500
	return InternalError(err)
}
