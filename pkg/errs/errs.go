package errs

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"encore.dev"
)

// Error codes
const (
	// 400 Bad Request
	InvalidArgument    = "INVALID_ARGUMENT"
	ValidationFailed   = "VALIDATION_FAILED"
	FailedPrecondition = "FAILED_PRECONDITION"

	// 401 Unauthorized
	Unauthenticated = "UNAUTHENTICATED"

	// 403 Forbidden
	Forbidden = "FORBIDDEN"

	// 404 Not Found
	NotFound = "NOT_FOUND"

	// 409 Conflict
	Conflict = "CONFLICT"

	// 422 Unprocessable Entity
	UnprocessableEntity = "UNPROCESSABLE_ENTITY"

	// 429 Too Many Requests
	TooManyRequests = "TOO_MANY_REQUESTS"

	// 500 Internal Server Error
	Internal = "INTERNAL_ERROR"

	// 503 Service Unavailable
	ServiceUnavailable = "SERVICE_UNAVAILABLE"

	// 504 Gateway Timeout
	DeadlineExceeded = "DEADLINE_EXCEEDED"

	// Cart domain codes (CART)
	CartSessionRequired = "CART_SESSION_REQUIRED"
	CartItemNotFound    = "CART_ITEM_NOT_FOUND"
	CartGiftImmutable   = "CART_GIFT_IMMUTABLE"
	CartInvalidQuantity = "CART_INVALID_QUANTITY"
	CartInvalidProduct  = "CART_INVALID_PRODUCT"

	// Pricing domain codes (PRC)
	PrcServiceUnavailable = "PRC_SERVICE_UNAVAILABLE"
	PrcStaleResponse      = "PRC_STALE_RESPONSE"

	// Promo domain codes (PROMO)
	PromoInvalidCode = "PROMO_INVALID_CODE"
	PromoRejected    = "PROMO_REJECTED"

	// Checkout domain codes (CHK)
	ChkValidationFailed   = "CHK_VALIDATION_FAILED"
	ChkSubmissionInFlight = "CHK_SUBMISSION_IN_FLIGHT"
	ChkEmptyCart          = "CHK_EMPTY_CART"
	ChkRateLimitExceeded  = "CHK_RATE_LIMIT_EXCEEDED"

	// Payment domain codes (PAY)
	PayMethodDisabled = "PAY_METHOD_DISABLED"
	PayInitFailed     = "PAY_INIT_FAILED"
	PayInvalidRequest = "PAY_INVALID_REQUEST"
)

// Error represents a structured error
type Error struct {
	Code          string      `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Details       interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.CorrelationID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code for the error
func (e *Error) HTTPStatus() int {
	switch e.Code {
	// Cart domain mappings
	case CartSessionRequired:
		return http.StatusBadRequest
	case CartItemNotFound:
		return http.StatusNotFound
	case CartGiftImmutable, CartInvalidQuantity, CartInvalidProduct:
		return http.StatusBadRequest

	// Pricing domain mappings
	case PrcServiceUnavailable:
		return http.StatusServiceUnavailable
	case PrcStaleResponse:
		return http.StatusConflict

	// Promo domain mappings
	case PromoInvalidCode, PromoRejected:
		return http.StatusUnprocessableEntity

	// Checkout domain mappings
	case ChkValidationFailed:
		return http.StatusUnprocessableEntity
	case ChkSubmissionInFlight:
		return http.StatusConflict
	case ChkEmptyCart:
		return http.StatusBadRequest
	case ChkRateLimitExceeded:
		return http.StatusTooManyRequests

	// Payment domain mappings
	case PayMethodDisabled, PayInvalidRequest:
		return http.StatusBadRequest
	case PayInitFailed:
		return http.StatusBadGateway

	// Generic mappings
	case InvalidArgument, ValidationFailed, FailedPrecondition:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case UnprocessableEntity:
		return http.StatusUnprocessableEntity
	case TooManyRequests:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		// Heuristics for domain-prefixed codes and common terms
		lc := strings.ToLower(e.Code)
		switch {
		case strings.Contains(lc, "not_found"):
			return http.StatusNotFound
		case strings.Contains(lc, "conflict") || strings.Contains(lc, "in_flight"):
			return http.StatusConflict
		case strings.Contains(lc, "unauth"):
			return http.StatusUnauthorized
		case strings.Contains(lc, "rate_limit") || strings.Contains(lc, "too_many"):
			return http.StatusTooManyRequests
		case strings.HasPrefix(strings.ToUpper(e.Code), "CART_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "PRC_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "PROMO_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "CHK_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "PAY_"):
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}
}

// New creates a new error
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCorrelationID adds correlation ID to an error
func (e *Error) WithCorrelationID(correlationID string) *Error {
	e.CorrelationID = correlationID
	return e
}

// CorrelationIDFromContext returns a correlation_id tied to current request if possible,
// otherwise generates a time-based fallback.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if req := encore.CurrentRequest(); req != nil {
			if req.Path != "" {
				return fmt.Sprintf("%s-%d", req.Path, time.Now().UnixNano())
			}
		}
	}
	return fmt.Sprintf("cid-%d", time.Now().UnixNano())
}

// E creates a domain-coded error and auto-fills correlation_id from context.
func E(ctx context.Context, code, message string) *Error {
	return New(code, message).WithCorrelationID(CorrelationIDFromContext(ctx))
}

// EDetails creates a domain-coded error with details and auto correlation_id.
func EDetails(ctx context.Context, code, message string, details interface{}) *Error {
	return (&Error{Code: code, Message: message, Details: details}).WithCorrelationID(CorrelationIDFromContext(ctx))
}
