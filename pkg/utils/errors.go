package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ResponseCode is the business code carried in API responses and AppErrors
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	CodeInvalidParam ResponseCode = 10001
	CodeUnauthorized ResponseCode = 10002
	CodeForbidden    ResponseCode = 10003
	CodeNotFound     ResponseCode = 10004
	CodeRateLimit    ResponseCode = 10005

	CodeAlreadyPurchased    ResponseCode = 20001
	CodeAlreadyRefunded     ResponseCode = 20002
	CodeTargetUnavailable   ResponseCode = 20003
	CodeInsufficientBalance ResponseCode = 20004
	CodeCouponInvalid       ResponseCode = 20005

	CodeInternalError     ResponseCode = 50000
	CodeLedgerTransaction ResponseCode = 50001
	CodeDelivery          ResponseCode = 50002
	CodeDatabaseError     ResponseCode = 50003
	CodeRedisError        ResponseCode = 50004
)

// HTTPStatus maps a business code to the HTTP status the API answers with
func (c ResponseCode) HTTPStatus() int {
	switch c {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeCouponInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeAlreadyPurchased, CodeAlreadyRefunded:
		return http.StatusConflict
	case CodeTargetUnavailable:
		return http.StatusUnprocessableEntity
	case CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeDelivery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Errorf builds an AppError with a formatted message
func Errorf(code ResponseCode, format string, args ...interface{}) *AppError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Predefined errors
var (
	ErrInvalidParam = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden    = NewError(CodeForbidden, "forbidden")
	ErrNotFound     = NewError(CodeNotFound, "not found")
	ErrRateLimit    = NewError(CodeRateLimit, "rate limit exceeded")

	ErrAlreadyPurchased    = NewError(CodeAlreadyPurchased, "already purchased")
	ErrAlreadyRefunded     = NewError(CodeAlreadyRefunded, "transaction already refunded")
	ErrTargetUnavailable   = NewError(CodeTargetUnavailable, "target is not available for purchase")
	ErrInsufficientBalance = NewError(CodeInsufficientBalance, "insufficient balance")
	ErrCouponInvalid       = NewError(CodeCouponInvalid, "coupon is not valid")

	ErrInternalError     = NewError(CodeInternalError, "internal server error")
	ErrLedgerTransaction = NewError(CodeLedgerTransaction, "ledger transaction failed")
	ErrDelivery          = NewError(CodeDelivery, "event delivery failed")
	ErrDatabaseError     = NewError(CodeDatabaseError, "database error")
	ErrRedisError        = NewError(CodeRedisError, "redis error")
)

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
