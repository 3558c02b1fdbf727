package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the bridge surfaces to a caller.
type ErrorCode string

const (
	ErrCodeTransport           ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeInconsistentSources ErrorCode = "INCONSISTENT_SOURCES"
	ErrCodeReceiptNotFound     ErrorCode = "RECEIPT_NOT_FOUND"
	ErrCodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	ErrCodeDestinationMismatch ErrorCode = "DESTINATION_MISMATCH"
	ErrCodeApprovalFailed      ErrorCode = "APPROVAL_FAILED"
	ErrCodeWithdrawalFailed    ErrorCode = "WITHDRAWAL_FAILED"
	ErrCodeTransferFailed      ErrorCode = "TRANSFER_FAILED"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	ErrCodeUnknownAsset        ErrorCode = "UNKNOWN_ASSET"
	ErrCodeStorage             ErrorCode = "STORAGE"
)

// BridgeError carries a code, a message and, for collaborator rejections,
// the original error payload as Cause.
type BridgeError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Asset   string                 `json:"asset,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func NewError(code ErrorCode, message string, cause error) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func Errorf(code ErrorCode, format string, args ...interface{}) *BridgeError {
	return NewError(code, fmt.Sprintf(format, args...), nil)
}

func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Asset != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Asset, e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is matches on the code so callers can compare against a template error.
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func (e *BridgeError) WithAsset(asset string) *BridgeError {
	e.Asset = asset
	return e
}

func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first BridgeError in err's chain.
func CodeOf(err error) ErrorCode {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
