package workflow

import (
	"errors"
	"fmt"
)

// Code classifies a failed transition request.
type Code string

const (
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeMissingRemarks    Code = "MISSING_REMARKS"
	CodeSideEffectFailed  Code = "SIDE_EFFECT_FAILED"
	CodeContention        Code = "CONTENTION"
	CodeNotFound          Code = "NOT_FOUND"
)

// TransitionError is returned by the engine for every rejected transition request.
type TransitionError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *TransitionError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Retryable is true only for lock contention; every other code needs the caller to change the request.
func (e *TransitionError) Retryable() bool { return e.Code == CodeContention }

// AsTransitionError unwraps err into a *TransitionError.
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// HasCode reports whether err is a TransitionError with the given code.
func HasCode(err error, code Code) bool {
	te, ok := AsTransitionError(err)
	return ok && te.Code == code
}

func InvalidTransition(format string, args ...interface{}) *TransitionError {
	return &TransitionError{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *TransitionError {
	return &TransitionError{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func MissingRemarks(toState string) *TransitionError {
	return &TransitionError{
		Code:    CodeMissingRemarks,
		Message: fmt.Sprintf("remarks are required when moving to %s", toState),
		Details: map[string]interface{}{"to_state": toState},
	}
}

func NotFound(format string, args ...interface{}) *TransitionError {
	return &TransitionError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Contention(err error) *TransitionError {
	return &TransitionError{Code: CodeContention, Message: "document is locked by another request, retry later", Err: err}
}

// SideEffectFailed wraps a handler failure. Details and reason of a
// *SideEffectError are lifted so callers can show the shortfall.
func SideEffectFailed(err error) *TransitionError {
	te := &TransitionError{
		Code:    CodeSideEffectFailed,
		Message: err.Error(),
		Details: map[string]interface{}{"reason": ReasonCode(err)},
		Err:     err,
	}
	var se *SideEffectError
	if errors.As(err, &se) {
		for k, v := range se.Details {
			te.Details[k] = v
		}
	}
	return te
}

// Handler failure reasons.
var (
	ErrInsufficientBudget   = errors.New("insufficient budget")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrLinkedDocumentState  = errors.New("linked document is not in an accepted state")
	ErrMissingLink          = errors.New("required linked document is missing")
	ErrMissingAllocation    = errors.New("document has no budget allocation")
	ErrMissingInventoryItem = errors.New("document has no inventory item")
	ErrAmountExceeded       = errors.New("amount exceeds the referenced document")
	ErrIncompleteDocument   = errors.New("document is missing required data")
)

var reasonCodes = map[error]string{
	ErrInsufficientBudget:   "INSUFFICIENT_BUDGET",
	ErrInsufficientStock:    "INSUFFICIENT_STOCK",
	ErrLinkedDocumentState:  "LINKED_DOCUMENT_STATE",
	ErrMissingLink:          "MISSING_LINK",
	ErrMissingAllocation:    "MISSING_ALLOCATION",
	ErrMissingInventoryItem: "MISSING_INVENTORY_ITEM",
	ErrAmountExceeded:       "AMOUNT_EXCEEDED",
	ErrIncompleteDocument:   "INCOMPLETE_DOCUMENT",
}

// ReasonCode maps a handler failure reason to its wire code.
func ReasonCode(reason error) string {
	for sentinel, code := range reasonCodes {
		if errors.Is(reason, sentinel) {
			return code
		}
	}
	return "HANDLER_ERROR"
}

// SideEffectError is a business-rule failure raised by a transition handler.
type SideEffectError struct {
	Reason  error
	Message string
	Details map[string]interface{}
}

func (e *SideEffectError) Error() string {
	if e.Message == "" {
		return e.Reason.Error()
	}
	return e.Message
}

func (e *SideEffectError) Unwrap() error { return e.Reason }

// NewSideEffectError builds a handler failure with a formatted message.
func NewSideEffectError(reason error, details map[string]interface{}, format string, args ...interface{}) *SideEffectError {
	return &SideEffectError{Reason: reason, Message: fmt.Sprintf(format, args...), Details: details}
}
