package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Kind codes. Every domain code below resolves to one of these.
const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeExpired                Code = "EXPIRED"
	CodeConflict               Code = "CONFLICT"
	CodeIdempotency            Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit              Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal               Code = "INTERNAL_ERROR"
	CodeDependency             Code = "DEPENDENCY_ERROR"
)

// Domain codes.
const (
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeItemNotFound        Code = "ITEM_NOT_FOUND"
	CodePaymentNotFound     Code = "PAYMENT_NOT_FOUND"
	CodeInvoiceNotFound     Code = "INVOICE_NOT_FOUND"
	CodeDisputeNotFound     Code = "DISPUTE_NOT_FOUND"
	CodeReturnNotFound      Code = "RETURN_NOT_FOUND"
	CodePayoutNotFound      Code = "PAYOUT_NOT_FOUND"
	CodeBankAccountNotFound Code = "BANK_ACCOUNT_NOT_FOUND"
	CodeDLQItemNotFound     Code = "DLQ_ITEM_NOT_FOUND"

	CodeOrderNotPayable        Code = "ORDER_NOT_PAYABLE"
	CodeAlreadyPaid            Code = "ALREADY_PAID"
	CodeActiveDisputeExists    Code = "ACTIVE_DISPUTE_EXISTS"
	CodeReturnExists           Code = "RETURN_EXISTS"
	CodeBankAccountNotApproved Code = "BANK_ACCOUNT_NOT_APPROVED"
	CodeNoEligibleAmount       Code = "NO_ELIGIBLE_AMOUNT"

	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeAmountExceedsBalance   Code = "AMOUNT_EXCEEDS_BALANCE"
	CodeDuplicateBankReference Code = "DUPLICATE_BANK_REFERENCE"
	CodeInvalidPaymentMethod   Code = "INVALID_PAYMENT_METHOD"

	CodeDisputeWindowExpired Code = "DISPUTE_WINDOW_EXPIRED"
	CodeProposalExpired      Code = "PROPOSAL_EXPIRED"
)

// Informational codes accompany a successful result.
const (
	CodeAlreadyConfirmed Code = "ALREADY_CONFIRMED"
)

var kindByCode = map[Code]Code{
	CodeOrderNotFound:       CodeNotFound,
	CodeItemNotFound:        CodeNotFound,
	CodePaymentNotFound:     CodeNotFound,
	CodeInvoiceNotFound:     CodeNotFound,
	CodeDisputeNotFound:     CodeNotFound,
	CodeReturnNotFound:      CodeNotFound,
	CodePayoutNotFound:      CodeNotFound,
	CodeBankAccountNotFound: CodeNotFound,
	CodeDLQItemNotFound:     CodeNotFound,

	CodeOrderNotPayable:        CodeInvalidState,
	CodeAlreadyPaid:            CodeInvalidState,
	CodeActiveDisputeExists:    CodeInvalidState,
	CodeReturnExists:           CodeInvalidState,
	CodeBankAccountNotApproved: CodeInvalidState,
	CodeNoEligibleAmount:       CodeInvalidState,

	CodeInvalidAmount:          CodeValidation,
	CodeAmountExceedsBalance:   CodeValidation,
	CodeDuplicateBankReference: CodeValidation,
	CodeInvalidPaymentMethod:   CodeValidation,

	CodeDisputeWindowExpired: CodeExpired,
	CodeProposalExpired:      CodeExpired,
}

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthenticated: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeInvalidState: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeConcurrentModification: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "resource was modified concurrently",
	},
	CodeExpired: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "action window has expired",
		DetailsAllowed: true,
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

// KindOf resolves a domain code to its kind. Kind codes map to themselves.
func KindOf(code Code) Code {
	if kind, ok := kindByCode[code]; ok {
		return kind
	}
	if _, ok := metadataByCode[code]; ok {
		return code
	}
	return CodeInternal
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[KindOf(code)]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Kind() Code {
	return KindOf(e.Code())
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code, either exactly or as its kind.
func IsCode(err error, code Code) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return typed.Code() == code || typed.Kind() == code
}
