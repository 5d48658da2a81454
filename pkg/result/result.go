// Package result defines the envelope every engine operation is reported in:
// {success:true, data, code?} or {success:false, error, code}.
package result

import (
	"errors"

	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
)

type Result[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    pkgerrors.Code `json:"code,omitempty"`
	Details any            `json:"details,omitempty"`
}

func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// OKWithCode reports success with an informational code such as ALREADY_CONFIRMED.
func OKWithCode[T any](data T, code pkgerrors.Code) Result[T] {
	return Result[T]{Success: true, Data: data, Code: code}
}

func Fail[T any](code pkgerrors.Code, message string) Result[T] {
	return Result[T]{Success: false, Error: message, Code: code}
}

// FromError converts an error into a failed result. Untyped errors become
// INTERNAL_ERROR with the public message so internals do not leak.
func FromError[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		meta := pkgerrors.MetadataFor(pkgerrors.CodeInternal)
		return Fail[T](pkgerrors.CodeInternal, meta.PublicMessage)
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	msg := typed.Message()
	if msg == "" || typed.Kind() == pkgerrors.CodeInternal || typed.Kind() == pkgerrors.CodeDependency {
		msg = meta.PublicMessage
	}
	out := Fail[T](typed.Code(), msg)
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

// Of builds the result for a (value, error) pair.
func Of[T any](data T, err error) Result[T] {
	if err != nil {
		return FromError[T](err)
	}
	return OK(data)
}

// Status is the HTTP status matching the result.
func (r Result[T]) Status(successStatus int) int {
	if r.Success {
		return successStatus
	}
	return pkgerrors.MetadataFor(r.Code).HTTPStatus
}
