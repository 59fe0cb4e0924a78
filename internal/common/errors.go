package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError is a failure outside the extraction taxonomy: configuration, validation, job log.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)

// AppError codes.
const (
	CodeConfig   = "CONFIG_ERROR"
	CodeNotFound = "NOT_FOUND"
	CodeDatabase = "DB_ERROR"
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError reports an invalid configuration value.
func ConfigError(message string) *AppError {
	return NewAppError(CodeConfig, message, ErrInvalidInput)
}

// NotFoundError reports a missing row.
func NotFoundError(what string) *AppError {
	return NewAppError(CodeNotFound, what, ErrNotFound)
}

// DatabaseError tags a driver error so callers can match ErrDatabase and still see the cause.
func DatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewAppError(CodeDatabase, op, errors.Join(ErrDatabase, err))
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
