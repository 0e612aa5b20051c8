package errutil

import (
	"fmt"
)

// BaseError is a business error with a transport-neutral status. Err is the
// optional cause and is never serialized on its own.
type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func New(code CoreStatus, message string, err error) error {
	return BaseError{Code: code, Message: message, Err: err}
}

func NotFound(msg string, err error) error {
	return New(StatusNotFound, msg, err)
}

func UnprocessableEntity(msg string, err error) error {
	return New(StatusUnprocessableEntity, msg, err)
}

func Conflict(msg string, err error) error {
	return New(StatusConflict, msg, err)
}

func BadRequest(msg string, err error) error {
	return New(StatusBadRequest, msg, err)
}

func Internal(msg string, err error) error {
	return New(StatusInternal, msg, err)
}
