package api

import (
	"errors"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForecast   = errors.New("forecast failed")
	ErrTimeout    = errors.New("request timed out")
	ErrInternal   = errors.New("internal error")
)

// KindError tags an underlying error with the operation and a sentinel kind,
// so callers can match either with errors.Is.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind. A nil err yields NewKind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op, keeping the kind of an inner KindError or
// ErrInternal otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return &KindError{Op: op, Kind: ke.Kind, Err: err}
	}
	return &KindError{Op: op, Kind: ErrInternal, Err: err}
}
