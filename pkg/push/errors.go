package push

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is joined with validator.ValidationErrors for bad requests.
	ErrValidation = errors.New("push: invalid notification")

	ErrServerUnavailable = errors.New("push: server unavailable")
	ErrUnauthorized      = errors.New("push: invalid credential")
	ErrInvalidRequest    = errors.New("push: invalid request")

	// ErrNotFound is returned when a notification id is unknown to the storage.
	ErrNotFound = errors.New("push: notification does not exist")

	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("push: persistence failure")

	// ErrPublish wraps work queue failures when publishing a job.
	ErrPublish = errors.New("push: job publish failed")

	ErrNoStorage    = errors.New("push: notification storage is not configured")
	ErrNoTransport  = errors.New("push: transport is not configured for live mode")
	ErrNoDispatcher = errors.New("push: dispatcher is not configured")
	ErrNoQueue      = errors.New("push: work queue is not configured")
)

// Gateway wording of the classified transport failures, stored on the
// notification response.
const (
	StatusServerUnavailable = "Internal Server Error"
	StatusUnauthorized      = "Unauthorized"
	StatusInvalidRequest    = "Invalid Request"
)

// StatusError is the numeric error signal a Transport returns for a non-200
// gateway answer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push: gateway responded with status %d", e.Code)
}

// TransportError is a classified transport failure. It unwraps to one of
// ErrServerUnavailable, ErrUnauthorized or ErrInvalidRequest and to the
// original transport error.
type TransportError struct {
	Code    int
	Status  string
	Message string

	kind error
	err  error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// Response renders the error as the response mapping persisted on the
// notification.
func (e *TransportError) Response() map[string]any {
	return map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
}

// classify maps the transport's numeric error signal onto the error taxonomy.
// Errors without a status code are returned unchanged.
func classify(err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}

	switch code := se.Code; {
	case code >= 500:
		return &TransportError{
			Code:    code,
			Status:  StatusServerUnavailable,
			Message: "Server Unavailable",
			kind:    ErrServerUnavailable,
			err:     err,
		}
	case code == 401:
		return &TransportError{
			Code:    code,
			Status:  StatusUnauthorized,
			Message: "Unauthorized (401). Check that your API key is correct.",
			kind:    ErrUnauthorized,
			err:     err,
		}
	case code != 200:
		return &TransportError{
			Code:    code,
			Status:  StatusInvalidRequest,
			Message: "Invalid Request",
			kind:    ErrInvalidRequest,
			err:     err,
		}
	default:
		return err
	}
}

// errorResponse is the response mapping stored for a failed attempt.
func errorResponse(err error) map[string]any {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Response()
	}
	return map[string]any{"message": err.Error()}
}
