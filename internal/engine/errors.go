package engine

import (
	"errors"
	"fmt"

	"github.com/daryltucker/psi-proxy/internal/model"
	"google.golang.org/api/googleapi"
)

// MsgURLRequired is the validation message for a missing url parameter.
const MsgURLRequired = "url不能为空"

// MsgInternal is the message sent for unexpected failures.
const MsgInternal = "internal server error"

// ErrURLRequired is returned when no page URL was supplied.
var ErrURLRequired = &ValidationError{Message: MsgURLRequired}

// ValidationError reports a bad inbound request. No upstream call was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransportError reports that the upstream request could not be completed.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("upstream request failed: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports an upstream body that is not usable JSON.
type ParseError struct {
	StatusCode int
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid upstream response (HTTP %d): %v", e.StatusCode, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError carries the error document returned by the PageSpeed API.
type UpstreamError struct {
	StatusCode int
	Status     string
	Err        *googleapi.Error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("pagespeed error %d: %s", e.Err.Code, e.Err.Message)
}
func (e *UpstreamError) Unwrap() error { return e.Err }

// Describe maps err onto the envelope's message and detail.
// Validation failures carry no detail.
func Describe(err error) (string, *model.ErrorDetail) {
	var (
		verr *ValidationError
		terr *TransportError
		perr *ParseError
		uerr *UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Message, nil
	case errors.As(err, &terr):
		return terr.Error(), &model.ErrorDetail{Kind: model.KindTransport, Cause: terr.Err.Error()}
	case errors.As(err, &perr):
		return perr.Error(), &model.ErrorDetail{Kind: model.KindParse, Cause: perr.Err.Error(), Status: perr.StatusCode}
	case errors.As(err, &uerr):
		msg := uerr.Err.Message
		if msg == "" {
			msg = uerr.Error()
		}
		return msg, &model.ErrorDetail{
			Kind:   model.KindUpstream,
			Cause:  uerr.Error(),
			Status: uerr.StatusCode,
			Upstream: &model.UpstreamStatus{
				Code:    uerr.Err.Code,
				Message: uerr.Err.Message,
				Status:  uerr.Status,
			},
		}
	default:
		return MsgInternal, &model.ErrorDetail{Kind: model.KindInternal}
	}
}
