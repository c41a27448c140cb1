// Package awserr maps AWS API and transport errors onto contracts.ServiceError.
package awserr

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
	"github.com/tiger/robomaker-sim-launcher/internal/launcher/contracts"
)

var throttlingCodes = map[string]struct{}{
	"ThrottlingException":      {},
	"Throttling":               {},
	"TooManyRequestsException": {},
	"RequestLimitExceeded":     {},
	"SlowDown":                 {},
	"LimitExceededException":   {},
}

var notFoundCodes = map[string]struct{}{
	"ResourceNotFoundException": {},
	"JobNotFoundException":      {},
	"StateMachineDoesNotExist":  {},
	"NoSuchKey":                 {},
	"NoSuchBucket":              {},
	"NotFound":                  {},
}

var invalidRequestCodes = map[string]struct{}{
	"InvalidParameterException":            {},
	"InvalidJobStateException":             {},
	"InvalidNonceException":                {},
	"ValidationException":                  {},
	"InvalidArn":                           {},
	"InvalidExecutionInput":                {},
	"InvalidName":                          {},
	"IdempotentParameterMismatchException": {},
}

// Classify wraps err as a ServiceError for service/operation. nil stays nil.
func Classify(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	var existing *contracts.ServiceError
	if errors.As(err, &existing) {
		return err
	}
	out := &contracts.ServiceError{Service: service, Operation: operation, Err: err}

	switch {
	case errors.Is(err, context.Canceled):
		out.Class = contracts.FailureCancelled
		return out
	case errors.Is(err, context.DeadlineExceeded):
		out.Class, out.Retryable = contracts.FailureTimeout, true
		return out
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		out.Code = code
		if _, ok := throttlingCodes[code]; ok {
			out.Class, out.Retryable = contracts.FailureThrottled, true
			return out
		}
		if _, ok := notFoundCodes[code]; ok {
			out.Class = contracts.FailureNotFound
			return out
		}
		if _, ok := invalidRequestCodes[code]; ok {
			out.Class = contracts.FailureInvalidRequest
			return out
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			out.Class = contracts.FailureClient
			return out
		}
		out.Class, out.Retryable = contracts.FailureServer, true
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Class, out.Retryable = contracts.FailureTimeout, true
		return out
	}
	out.Class, out.Retryable = contracts.FailureTransport, true
	return out
}
