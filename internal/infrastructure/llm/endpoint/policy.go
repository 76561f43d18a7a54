package endpoint

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/coactivo-intake/internal/infrastructure/resilience"
)

// Classify is the retry and breaker policy shared by model endpoints. Every
// failure except a caller cancellation or an already open breaker counts
// against the breaker, timeouts included. Only transient failures retry.
func Classify(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{}
	case errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{Retryable: transientStatus(statusErr.StatusCode), RecordFailure: true}
	}

	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return resilience.ErrorClassification{RecordFailure: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{RecordFailure: true}
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
