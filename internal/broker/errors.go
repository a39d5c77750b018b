package broker

import (
	"math"
	"math/rand"
	"net/http"
	"time"

	"hedgexd/internal/errs"
)

// kiteErrorKind maps Kite's error_type field onto the shared taxonomy.
var kiteErrorKind = map[string]errs.Kind{
	"TokenException":          errs.Authentication,
	"PermissionException":     errs.Permission,
	"InputException":          errs.Validation,
	"OrderException":          errs.Trading,
	"DataException":           errs.DataIntegrity,
	"NetworkException":        errs.ExternalService,
	"TooManyRequestsException": errs.RateLimit,
	"GeneralException":        errs.ExternalService,
}

func mapErrorType(errorType, message string) error {
	kind, ok := kiteErrorKind[errorType]
	if !ok {
		kind = errs.ExternalService
	}
	return errs.New(kind, message)
}

// retryableStatus reports whether an HTTP status code warrants a retry.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
	maxAttempts    = 5
)

// backoffDelay returns the delay before retry attempt n (0-indexed: the
// delay before the *second* overall attempt is backoffDelay(0)), doubling
// from 100ms and capped at 30s, with +/-20% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := float64(retryBaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(retryMaxDelay) || delay <= 0 {
		delay = float64(retryMaxDelay)
	}
	jitter := 0.8 + rand.Float64()*0.4 // +/-20%
	return time.Duration(delay * jitter)
}
