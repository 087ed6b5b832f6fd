package processor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/metisearch/metis/pkg/core"
)

// Classify maps an adapter error onto the outcome taxonomy. The returned
// status is non-zero for HTTP-shaped failures.
func Classify(err error) (core.OutcomeKind, int) {
	if err == nil {
		return core.OutcomeSuccess, 0
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.OutcomeTimeout, 0
	}

	var statusErr *core.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusProxyAuthRequired:
			return core.OutcomeAuthError, statusErr.Status
		case http.StatusTooManyRequests:
			return core.OutcomeRateLimited, statusErr.Status
		default:
			return core.OutcomeHTTPError, statusErr.Status
		}
	}

	var payloadErr *core.PayloadError
	if errors.As(err, &payloadErr) {
		return core.OutcomeParseError, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return core.OutcomeTimeout, 0
		}
		return core.OutcomeNetworkErr, 0
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return core.OutcomeNetworkErr, 0
	}

	// url.Error without a net.Error cause still means the transport failed.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return core.OutcomeNetworkErr, 0
	}

	return core.OutcomeException, 0
}
