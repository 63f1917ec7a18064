package edgar

import (
	"errors"
	"fmt"
	"net"
)

// FetchError describes a failed outbound request to the filing source.
// Retryable distinguishes transient conditions (network error, 5xx, 429)
// from permanent ones (other 4xx, malformed query).
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: fetch failed", e.Op, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrPageCapExceeded is returned when pagination exceeds the safety cap,
// which indicates unexpected result volume rather than a source failure.
var ErrPageCapExceeded = errors.New("pagination exceeded page cap")

// IsRetryable reports whether err is a transient fetch failure worth
// retrying.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// retryableStatus reports whether an HTTP status is a transient condition.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
