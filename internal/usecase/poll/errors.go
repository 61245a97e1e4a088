package poll

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"runtime/debug"
	"syscall"

	"github.com/sony/gobreaker"

	"scout-alerts/internal/observability/logging"
	"scout-alerts/internal/resilience/retry"
)

// ErrorKind classifies a failed poll.
type ErrorKind string

const (
	// KindNetwork covers timeouts, refused or reset connections, DNS failures, open
	// circuit breakers and 5xx responses.
	KindNetwork ErrorKind = "network"
	// KindMalformed covers unparseable bodies and 4xx responses.
	KindMalformed ErrorKind = "malformed"
	// KindUnexpected covers panics and everything else. Only this kind is reported to operators.
	KindUnexpected ErrorKind = "unexpected"
)

// Sentinel errors for poll operations.
var (
	// ErrMalformedResponse is wrapped by adapters when a response cannot be parsed.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrUnknownProvider indicates a subscription type with no registered adapter.
	ErrUnknownProvider = errors.New("unknown provider type")

	// ErrUnsupported indicates an adapter lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrSubscriptionBusy indicates another worker holds the subscription lock.
	ErrSubscriptionBusy = errors.New("subscription is being polled elsewhere")

	// ErrOrphaned indicates the subscription's interest no longer exists.
	ErrOrphaned = errors.New("subscription has no interest")
)

// PollError is the structured error of a failed poll.
type PollError struct {
	Kind     ErrorKind
	Message  string
	URL      string
	Function string
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%s poll failed (%s): %s", e.Function, e.Kind, e.Message)
}

func (e *PollError) Unwrap() error { return e.Err }

// panicError carries a recovered panic value and its stack.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// safely runs fn, converting a panic into a panicError.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn()
}

// Classify maps an error onto the poll error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var pe *panicError
	if errors.As(err, &pe) {
		return KindUnexpected
	}
	if errors.Is(err, ErrMalformedResponse) {
		return KindMalformed
	}

	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return KindNetwork
		}
		return KindMalformed
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	// 開いたブレーカーは上流障害の継続とみなす
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var xmlErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &xmlErr) {
		return KindMalformed
	}

	if retry.IsRetryable(err) {
		return KindNetwork
	}
	return KindUnexpected
}

// newPollError wraps err with its classification.
func newPollError(err error, rawURL, function string) *PollError {
	return &PollError{
		Kind:     Classify(err),
		Message:  logging.RedactError(err),
		URL:      logging.RedactURL(rawURL),
		Function: function,
		Err:      err,
	}
}
