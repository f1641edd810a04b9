package scheduling

import (
	"errors"
	"fmt"
	"slices"

	"github.com/antoniostano/phonedesk/internal/reliability"
)

var (
	// ErrUnavailable covers timeouts, transport failures and transient statuses.
	ErrUnavailable = errors.New("scheduling backend unavailable")
	// ErrConflict means the target appointment no longer exists or was changed elsewhere.
	ErrConflict = errors.New("appointment no longer available")
	// ErrUnsupported means the backend does not support the requested method.
	ErrUnsupported = errors.New("operation not supported by scheduling backend")
	// ErrFatal is any other rejected request.
	ErrFatal = errors.New("scheduling request rejected")
)

// Error is a classified backend failure.
type Error struct {
	Op     string
	Status int
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusPolicy maps backend HTTP statuses onto the error taxonomy. The set of
// statuses that mean "PATCH not supported" varies per backend, so it is configurable.
type StatusPolicy struct {
	PatchFallbackStatuses []int
}

// DefaultPatchFallbackStatuses are used when none are configured.
var DefaultPatchFallbackStatuses = []int{404, 405, 501}

func (p StatusPolicy) classify(op string, status int) error {
	fallback := p.PatchFallbackStatuses
	if len(fallback) == 0 {
		fallback = DefaultPatchFallbackStatuses
	}
	switch {
	case op == OpPatchAppointment && slices.Contains(fallback, status):
		return ErrUnsupported
	case reliability.IsRetryableHTTPStatus(status) || status >= 500:
		return ErrUnavailable
	case status == 404 || status == 409 || status == 410 || status == 412:
		return ErrConflict
	default:
		return ErrFatal
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
