package fetcher

import (
	"errors"
	"time"
)

// Kind classifies a per-URL fetch failure.
type Kind string

// Failure kinds carried by Error.
const (
	KindTransport Kind = "transport"
	KindAdmission Kind = "admission"
)

var (
	// ErrTransport matches any failure raised by the HTTP transport.
	ErrTransport = errors.New("request failed")
	// ErrAdmissionUnavailable matches failures to obtain an admission permit.
	ErrAdmissionUnavailable = errors.New("too many requests")
	// ErrInvalidConcurrency is returned by New when MaxConcurrent is not positive.
	ErrInvalidConcurrency = errors.New("max concurrent must be > 0")
)

// Error describes why a single URL could not be fetched.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	prefix := ErrTransport.Error()
	if e.Kind == KindAdmission {
		prefix = ErrAdmissionUnavailable.Error()
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

// Unwrap exposes the underlying transport or gate error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrAdmissionUnavailable:
		return e.Kind == KindAdmission
	default:
		return false
	}
}

// Outcome is the per-URL result of FetchAll. It succeeded iff Err is nil.
type Outcome struct {
	URL        string        `json:"url"`
	Content    string        `json:"-"`
	Body       []byte        `json:"-"`
	Bytes      int           `json:"bytes"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Successes returns the content of every successful outcome, in order.
func Successes(outcomes []Outcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			out = append(out, o.Content)
		}
	}
	return out
}
