package ai

import "github.com/pkg/errors"

// ErrUnknownProvider is returned by the registry when no adapter is
// registered for the requested name.
var ErrUnknownProvider = errors.New("ai: unknown provider")

type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindUnknown   ErrorKind = "unknown"
)

// Error is the normalized provider failure. Adapters inspect vendor-specific
// payloads and map them onto a shared kind plus a remediation hint; vendor
// messages without a mapping pass through raw under KindUnknown.
type Error struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return e.Message + " (" + e.Hint + ")"
	}
	return e.Message
}

func newError(kind ErrorKind, message, hint string) *Error {
	return &Error{Kind: kind, Message: message, Hint: hint}
}

// KindOf extracts the taxonomy kind from any error chain, KindUnknown when
// the chain carries no *Error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
