package llm

import "errors"

// Sentinel errors for the failure taxonomy. Callers match with errors.Is and
// can recover the classified provider error with errors.As on *ProtocolError.
var (
	// ErrConfiguration reports an endpoint URL or configuration problem
	// detected before any network call.
	ErrConfiguration = errors.New("invalid endpoint configuration")

	// ErrAuthentication reports a rejected credential. Never retried: no
	// request shape fixes a bad API key.
	ErrAuthentication = errors.New("authentication failed")

	// ErrParameterDetection reports that the detector exhausted its options
	// without converging on an accepted request shape.
	ErrParameterDetection = errors.New("parameter detection failed")

	// ErrSelfHealing reports that a generation call failed, re-detection ran,
	// and the single retry failed too.
	ErrSelfHealing = errors.New("self-healing failed")

	// ErrContextLength reports that the endpoint rejected the request as too
	// large. Truncating input is the caller's job, not this package's.
	ErrContextLength = errors.New("context length exceeded")
)

// ProtocolError ties a sentinel from the taxonomy above to the classified
// provider error that produced it.
type ProtocolError struct {
	Err    error            // sentinel
	Cause  *ClassifiedError // nil for transport-level failures
	Detail string
}

func (e *ProtocolError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(sentinel error, cause *ClassifiedError, detail string) *ProtocolError {
	return &ProtocolError{Err: sentinel, Cause: cause, Detail: detail}
}
