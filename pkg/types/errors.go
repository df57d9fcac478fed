package types

import "errors"

// The closed set of failure kinds a job can end with.
var (
	ErrTransport       = errors.New("transport error")
	ErrProtocolTimeout = errors.New("protocol timeout")
	ErrExtraction      = errors.New("extraction error")
	ErrConfiguration   = errors.New("configuration error")
)

type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindTransport
	KindProtocolTimeout
	KindExtraction
	KindConfiguration
	// KindUnclassified covers anything that escaped the other kinds.
	KindUnclassified
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindProtocolTimeout:
		return "protocol_timeout"
	case KindExtraction:
		return "extraction"
	case KindConfiguration:
		return "configuration"
	default:
		return "unclassified"
	}
}

// TerminalStatus maps an error kind to the one status a job ends in.
func (k ErrorKind) TerminalStatus() JobStatus {
	switch k {
	case KindNone:
		return JobSucceeded
	case KindProtocolTimeout:
		return JobTimeout
	default:
		return JobFailed
	}
}

// KindOf classifies err. Timeouts take precedence over transport errors
// because a wrapped timeout may also carry transport context.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrProtocolTimeout):
		return KindProtocolTimeout
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnclassified
	}
}

// ErrNotFound is returned by stores for unknown records. It is not a job
// failure kind on its own; callers decide how to classify it.
var ErrNotFound = errors.New("not found")
