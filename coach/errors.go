package coach

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRejected          = errors.New("request rejected")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransport         = errors.New("transport failure")
	ErrNoAudio           = errors.New("no audio to submit")
)

type ErrorKind int

const (
	Rejected ErrorKind = iota + 1
	MalformedResponse
	Transport
)

func (k ErrorKind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case MalformedResponse:
		return "malformed response"
	case Transport:
		return "transport"
	}
	return "unknown"
}

// ProtocolError is returned for every failed call to the training service.
type ProtocolError struct {
	Kind    ErrorKind
	Op      string
	Status  int    // HTTP status, zero unless Kind is Rejected
	Message string // server "erro" text or a local description
	Err     error
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case Rejected:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case Transport:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Kind == Rejected
	case ErrMalformedResponse:
		return e.Kind == MalformedResponse
	case ErrTransport:
		return e.Kind == Transport
	}
	return false
}

func rejected(op string, status int, message string) *ProtocolError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &ProtocolError{Kind: Rejected, Op: op, Status: status, Message: message}
}

func malformed(op, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: MalformedResponse, Op: op, Message: fmt.Sprintf(format, args...)}
}

func transport(op string, err error) *ProtocolError {
	return &ProtocolError{Kind: Transport, Op: op, Message: "service unreachable", Err: err}
}
