package backend

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindNetwork covers unreachable hosts, timeouts and undecodable replies.
	KindNetwork Kind = iota + 1
	// KindAuth means the session was rejected (HTTP 401 or business code 401).
	KindAuth
	// KindBusiness is any other non-200 application code.
	KindBusiness
	// KindEmpty is a successful reply without usable data.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindBusiness:
		return "business"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork     = errors.New("network failure")
	ErrAuthInvalid = errors.New("session rejected")
	ErrBusiness    = errors.New("business error")
	ErrEmpty       = errors.New("empty result")
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Code != 0:
		return fmt.Sprintf("%s: %s (code=%d)", e.Op, e.Msg, e.Code)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuthInvalid:
		return e.Kind == KindAuth
	case ErrBusiness:
		return e.Kind == KindBusiness
	case ErrEmpty:
		return e.Kind == KindEmpty
	}
	return false
}

// UserMessage is the text shown to the user for a failed mutating call.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) {
		switch be.Kind {
		case KindBusiness:
			if be.Msg != "" {
				return be.Msg
			}
			return "request failed"
		case KindAuth:
			return "not logged in or session expired, please log in again"
		case KindNetwork:
			return "backend unreachable, please try again later"
		case KindEmpty:
			return "no data returned"
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Recoverable reports whether a data-fetch path should fall back locally.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrEmpty)
}
