package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/routineo/internal/logger"
)

// Kind is the category every surfaced error is converted into.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindStoreRead  Kind = "store_read"
	KindStoreWrite Kind = "store_write"
	KindValidation Kind = "validation"
)

// Reason refines a Kind.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonNetwork            Reason = "network"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonEmailExists        Reason = "email_exists"
	ReasonWeakPassword       Reason = "weak_password"
	ReasonSessionExpired     Reason = "session_expired"
	ReasonNotFound           Reason = "not_found"
	ReasonForbidden          Reason = "forbidden"
	ReasonConflict           Reason = "conflict"
)

var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrStoreRead  = &Error{Kind: KindStoreRead}
	ErrStoreWrite = &Error{Kind: KindStoreWrite}
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Reason: ReasonNotFound}
	ErrForbidden  = &Error{Reason: ReasonForbidden}
)

// Error is a categorized application error. Op names the operation that
// failed, e.g. "items.reorder".
type Error struct {
	Kind   Kind
	Op     string
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
		if e.Reason != "" {
			msg += " (" + string(e.Reason) + ")"
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by Kind and, when set on the target, Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return t.Kind != "" || t.Reason != ""
}

func Auth(op string, reason Reason, err error) error {
	return &Error{Kind: KindAuth, Op: op, Reason: reason, Err: err}
}

func StoreRead(op string, err error) error {
	return &Error{Kind: KindStoreRead, Op: op, Reason: reasonOf(err), Err: err}
}

func StoreWrite(op string, err error) error {
	return &Error{Kind: KindStoreWrite, Op: op, Reason: reasonOf(err), Err: err}
}

func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func Validationf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WithReason returns err categorized under kind with an explicit reason.
func WithReason(kind Kind, op string, reason Reason, err error) error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// reasonOf carries a reason over from a wrapped categorized error.
func reasonOf(err error) Reason {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// KindOf returns the outermost category of err, or "" if uncategorized.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the first reason found in err's chain.
func ReasonOf(err error) Reason {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return ""
		}
		if e.Reason != "" {
			return e.Reason
		}
		err = e.Err
	}
	return ""
}

// Retryable reports whether err is a transient failure worth retrying
// automatically. Only network auth failures qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindAuth && ReasonOf(err) == ReasonNetwork
}

// Message renders err for display. Auth failures get a fixed, retry-oriented
// message instead of the provider's text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindAuth {
		switch ReasonOf(err) {
		case ReasonInvalidCredentials:
			return "Invalid email or password. Please try again."
		case ReasonNetwork:
			return "Could not reach the account store. Check your connection and try again."
		case ReasonRateLimited:
			return "Too many failed attempts. Wait a few minutes and try again."
		case ReasonEmailExists:
			return "An account with that email already exists."
		case ReasonWeakPassword:
			return "Password is too short."
		case ReasonSessionExpired:
			return "Your session has expired. Please sign in again."
		}
	}
	return err.Error()
}

// Is and As re-export the standard library helpers so callers need only one
// errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %s", Message(err))
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
