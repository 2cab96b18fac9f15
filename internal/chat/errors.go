// Package chat holds the private and group session managers: they enforce
// membership and authorization rules and mediate between inbound actions,
// durable storage, and registry fan-out.
package chat

import "fmt"

type Kind int

const (
	// KindUnauthorized: the caller is not allowed to perform the action.
	KindUnauthorized Kind = iota + 1
	// KindNotFound: a referenced user, chat, or group does not exist.
	KindNotFound
	// KindNotAMember: the target user is not a member of the group.
	KindNotAMember
	// KindConflict: a uniqueness rule was violated and is not resolvable
	// by re-fetching.
	KindConflict
	// KindStorage: the persistence call itself failed; no state changed.
	KindStorage
)

// Error is the typed result of every session-manager operation that can
// fail. Callers branch on Kind; Message is the user-visible diagnostic.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func notAMember(format string, args ...any) *Error {
	return &Error{Kind: KindNotAMember, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func storage(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage failure", cause: err}
}
