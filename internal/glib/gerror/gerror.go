// Package gerror defines the domain-tagged error value reported by
// operations that can fail.
//
// An Error carries three things:
//   - Domain: a Quark naming the subsystem (e.g. "g-thread-error-quark")
//   - Code: a domain-specific numeric code
//   - Message: a human-readable description
//
// Errors are returned as ordinary Go errors and matched with errors.Is
// (same domain and code) or errors.As (to read the fields).
package gerror

import (
	"errors"
	"fmt"
	"sync"
)

// Quark is an interned string identifying an error domain.
//
// The zero Quark is never assigned to a string.
type Quark uint32

var (
	quarkMu      sync.RWMutex
	quarkByName  = make(map[string]Quark)
	quarkStrings = []string{""}
)

// QuarkFromString returns the Quark for name, interning it on first use.
//
// Thread-safe. An empty name yields the zero Quark.
func QuarkFromString(name string) Quark {
	if name == "" {
		return 0
	}

	quarkMu.RLock()
	q, ok := quarkByName[name]
	quarkMu.RUnlock()
	if ok {
		return q
	}

	quarkMu.Lock()
	defer quarkMu.Unlock()
	if q, ok := quarkByName[name]; ok {
		return q
	}
	//nolint:gosec // G115: quark count never approaches uint32 max
	q = Quark(len(quarkStrings))
	quarkStrings = append(quarkStrings, name)
	quarkByName[name] = q
	return q
}

// String returns the interned name, or "" for unknown quarks.
func (q Quark) String() string {
	quarkMu.RLock()
	defer quarkMu.RUnlock()
	if int(q) < len(quarkStrings) {
		return quarkStrings[q]
	}
	return ""
}

// Error is a domain-tagged error.
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type Error struct {
	Domain  Quark  // Subsystem the error belongs to
	Code    int    // Domain-specific code
	Message string // Human-readable description
}

// New creates an Error with a fixed message.
func New(domain Quark, code int, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(domain Quark, code int, format string, args ...any) *Error {
	return &Error{Domain: domain, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
//
// Format: domain: message (code N)
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Domain, e.Message, e.Code)
}

// Is reports whether target is an *Error with the same domain and code.
// The message is not compared.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

// Matches reports whether e belongs to domain and carries code.
// A nil Error matches nothing.
func (e *Error) Matches(domain Quark, code int) bool {
	return e != nil && e.Domain == domain && e.Code == code
}

// Clear releases the error held in *slot and resets the slot to nil.
//
// Both slot and *slot may be nil, in which case Clear does nothing.
func Clear(slot **Error) {
	if slot != nil && *slot != nil {
		*slot = nil
	}
}

// Set stores err in *slot when slot is non-nil.
//
// It is used by call sites that keep an explicit error slot and want it
// overwritten on every call: success stores nil.
func Set(slot **Error, err *Error) {
	if slot != nil {
		*slot = err
	}
}

// From extracts an *Error from err's chain, or nil if there is none.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
