package tms

import (
	"fmt"

	"tms-autobuy/internal/quote"
)

// AuthError means no session could be established. Fatal to the whole run.
type AuthError struct {
	Op     string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProfileError means account identifiers could not be read. Fatal to the
// whole run.
type ProfileError struct {
	Status int
	Err    error
}

func (e *ProfileError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch account: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch account: %v", e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

// QuoteError is a failed or unparseable quote poll for one symbol.
type QuoteError struct {
	Symbol string
	Status int
	Err    error
}

func (e *QuoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("quote %s: status %d: %v", e.Symbol, e.Status, e.Err)
	}
	return fmt.Sprintf("quote %s: %v", e.Symbol, e.Err)
}

func (e *QuoteError) Unwrap() error { return e.Err }

func malformedQuote(symbol, format string, args ...any) *QuoteError {
	return &QuoteError{Symbol: symbol, Err: fmt.Errorf("%w: "+format, append([]any{quote.ErrMalformed}, args...)...)}
}

// OrderError is a rejected or unreadable order submission. The token used for
// the attempt must be considered spent.
type OrderError struct {
	Symbol string
	Token  string
	Status int
	Err    error
}

func (e *OrderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("order %s (token %s): status %d: %v", e.Symbol, e.Token, e.Status, e.Err)
	}
	return fmt.Sprintf("order %s (token %s): %v", e.Symbol, e.Token, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }
