/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tracker

import (
	"errors"
	"fmt"
)

// ValidationMessage is shown to whoever submitted a score that could not be
// parsed.
const ValidationMessage = "Please enter a valid number."

var (
	ErrInvalidScore  = errors.New("invalid score")
	ErrUnknownPlayer = errors.New("unknown player")
)

// ValidationError is returned by CommitScore when the staged input is empty or
// not a number. The ledger and the staged input are left as they were.
type ValidationError struct {
	Player string
	Input  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v for %q: %q", ErrInvalidScore, e.Player, e.Input)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidScore
}

// Message returns the user-facing text for the failure.
func (e *ValidationError) Message() string {
	return ValidationMessage
}

// LookupError is returned by any operation naming a player that is not
// registered.
type LookupError struct {
	Player string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownPlayer, e.Player)
}

func (e *LookupError) Unwrap() error {
	return ErrUnknownPlayer
}
