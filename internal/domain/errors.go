package domain

import "errors"

var (
	// ErrInvalidProbe is returned when a reconcile request carries neither
	// an email nor a phone number. Surfaced to the caller as a client error.
	ErrInvalidProbe = errors.New("identify: email or phoneNumber required")

	// ErrInvalidContact rejects an insert with no identifying fields.
	ErrInvalidContact = errors.New("contact: email or phone number required")

	// ErrInvalidQuery rejects a lookup with no criteria.
	ErrInvalidQuery = errors.New("contact query: email or phone number required")

	// ErrNotFound means a mutation targeted a missing or inactive contact.
	ErrNotFound = errors.New("contact not found")
)
