// Package common defines shared sentinel errors used across StreamVault
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository- and store-level errors.
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Validation errors, returned synchronously before persistence.
	ErrValidation      = errors.New("validation error")
	ErrPayloadTooLarge = errors.New("payload too large")

	// Ledger submission errors.
	//
	// ErrSubmissionRejected is a network-level rejection of the transaction
	// itself (malformed, underfunded). Retrying the same payload will not
	// succeed, so the queue treats it as terminal.
	// ErrNetworkUnavailable is transient and retried with backoff.
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Signing identity errors.
	ErrNoIdentityConfigured = errors.New("no signing identity configured")
	ErrNoFundedIdentity     = errors.New("no funded signing identity")
)
