package model

import "github.com/rotisserie/eris"

// Error taxonomy for indexing runs. Per-record and per-provider conditions are
// isolated and logged; only persistence failures and ErrNoProvidersConfigured
// abort a job.
var (
	// ErrProviderUnavailable marks a network or auth failure talking to one
	// provider. The provider is skipped for the rest of the run.
	ErrProviderUnavailable = eris.New("provider unavailable")

	// ErrBudgetExhausted marks a provider whose call budget ran out mid-run.
	ErrBudgetExhausted = eris.New("provider budget exhausted")

	// ErrRecordMalformed marks a single record that failed normalization.
	ErrRecordMalformed = eris.New("record malformed")

	// ErrNoProvidersConfigured fails a job before any phase starts.
	ErrNoProvidersConfigured = eris.New("no providers configured")

	// ErrPersistenceUnavailable aborts the job and marks it failed.
	ErrPersistenceUnavailable = eris.New("persistence unavailable")
)
