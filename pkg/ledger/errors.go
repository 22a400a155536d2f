package ledger

import "errors"

var (
	// ErrTransientFetch marks a failed materialization. The previous slice stays served.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrMutationRejected marks a mutation that failed validation or was refused by the store.
	ErrMutationRejected = errors.New("mutation rejected")
	// ErrConflictingMutation is returned when the mutation's target already has one in flight.
	ErrConflictingMutation = errors.New("conflicting mutation in flight")
	// ErrMalformedDraft is returned with a partial draft when extracted fields fail validation.
	ErrMalformedDraft = errors.New("malformed draft")

	ErrNoDraft         = errors.New("no draft staged")
	ErrNotMaterialized = errors.New("expense is not in the materialized slice")
	ErrUnknownMutation = errors.New("unknown mutation kind")
	ErrInvalidPayload  = errors.New("invalid mutation payload")
)
