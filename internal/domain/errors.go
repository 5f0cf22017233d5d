package domain

import "errors"

var (
	// ErrFormatNotSupported is returned when a raw record lacks the fields its shop requires
	ErrFormatNotSupported = errors.New("format not supported")

	// ErrValidationFailed is returned when an assembled product fails canonical schema validation
	ErrValidationFailed = errors.New("canonical product validation failed")

	// ErrBatchItemFault is returned when normalizing a single record panics
	ErrBatchItemFault = errors.New("batch processing error")

	// ErrRuleNotFound is returned when a category rule id is unknown to the store
	ErrRuleNotFound = errors.New("category rule not found")

	// ErrInvalidRule is returned when a category rule fails validation
	ErrInvalidRule = errors.New("invalid category rule")

	// ErrUnknownShop is returned when no normalizer is registered for a shop
	ErrUnknownShop = errors.New("unknown shop")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrStoreUnavailable is returned when the rule store cannot be reached
	ErrStoreUnavailable = errors.New("category store unavailable")
)
