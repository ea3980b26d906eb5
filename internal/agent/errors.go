package agent

import "errors"

var (
	// ErrUnknownCapability is returned for a capability outside the fixed set.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrCapabilityUnavailable is returned when a known capability has no
	// backing component, such as summarize without a language model.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)
