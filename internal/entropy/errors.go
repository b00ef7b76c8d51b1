package entropy

import "errors"

// Sentinel error kinds returned by Manager.Initialize. Not every policy
// outcome in the manager's taxonomy is an error return: InsufficientEntropy
// is a refusal path that zeros the buffer and wakes writers rather than
// returning an error, Contention is the expected, benign result of a lost
// PoolTryLock race, and Shutdown is observed via the terminate flag, not
// returned — none of those three have a sentinel here because nothing
// would ever construct one.
var (
	// ErrAlreadyAllocated is returned when Initialize is called on a
	// manager that is already live. Reported, not fatal: the caller can
	// simply stop calling Initialize again.
	ErrAlreadyAllocated = errors.New("entropy: already allocated")

	// ErrSourceInitFailure wraps a non-optional source's Init failure.
	// Fatal for Manager.Initialize; short-circuits remaining source inits.
	ErrSourceInitFailure = errors.New("entropy: source initialization failed")

	// ErrNoSources is returned when Initialize is called against an empty
	// registry — there is nothing to seed from.
	ErrNoSources = errors.New("entropy: no sources registered")
)
