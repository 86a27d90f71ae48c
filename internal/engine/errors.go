package engine

import "errors"

var (
	// ErrNoActivePool means the simulation start precedes every rotation
	// schedule entry. Fatal: the run is misconfigured, not recoverable.
	ErrNoActivePool = errors.New("engine: date precedes first rotation schedule entry")

	// ErrInsufficientCash is an internal-consistency assertion. The sizer
	// contract guarantees buys fit the available cash; seeing this means the
	// sizer or ledger is defective and the run must halt.
	ErrInsufficientCash = errors.New("engine: insufficient cash for buy")

	// ErrEquityMismatch means the accounting identity
	// cash + Σ(shares × price) == equity broke beyond tolerance.
	ErrEquityMismatch = errors.New("engine: equity identity violated")

	// ErrCapacityExceeded means the position count grew past the configured
	// capacity, which the buffer selector is supposed to make impossible.
	ErrCapacityExceeded = errors.New("engine: position count exceeds capacity")
)
