package domain

import "errors"

var (
	// ErrInsufficientMargin means the wallet cannot cover the reserved margin
	// plus fee for a fill. It is a caller error and is never retried
	// automatically; the caller must reduce size or abort.
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrPriceUnavailable is a transient pricing failure. Monitors skip the
	// symbol for the current tick and retry on the next one.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrOrderSubmission means the exchange rejected or failed an order
	// submission. Close attempts are retried with bounded backoff; if the
	// budget is exhausted the position stays tracked so the next tick
	// re-fires the trigger.
	ErrOrderSubmission = errors.New("order submission failed")

	// ErrFillPriceUnresolved means an order is confirmed filled but its fill
	// price could not be queried within the retry budget and no mark price
	// was available to fall back to. When a mark is available the caller
	// records it instead and flags the trade for reconciliation.
	ErrFillPriceUnresolved = errors.New("fill price unresolved")

	// ErrNotFound is returned by stores and caches for missing records.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld means another holder currently owns a symbol lock.
	ErrLockHeld = errors.New("lock already held")

	// ErrInvalidOrder is returned for structurally invalid order requests,
	// e.g. a reduce-only order against no open position.
	ErrInvalidOrder = errors.New("invalid order parameters")
)
