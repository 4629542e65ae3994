package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoint means every endpoint had its breaker open.
	ErrNoEndpoint = errors.New("no rpc endpoint available")
	// ErrBlockMissing means the node returned no block for a height below head.
	ErrBlockMissing = errors.New("block missing")
	// ErrGapTooLarge means the stream fell further behind head than allowed.
	ErrGapTooLarge = errors.New("block stream gap exceeds limit")
	// ErrStreamStalled means the next block did not appear within the stall limit.
	ErrStreamStalled = errors.New("block stream stalled")
)

// ForkError reports a block whose parent hash does not match the previously
// streamed block. It is recoverable: the caller re-verifies its head and restarts.
type ForkError struct {
	Num      uint64
	Expected string
	Got      string
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("fork at block %d: previous %s != expected %s", e.Num, e.Got, e.Expected)
}
