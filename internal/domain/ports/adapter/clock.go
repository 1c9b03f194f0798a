// File: internal/domain/ports/adapter/clock.go
package adapter

import "time"

// Clock abstracts wall-clock reads so entitlement arithmetic is deterministic
// under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
