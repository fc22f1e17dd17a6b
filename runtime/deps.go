package phototheory

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock is the time source handlers see through Context.Now.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// IDGenerator mints request IDs for requests that arrive without x-request-id.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator mints lexically sortable IDs.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string { return ulid.Make().String() }

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }
