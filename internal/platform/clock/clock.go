package clock

import "time"

// Clock abstracts wall-clock reads. Operation stamps and activity events go
// through it so convergence tests can pin time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
