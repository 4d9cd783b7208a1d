package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle is shared between the shutdown path and the readiness handler.
// Once draining, /readyz reports 503 so load balancers stop routing new
// signed URL requests while in-flight exchanges finish.
type Lifecycle struct {
	drainingSince atomic.Int64
}

// BeginDrain marks the process as draining. It reports false if draining had
// already begun.
func (l *Lifecycle) BeginDrain(now time.Time) bool {
	if l == nil {
		return false
	}
	return l.drainingSince.CompareAndSwap(0, now.UnixNano())
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.drainingSince.Load() != 0
}

// DrainingSince returns when draining began, or the zero time.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	ns := l.drainingSince.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
