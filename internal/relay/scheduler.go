package relay

import "time"

// Phase is what the controller's poll loop does on a given tick.
type Phase int

const (
	// Polling consumes session requests and drains results.
	Polling Phase = iota
	// Rotating reissues every channel capability and polls nothing.
	Rotating
)

func (p Phase) String() string {
	switch p {
	case Polling:
		return "polling"
	case Rotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// nextPhase is the rotation rule: rotate once the tick count reaches the
// threshold, or once refreshEvery of wall-clock time has passed since the
// last rotation. The second condition covers ticks that run long, which
// would otherwise stretch the tick-counted window past the capability TTL.
func nextPhase(ticks, threshold int, sinceRotation, refreshEvery time.Duration) Phase {
	if ticks >= threshold {
		return Rotating
	}
	if refreshEvery > 0 && sinceRotation >= refreshEvery {
		return Rotating
	}
	return Polling
}

// Scheduler counts poll-loop ticks and decides when channels must be
// reissued so none of their capabilities reach expiry.
type Scheduler struct {
	threshold    int
	refreshEvery time.Duration
	ticks        int
	lastRotation time.Time
}

// NewScheduler rotates every ttl-margin. start is when the channels were
// last issued.
func NewScheduler(ttl, margin, interval time.Duration, start time.Time) *Scheduler {
	refreshEvery := ttl - margin
	if refreshEvery <= 0 {
		refreshEvery = ttl / 2
	}
	threshold := 1
	if interval > 0 {
		if n := int(refreshEvery / interval); n > 1 {
			threshold = n
		}
	}
	return &Scheduler{
		threshold:    threshold,
		refreshEvery: refreshEvery,
		lastRotation: start,
	}
}

func (s *Scheduler) Threshold() int { return s.threshold }

func (s *Scheduler) Ticks() int { return s.ticks }

// Next advances the machine by one tick. Entering Rotating resets the
// counter; a Polling tick increments it.
func (s *Scheduler) Next(now time.Time) Phase {
	p := nextPhase(s.ticks, s.threshold, now.Sub(s.lastRotation), s.refreshEvery)
	if p == Rotating {
		s.ticks = 0
		s.lastRotation = now
		return p
	}
	s.ticks++
	return p
}
