package round

import "time"

// RevealSteps are the offsets from round start at which provisional
// opponent moves are shown. The gaps grow so the reveal slows to a stop.
var RevealSteps = []time.Duration{
	100 * time.Millisecond,
	150 * time.Millisecond,
	200 * time.Millisecond,
	250 * time.Millisecond,
	300 * time.Millisecond,
	400 * time.Millisecond,
	500 * time.Millisecond,
	600 * time.Millisecond,
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
