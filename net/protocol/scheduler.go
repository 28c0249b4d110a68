package protocol

import "time"

// EveryScheduler fires at a fixed interval; it satisfies timingwheel.Scheduler.
type EveryScheduler struct {
	Interval time.Duration
}

func (this *EveryScheduler) Next(prev time.Time) time.Time {
	return prev.Add(this.Interval)
}
