package webhook

import "time"

// MaxAttempts is the number of deliveries made before a log is failed.
const MaxAttempts = 5

var (
	productionIntervals = []time.Duration{0, time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}
	testIntervals       = []time.Duration{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
)

// Schedule maps a delivery attempt number to the wait that precedes it.
type Schedule struct {
	intervals []time.Duration
}

func NewSchedule(testMode bool) Schedule {
	if testMode {
		return Schedule{intervals: testIntervals}
	}
	return Schedule{intervals: productionIntervals}
}

// Delay returns the wait before delivery attempt n (1-based). Attempt 1 is the
// initial delivery. ok is false once n exceeds MaxAttempts.
func (s Schedule) Delay(attempt int) (delay time.Duration, ok bool) {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.intervals) {
		return 0, false
	}
	return s.intervals[attempt-1], true
}

// RetryDelay is Delay on the production or test table.
func RetryDelay(attempt int, testMode bool) (time.Duration, bool) {
	return NewSchedule(testMode).Delay(attempt)
}
